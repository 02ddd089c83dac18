// Package docstore resolves short-lived links to documents (certificate and
// invoice PDFs) held in object storage. The engine never reads or writes the
// objects themselves; it only hands out presigned GET URLs.
package docstore

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Resolver turns a stored object key into a navigable URL. An empty return
// means no link; the documentLink field is optional by contract.
type Resolver interface {
	DocumentURL(ctx context.Context, key string) string
}

type Minio struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

func NewMinio(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Minio, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Minio{client: client, bucket: bucket, ttl: 15 * time.Minute}, nil
}

// DocumentURL presigns a GET for the object. Failures degrade to "no link";
// a missing document link must never fail a feed request.
func (m *Minio) DocumentURL(ctx context.Context, key string) string {
	if key == "" {
		return ""
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.ttl, nil)
	if err != nil {
		log.Printf("docstore: presign %s failed: %v", key, err)
		return ""
	}
	return u.String()
}

// Noop is used when object storage is not configured.
type Noop struct{}

func (Noop) DocumentURL(context.Context, string) string { return "" }
