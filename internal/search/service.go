package search

import (
	"context"
	"log"
	"time"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// RefreshLoop re-runs the full reindex on a fixed interval. Records are
// written by the upstream systems, never through this engine, so a periodic
// sweep is the only way index entries stay current.
func (s *Service) RefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ReindexAllFromPG(ctx)
		}
	}
}

// ReindexAllFromPG reads every searchable record from PostgreSQL and pushes
// it to Meilisearch. Called at startup and from RefreshLoop when Meilisearch
// is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	jobs, invoices, quotes, clients, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}

	if err := s.meili.IndexJobs(jobs); err != nil {
		log.Printf("search: reindex jobs: %v", err)
	}
	if err := s.meili.IndexInvoices(invoices); err != nil {
		log.Printf("search: reindex invoices: %v", err)
	}
	if err := s.meili.IndexQuotes(quotes); err != nil {
		log.Printf("search: reindex quotes: %v", err)
	}
	if err := s.meili.IndexClients(clients); err != nil {
		log.Printf("search: reindex clients: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
