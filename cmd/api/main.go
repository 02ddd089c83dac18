package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fieldops/api/internal/app"
	"fieldops/api/internal/cache"
	"fieldops/api/internal/config"
	"fieldops/api/internal/docstore"
	"fieldops/api/internal/feed"
	"fieldops/api/internal/search"
	"fieldops/api/internal/session"
	"fieldops/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		go searchService.ReindexAllFromPG(ctx)
		go searchService.RefreshLoop(ctx, cfg.SearchRefreshInterval)
	}

	// Redis backs both refresh sessions and the feed cache. Without it,
	// sessions fall back to Postgres and the cache to process memory.
	var sessions app.SessionStore
	var feedCache cache.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err == nil {
			log.Printf("Using Redis for refresh sessions and feed cache")
			defer redisStore.Close()
			sessions = redisStore
			feedCache = cache.NewRedis(redisStore.Client())
		} else {
			log.Printf("redis unavailable, falling back to Postgres sessions: %v", err)
		}
	}
	if sessions == nil {
		log.Printf("Using PostgreSQL for refresh sessions and in-process feed cache")
		sessions = app.NewPostgresSessions(dataStore)
		feedCache = cache.NewMemory()
	}

	var documents docstore.Resolver = docstore.Noop{}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioResolver, err := docstore.NewMinio(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Printf("minio unavailable, document links disabled: %v", err)
		} else {
			documents = minioResolver
		}
	}

	aggregator := feed.New(dataStore, feedCache, documents, cfg.FeedCacheTTL, cfg.SourceTimeout)
	service := app.New(cfg, dataStore, sessions, aggregator, searchService)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("FieldOps API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
