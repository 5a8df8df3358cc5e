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

	"lens/api/internal/app"
	"lens/api/internal/config"
	"lens/api/internal/docmodel"
	"lens/api/internal/export"
	"lens/api/internal/livedoc"
	"lens/api/internal/search"
	"lens/api/internal/session"
	"lens/api/internal/snapshot"
	"lens/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	kv, db, err := app.OpenKV(ctx, cfg)
	if err != nil {
		log.Fatalf("store setup failed: %v", err)
	}
	defer kv.Close()
	annotations := store.NewAnnotationStore(kv)

	if err := os.MkdirAll(cfg.SnapshotsDir, 0o755); err != nil {
		log.Fatalf("failed to create snapshots dir: %v", err)
	}
	snapshots := snapshot.New(cfg.SnapshotsDir)

	var fallback search.Searcher = search.NewScan(annotations)
	if db != nil {
		fallback = search.NewPgFTS(db)
	}
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, fallback)
	go searchService.ReindexAll(ctx, annotations)

	var uploader *export.Uploader
	if strings.TrimSpace(cfg.MinIOEndpoint) != "" {
		uploader, err = export.NewUploader(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOSecure)
		if err != nil {
			log.Fatalf("minio setup failed: %v", err)
		}
		if err := uploader.EnsureBucket(ctx); err != nil {
			log.Printf("WARNING: export bucket unavailable: %v", err)
		}
	}
	exports := export.NewService(annotations, uploader)

	var sessions session.Store = session.NewMemoryStore()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for re-anchor sessions")
		redisSessions, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisSessions.Close()
		sessions = redisSessions
	}

	service := app.New(cfg, annotations, sessions, snapshots, searchService, exports)
	if cfg.LiveRender {
		opts := livedoc.Options{Width: int64(cfg.LiveWidth), Height: int64(cfg.LiveHeight)}
		service.WithRenderer(func(ctx context.Context, url string) (*docmodel.Tree, error) {
			return livedoc.Snapshot(ctx, url, opts)
		})
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Lens API listening on %s (store=%s)", cfg.Addr, cfg.Store)
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
