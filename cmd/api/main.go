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

	"masthead/api/internal/app"
	"masthead/api/internal/assets"
	"masthead/api/internal/authpw"
	"masthead/api/internal/config"
	"masthead/api/internal/email"
	"masthead/api/internal/presence"
	"masthead/api/internal/revisions"
	"masthead/api/internal/search"
	"masthead/api/internal/session"
	"masthead/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.RevisionsDir, 0o755); err != nil {
		log.Fatalf("failed to create revisions dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	revisionService := revisions.New(cfg.RevisionsDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	searchService.ReindexAllFromPG(ctx)

	var assetService *assets.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		assetService, err = assets.NewService(ctx, assets.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("media storage connection failed: %v", err)
		}
		log.Printf("Media storage on %s (bucket %s)", cfg.MinioEndpoint, cfg.MinioBucket)
	} else {
		log.Printf("MINIO_ENDPOINT not set; media uploads and previews disabled")
	}

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	registry := presence.NewRegistry(cfg.PresenceLiveness)
	sweeper := presence.NewSweeper(registry, 0)
	go sweeper.Run(ctx)

	opts := app.Options{
		Store:             dataStore,
		AuthPW:            authpw.NewService(dataStore),
		Email:             emailService,
		Search:            searchService,
		Revisions:         revisionService,
		Presence:          registry,
		JWTSecret:         []byte(cfg.JWTSecret),
		AccessTTL:         cfg.AccessTTL,
		RefreshTTL:        cfg.RefreshTTL,
		PresenceHeartbeat: cfg.PresenceHeartbeat,
		PublicURL:         cfg.PublicURL,
	}
	if assetService != nil {
		opts.Assets = assetService
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		opts.Sessions = redisStore
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
		opts.Sessions = app.PostgresSessions{Store: dataStore}
	}

	service := app.NewService(opts)

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
		log.Printf("Masthead API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
