package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"assistant/internal/api"
	"assistant/internal/attachments"
	"assistant/internal/blob"
	"assistant/internal/chat"
	"assistant/internal/completion"
	"assistant/internal/config"
	"assistant/internal/db"
	"assistant/internal/gemini"
	"assistant/internal/storage"
	"assistant/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting server", "name", cfg.Server.Name, "model", cfg.Completion.Model, "backend", cfg.Completion.Backend)

	database, err := db.Open(cfg.Storage.DatabasePath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.Info("database opened", "path", cfg.Storage.DatabasePath)

	blobService, err := blob.NewService(cfg.Storage.Root)
	if err != nil {
		slog.Error("failed to initialize blob storage", "error", err)
		os.Exit(1)
	}
	storageService := storage.NewService(database, blobService, cfg.Server.BaseURL)
	slog.Info("object storage initialized", "root", cfg.Storage.Root, "upload_max_bytes", int64(cfg.Storage.UploadMaxBytes))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go storage.NewCleanupService(storageService, cfg.Storage.Retention).Start(ctx)

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize completion backend", "error", err)
		os.Exit(1)
	}
	resolver := completion.NewResolver(storageService, cfg.Server.BaseURL, cfg.Completion.FetchTimeout, int64(cfg.Completion.FetchMaxBytes))
	gateway := completion.NewGateway(backend, resolver, completion.GenerationConfig{
		Temperature:     cfg.Completion.Temperature,
		TopK:            cfg.Completion.TopK,
		TopP:            cfg.Completion.TopP,
		MaxOutputTokens: cfg.Completion.MaxOutputTokens,
	})

	bucketSpec := storage.BucketSpec{
		Name:             cfg.Storage.Bucket,
		Public:           true,
		FileSizeLimit:    int64(cfg.Storage.UploadMaxBytes),
		AllowedMimeTypes: cfg.Storage.AllowedMimeTypes,
	}
	provisioner := attachments.NewProvisioner(storageService, bucketSpec)
	provisioner.Ensure(ctx)

	hub := ws.NewHub()
	go hub.Run()

	manager := chat.NewManager(chat.Config{
		WelcomeMessage:   cfg.Chat.WelcomeMessage,
		SystemPrompt:     cfg.Completion.SystemPrompt,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		IdleTTL:          cfg.Chat.SessionIdleTTL,
		Attachments: attachments.Config{
			Bucket:              cfg.Storage.Bucket,
			MaxBytes:            int64(cfg.Storage.UploadMaxBytes),
			InlineImageMaxBytes: int64(cfg.Storage.InlineImageMaxBytes),
			CacheControl:        cfg.Storage.CacheControl,
			AllowedMimeTypes:    cfg.Storage.AllowedMimeTypes,
			Concurrency:         cfg.Storage.UploadConcurrency,
		},
	}, storageService, provisioner, gateway, hub)
	go manager.Start(ctx)

	server, err := api.NewServer(api.Deps{
		Config:     cfg,
		Database:   database,
		Objects:    storageService,
		Buckets:    storageService,
		BucketSpec: bucketSpec,
		Sessions:   manager,
		Hub:        hub,
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", addr, "base_url", cfg.Server.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")

	cancel()

	server.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

func newBackend(ctx context.Context, cfg *config.Config) (completion.Backend, error) {
	geminiCfg := gemini.Config{
		BaseURL: cfg.Completion.BaseURL,
		APIKey:  cfg.Completion.APIKey,
		Model:   cfg.Completion.Model,
		Timeout: cfg.Completion.Timeout,
	}
	if cfg.Completion.Backend == config.BackendLangchainGo {
		return gemini.NewLangchainBackend(ctx, geminiCfg, cfg.Completion.MaxOutputTokens)
	}
	return gemini.NewClient(geminiCfg), nil
}
