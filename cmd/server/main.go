package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/rpattn/dxfdiff/internal/artifacts"
	"github.com/rpattn/dxfdiff/internal/comparison"
	"github.com/rpattn/dxfdiff/internal/config"
	"github.com/rpattn/dxfdiff/internal/db"
	"github.com/rpattn/dxfdiff/internal/httpapi"
	"github.com/rpattn/dxfdiff/internal/middleware"
	"github.com/rpattn/dxfdiff/internal/registry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := os.Getenv("DXFDIFF_CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := cfg.ArtifactStore(ctx)
	if err != nil {
		log.Fatalf("Failed to open artifact store: %v", err)
	}

	serviceOpts := []comparison.Option{
		comparison.WithStore(store),
		comparison.WithWorkers(cfg.Compare.Workers),
	}
	handlerOpts := []httpapi.Option{
		httpapi.WithStore(store),
		httpapi.WithMaxUploadMB(cfg.Server.MaxUploadMB),
		httpapi.WithSigner(artifacts.NewSigner(cfg.Server.DownloadSecret, cfg.Server.DownloadTTL)),
	}

	var repos registry.Multi
	if cfg.Database.Enabled {
		conn, err := db.NewConnection(ctx, cfg.Database.Config)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer conn.Close()

		if err := db.RunMigrations(cfg.Database.Config); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		repo := registry.NewPostgresRepository(conn)
		repos = append(repos, repo)
		serviceOpts = append(serviceOpts, comparison.WithRecorder(repo))
	}
	if cfg.Registry.Path != "" {
		workbook, err := registry.OpenWorkbook(cfg.Registry.Path)
		if err != nil {
			log.Fatalf("Failed to open registry workbook: %v", err)
		}
		repos = append(repos, workbook)
		handlerOpts = append(handlerOpts, httpapi.WithWorkbook(workbook, cfg.Registry.Path))
	}
	if len(repos) > 0 {
		serviceOpts = append(serviceOpts, comparison.WithRegistry(repos))
	}

	service := comparison.NewService(serviceOpts...)
	api := httpapi.NewHandler(service, cfg.ComparisonOptions(), handlerOpts...)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition"},
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(middleware.LoggingMiddleware(middleware.RecoverMiddleware(api))),
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting DXF diff server on %s", cfg.Server.Addr)
		log.Printf("Compare endpoint available at http://localhost%s/api/compare", cfg.Server.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
