package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tiler-backend/cmd"
	"tiler-backend/internal/api"
	"tiler-backend/internal/core"
	"tiler-backend/internal/database"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type APIConfig struct {
	Port           int           `env:"PORT" envDefault:"8001"`
	DataDir        string        `env:"DATA_DIR" envDefault:"./tiler-data"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	TileWorkers    int           `env:"TILE_WORKERS" envDefault:"0"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"67108864"`
	MaxImagePixels int           `env:"MAX_IMAGE_PIXELS" envDefault:"268435456"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"120s"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`

	Scratch cmd.ScratchConfig
}

func main() {
	log.Println("Starting tiler API server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	if err := cmd.SetupLogger(cfg.LogLevel); err != nil {
		log.Fatalf("error setting up logger: %v", err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = filepath.Join(cfg.DataDir, "db", "tiler.db")
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	scratch, err := cmd.NewScratchProvider(context.Background(), cfg.Scratch, cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to create scratch storage: %v", err)
	}

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	pipeline := core.NewPipeline(scratch, cfg.TileWorkers).WithMaxPixels(cfg.MaxImagePixels)
	apiHandler := api.NewTilerService(db, pipeline, cfg.MaxUploadBytes)

	apiHandler.AddRoutes(r)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("API server listening", "port", cfg.Port, "origins", strings.Join(cfg.AllowedOrigins, ","), "max_upload_bytes", cfg.MaxUploadBytes)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	log.Println("Server stopped.")
}
