package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"tiler-backend/internal/storage"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// SetupLogger installs a text slog handler at the given level ("debug",
// "info", "warn" or "error") as the default logger.
func SetupLogger(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

type ScratchConfig struct {
	Backend string `env:"SCRATCH_BACKEND" envDefault:"local"`
	Dir     string `env:"SCRATCH_DIR"`

	Bucket            string `env:"SCRATCH_BUCKET" envDefault:"tiler-scratch"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

// NewScratchProvider opens the configured scratch backend. A local backend
// without an explicit directory uses "scratch" under dataDir.
func NewScratchProvider(ctx context.Context, cfg ScratchConfig, dataDir string) (storage.Provider, error) {
	backend, err := storage.ToProviderType(cfg.Backend)
	if err != nil {
		return nil, err
	}

	switch backend {
	case storage.S3ProviderType:
		provider, err := storage.NewS3Provider(ctx, cfg.Bucket, storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		if err := provider.CreateBucket(ctx); err != nil {
			return nil, err
		}
		slog.Info("using s3 scratch", "bucket", cfg.Bucket, "endpoint", cfg.S3EndpointURL)
		return provider, nil

	default:
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join(dataDir, "scratch")
		}
		provider, err := storage.NewLocalProvider(dir)
		if err != nil {
			return nil, err
		}
		slog.Info("using local scratch", "dir", dir)
		return provider, nil
	}
}
