package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DatabaseURL string // MADRASA_DATABASE_URL (required)
	HTTPAddr    string // MADRASA_HTTP_ADDR (default ":8080")
	NATSURL     string // MADRASA_NATS_URL (optional, empty = no cross-instance mirror)
	AuthToken   string // MADRASA_AUTH_TOKEN (optional, empty = auth disabled)

	// Archive settings
	ArchiveInterval   time.Duration // MADRASA_ARCHIVE_INTERVAL (default 0 = disabled)
	ArchiveS3Bucket   string        // MADRASA_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string        // MADRASA_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        // MADRASA_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Key      string        // MADRASA_ARCHIVE_S3_KEY (default "madrasa/events.jsonl")
	ArchiveFile       string        // MADRASA_ARCHIVE_FILE (local JSONL path; alternative to S3)

	// EventRetention bounds the hot event table. Rows older than the window
	// are pruned only after a successful archive export; 0 keeps everything.
	EventRetention time.Duration // MADRASA_EVENT_RETENTION (default 0 = keep forever)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:       os.Getenv("MADRASA_DATABASE_URL"),
		HTTPAddr:          envOrDefault("MADRASA_HTTP_ADDR", ":8080"),
		NATSURL:           os.Getenv("MADRASA_NATS_URL"),
		AuthToken:         os.Getenv("MADRASA_AUTH_TOKEN"),
		ArchiveS3Bucket:   os.Getenv("MADRASA_ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint: os.Getenv("MADRASA_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:   envOrDefault("MADRASA_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Key:      envOrDefault("MADRASA_ARCHIVE_S3_KEY", "madrasa/events.jsonl"),
		ArchiveFile:       os.Getenv("MADRASA_ARCHIVE_FILE"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("MADRASA_DATABASE_URL is required")
	}

	if v := os.Getenv("MADRASA_ARCHIVE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("MADRASA_ARCHIVE_INTERVAL: %w", err)
		}
		c.ArchiveInterval = d
	}

	if v := os.Getenv("MADRASA_EVENT_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("MADRASA_EVENT_RETENTION: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("MADRASA_EVENT_RETENTION must not be negative")
		}
		c.EventRetention = d
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
