// Package config loads process-startup configuration from environment
// variables and command-line flags, flags taking precedence. This
// mirrors rclone's pflag-based CLI layer; there is no runtime reload
// (spec §6: "All are process-startup inputs; none is mutated at
// runtime").
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// Config holds every process-startup input named in spec §6.
type Config struct {
	ListenHost string
	ListenPort int

	PassivePortLo int
	PassivePortHi int

	MasqueradeAddr string

	ChunkSizeMB   int
	MaxRetries    int
	MaxStagingAge int // seconds
	WorkerCount   int
	StagingDir    string

	MongoURI      string
	MongoDatabase string

	BlobBaseURL      string
	BlobAPIKey       string
	BlobTarget       string
	BlobBackupTarget string

	LogLevel string
	LogFile  string

	MetricsAddr string

	MaxConnections        int
	MaxConnectionsPerUser int

	ShutdownDrainTimeout int // seconds
}

const envPrefix = "NEBULA_"

func envOr(name, def string) string {
	if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
		return v
	}
	return def
}

func envIntOr(name string, def int) int {
	if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Load builds a Config from the environment, then overlays any flags
// present in args (flags win over environment, matching rclone's
// "flags override config file override environment" precedence chain,
// minus the config-file tier this system doesn't have).
func Load(args []string) (*Config, error) {
	cfg := &Config{
		ListenHost:            envOr("HOST", "0.0.0.0"),
		ListenPort:            envIntOr("PORT", 2121),
		MasqueradeAddr:        envOr("MASQUERADE_ADDR", ""),
		ChunkSizeMB:           envIntOr("CHUNK_SIZE_MB", 64),
		MaxRetries:            envIntOr("MAX_RETRIES", 5),
		MaxStagingAge:         envIntOr("MAX_STAGING_AGE", 3600),
		WorkerCount:           envIntOr("MAX_WORKERS", 4),
		StagingDir:            envOr("STAGING_DIR", "staging"),
		MongoURI:              envOr("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:         envOr("MONGODB_DATABASE", "ftp"),
		BlobBaseURL:           envOr("BLOB_BASE_URL", ""),
		BlobAPIKey:            envOr("BLOB_API_KEY", ""),
		BlobTarget:            envOr("BLOB_TARGET", ""),
		BlobBackupTarget:      envOr("BLOB_BACKUP_TARGET", ""),
		LogLevel:              envOr("LOG_LEVEL", "info"),
		LogFile:               envOr("LOG_FILE", ""),
		MetricsAddr:           envOr("METRICS_ADDR", ""),
		MaxConnections:        envIntOr("MAX_CONNECTIONS", 256),
		MaxConnectionsPerUser: envIntOr("MAX_CONNECTIONS_PER_USER", 100),
		ShutdownDrainTimeout:  envIntOr("SHUTDOWN_DRAIN_TIMEOUT", 30),
	}

	if pp := envOr("PASSIVE_PORTS", ""); pp != "" {
		lo, hi, err := parsePortRange(pp)
		if err == nil {
			cfg.PassivePortLo, cfg.PassivePortHi = lo, hi
		}
	}

	fs := pflag.NewFlagSet("nebulaftpd", pflag.ContinueOnError)
	fs.StringVar(&cfg.ListenHost, "host", cfg.ListenHost, "bind host")
	fs.IntVar(&cfg.ListenPort, "port", cfg.ListenPort, "bind port")
	fs.StringVar(&cfg.MasqueradeAddr, "masquerade-addr", cfg.MasqueradeAddr, "externally reachable PASV address")
	fs.IntVar(&cfg.ChunkSizeMB, "chunk-size-mb", cfg.ChunkSizeMB, "chunk size in MiB")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "max retries per chunk upload")
	fs.IntVar(&cfg.MaxStagingAge, "max-staging-age", cfg.MaxStagingAge, "max staging file age in seconds before GC")
	fs.IntVar(&cfg.WorkerCount, "workers", cfg.WorkerCount, "upload worker pool size")
	fs.StringVar(&cfg.StagingDir, "staging-dir", cfg.StagingDir, "local staging directory")
	fs.StringVar(&cfg.MongoURI, "mongo-uri", cfg.MongoURI, "metadata store connection URI")
	fs.StringVar(&cfg.MongoDatabase, "mongo-database", cfg.MongoDatabase, "metadata store database name")
	fs.StringVar(&cfg.BlobBaseURL, "blob-base-url", cfg.BlobBaseURL, "blob backend base URL")
	fs.StringVar(&cfg.BlobAPIKey, "blob-api-key", cfg.BlobAPIKey, "blob backend API key")
	fs.StringVar(&cfg.BlobTarget, "blob-target", cfg.BlobTarget, "blob backend primary target identifier")
	fs.StringVar(&cfg.BlobBackupTarget, "blob-backup-target", cfg.BlobBackupTarget, "blob backend backup target identifier")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "optional log file path")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address, empty disables")
	fs.IntVar(&cfg.MaxConnections, "max-connections", cfg.MaxConnections, "global connection cap")
	fs.IntVar(&cfg.MaxConnectionsPerUser, "max-connections-per-user", cfg.MaxConnectionsPerUser, "per-user connection cap")
	fs.IntVar(&cfg.ShutdownDrainTimeout, "shutdown-drain-timeout", cfg.ShutdownDrainTimeout, "seconds to drain the upload queue on shutdown")

	var passivePorts string
	fs.StringVar(&passivePorts, "passive-ports", "", "passive port range lo-hi")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if passivePorts != "" {
		lo, hi, err := parsePortRange(passivePorts)
		if err != nil {
			return nil, fmt.Errorf("invalid --passive-ports: %w", err)
		}
		cfg.PassivePortLo, cfg.PassivePortHi = lo, hi
	}

	return cfg, nil
}

func parsePortRange(s string) (lo, hi int, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected lo-hi, got %q", s)
	}
	lo, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	hi, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("range start %d after end %d", lo, hi)
	}
	return lo, hi, nil
}
