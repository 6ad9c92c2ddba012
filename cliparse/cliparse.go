package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

// Tally backends
const (
	TallyMemory = "memory"
	TallyPebble = "pebble"
)

type Config struct {
	Port             int
	DatabaseURL      string
	DatabaseType     string
	SessionSecret    string
	TallyBackend     string
	TallyPath        string
	TallyCacheBytes  uint64
	StoreTimeout     time.Duration
	ReconcileEvery   time.Duration
	SubscriberBuffer int
}

// ParseFlags validates flags and fills the rest from the environment
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var envFile, tallyCache string

	fs := flag.NewFlagSet("live-tally", flag.ContinueOnError)

	fs.StringVar(&envFile, "env-file", ".env", "Optional dotenv file")

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")

	// Tally store
	fs.StringVar(&cfg.TallyBackend, "tally", "", "Tally backend (memory or pebble)")
	fs.StringVar(&cfg.TallyPath, "tally-path", "", "Pebble data directory")
	fs.StringVar(&tallyCache, "tally-cache", "", "Pebble block cache size, e.g. 32MB")
	fs.DurationVar(&cfg.StoreTimeout, "store-timeout", 0, "Bound on each ledger/tally call")
	fs.DurationVar(&cfg.ReconcileEvery, "reconcile-every", 0, "Interval between reconciliation passes")
	fs.IntVar(&cfg.SubscriberBuffer, "subscriber-buffer", 0, "Per-subscriber event channel size")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.SessionSecret, "session-secret", "", "Session cookie secret (prefer env)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Values already in the environment win over the dotenv file
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 3333 // default
		}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = "sqlite"
		}
	}
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return Config{}, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}

	if cfg.TallyBackend == "" {
		cfg.TallyBackend = os.Getenv("TALLY_BACKEND")
		if cfg.TallyBackend == "" {
			cfg.TallyBackend = TallyMemory
		}
	}
	if cfg.TallyBackend != TallyMemory && cfg.TallyBackend != TallyPebble {
		return Config{}, fmt.Errorf("unsupported tally backend %q", cfg.TallyBackend)
	}

	if cfg.TallyPath == "" {
		cfg.TallyPath = os.Getenv("TALLY_PATH")
		if cfg.TallyPath == "" {
			cfg.TallyPath = "tally-data"
		}
	}

	if tallyCache == "" {
		tallyCache = os.Getenv("TALLY_CACHE")
		if tallyCache == "" {
			tallyCache = "32MB"
		}
	}
	size, err := humanize.ParseBytes(tallyCache)
	if err != nil {
		return Config{}, fmt.Errorf("invalid tally cache size %q: %w", tallyCache, err)
	}
	cfg.TallyCacheBytes = size

	if cfg.StoreTimeout == 0 {
		d, err := durationEnv("STORE_TIMEOUT", 2*time.Second)
		if err != nil {
			return Config{}, err
		}
		cfg.StoreTimeout = d
	}
	if cfg.ReconcileEvery == 0 {
		d, err := durationEnv("RECONCILE_INTERVAL", time.Minute)
		if err != nil {
			return Config{}, err
		}
		cfg.ReconcileEvery = d
	}

	if cfg.SubscriberBuffer == 0 {
		if bufStr := os.Getenv("SUBSCRIBER_BUFFER"); bufStr != "" {
			n, err := strconv.Atoi(bufStr)
			if err != nil || n < 1 {
				return Config{}, errors.New("invalid SUBSCRIBER_BUFFER env variable")
			}
			cfg.SubscriberBuffer = n
		} else {
			cfg.SubscriberBuffer = 16 // default
		}
	}

	// Secrets - MUST be provided
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	}
	if cfg.SessionSecret == "" {
		return Config{}, errors.New("SESSION_SECRET required")
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable: %w", key, err)
	}
	return d, nil
}
