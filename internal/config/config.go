package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	// Driver selects the ledger store backend: postgres, sqlite or memory.
	Driver   string
	DBSource string
	Port     string
	Env      string
	LockWait time.Duration
}

func Load() (*Config, error) {
	driver := os.Getenv("STORE_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}

	dbSource := os.Getenv("DB_SOURCE")
	switch driver {
	case "postgres":
		if dbSource == "" {
			return nil, fmt.Errorf("DB_SOURCE environment variable is required for the postgres driver")
		}
	case "sqlite":
		if dbSource == "" {
			dbSource = "ledger.db"
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want postgres, sqlite or memory)", driver)
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	lockWait := 5 * time.Second
	if raw := os.Getenv("LOCK_WAIT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid LOCK_WAIT %q: %w", raw, err)
		}
		lockWait = d
	}

	return &Config{
		Driver:   driver,
		DBSource: dbSource,
		Port:     port,
		Env:      env,
		LockWait: lockWait,
	}, nil
}
