// Package bootstrap initializes shared infrastructure in the order bots
// need it: logging first, then the dialogue state store backend.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/godialog/core/config"
	coredatabase "github.com/m3rciful/godialog/core/database"
	"github.com/m3rciful/godialog/core/dialogue"
	"github.com/m3rciful/godialog/core/logger"
	"github.com/m3rciful/godialog/core/store"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config

	// Database is required only for the postgres store backend.
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// Store is already namespaced with the configured key prefix.
type Result struct {
	Store store.Store

	DB    *sqlx.DB
	Redis *redis.Client
}

// Close releases backend connections held by the result.
func (r *Result) Close() error {
	var err error
	if r.DB != nil {
		err = r.DB.Close()
	}
	if r.Redis != nil {
		if cerr := r.Redis.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Run initializes the logger and the configured store backend.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}
	var backend store.Store

	switch cfg.Store.Backend {
	case coreconfig.StoreBackendMemory:
		backend = store.NewMemory()

	case coreconfig.StoreBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("bootstrap: redis ping failed: %w", err)
		}
		res.Redis = client
		backend = store.NewRedis(client)

	case coreconfig.StoreBackendPostgres:
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(opts.Database); err != nil {
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
		db, err := connect(opts.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		res.DB = db
		backend = store.NewPostgres(db)

	default:
		return nil, fmt.Errorf("bootstrap: unknown store backend %q", cfg.Store.Backend)
	}

	res.Store = store.Prefixed(backend, cfg.Store.KeyPrefix)
	return res, nil
}

// DialogueOptions maps configured dialogue defaults onto engine options.
func DialogueOptions(cfg *coreconfig.Config, st store.Store, sender dialogue.Sender) dialogue.Options {
	return dialogue.Options{
		Store:                st,
		Sender:               sender,
		DefaultMaxAttempts:   cfg.Dialogue.MaxAttempts,
		DefaultCancelTimeout: time.Duration(cfg.Dialogue.CancelTimeoutSeconds) * time.Second,
		DefaultCancelCommand: cfg.Dialogue.CancelCommand,
		StateTTL:             time.Duration(cfg.Dialogue.StateTTLSeconds) * time.Second,
	}
}
