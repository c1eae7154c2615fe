// Package server parses session host command flags and composes the
// process entrypoint.
package server

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/fireside-rpg/fireside/internal/game/objects"
	"github.com/fireside-rpg/fireside/internal/game/session"
	"github.com/fireside-rpg/fireside/internal/game/state"
	entrypoint "github.com/fireside-rpg/fireside/internal/platform/cmd"
	"github.com/fireside-rpg/fireside/internal/server"
	"github.com/fireside-rpg/fireside/internal/storage"
	"github.com/fireside-rpg/fireside/internal/storage/bbolt"
	"github.com/fireside-rpg/fireside/internal/storage/sqlite"
)

// Config holds session host command configuration.
type Config struct {
	HTTPAddr         string        `env:"FIRESIDE_HTTP_ADDR"         envDefault:":8080"`
	StorageBackend   string        `env:"FIRESIDE_STORAGE_BACKEND"   envDefault:"sqlite"`
	StoragePath      string        `env:"FIRESIDE_STORAGE_PATH"      envDefault:"fireside.db"`
	AutoSaveInterval time.Duration `env:"FIRESIDE_AUTOSAVE_INTERVAL" envDefault:"30s"`
	IdleTimeout      time.Duration `env:"FIRESIDE_IDLE_TIMEOUT"      envDefault:"1h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.StorageBackend, "storage-backend", cfg.StorageBackend, "snapshot backend (sqlite or bbolt)")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "snapshot database path")
	fs.DurationVar(&cfg.AutoSaveInterval, "autosave-interval", cfg.AutoSaveInterval, "session auto-save interval")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "idle session eviction timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run wires storage, the reducer, the registry, and the websocket
// transport, then serves until the context ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, func(context.Context) error {
		snapshots, closeStore, err := openSnapshotStore(cfg)
		if err != nil {
			return fmt.Errorf("open snapshot store: %w", err)
		}
		defer func() {
			_ = closeStore()
		}()

		objectStore := objects.NewStore()
		states := state.NewManager(objectStore)
		registry := session.NewRegistry(snapshots, states, states.DropSessionState, session.Config{
			AutoSaveInterval: cfg.AutoSaveInterval,
			IdleTimeout:      cfg.IdleTimeout,
		})
		defer registry.Close()

		go registry.RunJanitor(ctx)

		handler := server.NewHandler(registry, states, snapshots)
		srv, err := server.NewServer(server.Config{HTTPAddr: cfg.HTTPAddr}, handler)
		if err != nil {
			return fmt.Errorf("init server: %w", err)
		}
		if err := srv.ListenAndServe(ctx); err != nil {
			return fmt.Errorf("serve session host: %w", err)
		}
		return nil
	})
}

func openSnapshotStore(cfg Config) (storage.SnapshotStore, func() error, error) {
	switch cfg.StorageBackend {
	case "sqlite":
		store, err := sqlite.Open(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "bbolt":
		store, err := bbolt.Open(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}
