// Package snapshots provides the saved-session maintenance command. It
// lists persisted session snapshots and deletes abandoned ones without
// going through a running session host.
package snapshots

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	entrypoint "github.com/fireside-rpg/fireside/internal/platform/cmd"
	"github.com/fireside-rpg/fireside/internal/storage"
	"github.com/fireside-rpg/fireside/internal/storage/bbolt"
	"github.com/fireside-rpg/fireside/internal/storage/sqlite"
)

// Config holds snapshot command configuration.
type Config struct {
	StorageBackend string        `env:"FIRESIDE_STORAGE_BACKEND" envDefault:"sqlite"`
	StoragePath    string        `env:"FIRESIDE_STORAGE_PATH"    envDefault:"fireside.db"`
	Timeout        time.Duration `env:"FIRESIDE_TOOL_TIMEOUT"    envDefault:"1m"`
	DeleteID       string
	JSONOutput     bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.StorageBackend, "storage-backend", cfg.StorageBackend, "snapshot backend (sqlite or bbolt)")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "snapshot database path")
	fs.StringVar(&cfg.DeleteID, "delete", "", "session ID to delete instead of listing")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "emit the listing as JSON")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the command against the configured snapshot store.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	store, closeStore, err := openSnapshotStore(cfg)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer func() {
		_ = closeStore()
	}()

	if cfg.DeleteID != "" {
		if err := store.Delete(ctx, cfg.DeleteID); err != nil {
			return fmt.Errorf("delete snapshot %q: %w", cfg.DeleteID, err)
		}
		fmt.Fprintf(out, "deleted snapshot id=%q\n", cfg.DeleteID)
		return nil
	}

	summaries, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	if cfg.JSONOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summaries)
	}
	for _, summary := range summaries {
		fmt.Fprintf(out, "id=%q name=%q players=%d saved=%s\n",
			summary.SessionID, summary.Name, summary.PlayerCount,
			summary.LastSaved.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(out, "total=%d\n", len(summaries))
	return nil
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
