package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"daw-agent-be/internal/bootstrap"
	"daw-agent-be/internal/config"
	"daw-agent-be/pkg/memory"
	"daw-agent-be/pkg/store"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type storeFlags struct {
	backend  string
	path     string
	dsn      string
	redisURL string
	key      string
}

func (f *storeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.backend, "store", "sqlite", "Blob store backend: sqlite, postgres or redis")
	cmd.Flags().StringVar(&f.path, "path", "data/agent.db", "SQLite database path")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "Postgres connection string")
	cmd.Flags().StringVar(&f.redisURL, "redis-url", "", "Redis URL")
	cmd.Flags().StringVar(&f.key, "key", memory.DefaultConfig().SnapshotKey, "Snapshot key")
}

func (f *storeFlags) open(opts *rootOptions) (store.BlobStore, func(), error) {
	cfg := &config.Config{
		App:      config.AppConfig{Environment: "production"},
		Database: config.DatabaseConfig{Connection: f.dsn},
		Store:    config.StoreConfig{Backend: f.backend, SQLitePath: f.path},
	}

	var rdb *redis.Client
	if f.redisURL != "" {
		opt, err := redis.ParseURL(f.redisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
	}

	blobs, err := bootstrap.NewBlobStore(cfg, rdb, opts.logger())
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, err
	}
	return blobs, func() {
		blobs.Close()
		if rdb != nil {
			rdb.Close()
		}
	}, nil
}

func (f *storeFlags) manager(opts *rootOptions, blobs store.BlobStore) *memory.Manager {
	cfg := memory.DefaultConfig()
	cfg.SnapshotKey = f.key
	return memory.NewManager(cfg, opts.logger(), memory.WithPersistence(blobs))
}

func newMemoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Export or import the persisted agent memory snapshot",
	}
	cmd.AddCommand(newMemoryExportCmd(opts), newMemoryImportCmd(opts))
	return cmd
}

func newMemoryExportCmd(opts *rootOptions) *cobra.Command {
	flags := &storeFlags{}
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored snapshot as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			blobs, closeStore, err := flags.open(opts)
			if err != nil {
				return err
			}
			defer closeStore()

			data, err := exportSnapshot(cmd.Context(), flags.manager(opts, blobs), blobs, flags.key)
			if err != nil {
				return err
			}

			if outPath == "" || outPath == "-" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			return os.WriteFile(outPath, data, 0o600)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func newMemoryImportCmd(opts *rootOptions) *cobra.Command {
	flags := &storeFlags{}
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the stored snapshot with a JSON export",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				data []byte
				err  error
			)
			if inPath == "" || inPath == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(inPath)
			}
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}

			blobs, closeStore, err := flags.open(opts)
			if err != nil {
				return err
			}
			defer closeStore()

			m := flags.manager(opts, blobs)
			if err := m.ImportJSON(data); err != nil {
				return err
			}
			if err := m.Persist(cmd.Context()); err != nil {
				return err
			}

			stats := m.Stats()
			successColor.Fprintf(cmd.OutOrStdout(), "Imported %d short-term and %d long-term memories\n",
				stats.ShortTermCount, stats.LongTermCount)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&inPath, "in", "i", "", "Input file (default stdin)")
	return cmd
}

// exportSnapshot round-trips the stored blob through the manager so the
// output is always a well-formed, current-format snapshot.
func exportSnapshot(ctx context.Context, m *memory.Manager, blobs store.BlobStore, key string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := blobs.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("no snapshot stored under %q", key)
	}
	if err := m.ImportJSON(raw); err != nil {
		return nil, err
	}
	return m.ExportJSON()
}
