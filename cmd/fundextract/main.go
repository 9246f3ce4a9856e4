// Command fundextract parses previously captured fund pages into structured
// records, one JSON block per file, in filename order.
//
// Usage:
//
//	fundextract                         # scan ./captures
//	fundextract -dir /data/captures     # scan an explicit directory
//	fundextract -db catalog.db          # also append records to the catalog
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	_ "modernc.org/sqlite"

	"stocksentinel/dbopen"
	"stocksentinel/extract"
	"stocksentinel/store"
)

func main() {
	dir := flag.String("dir", "captures", "directory of captured .html files")
	dbPath := flag.String("db", "", "optional catalog database to append records to")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *dir, *dbPath); err != nil {
		fmt.Fprintln(os.Stderr, "fundextract:", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func run(ctx context.Context, logger *slog.Logger, dir, dbPath string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no .html captures under %s", dir)
	}
	sort.Strings(paths)

	var st *store.Store
	if dbPath != "" {
		db, err := dbopen.Open(dbPath,
			dbopen.WithMkdirAll(),
			dbopen.WithSchema(store.Schema))
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer db.Close()
		st = store.New(db)
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := extract.ExtractFile(path)

		fmt.Printf("=== %s ===\n", filepath.Base(path))
		out, err := json.MarshalIndent(rec, "  ", "  ")
		if err != nil {
			return fmt.Errorf("marshal record for %s: %w", path, err)
		}
		fmt.Printf("  %s\n", out)

		if st != nil {
			if _, err := st.Insert(ctx, rec); err != nil {
				logger.Warn("catalog insert failed", "file", path, "error", err)
			}
		}
	}
	return nil
}
