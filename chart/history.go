package chart

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pulseview/record"
	"pulseview/sqliteutil"

	_ "modernc.org/sqlite"
)

// History is a local SQLite sample store fed by each refresh. It serves
// chart ranges when the server endpoint is unavailable or disabled.
type History struct {
	db        *sql.DB
	retention time.Duration
	metrics   []string
	now       func() time.Time
}

// OpenHistory opens (or creates) the store at path. metrics lists the record
// fields that are sampled.
func OpenHistory(path string, retention time.Duration, metrics []string) (*History, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: ensure dir: %w", err)
	}
	if _, err := sqliteutil.Check(context.Background(), path, sqliteutil.Options{Role: "chart history"}); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &History{db: db, retention: retention, metrics: metrics, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS samples (
    resource TEXT NOT NULL,
    metric TEXT NOT NULL,
    observed_at INTEGER NOT NULL,
    value REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS samples_lookup ON samples(resource, metric, observed_at);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("history: schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Record stores the numeric sampled fields of recs. Missing values are skipped.
func (h *History) Record(ctx context.Context, recs []record.Record) error {
	if h == nil || len(recs) == 0 || len(h.metrics) == 0 {
		return nil
	}
	at := h.now().UTC().UnixMilli()
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO samples (resource, metric, observed_at, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("history: prepare: %w", err)
	}
	defer stmt.Close()
	for _, rec := range recs {
		for _, m := range h.metrics {
			v, ok := rec.Get(m).Float()
			if !ok {
				continue
			}
			if _, err := stmt.ExecContext(ctx, rec.Key, m, at, v); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("history: insert: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Prune deletes samples older than the retention window and returns how many
// rows were removed.
func (h *History) Prune(ctx context.Context) (int64, error) {
	cutoff := h.now().Add(-h.retention).UTC().UnixMilli()
	res, err := h.db.ExecContext(ctx, `DELETE FROM samples WHERE observed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}

// Series implements Fetcher over the local samples.
func (h *History) Series(ctx context.Context, rangeLabel string, keys []string) (Series, error) {
	opt, ok := Ranges.Find(rangeLabel)
	if !ok {
		opt = NearestRange(time.Hour)
	}
	since := h.now().Add(-opt.Span).UTC().UnixMilli()
	out := make(Series, len(keys))
	for _, key := range keys {
		rows, err := h.db.QueryContext(ctx,
			`SELECT metric, observed_at, value FROM samples WHERE resource = ? AND observed_at >= ? ORDER BY observed_at`,
			key, since)
		if err != nil {
			return nil, fmt.Errorf("history: query: %w", err)
		}
		for rows.Next() {
			var (
				metric string
				p      Point
			)
			if err := rows.Scan(&metric, &p.Timestamp, &p.Value); err != nil {
				rows.Close()
				return nil, fmt.Errorf("history: scan: %w", err)
			}
			if out[key] == nil {
				out[key] = make(map[string][]Point)
			}
			out[key][metric] = append(out[key][metric], p)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("history: rows: %w", err)
		}
	}
	return out, nil
}
