package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"

	"cdd/internal/imports"
)

// Stats counts cache lookups for one CachingExtractor.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// CachingExtractor serves records from the cache when a file's size and
// modification time are unchanged, and delegates to the wrapped extractor
// otherwise. Cache failures are logged and never fail an extraction.
type CachingExtractor struct {
	inner  imports.Extractor
	db     *DB
	logger *slog.Logger
	enc    *zstd.Encoder
	dec    *zstd.Decoder

	hits, misses, errors atomic.Int64
}

// NewCachingExtractor wraps inner with db.
func NewCachingExtractor(inner imports.Extractor, db *DB, logger *slog.Logger) (*CachingExtractor, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &CachingExtractor{inner: inner, db: db, logger: logger, enc: enc, dec: dec}, nil
}

// Name reports the wrapped extractor's name; cached rows are keyed by it.
func (c *CachingExtractor) Name() string {
	return c.inner.Name()
}

// Extract implements imports.Extractor.
func (c *CachingExtractor) Extract(ctx context.Context, path string) ([]imports.Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return c.inner.Extract(ctx, path)
	}
	size, modTime := info.Size(), info.ModTime().UnixNano()

	if recs, ok := c.lookup(ctx, path, size, modTime); ok {
		c.hits.Add(1)
		return recs, nil
	}
	c.misses.Add(1)

	recs, err := c.inner.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	c.store(ctx, path, size, modTime, recs)
	return recs, nil
}

func (c *CachingExtractor) lookup(ctx context.Context, path string, size, modTime int64) ([]imports.Record, bool) {
	var payload []byte
	err := c.db.conn.QueryRowContext(ctx, `
		SELECT payload FROM imports
		WHERE path = ? AND size = ? AND mod_time = ? AND options = ?
	`, path, size, modTime, c.inner.Name()).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		c.fail(ctx, "lookup", path, err)
		return nil, false
	}

	raw, err := c.dec.DecodeAll(payload, nil)
	if err != nil {
		c.fail(ctx, "decompress", path, err)
		return nil, false
	}
	var recs []imports.Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		c.fail(ctx, "decode", path, err)
		return nil, false
	}
	return recs, true
}

func (c *CachingExtractor) store(ctx context.Context, path string, size, modTime int64, recs []imports.Record) {
	if recs == nil {
		recs = []imports.Record{}
	}
	raw, err := json.Marshal(recs)
	if err != nil {
		c.fail(ctx, "encode", path, err)
		return
	}
	payload := c.enc.EncodeAll(raw, nil)

	_, err = c.db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO imports (path, size, mod_time, options, payload)
		VALUES (?, ?, ?, ?, ?)
	`, path, size, modTime, c.inner.Name(), payload)
	if err != nil {
		c.fail(ctx, "store", path, err)
	}
}

func (c *CachingExtractor) fail(ctx context.Context, op, path string, err error) {
	c.errors.Add(1)
	if ctx.Err() != nil {
		return
	}
	c.logger.Warn("Extraction cache "+op+" failed", "file", path, "error", err)
}

// Stats returns the lookup counters so far.
func (c *CachingExtractor) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errors.Load()}
}

// Prune removes rows for files that are not in live.
func (c *CachingExtractor) Prune(ctx context.Context, live []string) (int, error) {
	keep := make(map[string]bool, len(live))
	for _, p := range live {
		keep[p] = true
	}

	removed := 0
	err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT path FROM imports")
		if err != nil {
			return fmt.Errorf("failed to list cached files: %w", err)
		}
		var stale []string
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				_ = rows.Close()
				return err
			}
			if !keep[p] {
				stale = append(stale, p)
			}
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		if err := rows.Close(); err != nil {
			return err
		}

		for _, p := range stale {
			if _, err := tx.ExecContext(ctx, "DELETE FROM imports WHERE path = ?", p); err != nil {
				return fmt.Errorf("failed to prune %s: %w", p, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Close releases the codec resources. The database is closed by its owner.
func (c *CachingExtractor) Close() {
	_ = c.enc.Close()
	c.dec.Close()
}
