package cache

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/core"
)

// SQLiteCache is the SQLite implementation of the durable cache Backend.
type SQLiteCache struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteCache opens the database file and ensures the cache tables exist.
func NewSQLiteCache(dbPath string, logger *zap.Logger) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS cached_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL,
			link_id INTEGER,
			final_verdict TEXT NOT NULL,
			confidence_score TEXT,
			anomaly_risk_level TEXT,
			explanation TEXT,
			tip TEXT,
			cache_source TEXT DEFAULT 'ml_service',
			last_scanned TIMESTAMP,
			expires_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cached_results table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS deleted_cached_links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT,
			final_verdict TEXT,
			confidence_score TEXT,
			anomaly_risk_level TEXT,
			explanation TEXT,
			tip TEXT,
			cache_source TEXT,
			last_scanned TIMESTAMP,
			expires_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_cached_results_url ON cached_results(url)`,
		`CREATE INDEX IF NOT EXISTS idx_cached_results_expires_at ON cached_results(expires_at)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
	}

	return &SQLiteCache{db: db, logger: logger}, nil
}

// Get returns the most recently scanned non-expired entry matching any of
// the URL variants.
func (c *SQLiteCache) Get(ctx context.Context, variants []string) (*core.CacheEntry, error) {
	if len(variants) == 0 {
		return nil, ErrNotFound
	}

	placeholders := strings.Repeat("?,", len(variants))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, 0, len(variants)+1)
	for _, v := range variants {
		args = append(args, v)
	}
	args = append(args, time.Now().UTC().Format(time.RFC3339))

	row := c.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT url, COALESCE(link_id, 0), final_verdict, confidence_score,
		       anomaly_risk_level, explanation, tip, cache_source,
		       last_scanned, expires_at
		FROM cached_results
		WHERE url IN (%s) AND expires_at > ?
		ORDER BY last_scanned DESC
		LIMIT 1
	`, placeholders), args...)

	return scanSQLiteEntry(row)
}

// Put inserts the entry as a single conditional statement so concurrent
// identical writes cannot create duplicate rows.
func (c *SQLiteCache) Put(ctx context.Context, entry *core.CacheEntry) (*core.CacheEntry, bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO cached_results
			(url, link_id, final_verdict, confidence_score, anomaly_risk_level,
			 explanation, tip, cache_source, last_scanned, expires_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM cached_results
			WHERE url = ? AND final_verdict = ? AND expires_at > ?
		)
	`,
		entry.URL, nullableID(entry.LinkID), string(entry.FinalVerdict),
		entry.ConfidenceScore, entry.AnomalyRiskLevel, entry.Explanation,
		entry.Tip, entry.CacheSource,
		entry.LastScanned.UTC().Format(time.RFC3339),
		entry.ExpiresAt.UTC().Format(time.RFC3339),
		entry.URL, string(entry.FinalVerdict), now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert cache entry: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read insert result: %w", err)
	}
	if inserted > 0 {
		return entry, true, nil
	}

	row := c.db.QueryRowContext(ctx, `
		SELECT url, COALESCE(link_id, 0), final_verdict, confidence_score,
		       anomaly_risk_level, explanation, tip, cache_source,
		       last_scanned, expires_at
		FROM cached_results
		WHERE url = ? AND final_verdict = ? AND expires_at > ?
		ORDER BY last_scanned DESC
		LIMIT 1
	`, entry.URL, string(entry.FinalVerdict), now)

	existing, err := scanSQLiteEntry(row)
	if err != nil {
		return nil, false, err
	}
	c.logger.Debug("Duplicate cache write suppressed",
		zap.String("url", entry.URL),
		zap.String("verdict", string(entry.FinalVerdict)))
	return existing, false, nil
}

// Sweep copies expired entries to the archive table then deletes them.
func (c *SQLiteCache) Sweep(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO deleted_cached_links
			(url, final_verdict, confidence_score, anomaly_risk_level,
			 explanation, tip, cache_source, last_scanned, expires_at)
		SELECT url, final_verdict, confidence_score, anomaly_risk_level,
		       explanation, tip, cache_source, last_scanned, expires_at
		FROM cached_results
		WHERE expires_at <= ?
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to archive expired entries: %w", err)
	}

	res, err := c.db.ExecContext(ctx, `DELETE FROM cached_results WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired entries: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during sweep", zap.Error(err))
		return 0, nil
	}
	if removed > 0 {
		c.logger.Debug("Swept expired cache entries", zap.Int64("removed", removed))
	}
	return removed, nil
}

// PurgeNonCacheable deletes entries whose verdict should never have been
// written.
func (c *SQLiteCache) PurgeNonCacheable(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM cached_results
		WHERE final_verdict NOT IN (?, ?, ?)
	`, string(core.VerdictSafe), string(core.VerdictAnomalous), string(core.VerdictMalicious))
	if err != nil {
		return 0, fmt.Errorf("failed to purge non-cacheable entries: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return removed, nil
}

// Ping probes database availability.
func (c *SQLiteCache) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the database connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// DB exposes the underlying handle so the link store can share the
// connection pool.
func (c *SQLiteCache) DB() *sql.DB {
	return c.db
}

func scanSQLiteEntry(row *sql.Row) (*core.CacheEntry, error) {
	var entry core.CacheEntry
	var verdict, lastScanned, expiresAt string

	err := row.Scan(&entry.URL, &entry.LinkID, &verdict, &entry.ConfidenceScore,
		&entry.AnomalyRiskLevel, &entry.Explanation, &entry.Tip,
		&entry.CacheSource, &lastScanned, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	entry.FinalVerdict = core.VerdictKind(verdict)
	entry.LastScanned, err = time.Parse(time.RFC3339, lastScanned)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_scanned timestamp: %w", err)
	}
	entry.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expires_at timestamp: %w", err)
	}
	return &entry, nil
}
