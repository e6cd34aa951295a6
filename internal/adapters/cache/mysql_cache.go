package cache

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/core"
)

const mysqlTimeFormat = "2006-01-02 15:04:05"

// MySQLCache is the MySQL implementation of the durable cache Backend.
type MySQLCache struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLCache opens the database and ensures the cache tables exist.
func NewMySQLCache(dsn string, logger *zap.Logger) (*MySQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS cached_results (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			url VARCHAR(2048) NOT NULL,
			link_id BIGINT NULL,
			final_verdict VARCHAR(32) NOT NULL,
			confidence_score VARCHAR(16),
			anomaly_risk_level VARCHAR(16),
			explanation TEXT,
			tip TEXT,
			cache_source VARCHAR(32) DEFAULT 'ml_service',
			last_scanned TIMESTAMP,
			expires_at TIMESTAMP,
			INDEX idx_url (url(255)),
			INDEX idx_expires_at (expires_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cached_results table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS deleted_cached_links (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			url VARCHAR(2048),
			final_verdict VARCHAR(32),
			confidence_score VARCHAR(16),
			anomaly_risk_level VARCHAR(16),
			explanation TEXT,
			tip TEXT,
			cache_source VARCHAR(32),
			last_scanned TIMESTAMP,
			expires_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive table: %w", err)
	}

	return &MySQLCache{db: db, logger: logger}, nil
}

// Get returns the most recently scanned non-expired entry matching any of
// the URL variants.
func (c *MySQLCache) Get(ctx context.Context, variants []string) (*core.CacheEntry, error) {
	if len(variants) == 0 {
		return nil, ErrNotFound
	}

	placeholders := strings.Repeat("?,", len(variants))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, 0, len(variants)+1)
	for _, v := range variants {
		args = append(args, v)
	}
	args = append(args, time.Now().Format(mysqlTimeFormat))

	row := c.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT url, COALESCE(link_id, 0), final_verdict, confidence_score,
		       anomaly_risk_level, explanation, tip, cache_source,
		       last_scanned, expires_at
		FROM cached_results
		WHERE url IN (%s) AND expires_at > ?
		ORDER BY last_scanned DESC
		LIMIT 1
	`, placeholders), args...)

	return scanMySQLEntry(row)
}

// Put inserts the entry only when no non-expired entry with the same URL and
// verdict exists. The existence check and insert run as one conditional
// statement so concurrent identical writes cannot both insert.
func (c *MySQLCache) Put(ctx context.Context, entry *core.CacheEntry) (*core.CacheEntry, bool, error) {
	now := time.Now().Format(mysqlTimeFormat)
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO cached_results
			(url, link_id, final_verdict, confidence_score, anomaly_risk_level,
			 explanation, tip, cache_source, last_scanned, expires_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		FROM DUAL
		WHERE NOT EXISTS (
			SELECT 1 FROM cached_results
			WHERE url = ? AND final_verdict = ? AND expires_at > ?
		)
	`,
		entry.URL, nullableID(entry.LinkID), string(entry.FinalVerdict),
		entry.ConfidenceScore, entry.AnomalyRiskLevel, entry.Explanation,
		entry.Tip, entry.CacheSource,
		entry.LastScanned.Format(mysqlTimeFormat),
		entry.ExpiresAt.Format(mysqlTimeFormat),
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

	// Duplicate suppressed: return the entry that blocked the insert.
	row := c.db.QueryRowContext(ctx, `
		SELECT url, COALESCE(link_id, 0), final_verdict, confidence_score,
		       anomaly_risk_level, explanation, tip, cache_source,
		       last_scanned, expires_at
		FROM cached_results
		WHERE url = ? AND final_verdict = ? AND expires_at > ?
		ORDER BY last_scanned DESC
		LIMIT 1
	`, entry.URL, string(entry.FinalVerdict), now)

	existing, err := scanMySQLEntry(row)
	if err != nil {
		return nil, false, err
	}
	c.logger.Debug("Duplicate cache write suppressed",
		zap.String("url", entry.URL),
		zap.String("verdict", string(entry.FinalVerdict)))
	return existing, false, nil
}

// Sweep copies expired entries to the archive table then deletes them.
func (c *MySQLCache) Sweep(ctx context.Context) (int64, error) {
	now := time.Now().Format(mysqlTimeFormat)

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
func (c *MySQLCache) PurgeNonCacheable(ctx context.Context) (int64, error) {
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
func (c *MySQLCache) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the database connection.
func (c *MySQLCache) Close() error {
	return c.db.Close()
}

// DB exposes the underlying handle so the link store can share the
// connection pool.
func (c *MySQLCache) DB() *sql.DB {
	return c.db
}

func scanMySQLEntry(row *sql.Row) (*core.CacheEntry, error) {
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
	entry.LastScanned, err = time.Parse(mysqlTimeFormat, lastScanned)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_scanned timestamp: %w", err)
	}
	entry.ExpiresAt, err = time.Parse(mysqlTimeFormat, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expires_at timestamp: %w", err)
	}
	return &entry, nil
}

func nullableID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}
