// Package store persists scan sessions and scanned links. The pipeline
// treats every operation here as best-effort audit context.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultEngineVersion = "DEVSCAN-4.0"

// SQLStore implements the LinkStore port over MySQL or SQLite, sharing the
// database handle with the durable cache when both are enabled.
type SQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLStore ensures the session and link tables exist. driver is "mysql"
// or "sqlite3"; the table DDL differs between the two.
func NewSQLStore(db *sql.DB, driver string, logger *zap.Logger) (*SQLStore, error) {
	var sessionDDL, linkDDL string
	switch driver {
	case "mysql":
		sessionDDL = `
			CREATE TABLE IF NOT EXISTS scan_sessions (
				session_id BIGINT AUTO_INCREMENT PRIMARY KEY,
				browser_info VARCHAR(255),
				engine_version VARCHAR(255),
				created_at TIMESTAMP
			)`
		linkDDL = `
			CREATE TABLE IF NOT EXISTS scanned_links (
				link_id BIGINT AUTO_INCREMENT PRIMARY KEY,
				session_id BIGINT,
				url TEXT,
				page_url TEXT,
				scan_timestamp TIMESTAMP,
				INDEX idx_session (session_id)
			)`
	case "sqlite3":
		sessionDDL = `
			CREATE TABLE IF NOT EXISTS scan_sessions (
				session_id INTEGER PRIMARY KEY AUTOINCREMENT,
				browser_info TEXT,
				engine_version TEXT,
				created_at TIMESTAMP
			)`
		linkDDL = `
			CREATE TABLE IF NOT EXISTS scanned_links (
				link_id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id INTEGER,
				url TEXT,
				page_url TEXT,
				scan_timestamp TIMESTAMP
			)`
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	if _, err := db.Exec(sessionDDL); err != nil {
		return nil, fmt.Errorf("failed to create scan_sessions table: %w", err)
	}
	if _, err := db.Exec(linkDDL); err != nil {
		return nil, fmt.Errorf("failed to create scanned_links table: %w", err)
	}
	return &SQLStore{db: db, logger: logger}, nil
}

// GetOrCreateSession returns the given session when it exists, otherwise
// creates a fresh one.
func (s *SQLStore) GetOrCreateSession(ctx context.Context, sessionID int64, browserInfo string) (int64, error) {
	if sessionID != 0 {
		var found int64
		err := s.db.QueryRowContext(ctx,
			`SELECT session_id FROM scan_sessions WHERE session_id = ?`, sessionID).Scan(&found)
		if err == nil {
			return found, nil
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("failed to look up session: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_sessions (browser_info, engine_version, created_at)
		VALUES (?, ?, ?)
	`, browserInfo, defaultEngineVersion, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new session ID: %w", err)
	}
	s.logger.Debug("Created scan session", zap.Int64("session_id", id))
	return id, nil
}

// RecordScannedLink records a URL against a session.
func (s *SQLStore) RecordScannedLink(ctx context.Context, sessionID int64, url, pageURL string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scanned_links (session_id, url, page_url, scan_timestamp)
		VALUES (?, ?, ?, ?)
	`, sessionID, url, pageURL, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to record scanned link: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new link ID: %w", err)
	}
	return id, nil
}

// ProcessedLinks returns the URLs already recorded for a page within a
// session. An empty pageURL matches links recorded without page context.
func (s *SQLStore) ProcessedLinks(ctx context.Context, sessionID int64, pageURL string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url FROM scanned_links
		WHERE session_id = ? AND page_url = ?
	`, sessionID, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed links: %w", err)
	}
	defer rows.Close()

	processed := make(map[string]bool)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan processed link: %w", err)
		}
		processed[url] = true
	}
	return processed, rows.Err()
}
