package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/core"
)

// MemoryStore is an in-process LinkStore for store-less deployments and
// tests.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]*core.ScanSession
	links    []*recordedLink
	logger   *zap.Logger
}

type recordedLink struct {
	core.ScannedLink
	pageURL string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		sessions: make(map[int64]*core.ScanSession),
		logger:   logger,
	}
}

// GetOrCreateSession returns the given session when known, otherwise creates
// a fresh one.
func (s *MemoryStore) GetOrCreateSession(ctx context.Context, sessionID int64, browserInfo string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID != 0 {
		if _, ok := s.sessions[sessionID]; ok {
			return sessionID, nil
		}
	}

	id := s.nextID
	s.nextID++
	s.sessions[id] = &core.ScanSession{
		SessionID:     id,
		BrowserInfo:   browserInfo,
		EngineVersion: defaultEngineVersion,
		Timestamp:     time.Now(),
	}
	return id, nil
}

// RecordScannedLink records a URL against a session.
func (s *MemoryStore) RecordScannedLink(ctx context.Context, sessionID int64, url, pageURL string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.links = append(s.links, &recordedLink{
		ScannedLink: core.ScannedLink{
			LinkID:        id,
			SessionID:     sessionID,
			URL:           url,
			ScanTimestamp: time.Now(),
		},
		pageURL: pageURL,
	})
	return id, nil
}

// ProcessedLinks returns the URLs already recorded for a page within a
// session.
func (s *MemoryStore) ProcessedLinks(ctx context.Context, sessionID int64, pageURL string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	processed := make(map[string]bool)
	for _, link := range s.links {
		if link.SessionID == sessionID && link.pageURL == pageURL {
			processed[link.URL] = true
		}
	}
	return processed, nil
}
