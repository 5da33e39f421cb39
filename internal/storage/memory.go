package storage

import (
	"context"
	"sync"

	"github.com/radiusdt/flowlens/internal/models"
)

// MemorySource holds uploaded exports in memory, keyed by campaign. It
// backs the upload workflow where the table arrives over HTTP rather than
// from a warehouse, and doubles as the source for tests.
type MemorySource struct {
	mu     sync.RWMutex
	tables map[string][]models.PerformanceRecord
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{tables: make(map[string][]models.PerformanceRecord)}
}

// Put replaces the campaign's table.
func (s *MemorySource) Put(campaignID string, records []models.PerformanceRecord) {
	rows := make([]models.PerformanceRecord, len(records))
	copy(rows, records)
	s.mu.Lock()
	s.tables[campaignID] = rows
	s.mu.Unlock()
}

// Records returns a copy of the campaign's table. An unknown campaign
// yields an empty table, not an error.
func (s *MemorySource) Records(_ context.Context, campaignID string) ([]models.PerformanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.tables[campaignID]
	out := make([]models.PerformanceRecord, len(rows))
	copy(out, rows)
	return out, nil
}

// Health always succeeds.
func (s *MemorySource) Health(context.Context) error { return nil }

// Close is a no-op.
func (s *MemorySource) Close() error { return nil }
