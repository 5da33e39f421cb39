package storage

import (
	"context"

	"github.com/radiusdt/flowlens/internal/models"
)

// RecordSource loads the performance table the engine works on. The engine
// always pulls the full table into memory; selection is whole-table math
// and partial loads would skew the totals the metric cascade depends on.
type RecordSource interface {
	// Records returns every performance row for the campaign.
	Records(ctx context.Context, campaignID string) ([]models.PerformanceRecord, error)
	// Health reports backend reachability.
	Health(ctx context.Context) error
	// Close releases the backend connection.
	Close() error
}
