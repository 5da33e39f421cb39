package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/radiusdt/flowlens/internal/models"
)

// ClickHouseConfig holds connection settings for the ClickHouse source.
type ClickHouseConfig struct {
	Addr     string
	Database string
	User     string
	Password string
	Timeout  time.Duration
}

// ClickHouseSource reads performance rows straight from the event
// warehouse. Raw exports live here before any snapshotting; this source
// serves the freshest view of a campaign.
type ClickHouseSource struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewClickHouseSource connects and verifies reachability.
func NewClickHouseSource(ctx context.Context, cfg ClickHouseConfig, logger *zap.Logger) (*ClickHouseSource, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: cfg.Timeout,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	logger.Info("connected to ClickHouse",
		zap.String("addr", cfg.Addr),
		zap.String("database", cfg.Database),
	)
	return &ClickHouseSource{conn: conn, logger: logger}, nil
}

const chRecordsQuery = `
SELECT keyword_term,
       publisher_domain,
       publisher_url,
       serp_template_id,
       serp_template_name,
       ad_id,
       ad_title,
       ad_description,
       destination_url,
       toFloat64(impressions),
       toFloat64(clicks),
       toFloat64(conversions),
       ts
FROM performance_records
WHERE campaign_id = ?`

// Records loads the campaign's full performance table.
func (s *ClickHouseSource) Records(ctx context.Context, campaignID string) ([]models.PerformanceRecord, error) {
	rows, err := s.conn.Query(ctx, chRecordsQuery, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance records: %w", err)
	}
	defer rows.Close()

	records := make([]models.PerformanceRecord, 0, 1024)
	for rows.Next() {
		var r models.PerformanceRecord
		var ts time.Time
		if err := rows.Scan(
			&r.KeywordTerm, &r.PublisherDomain, &r.PublisherURL,
			&r.SerpTemplateID, &r.SerpTemplateName,
			&r.AdID, &r.AdTitle, &r.AdDescription, &r.DestinationURL,
			&r.Impressions, &r.Clicks, &r.Conversions, &ts,
		); err != nil {
			return nil, fmt.Errorf("failed to scan performance record: %w", err)
		}
		if !ts.IsZero() {
			t := ts
			r.Timestamp = &t
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read performance records: %w", err)
	}

	s.logger.Debug("loaded performance records",
		zap.String("campaign_id", campaignID),
		zap.Int("rows", len(records)),
	)
	return records, nil
}

// Health checks if ClickHouse is reachable.
func (s *ClickHouseSource) Health(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the connection.
func (s *ClickHouseSource) Close() error {
	if s.conn != nil {
		s.logger.Info("ClickHouse connection closed")
		return s.conn.Close()
	}
	return nil
}
