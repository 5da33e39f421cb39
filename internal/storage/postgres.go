package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/radiusdt/flowlens/internal/models"
)

// PostgresConfig holds connection settings for the Postgres record source.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// PostgresSource reads performance rows from a Postgres table, typically a
// nightly snapshot of the reporting warehouse.
type PostgresSource struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresSource connects a pool and verifies reachability.
func NewPostgresSource(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*PostgresSource, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.DBName),
		zap.Int("max_conns", cfg.MaxConns),
	)

	return &PostgresSource{pool: pool, logger: logger}, nil
}

const pgRecordsQuery = `
SELECT keyword_term,
       COALESCE(publisher_domain, ''),
       COALESCE(publisher_url, ''),
       COALESCE(serp_template_id, ''),
       COALESCE(serp_template_name, ''),
       COALESCE(ad_id, ''),
       COALESCE(ad_title, ''),
       COALESCE(ad_description, ''),
       COALESCE(destination_url, ''),
       COALESCE(impressions, 0),
       COALESCE(clicks, 0),
       COALESCE(conversions, 0),
       ts
FROM performance_records
WHERE campaign_id = $1`

// Records loads the campaign's full performance table.
func (s *PostgresSource) Records(ctx context.Context, campaignID string) ([]models.PerformanceRecord, error) {
	rows, err := s.pool.Query(ctx, pgRecordsQuery, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance records: %w", err)
	}
	defer rows.Close()

	records := make([]models.PerformanceRecord, 0, 1024)
	for rows.Next() {
		var r models.PerformanceRecord
		var ts *time.Time
		if err := rows.Scan(
			&r.KeywordTerm, &r.PublisherDomain, &r.PublisherURL,
			&r.SerpTemplateID, &r.SerpTemplateName,
			&r.AdID, &r.AdTitle, &r.AdDescription, &r.DestinationURL,
			&r.Impressions, &r.Clicks, &r.Conversions, &ts,
		); err != nil {
			return nil, fmt.Errorf("failed to scan performance record: %w", err)
		}
		r.Timestamp = ts
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

// Health checks if the database is reachable.
func (s *PostgresSource) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Stat exposes pool counters for the metrics exporter.
func (s *PostgresSource) Stat() (idle, inUse, total int) {
	st := s.pool.Stat()
	return int(st.IdleConns()), int(st.AcquiredConns()), int(st.TotalConns())
}

// Close closes the connection pool.
func (s *PostgresSource) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("PostgreSQL connection pool closed")
	}
	return nil
}
