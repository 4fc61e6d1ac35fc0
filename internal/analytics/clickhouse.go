package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// ClickHouseService aggregates delivery events from the warehouse.
type ClickHouseService struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewClickHouseService opens a connection to the warehouse at the given
// DSN (e.g. "clickhouse://localhost:9000/adsales").
func NewClickHouseService(dsn string, logger *zap.Logger) (*ClickHouseService, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	logger.Info("Connected to ClickHouse", zap.String("dsn", dsn))
	return &ClickHouseService{conn: conn, logger: logger.Named("analytics")}, nil
}

// GetMediaBuyDelivery sums delivery events for the media buy in the
// half-open range [start, end).
func (s *ClickHouseService) GetMediaBuyDelivery(ctx context.Context, tenantID, mediaBuyID string, start, end time.Time) (*DeliveryReport, error) {
	query := `SELECT
        sum(spend) AS spend,
        countIf(event_type = 'impression') AS impressions,
        countIf(event_type = 'click') AS clicks
    FROM delivery_events
    WHERE tenant_id = ? AND media_buy_id = ? AND event_time >= ? AND event_time < ?`

	row := s.conn.QueryRow(ctx, query, tenantID, mediaBuyID, start, end)
	var report DeliveryReport
	if err := row.Scan(&report.Spend, &report.Impressions, &report.Clicks); err != nil {
		return nil, fmt.Errorf("delivery query: %w", err)
	}
	report.Derive()
	return &report, nil
}

func (s *ClickHouseService) Close() error {
	return s.conn.Close()
}
