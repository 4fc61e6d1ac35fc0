// Package analytics reads delivery metrics from the event warehouse.
package analytics

import (
	"context"
	"time"
)

// DeliveryReport aggregates delivery for one media buy over a date range.
type DeliveryReport struct {
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	CTR         float64 `json:"ctr"`
	CPM         float64 `json:"cpm"`
}

// Derive fills the ratio fields from the raw counters.
func (r *DeliveryReport) Derive() {
	if r.Impressions > 0 {
		r.CTR = float64(r.Clicks) / float64(r.Impressions)
		r.CPM = r.Spend / float64(r.Impressions) * 1000
	}
}

// Service answers delivery queries. The production implementation reads
// ClickHouse; tests use the mock.
type Service interface {
	GetMediaBuyDelivery(ctx context.Context, tenantID, mediaBuyID string, start, end time.Time) (*DeliveryReport, error)
	Close() error
}
