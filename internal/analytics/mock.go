package analytics

import (
	"context"
	"time"
)

// MockService returns canned delivery reports keyed by media buy ID.
type MockService struct {
	Reports map[string]*DeliveryReport
}

func NewMockService() *MockService {
	return &MockService{Reports: make(map[string]*DeliveryReport)}
}

func (m *MockService) GetMediaBuyDelivery(_ context.Context, _, mediaBuyID string, _, _ time.Time) (*DeliveryReport, error) {
	if r, ok := m.Reports[mediaBuyID]; ok {
		out := *r
		out.Derive()
		return &out, nil
	}
	return &DeliveryReport{}, nil
}

func (m *MockService) Close() error { return nil }
