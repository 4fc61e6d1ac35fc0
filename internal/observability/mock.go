package observability

import "time"

// MockMetricsRegistry is a no-op implementation of MetricsRegistry for testing.
type MockMetricsRegistry struct{}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementOperation(operation, status string)                          {}
func (m *MockMetricsRegistry) IncrementPolicyDecision(status string)                                {}
func (m *MockMetricsRegistry) IncrementAdapterCall(adapter, method, outcome string)                 {}
func (m *MockMetricsRegistry) RecordAdapterLatency(adapter, method string, duration time.Duration)  {}
func (m *MockMetricsRegistry) IncrementSyncJob(syncType, status string)                             {}
func (m *MockMetricsRegistry) IncrementNotification(channel, outcome string)                        {}
func (m *MockMetricsRegistry) IncrementAuditWriteErrors()                                           {}
func (m *MockMetricsRegistry) IncrementMessages(role string)                                        {}
