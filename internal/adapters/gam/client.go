package gam

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/models"
)

// Order is the upstream order representation the adapter works with.
type Order struct {
	ID           string
	Name         string
	AdvertiserID string
	Status       string
	LineItems    []LineItem
}

// LineItem mirrors the upstream line item fields the gateway books.
type LineItem struct {
	ID              string
	Name            string
	Type            string
	Status          string
	CostPerUnit     float64
	UnitsBought     int64
	Targeting       LineItemTargeting
	Placeholders    []models.Size
	EnvironmentType string
	StartDate       time.Time
	EndDate         time.Time
}

// UpstreamCreative is a creative as created upstream.
type UpstreamCreative struct {
	ID           string
	Name         string
	Kind         string
	Width        int
	Height       int
	Snippet      string
	AssetURL     string
	ClickURL     string
	DurationMS   int64
	AdvertiserID string
}

// Client is the upstream ad-manager API boundary. One client exists per
// (tenant, ad_server); implementations must be safe for concurrent use.
type Client interface {
	CreateOrder(ctx context.Context, order *Order) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	ResumeOrder(ctx context.Context, orderID string) error
	ArchiveOrder(ctx context.Context, orderID string) error
	SubmitOrderForApproval(ctx context.Context, orderID string) error
	ApproveOrder(ctx context.Context, orderID string) error
	ActivateLineItems(ctx context.Context, orderID string) error

	CreateCreatives(ctx context.Context, creatives []UpstreamCreative) ([]UpstreamCreative, error)
	AssociateCreative(ctx context.Context, lineItemID, creativeID string) error

	ListAdvertisers(ctx context.Context) ([]adapters.Advertiser, error)
	ListAdUnits(ctx context.Context, parentID string) ([]adapters.AdUnit, error)
	ListPlacements(ctx context.Context) ([]adapters.Placement, error)
	ListCustomTargetingKeys(ctx context.Context) ([]adapters.CustomTargetingKey, error)
	ListAudienceSegments(ctx context.Context) ([]models.Signal, error)
	ListOrders(ctx context.Context) ([]Order, error)

	DeliveryReport(ctx context.Context, orderID string, asOf time.Time) (*models.DeliveryMetrics, error)
}

// breakerClient wraps a Client with a circuit breaker so a failing
// upstream sheds load fast instead of tying up request handlers.
type breakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewBreakerClient wraps the upstream client. The breaker opens after five
// consecutive failures and probes again after 30 seconds.
func NewBreakerClient(inner Client, tenantID string, logger *zap.Logger) Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gam-" + tenantID,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("gam circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &breakerClient{inner: inner, breaker: cb, logger: logger}
}

func run[T any](c *breakerClient, fn func() (T, error)) (T, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func runVoid(c *breakerClient, fn func() error) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (c *breakerClient) CreateOrder(ctx context.Context, order *Order) (*Order, error) {
	return run(c, func() (*Order, error) { return c.inner.CreateOrder(ctx, order) })
}

func (c *breakerClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return run(c, func() (*Order, error) { return c.inner.GetOrder(ctx, orderID) })
}

func (c *breakerClient) ResumeOrder(ctx context.Context, orderID string) error {
	return runVoid(c, func() error { return c.inner.ResumeOrder(ctx, orderID) })
}

func (c *breakerClient) ArchiveOrder(ctx context.Context, orderID string) error {
	return runVoid(c, func() error { return c.inner.ArchiveOrder(ctx, orderID) })
}

func (c *breakerClient) SubmitOrderForApproval(ctx context.Context, orderID string) error {
	return runVoid(c, func() error { return c.inner.SubmitOrderForApproval(ctx, orderID) })
}

func (c *breakerClient) ApproveOrder(ctx context.Context, orderID string) error {
	return runVoid(c, func() error { return c.inner.ApproveOrder(ctx, orderID) })
}

func (c *breakerClient) ActivateLineItems(ctx context.Context, orderID string) error {
	return runVoid(c, func() error { return c.inner.ActivateLineItems(ctx, orderID) })
}

func (c *breakerClient) CreateCreatives(ctx context.Context, creatives []UpstreamCreative) ([]UpstreamCreative, error) {
	return run(c, func() ([]UpstreamCreative, error) { return c.inner.CreateCreatives(ctx, creatives) })
}

func (c *breakerClient) AssociateCreative(ctx context.Context, lineItemID, creativeID string) error {
	return runVoid(c, func() error { return c.inner.AssociateCreative(ctx, lineItemID, creativeID) })
}

func (c *breakerClient) ListAdvertisers(ctx context.Context) ([]adapters.Advertiser, error) {
	return run(c, func() ([]adapters.Advertiser, error) { return c.inner.ListAdvertisers(ctx) })
}

func (c *breakerClient) ListAdUnits(ctx context.Context, parentID string) ([]adapters.AdUnit, error) {
	return run(c, func() ([]adapters.AdUnit, error) { return c.inner.ListAdUnits(ctx, parentID) })
}

func (c *breakerClient) ListPlacements(ctx context.Context) ([]adapters.Placement, error) {
	return run(c, func() ([]adapters.Placement, error) { return c.inner.ListPlacements(ctx) })
}

func (c *breakerClient) ListCustomTargetingKeys(ctx context.Context) ([]adapters.CustomTargetingKey, error) {
	return run(c, func() ([]adapters.CustomTargetingKey, error) { return c.inner.ListCustomTargetingKeys(ctx) })
}

func (c *breakerClient) ListAudienceSegments(ctx context.Context) ([]models.Signal, error) {
	return run(c, func() ([]models.Signal, error) { return c.inner.ListAudienceSegments(ctx) })
}

func (c *breakerClient) ListOrders(ctx context.Context) ([]Order, error) {
	return run(c, func() ([]Order, error) { return c.inner.ListOrders(ctx) })
}

func (c *breakerClient) DeliveryReport(ctx context.Context, orderID string, asOf time.Time) (*models.DeliveryMetrics, error) {
	return run(c, func() (*models.DeliveryMetrics, error) { return c.inner.DeliveryReport(ctx, orderID, asOf) })
}

// memoryClient is an in-process upstream used in tests and sandbox
// deployments without network credentials. It honors the same semantics
// the adapter relies on (order status transitions, LICA bookkeeping).
type memoryClient struct {
	mu       sync.Mutex
	seq      int
	orders   map[string]*Order
	creative map[string]UpstreamCreative
	licas    map[string][]string

	advertisers []adapters.Advertiser
	adUnits     []adapters.AdUnit
	placements  []adapters.Placement
	ctKeys      []adapters.CustomTargetingKey
	segments    []models.Signal
}

// NewMemoryClient builds the sandbox upstream with a small inventory set.
func NewMemoryClient() Client {
	return &memoryClient{
		orders:   make(map[string]*Order),
		creative: make(map[string]UpstreamCreative),
		licas:    make(map[string][]string),
		advertisers: []adapters.Advertiser{
			{ID: "adv_1001", Name: "House Advertiser", Type: "HOUSE_ADVERTISER"},
			{ID: "adv_1002", Name: "Programmatic Partner", Type: "ADVERTISER"},
		},
		adUnits: []adapters.AdUnit{
			{ID: "au_root", Name: "root", Path: "/root", Status: "ACTIVE"},
			{ID: "au_sports", ParentID: "au_root", Name: "sports", Path: "/root/sports", Sizes: []models.Size{{Width: 300, Height: 250}, {Width: 728, Height: 90}}, Status: "ACTIVE"},
			{ID: "au_news", ParentID: "au_root", Name: "news", Path: "/root/news", Sizes: []models.Size{{Width: 300, Height: 250}}, Status: "ACTIVE"},
			{ID: "au_video", ParentID: "au_root", Name: "video", Path: "/root/video", Sizes: []models.Size{{Width: 640, Height: 480}}, Status: "ACTIVE"},
		},
		placements: []adapters.Placement{
			{ID: "pl_ros", Name: "Run of Site", AdUnitIDs: []string{"au_sports", "au_news"}, Status: "ACTIVE"},
		},
		ctKeys: []adapters.CustomTargetingKey{
			{ID: "ct_1", Name: "section", Type: "PREDEFINED", Values: []string{"sports", "news", "video"}},
			{ID: "ct_2", Name: "aee_signal", Type: "FREEFORM"},
		},
		segments: []models.Signal{
			{SignalID: "seg_100", Name: "Sports Fans", Type: models.SignalTypeAudience},
		},
	}
}

func (m *memoryClient) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s_%d", prefix, m.seq)
}

func (m *memoryClient) CreateOrder(_ context.Context, order *Order) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *order
	clone.ID = m.nextID("order")
	if clone.Status == "" {
		clone.Status = "DRAFT"
	}
	for i := range clone.LineItems {
		clone.LineItems[i].ID = m.nextID("li")
		if clone.LineItems[i].Status == "" {
			clone.LineItems[i].Status = "DRAFT"
		}
	}
	m.orders[clone.ID] = &clone
	return &clone, nil
}

func (m *memoryClient) GetOrder(_ context.Context, orderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	clone := *o
	return &clone, nil
}

func (m *memoryClient) setOrderStatus(orderID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	o.Status = status
	return nil
}

func (m *memoryClient) ResumeOrder(_ context.Context, orderID string) error {
	return m.setOrderStatus(orderID, "APPROVED")
}

func (m *memoryClient) ArchiveOrder(_ context.Context, orderID string) error {
	return m.setOrderStatus(orderID, "ARCHIVED")
}

func (m *memoryClient) SubmitOrderForApproval(_ context.Context, orderID string) error {
	return m.setOrderStatus(orderID, "PENDING_APPROVAL")
}

func (m *memoryClient) ApproveOrder(_ context.Context, orderID string) error {
	return m.setOrderStatus(orderID, "APPROVED")
}

func (m *memoryClient) ActivateLineItems(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	for i := range o.LineItems {
		o.LineItems[i].Status = "DELIVERING"
	}
	return nil
}

func (m *memoryClient) CreateCreatives(_ context.Context, creatives []UpstreamCreative) ([]UpstreamCreative, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UpstreamCreative, 0, len(creatives))
	for _, c := range creatives {
		c.ID = m.nextID("creative")
		m.creative[c.ID] = c
		out = append(out, c)
	}
	return out, nil
}

func (m *memoryClient) AssociateCreative(_ context.Context, lineItemID, creativeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.licas[lineItemID] = append(m.licas[lineItemID], creativeID)
	return nil
}

func (m *memoryClient) ListAdvertisers(_ context.Context) ([]adapters.Advertiser, error) {
	return m.advertisers, nil
}

func (m *memoryClient) ListAdUnits(_ context.Context, parentID string) ([]adapters.AdUnit, error) {
	if parentID == "" {
		return m.adUnits, nil
	}
	var out []adapters.AdUnit
	for _, au := range m.adUnits {
		if au.ParentID == parentID {
			out = append(out, au)
		}
	}
	return out, nil
}

func (m *memoryClient) ListPlacements(_ context.Context) ([]adapters.Placement, error) {
	return m.placements, nil
}

func (m *memoryClient) ListCustomTargetingKeys(_ context.Context) ([]adapters.CustomTargetingKey, error) {
	return m.ctKeys, nil
}

func (m *memoryClient) ListAudienceSegments(_ context.Context) ([]models.Signal, error) {
	return m.segments, nil
}

func (m *memoryClient) ListOrders(_ context.Context) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *memoryClient) DeliveryReport(_ context.Context, orderID string, _ time.Time) (*models.DeliveryMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	return &models.DeliveryMetrics{}, nil
}
