package models

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and by deployments that
// run against the mock adapter without Postgres. All maps are keyed by
// tenant first so cross-tenant reads are structurally impossible.
type MemoryStore struct {
	mu sync.RWMutex

	tenants    map[string]*Tenant
	principals map[string]map[string]*Principal // tenant -> principal_id
	products   map[string]map[string]*Product
	mediaBuys  map[string]map[string]*MediaBuy
	packages   map[string]map[string][]*Package // tenant -> media_buy_id
	creatives  map[string]map[string]*Creative
	tasks      map[string]map[string]*Task
	contexts   map[string]map[string]*ConversationContext
	messages   map[string]map[string][]*Message // tenant -> context_id
	syncJobs   map[string]map[string]*SyncJob
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:    make(map[string]*Tenant),
		principals: make(map[string]map[string]*Principal),
		products:   make(map[string]map[string]*Product),
		mediaBuys:  make(map[string]map[string]*MediaBuy),
		packages:   make(map[string]map[string][]*Package),
		creatives:  make(map[string]map[string]*Creative),
		tasks:      make(map[string]map[string]*Task),
		contexts:   make(map[string]map[string]*ConversationContext),
		messages:   make(map[string]map[string][]*Message),
		syncJobs:   make(map[string]map[string]*SyncJob),
	}
}

// ===== Tenants & principals =====

func (s *MemoryStore) GetTenant(_ context.Context, tenantID string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) GetTenantBySubdomain(_ context.Context, subdomain string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.Subdomain == subdomain {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetTenantByVirtualHost(_ context.Context, host string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.VirtualHost != "" && strings.EqualFold(t.VirtualHost, host) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListTenants(_ context.Context) ([]Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

func (s *MemoryStore) UpsertTenant(_ context.Context, t *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tenants[t.TenantID] = &cp
	return nil
}

func (s *MemoryStore) GetPrincipal(_ context.Context, tenantID, principalID string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[tenantID][principalID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetPrincipalByToken(_ context.Context, tenantID, token string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.principals[tenantID] {
		if p.AccessToken == token {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpsertPrincipal(_ context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principals[p.TenantID] == nil {
		s.principals[p.TenantID] = make(map[string]*Principal)
	}
	cp := *p
	s.principals[p.TenantID][p.PrincipalID] = &cp
	return nil
}

// ===== Products =====

func (s *MemoryStore) GetProduct(_ context.Context, tenantID, productID string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[tenantID][productID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListProducts(_ context.Context, tenantID string) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.products[tenantID]))
	for _, p := range s.products[tenantID] {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (s *MemoryStore) UpsertProduct(_ context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.products[p.TenantID] == nil {
		s.products[p.TenantID] = make(map[string]*Product)
	}
	cp := *p
	s.products[p.TenantID][p.ProductID] = &cp
	return nil
}

// ===== Media buys =====

func (s *MemoryStore) CreateMediaBuy(_ context.Context, mb *MediaBuy, packages []Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mediaBuys[mb.TenantID] == nil {
		s.mediaBuys[mb.TenantID] = make(map[string]*MediaBuy)
	}
	if s.packages[mb.TenantID] == nil {
		s.packages[mb.TenantID] = make(map[string][]*Package)
	}
	cp := *mb
	s.mediaBuys[mb.TenantID][mb.MediaBuyID] = &cp
	pkgs := make([]*Package, 0, len(packages))
	for i := range packages {
		p := packages[i]
		pkgs = append(pkgs, &p)
	}
	s.packages[mb.TenantID][mb.MediaBuyID] = pkgs
	return nil
}

func (s *MemoryStore) GetMediaBuy(_ context.Context, tenantID, mediaBuyID string) (*MediaBuy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mb, ok := s.mediaBuys[tenantID][mediaBuyID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mb
	return &cp, nil
}

func (s *MemoryStore) UpdateMediaBuy(_ context.Context, mb *MediaBuy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mediaBuys[mb.TenantID][mb.MediaBuyID]; !ok {
		return ErrNotFound
	}
	cp := *mb
	s.mediaBuys[mb.TenantID][mb.MediaBuyID] = &cp
	return nil
}

func (s *MemoryStore) UpdateMediaBuyStatus(_ context.Context, tenantID, mediaBuyID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mb, ok := s.mediaBuys[tenantID][mediaBuyID]
	if !ok {
		return ErrNotFound
	}
	mb.Status = status
	mb.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListPackages(_ context.Context, tenantID, mediaBuyID string) ([]Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pkgs, ok := s.packages[tenantID][mediaBuyID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Package, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, *p)
	}
	return out, nil
}

func (s *MemoryStore) GetPackage(_ context.Context, tenantID, mediaBuyID, packageID string) (*Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.packages[tenantID][mediaBuyID] {
		if p.PackageID == packageID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdatePackageConfig(_ context.Context, tenantID, mediaBuyID, packageID string, cfg PackageConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.packages[tenantID][mediaBuyID] {
		if p.PackageID == packageID {
			p.Config = cfg
			return nil
		}
	}
	return ErrNotFound
}

// ===== Creatives =====

func (s *MemoryStore) InsertCreatives(_ context.Context, creatives []Creative) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range creatives {
		c := creatives[i]
		if s.creatives[c.TenantID] == nil {
			s.creatives[c.TenantID] = make(map[string]*Creative)
		}
		s.creatives[c.TenantID][c.CreativeID] = &c
	}
	return nil
}

func (s *MemoryStore) GetCreative(_ context.Context, tenantID, creativeID string) (*Creative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creatives[tenantID][creativeID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCreativesByMediaBuy(_ context.Context, tenantID, mediaBuyID string) ([]Creative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Creative
	for _, c := range s.creatives[tenantID] {
		if c.MediaBuyID == mediaBuyID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreativeID < out[j].CreativeID })
	return out, nil
}

func (s *MemoryStore) UpdateCreativeStatus(_ context.Context, tenantID, creativeID, status, detail, adServerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creatives[tenantID][creativeID]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.StatusDetail = detail
	if adServerID != "" {
		c.AdServerCreativeID = adServerID
	}
	return nil
}

// ===== Tasks =====

func (s *MemoryStore) InsertTask(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[t.TenantID] == nil {
		s.tasks[t.TenantID] = make(map[string]*Task)
	}
	cp := *t
	s.tasks[t.TenantID][t.TaskID] = &cp
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, tenantID, taskID string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[tenantID][taskID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) UpdateTaskStatus(_ context.Context, tenantID, taskID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[tenantID][taskID]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	if status == TaskStatusCompleted || status == TaskStatusFailed {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}
	return nil
}

func (s *MemoryStore) ListTasksByMediaBuy(_ context.Context, tenantID, mediaBuyID string) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Task
	for _, t := range s.tasks[tenantID] {
		if t.MediaBuyID == mediaBuyID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListOverdueTasks(_ context.Context, tenantID string, now time.Time) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Task
	for _, t := range s.tasks[tenantID] {
		if t.Overdue(now) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ===== Conversation contexts =====

func (s *MemoryStore) GetContext(_ context.Context, tenantID, contextID string) (*ConversationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[tenantID][contextID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) FindContext(_ context.Context, tenantID, principalID, protocol string) (*ConversationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest *ConversationContext
	for _, c := range s.contexts[tenantID] {
		if c.PrincipalID == principalID && c.Protocol == protocol {
			if newest == nil || c.LastActive.After(newest.LastActive) {
				newest = c
			}
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (s *MemoryStore) UpsertContext(_ context.Context, c *ConversationContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contexts[c.TenantID] == nil {
		s.contexts[c.TenantID] = make(map[string]*ConversationContext)
	}
	cp := *c
	s.contexts[c.TenantID][c.ContextID] = &cp
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, tenantID string, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messages[tenantID] == nil {
		s.messages[tenantID] = make(map[string][]*Message)
	}
	cp := *m
	s.messages[tenantID][m.ContextID] = append(s.messages[tenantID][m.ContextID], &cp)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, tenantID, contextID string, limit, offset int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[tenantID][contextID]
	if offset >= len(msgs) {
		return nil, nil
	}
	end := len(msgs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]Message, 0, end-offset)
	for _, m := range msgs[offset:end] {
		out = append(out, *m)
	}
	return out, nil
}

func (s *MemoryStore) ClearMessages(_ context.Context, tenantID, contextID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messages[tenantID] != nil {
		s.messages[tenantID][contextID] = nil
	}
	return nil
}

// ===== Sync jobs =====

func (s *MemoryStore) TryStartSyncJob(_ context.Context, job *SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.syncJobs[job.TenantID] {
		if j.SyncType == job.SyncType && j.Status == SyncStatusRunning {
			return ErrConflict
		}
	}
	if s.syncJobs[job.TenantID] == nil {
		s.syncJobs[job.TenantID] = make(map[string]*SyncJob)
	}
	cp := *job
	s.syncJobs[job.TenantID][job.SyncID] = &cp
	return nil
}

func (s *MemoryStore) FinishSyncJob(_ context.Context, job *SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.syncJobs[job.TenantID][job.SyncID]; !ok {
		return ErrNotFound
	}
	cp := *job
	s.syncJobs[job.TenantID][job.SyncID] = &cp
	return nil
}

func (s *MemoryStore) GetSyncJob(_ context.Context, tenantID, syncID string) (*SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.syncJobs[tenantID][syncID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *MemoryStore) ListSyncJobs(_ context.Context, tenantID string, limit, offset int, statusFilter string) ([]SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []SyncJob
	for _, j := range s.syncJobs[tenantID] {
		if statusFilter == "" || j.Status == statusFilter {
			all = append(all, *j)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

func (s *MemoryStore) LatestSyncJob(_ context.Context, tenantID, syncType string) (*SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest *SyncJob
	for _, j := range s.syncJobs[tenantID] {
		if j.SyncType != syncType {
			continue
		}
		if newest == nil || j.StartedAt.After(newest.StartedAt) {
			newest = j
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	cp := *newest
	return &cp, nil
}
