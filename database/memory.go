package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/model"
)

// MemoryStore is an in-process IDataSource for single-node deployments and tests.
// Every commit is validated in full before any map is written, so a rejected commit
// leaves no trace.
type MemoryStore struct {
	mu sync.RWMutex

	platform      *model.PlatformConfig
	stats         map[model.Kind]model.Stats
	instances     map[string]*model.Instance
	custody       map[string]*model.CustodyAccount
	entries       map[string][]model.LedgerEntry
	events        map[string][]model.EventRecord
	registrations map[string]map[string]model.Registration
	requests      map[string][]model.PaymentRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stats:         make(map[model.Kind]model.Stats),
		instances:     make(map[string]*model.Instance),
		custody:       make(map[string]*model.CustodyAccount),
		entries:       make(map[string][]model.LedgerEntry),
		events:        make(map[string][]model.EventRecord),
		registrations: make(map[string]map[string]model.Registration),
		requests:      make(map[string][]model.PaymentRequest),
	}
}

func (m *MemoryStore) CreatePlatformConfig(_ context.Context, cfg *model.PlatformConfig, event model.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.platform != nil {
		return apierror.NewAPIError(apierror.ErrConflict, "platform is already initialized", nil)
	}
	cfg.Version = 1
	stored := *cfg
	m.platform = &stored
	m.events[event.InstanceID] = append(m.events[event.InstanceID], event)
	return nil
}

func (m *MemoryStore) GetPlatformConfig(_ context.Context) (*model.PlatformConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.platform == nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "platform is not initialized", nil)
	}
	cfg := *m.platform
	return &cfg, nil
}

func (m *MemoryStore) UpdatePlatformConfig(_ context.Context, cfg *model.PlatformConfig, event model.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.platform == nil {
		return apierror.NewAPIError(apierror.ErrNotFound, "platform is not initialized", nil)
	}
	if m.platform.Version != cfg.Version {
		return apierror.NewAPIError(apierror.ErrConflict, "platform config was updated by another operation", nil)
	}
	m.platform.Authority = cfg.Authority
	m.platform.Treasury = cfg.Treasury
	m.platform.FeeRateBps = cfg.FeeRateBps
	m.platform.UpdatedAt = cfg.UpdatedAt
	m.platform.Version++
	cfg.Version = m.platform.Version
	m.events[event.InstanceID] = append(m.events[event.InstanceID], event)
	return nil
}

func (m *MemoryStore) GetStats(_ context.Context, kind model.Kind) (*model.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.stats[kind]
	s.Kind = kind
	return &s, nil
}

func (m *MemoryStore) GetInstance(_ context.Context, instanceID string) (*model.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instances[instanceID]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("instance with ID '%s' not found", instanceID), nil)
	}
	return inst.Clone(), nil
}

func (m *MemoryStore) GetCustodyAccount(_ context.Context, address string) (*model.CustodyAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.custody[address]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("custody account '%s' not found", address), nil)
	}
	c := *acc
	return &c, nil
}

func (m *MemoryStore) GetRegistration(_ context.Context, eventID, attendee string) (*model.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reg, ok := m.registrations[eventID][attendee]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("no registration for '%s' at event '%s'", attendee, eventID), nil)
	}
	return copyRegistration(reg), nil
}

func (m *MemoryStore) GetRegistrations(_ context.Context, eventID string) ([]model.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Registration, 0, len(m.registrations[eventID]))
	for _, reg := range m.registrations[eventID] {
		out = append(out, *copyRegistration(reg))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].Attendee < out[j].Attendee
		}
		return out[i].PurchasedAt.Before(out[j].PurchasedAt)
	})
	return out, nil
}

func (m *MemoryStore) GetLatestPaymentRequest(_ context.Context, subscriptionID string) (*model.PaymentRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reqs := m.requests[subscriptionID]
	if len(reqs) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("no payment request for subscription '%s'", subscriptionID), nil)
	}
	pr := reqs[len(reqs)-1]
	if pr.PaidAt != nil {
		t := *pr.PaidAt
		pr.PaidAt = &t
	}
	return &pr, nil
}

func (m *MemoryStore) ListDueInstances(_ context.Context, before time.Time, limit int) ([]model.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Instance
	for _, inst := range m.instances {
		if inst.Deadline == nil || inst.Deadline.After(before) || !model.Expirable(inst.Kind, inst.Status) {
			continue
		}
		out = append(out, *inst.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(*out[j].Deadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CommitTransition(_ context.Context, c *model.Commit) error {
	if c == nil || c.Instance == nil || c.Custody == nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "incomplete commit", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validate(c); err != nil {
		return err
	}
	platform, stats, err := m.aggregate(c.Aggregate)
	if err != nil {
		return err
	}

	// nothing below can fail
	inst := c.Instance.Clone()
	acc := *c.Custody
	if c.Create {
		inst.Version, acc.Version = 1, 1
	} else {
		inst.Version++
		acc.Version++
	}
	m.instances[inst.InstanceID] = inst
	m.custody[acc.Address] = &acc

	m.entries[inst.InstanceID] = append(m.entries[inst.InstanceID], c.Entries...)
	for _, r := range c.Registrations {
		if m.registrations[r.EventID] == nil {
			m.registrations[r.EventID] = make(map[string]model.Registration)
		}
		m.registrations[r.EventID][r.Attendee] = *copyRegistration(r)
	}
	for _, p := range c.PaymentRequests {
		m.upsertRequest(p)
	}
	if platform != nil {
		m.platform = platform
		m.stats[c.Aggregate.Kind] = stats
	}
	m.events[inst.InstanceID] = append(m.events[inst.InstanceID], c.Event)

	c.Instance.Version, c.Custody.Version = inst.Version, acc.Version
	return nil
}

func (m *MemoryStore) validate(c *model.Commit) error {
	id := c.Instance.InstanceID
	stored, exists := m.instances[id]
	if c.Create {
		if exists {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("instance with ID '%s' already exists", id), nil)
		}
		if _, taken := m.custody[c.Custody.Address]; taken {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("custody account '%s' already exists", c.Custody.Address), nil)
		}
		return nil
	}

	if !exists {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("instance with ID '%s' not found", id), nil)
	}
	if stored.Version != c.Instance.Version {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Optimistic locking failure: instance '%s' was updated by another operation", id), nil)
	}
	acc, ok := m.custody[c.Custody.Address]
	if !ok || acc.InstanceID != id {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("custody account '%s' not found", c.Custody.Address), nil)
	}
	if acc.Version != c.Custody.Version {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Optimistic locking failure: custody account '%s' was updated by another operation", acc.Address), nil)
	}
	return nil
}

// aggregate computes the new totals without storing them.
func (m *MemoryStore) aggregate(a model.AggregateDelta) (*model.PlatformConfig, model.Stats, error) {
	if a.Count == 0 && a.Volume == 0 && a.Active == 0 {
		return nil, model.Stats{}, nil
	}
	if m.platform == nil {
		return nil, model.Stats{}, apierror.NewAPIError(apierror.ErrNotFound, "platform is not initialized", nil)
	}

	p := *m.platform
	s := m.stats[a.Kind]
	s.Kind = a.Kind
	var err error
	if p.TotalCount, err = model.AddAmounts(p.TotalCount, a.Count); err != nil {
		return nil, s, err
	}
	if p.TotalVolume, err = model.AddAmounts(p.TotalVolume, a.Volume); err != nil {
		return nil, s, err
	}
	if s.Count, err = model.AddAmounts(s.Count, a.Count); err != nil {
		return nil, s, err
	}
	if s.Volume, err = model.AddAmounts(s.Volume, a.Volume); err != nil {
		return nil, s, err
	}
	s.Active += a.Active
	return &p, s, nil
}

func (m *MemoryStore) upsertRequest(p model.PaymentRequest) {
	reqs := m.requests[p.SubscriptionID]
	for i := range reqs {
		if reqs[i].RequestID == p.RequestID {
			reqs[i].Status = p.Status
			reqs[i].PaidAt = p.PaidAt
			return
		}
	}
	m.requests[p.SubscriptionID] = append(reqs, p)
}

func (m *MemoryStore) GetLedgerEntries(_ context.Context, instanceID string) ([]model.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.LedgerEntry(nil), m.entries[instanceID]...), nil
}

func (m *MemoryStore) GetEventRecords(_ context.Context, instanceID string) ([]model.EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.EventRecord(nil), m.events[instanceID]...), nil
}

func copyRegistration(r model.Registration) *model.Registration {
	if r.CheckInTime != nil {
		t := *r.CheckInTime
		r.CheckInTime = &t
	}
	return &r
}
