package xgateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/leftonspace/CampoTech-sub005/pkg/business/xusage"
	"github.com/leftonspace/CampoTech-sub005/pkg/resilience/xbreaker"
)

// ServiceStatus is a read-only health view of one facade. It feeds
// dashboards and health endpoints; decisions always go through the
// Engine, never through this snapshot.
type ServiceStatus struct {
	Service string `json:"service"`
	// Circuit is the breaker snapshot, zero-valued when the facade has
	// no breaker.
	Circuit xbreaker.Status `json:"circuit"`
	// SuccessRate is successes/(successes+failures) since start;
	// 1 when no calls have completed yet.
	SuccessRate float64 `json:"successRate"`
	// AvgLatency averages the rolling latency window.
	AvgLatency time.Duration `json:"avgLatency"`
	// PendingFallbacks counts the organization's open fallback records;
	// -1 when unknown (no store, or the query failed).
	PendingFallbacks int64 `json:"pendingFallbacks"`
	// Budget is the organization's budget posture, nil when the facade
	// has no tracker or no organization was given.
	Budget *xusage.BudgetStatus `json:"budget,omitempty"`
}

// Status reports the facade's current health. orgID scopes the
// pending-fallback count and budget view; empty skips both.
func (f *Facade) Status(ctx context.Context, orgID string) (ServiceStatus, error) {
	if ctx == nil {
		return ServiceStatus{}, ErrNilContext
	}

	st := ServiceStatus{
		Service:          f.service,
		SuccessRate:      f.successRate(),
		AvgLatency:       f.latency.average(),
		PendingFallbacks: -1,
	}
	if f.breaker != nil {
		st.Circuit = f.breaker.Status()
	}
	if orgID != "" {
		if f.records != nil {
			if n, err := f.records.CountPending(ctx, orgID); err == nil {
				st.PendingFallbacks = n
			}
		}
		if f.tracker != nil {
			if budget, err := f.tracker.BudgetStatus(ctx, orgID); err == nil {
				st.Budget = &budget
			}
		}
	}
	return st, nil
}

func (f *Facade) successRate() float64 {
	s := f.successes.Load()
	fl := f.failures.Load()
	total := s + fl
	if total == 0 {
		return 1
	}
	return float64(s) / float64(total)
}

// Registry holds the application's facades for composite health views.
type Registry struct {
	mu      sync.RWMutex
	facades map[string]*Facade
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{facades: make(map[string]*Facade)}
}

// Register adds a facade under its service name, replacing any previous
// facade for the same service.
func (r *Registry) Register(f *Facade) {
	if f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facades[f.service] = f
}

// Get returns the facade for a service.
func (r *Registry) Get(service string) (*Facade, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.facades[service]
	return f, ok
}

// SystemStatus reports every registered facade, sorted by service name.
func (r *Registry) SystemStatus(ctx context.Context, orgID string) ([]ServiceStatus, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	r.mu.RLock()
	facades := make([]*Facade, 0, len(r.facades))
	for _, f := range r.facades {
		facades = append(facades, f)
	}
	r.mu.RUnlock()

	statuses := make([]ServiceStatus, 0, len(facades))
	for _, f := range facades {
		st, err := f.Status(ctx, orgID)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Service < statuses[j].Service })
	return statuses, nil
}
