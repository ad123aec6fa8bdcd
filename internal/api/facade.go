// Package api is the callable core-operations facade of spec.md §4.5:
// a thin layer in front of the registry that the HTTP handlers and
// the admin surface call into. It owns no state of its own.
package api

import (
	"context"
	"time"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/config"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/domain"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/eventbus"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/watcher"
)

// Registry is the subset of *registry.Registry the facade calls.
type Registry interface {
	CreateSession(ctx context.Context, in domain.CreateSessionInput) (*domain.Session, error)
	GetSession(id string) (*domain.Session, error)
	ListSessions(filter domain.SessionFilter, page domain.Page) ([]*domain.Session, domain.PageResult)
	RecreateSession(ctx context.Context, id string) (*domain.Session, error)
	GetTransfer(id string) (*domain.Transfer, error)
	ListTransfers(filter domain.TransferFilter) []*domain.Transfer
	ExpireDue(now time.Time) int
}

// WatcherStatuser reports a single ChainWatcher's health.
type WatcherStatuser interface {
	Status() (status watcher.Status, lastBlock uint64, lastErr string)
}

// NetworkStatusEntry is one chain's row in NetworkStatus (spec.md §6).
type NetworkStatusEntry struct {
	ID                    string        `json:"id"`
	Status                watcher.Status `json:"status"`
	LastBlock             uint64        `json:"lastBlock"`
	RequiredConfirmations int           `json:"requiredConfirmations"`
}

// Facade wraps the registry and the live watcher set for the HTTP and
// stream layers (spec.md §4.5).
type Facade struct {
	registry Registry
	bus      *eventbus.Bus
	chains   map[string]*config.ChainConfig
	watchers map[string]WatcherStatuser
}

// New constructs a Facade. watchers may have fewer entries than
// chains: a chain with no running watcher reports INACTIVE.
func New(registry Registry, bus *eventbus.Bus, chains map[string]*config.ChainConfig, watchers map[string]WatcherStatuser) *Facade {
	return &Facade{registry: registry, bus: bus, chains: chains, watchers: watchers}
}

func (f *Facade) CreateSession(ctx context.Context, in domain.CreateSessionInput) (*domain.Session, error) {
	return f.registry.CreateSession(ctx, in)
}

func (f *Facade) GetSession(id string) (*domain.Session, error) {
	return f.registry.GetSession(id)
}

func (f *Facade) ListSessions(filter domain.SessionFilter, page domain.Page) ([]*domain.Session, domain.PageResult) {
	return f.registry.ListSessions(filter, page)
}

func (f *Facade) RecreateSession(ctx context.Context, id string) (*domain.Session, error) {
	return f.registry.RecreateSession(ctx, id)
}

func (f *Facade) GetTransfer(id string) (*domain.Transfer, error) {
	return f.registry.GetTransfer(id)
}

func (f *Facade) ListTransfers(filter domain.TransferFilter) []*domain.Transfer {
	return f.registry.ListTransfers(filter)
}

// NetworkStatus implements spec.md §6's GET /api/v1/system/network-status.
func (f *Facade) NetworkStatus() []NetworkStatusEntry {
	out := make([]NetworkStatusEntry, 0, len(f.chains))
	for id, chainCfg := range f.chains {
		entry := NetworkStatusEntry{ID: id, Status: watcher.StatusInactive, RequiredConfirmations: chainCfg.RequiredConfirmations}
		if w, ok := f.watchers[id]; ok {
			status, lastBlock, _ := w.Status()
			entry.Status = status
			entry.LastBlock = lastBlock
		}
		out = append(out, entry)
	}
	return out
}

// Subscribe returns a new EventBus subscription for the stream
// endpoint (spec.md §9's websocket transport note).
func (f *Facade) Subscribe() *eventbus.Subscription {
	return f.bus.Subscribe()
}

// ForceExpirySweep runs ExpireDue immediately rather than waiting for
// the ExpiryScanner's next tick, an admin-only supplemented operation
// (SPEC_FULL.md §12).
func (f *Facade) ForceExpirySweep() int {
	return f.registry.ExpireDue(time.Now().UTC())
}
