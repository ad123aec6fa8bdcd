// Package address implements the pluggable AddressSource of spec.md
// §1/§4.3: it hands the registry a recipient address to assign to a
// new session, and takes one back when a session reaches a terminal
// state so it can be handed out again.
//
// spec.md §3 gives each configured Chain exactly one `recipient`
// address — the same address the ChainWatcher's getLogs filter is
// pinned to (spec.md §6). A session's assigned address is therefore
// always that chain's single recipient, and the "exactly one open
// PENDING session per (network, address)" invariant becomes a
// single-flight constraint per chain: a second CreateSession on a
// chain that already has a PENDING session fails with
// ErrAddressUnavailable, precisely the error spec.md §4.3 names.
// Deployments with a real multi-address hot wallet can swap in a
// Source backed by a larger pool without touching the registry.
package address

import (
	"fmt"
	"sync"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/config"
)

// ErrUnavailable is returned by NewAddress when the network has no
// free address to hand out right now.
var ErrUnavailable = fmt.Errorf("address: no address available")

// Source issues and reclaims recipient addresses for sessions.
type Source interface {
	// NewAddress returns the address to assign to a new session on
	// network. Returns ErrUnavailable if none is free.
	NewAddress(network, sessionID string) (string, error)
	// Release returns address to the free pool for network. Called
	// by the registry when a session reaches COMPLETED or EXPIRED.
	Release(network, address string)
	// Reserve marks address busy for network without allocating a new
	// one, used when the registry restores a PENDING session from the
	// durable store on startup.
	Reserve(network, address string)
}

// PoolSource is the default Source: one slot per configured chain,
// seeded from that chain's single `recipient`. The teacher has no
// address-pool allocator to generalize (it submits transactions from
// one fixed wallet per chain rather than rotating recipients), so this
// follows the mutex-guarded-map idiom transaction_queue_service.go
// uses for its per-address processing locks, narrowed to a pool of
// size one per chain.
type PoolSource struct {
	mu        sync.Mutex
	available map[string]map[string]bool // network -> address -> free
}

// NewPoolSource seeds one address per chain from its config.
func NewPoolSource(chains map[string]*config.ChainConfig) *PoolSource {
	p := &PoolSource{available: make(map[string]map[string]bool)}
	for network, chain := range chains {
		p.available[network] = map[string]bool{chain.Recipient: true}
	}
	return p
}

// NewAddress hands out network's recipient if it is currently free.
func (p *PoolSource) NewAddress(network, sessionID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slots, ok := p.available[network]
	if !ok {
		return "", fmt.Errorf("address: unconfigured network %q", network)
	}
	for addr, free := range slots {
		if free {
			slots[addr] = false
			return addr, nil
		}
	}
	return "", ErrUnavailable
}

// Release marks address free again for network.
func (p *PoolSource) Release(network, addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slots, ok := p.available[network]; ok {
		if _, known := slots[addr]; known {
			slots[addr] = true
		}
	}
}

// Reserve marks address busy for network if it is known, without
// affecting addresses it doesn't recognize.
func (p *PoolSource) Reserve(network, addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slots, ok := p.available[network]; ok {
		if _, known := slots[addr]; known {
			slots[addr] = false
		}
	}
}
