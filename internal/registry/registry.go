// Package registry is the single-writer authoritative state of
// spec.md §4.3: the in-memory SessionRegistry and its embedded state
// machine. Every external caller (the API facade, the ExpiryScanner,
// each ChainWatcher) interacts through the operations this package
// exposes; none of them mutate session/transfer state directly.
//
// Mutation is serialized through a single goroutine consuming an
// operation channel, so a match decision and the event it publishes
// commit as one atomic step without a lock held across bus.Publish or
// store calls. Reads (GetSession, ListSessions, GetTransfer,
// ListTransfers) bypass that goroutine and take a read lock directly
// against the same map the writer mutates, the way
// transaction_queue_service.go's processingLocks map is guarded by a
// sync.RWMutex with double-checked locking on the read path, since
// they never need to observe anything other than a committed
// snapshot.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/address"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/config"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/domain"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/eventbus"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/metrics"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/store"
)

// persistTimeout bounds a single write-behind Store call so a slow or
// unreachable durable store never holds up the writer goroutine.
const persistTimeout = 5 * time.Second

// maxAmountDecimals is the fallback precision used to validate an
// amount string against an unconfigured network, chosen generously
// (18 covers every ERC-20/BEP-20 token decimals value in practice) so
// validation never rejects a legitimate amount for a chain it hasn't
// resolved yet.
const maxAmountDecimals = 18

// Registry is the authoritative, single-writer session/transfer store.
type Registry struct {
	cfg     *config.Config
	bus     *eventbus.Bus
	addrSrc address.Source
	store   store.Store
	log     *logrus.Entry

	mu sync.RWMutex

	sessions       map[string]*domain.Session
	sessionsByAddr map[addrKey]string // (network, lower(address)) -> sessionID; removed on completion, kept on expiry until the address is reassigned
	transfers      map[domain.TransferKey]*domain.Transfer
	transfersByID  map[string]*domain.Transfer

	ops       chan func()
	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

type addrKey struct {
	network string
	address string
}

// New constructs a Registry and starts its single-writer goroutine.
// Stop must be called to release it.
func New(cfg *config.Config, bus *eventbus.Bus, addrSrc address.Source, st store.Store, log *logrus.Entry) *Registry {
	r := &Registry{
		cfg:            cfg,
		bus:            bus,
		addrSrc:        addrSrc,
		store:          st,
		log:            log,
		sessions:       make(map[string]*domain.Session),
		sessionsByAddr: make(map[addrKey]string),
		transfers:      make(map[domain.TransferKey]*domain.Transfer),
		transfersByID:  make(map[string]*domain.Transfer),
		ops:            make(chan func(), 256),
		done:           make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Stop drains pending operations then shuts down the writer goroutine.
func (r *Registry) Stop() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Registry) run() {
	defer r.wg.Done()
	for {
		select {
		case op := <-r.ops:
			op()
		case <-r.done:
			// drain what's already queued before exiting
			for {
				select {
				case op := <-r.ops:
					op()
				default:
					return
				}
			}
		}
	}
}

// submit runs fn on the writer goroutine and blocks until it commits.
func (r *Registry) submit(fn func()) {
	result := make(chan struct{})
	r.ops <- func() {
		fn()
		close(result)
	}
	<-result
}

// persistSession mirrors sess to the durable store off the writer
// goroutine, so a slow or unreachable Store never delays a match
// decision (spec.md §1/§9).
func (r *Registry) persistSession(sess *domain.Session) {
	if r.store == nil {
		return
	}
	snapshot := sess.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.store.SaveSession(ctx, snapshot); err != nil {
			r.log.WithFields(logrus.Fields{"sessionId": snapshot.ID, "error": err}).Warn("registry: failed to persist session")
		}
	}()
}

// persistTransfer mirrors t to the durable store the same way
// persistSession does.
func (r *Registry) persistTransfer(t *domain.Transfer) {
	if r.store == nil {
		return
	}
	snapshot := t.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.store.SaveTransfer(ctx, snapshot); err != nil {
			r.log.WithFields(logrus.Fields{"transferId": snapshot.ID, "error": err}).Warn("registry: failed to persist transfer")
		}
	}()
}

// Restore loads sessions and transfers from the durable store (if
// configured) back into memory ahead of the first watcher tick, and
// reserves the recipient address of every still-PENDING session so it
// isn't handed out to a second CreateSession (spec.md §9's restart
// recovery note). Call once, before Start-ing any ChainWatcher.
func (r *Registry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	sessions, err := r.store.LoadSessions(ctx)
	if err != nil {
		return fmt.Errorf("restore sessions: %w", err)
	}
	transfers, err := r.store.LoadTransfers(ctx)
	if err != nil {
		return fmt.Errorf("restore transfers: %w", err)
	}

	r.submit(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		for _, sess := range sessions {
			r.sessions[sess.ID] = sess
			if sess.Status == domain.SessionPending {
				r.sessionsByAddr[lowerAddr(sess.Network, sess.Address)] = sess.ID
				r.addrSrc.Reserve(sess.Network, sess.Address)
			}
		}
		for _, t := range transfers {
			r.transfers[t.Key()] = t
			r.transfersByID[t.ID] = t
		}
	})

	r.log.WithFields(logrus.Fields{
		"sessions":  len(sessions),
		"transfers": len(transfers),
	}).Info("registry: restored state from durable store")
	return nil
}

func lowerAddr(network, addr string) addrKey {
	return addrKey{network: network, address: normalizeAddr(addr)}
}

func normalizeAddr(addr string) string {
	out := make([]byte, len(addr))
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		if c >= 'A' && c <= 'Z' {
			c = c - 'A' + 'a'
		}
		out[i] = c
	}
	return string(out)
}

// CreateSession implements spec.md §4.3 CreateSession.
func (r *Registry) CreateSession(ctx context.Context, in domain.CreateSessionInput) (*domain.Session, error) {
	if err := r.validateCreateInput(in); err != nil {
		return nil, err
	}

	var result *domain.Session
	var opErr error

	r.submit(func() {
		addr, err := r.addrSrc.NewAddress(in.Network, "")
		if err != nil {
			if err == address.ErrUnavailable {
				opErr = fmt.Errorf("%w: no address available on %s", domain.ErrAddressUnavailable, in.Network)
			} else {
				opErr = fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
			}
			return
		}

		now := time.Now().UTC()
		sess := &domain.Session{
			ID:          uuid.NewString(),
			Amount:      in.Amount,
			Currency:    in.Currency,
			Network:     in.Network,
			Address:     addr,
			Status:      domain.SessionPending,
			CreatedAt:   now,
			ExpiresAt:   now.Add(time.Duration(in.ExpirationMinutes) * time.Minute),
			ClientRefID: in.ClientRefID,
			Metadata:    in.Metadata,
		}

		r.mu.Lock()
		r.sessions[sess.ID] = sess
		r.sessionsByAddr[lowerAddr(sess.Network, sess.Address)] = sess.ID
		r.mu.Unlock()

		r.log.WithFields(logrus.Fields{
			"sessionId": sess.ID,
			"network":   sess.Network,
			"address":   sess.Address,
		}).Info("registry: session created")

		metrics.SessionsCreated.WithLabelValues(sess.Network).Inc()
		r.persistSession(sess)

		r.bus.Publish(eventbus.Event{
			Type: eventbus.SessionCreated,
			Data: eventbus.SessionCreatedData{Session: sess.Clone()},
		})

		result = sess.Clone()
	})

	return result, opErr
}

// validateCreateInput enforces the input constraints of spec.md §4.3
// CreateSession. It looks up the target chain's token decimals (when
// the network is configured) so the amount check parses to the same
// precision matchGate will later compare against; an unconfigured
// network still gets a best-effort check and is rejected downstream
// when the writer goroutine asks the AddressSource for a slot.
func (r *Registry) validateCreateInput(in domain.CreateSessionInput) error {
	if in.Network == "" {
		return fmt.Errorf("%w: network is required", domain.ErrInvalidInput)
	}
	if in.Currency != "USDT" {
		return fmt.Errorf("%w: currency must be USDT", domain.ErrInvalidInput)
	}
	if in.ExpirationMinutes < 1 || in.ExpirationMinutes > 1440 {
		return fmt.Errorf("%w: expirationMinutes must be in [1,1440]", domain.ErrInvalidInput)
	}

	decimals := maxAmountDecimals
	if chain, ok := r.cfg.Chains[in.Network]; ok {
		decimals = chain.TokenDecimals
	}
	rawAmount, err := config.DecimalToSmallestUnit(in.Amount, decimals)
	if err != nil {
		return fmt.Errorf("%w: amount must be a positive decimal: %v", domain.ErrInvalidInput, err)
	}
	if rawAmount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", domain.ErrInvalidInput)
	}
	return nil
}

// GetSession returns a snapshot copy of a session, or domain.ErrNotFound.
func (r *Registry) GetSession(id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sess.Clone(), nil
}

// ListSessions returns a filtered, paginated snapshot (spec.md §4.3,
// §12 pagination metadata).
func (r *Registry) ListSessions(filter domain.SessionFilter, page domain.Page) ([]*domain.Session, domain.PageResult) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*domain.Session
	for _, sess := range r.sessions {
		if filter.Status != "" && sess.Status != filter.Status {
			continue
		}
		if filter.Network != "" && sess.Network != filter.Network {
			continue
		}
		if filter.ClientRefID != "" && sess.ClientRefID != filter.ClientRefID {
			continue
		}
		if filter.FromDate != nil && sess.CreatedAt.Before(*filter.FromDate) {
			continue
		}
		if filter.ToDate != nil && sess.CreatedAt.After(*filter.ToDate) {
			continue
		}
		matched = append(matched, sess)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	pageNum := page.Page
	if pageNum <= 0 {
		pageNum = 1
	}
	totalPages := (total + limit - 1) / limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (pageNum - 1) * limit
	end := start + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	out := make([]*domain.Session, 0, end-start)
	for _, s := range matched[start:end] {
		out = append(out, s.Clone())
	}

	return out, domain.PageResult{Page: pageNum, Limit: limit, Total: total, TotalPages: totalPages}
}

// RecreateSession implements spec.md §4.3 RecreateSession.
func (r *Registry) RecreateSession(ctx context.Context, id string) (*domain.Session, error) {
	var result *domain.Session
	var opErr error

	r.submit(func() {
		r.mu.RLock()
		original, ok := r.sessions[id]
		r.mu.RUnlock()
		if !ok {
			opErr = domain.ErrNotFound
			return
		}
		if original.Status != domain.SessionExpired {
			opErr = fmt.Errorf("%w: session %s is %s, not EXPIRED", domain.ErrInvalidState, id, original.Status)
			return
		}

		decimals := maxAmountDecimals
		if chain, ok := r.cfg.Chains[original.Network]; ok {
			decimals = chain.TokenDecimals
		}
		if rawAmount, err := config.DecimalToSmallestUnit(original.Amount, decimals); err != nil || rawAmount.Sign() <= 0 {
			opErr = fmt.Errorf("%w: session %s has an invalid amount %q, cannot recreate", domain.ErrInvalidState, id, original.Amount)
			return
		}

		addr, err := r.addrSrc.NewAddress(original.Network, "")
		if err != nil {
			if err == address.ErrUnavailable {
				opErr = fmt.Errorf("%w: no address available on %s", domain.ErrAddressUnavailable, original.Network)
			} else {
				opErr = fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
			}
			return
		}

		now := time.Now().UTC()
		originalWindow := original.ExpiresAt.Sub(original.CreatedAt)
		if originalWindow < time.Minute {
			originalWindow = 30 * time.Minute
		}

		fresh := &domain.Session{
			ID:                uuid.NewString(),
			Amount:            original.Amount,
			Currency:          original.Currency,
			Network:           original.Network,
			Address:           addr,
			Status:            domain.SessionPending,
			CreatedAt:         now,
			ExpiresAt:         now.Add(originalWindow),
			ClientRefID:       original.ClientRefID,
			Metadata:          original.Metadata,
			OriginalSessionID: original.ID,
		}

		r.mu.Lock()
		r.sessions[fresh.ID] = fresh
		r.sessionsByAddr[lowerAddr(fresh.Network, fresh.Address)] = fresh.ID
		r.mu.Unlock()

		r.persistSession(fresh)

		r.bus.Publish(eventbus.Event{
			Type: eventbus.SessionRecreated,
			Data: eventbus.SessionRecreatedData{Session: fresh.Clone(), OriginalSessionID: original.ID},
		})

		result = fresh.Clone()
	})

	return result, opErr
}

// GetTransfer returns a snapshot copy of a transfer by ID.
func (r *Registry) GetTransfer(id string) (*domain.Transfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.transfersByID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t.Clone(), nil
}

// ListTransfers returns a filtered snapshot (spec.md §4.3).
func (r *Registry) ListTransfers(filter domain.TransferFilter) []*domain.Transfer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Transfer
	for _, t := range r.transfers {
		if filter.Network != "" && t.Network != filter.Network {
			continue
		}
		if filter.SessionID != "" && t.SessionID != filter.SessionID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeenAt.After(out[j].FirstSeenAt) })
	return out
}

// ExpireDue implements spec.md §4.3 ExpireDue: idempotent, safe to call
// repeatedly (spec.md §8 property "calling ExpireDue twice produces the
// same state").
func (r *Registry) ExpireDue(now time.Time) int {
	var expired int

	r.submit(func() {
		r.mu.Lock()
		var due []*domain.Session
		for _, sess := range r.sessions {
			if sess.Status == domain.SessionPending && !now.Before(sess.ExpiresAt) {
				due = append(due, sess)
			}
		}
		for _, sess := range due {
			sess.Status = domain.SessionExpired
			// sessionsByAddr keeps pointing at this session: a transfer
			// that confirms after expiry (spec.md S4) must still link
			// to it and reach CONFIRMED, even though the session itself
			// stays EXPIRED. The address is still freed for reuse below;
			// whichever session next claims it overwrites this entry.
		}
		r.mu.Unlock()

		for _, sess := range due {
			r.addrSrc.Release(sess.Network, sess.Address)
			metrics.SessionsExpired.WithLabelValues(sess.Network).Inc()
			r.persistSession(sess)
			r.bus.Publish(eventbus.Event{
				Type: eventbus.SessionExpired,
				Data: eventbus.SessionExpiredData{SessionID: sess.ID},
			})
			expired++
		}
	})

	return expired
}
