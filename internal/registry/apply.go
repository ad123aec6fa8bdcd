package registry

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/config"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/domain"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/eventbus"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/metrics"
)

// toleranceNumerator/Denominator encode the -5% tolerance band of
// spec.md §4.3: accept when rawValue >= target * 95/100.
const toleranceNumerator = 95
const toleranceDenominator = 100

// Apply implements spec.md §4.3 Apply(normalized): it never returns an
// error to the caller (a ChainWatcher) — malformed input is a caller
// bug, not a watcher-tick failure, so this is enforced by the type of
// ObservedTransfer rather than a runtime check. It runs synchronously
// on the single-writer goroutine so the event order spec.md §5
// requires (detected/updated before confirmed before completed) is
// guaranteed by construction.
func (r *Registry) Apply(chain *config.ChainConfig, observed domain.ObservedTransfer) {
	r.submit(func() {
		r.apply(chain, observed)
	})
}

func (r *Registry) apply(chain *config.ChainConfig, observed domain.ObservedTransfer) {
	key := domain.TransferKey{Network: observed.Network, TxHash: observed.TxHash, LogIndex: observed.LogIndex}

	r.mu.Lock()
	existing, seen := r.transfers[key]
	r.mu.Unlock()

	if seen {
		r.applyUpdate(chain, existing, observed)
		return
	}
	r.applyNew(chain, observed)
}

func (r *Registry) applyUpdate(chain *config.ChainConfig, t *domain.Transfer, observed domain.ObservedTransfer) {
	if observed.Confirmations <= t.Confirmations {
		return
	}

	r.mu.Lock()
	t.Confirmations = observed.Confirmations
	wasPending := t.Status == domain.TransferPending
	r.mu.Unlock()

	r.persistTransfer(t)

	r.bus.Publish(eventbus.Event{
		Type: eventbus.TransferUpdated,
		Data: eventbus.TransferUpdatedData{TransferID: t.ID, Confirmations: t.Confirmations},
	})

	if wasPending && t.Confirmations >= uint64(chain.RequiredConfirmations) {
		if t.SessionID != "" {
			r.mu.RLock()
			sess := r.sessions[t.SessionID]
			r.mu.RUnlock()
			if sess != nil {
				if matched, _ := r.matchGate(chain, sess, t); !matched {
					return
				}
			}
		}
		r.confirmTransfer(chain, t)
	}
}

func (r *Registry) applyNew(chain *config.ChainConfig, observed domain.ObservedTransfer) {
	now := time.Now().UTC()
	decimals := chain.TokenDecimals

	t := &domain.Transfer{
		ID:            uuid.NewString(),
		TxHash:        observed.TxHash,
		LogIndex:      observed.LogIndex,
		Network:       observed.Network,
		TokenContract: observed.TokenContract,
		From:          observed.From,
		To:            observed.To,
		RawValue:      new(big.Int).Set(observed.RawValue),
		Amount:        config.SmallestUnitToDecimal(observed.RawValue, decimals),
		BlockNumber:   observed.BlockNumber,
		FirstSeenAt:   now,
		Confirmations: observed.Confirmations,
		Status:        domain.TransferPending,
	}

	r.mu.Lock()
	r.transfers[t.Key()] = t
	r.transfersByID[t.ID] = t
	sessID, hasSession := r.sessionsByAddr[lowerAddr(t.Network, t.To)]
	var sess *domain.Session
	if hasSession {
		sess = r.sessions[sessID]
	}
	if sess != nil {
		t.SessionID = sess.ID
	}
	r.mu.Unlock()

	r.persistTransfer(t)

	if sess == nil {
		metrics.TransfersDetected.WithLabelValues(t.Network, "false").Inc()
		r.bus.Publish(eventbus.Event{
			Type: eventbus.TransferDetected,
			Data: eventbus.TransferDetectedData{Transfer: t.Clone(), Matched: false},
		})
		return
	}

	matched, reason := r.matchGate(chain, sess, t)
	metrics.TransfersDetected.WithLabelValues(t.Network, boolLabel(matched)).Inc()

	r.bus.Publish(eventbus.Event{
		Type: eventbus.TransferDetected,
		Data: eventbus.TransferDetectedData{Transfer: t.Clone(), SessionID: sess.ID, Matched: matched, Reason: reason},
	})

	if matched && t.Confirmations >= uint64(chain.RequiredConfirmations) {
		r.confirmTransfer(chain, t)
	}
}

// matchGate implements the sender-allowlist and amount-tolerance
// checks of spec.md §4.3. It does not consider confirmations; that
// gate is applied by the caller.
func (r *Registry) matchGate(chain *config.ChainConfig, sess *domain.Session, t *domain.Transfer) (bool, string) {
	if len(chain.SenderAllowlist) > 0 && !inAllowlist(chain.SenderAllowlist, t.From) {
		return false, "sender_not_allowed"
	}

	targetDecimal := sess.Amount
	if chain.TargetAmount != "" {
		targetDecimal = chain.TargetAmount
	}
	target, err := config.DecimalToSmallestUnit(targetDecimal, chain.TokenDecimals)
	if err != nil {
		r.log.WithFields(logrus.Fields{"sessionId": sess.ID, "error": err}).Warn("registry: invalid target amount")
		return false, "invalid_target_amount"
	}

	threshold := new(big.Int).Mul(target, big.NewInt(toleranceNumerator))
	threshold.Div(threshold, big.NewInt(toleranceDenominator))

	if t.RawValue.Cmp(threshold) < 0 {
		return false, "amount_below_tolerance"
	}
	return true, ""
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func inAllowlist(allowlist []string, addr string) bool {
	target := normalizeAddr(addr)
	for _, a := range allowlist {
		if normalizeAddr(a) == target {
			return true
		}
	}
	return false
}

// confirmTransfer transitions t to CONFIRMED and, unless its session
// has already left PENDING (e.g. expired in the race of spec.md S4),
// completes the session. Emits transfer.confirmed then session.completed,
// in that order, as spec.md §4.3 requires.
func (r *Registry) confirmTransfer(chain *config.ChainConfig, t *domain.Transfer) {
	now := time.Now().UTC()

	r.mu.Lock()
	if t.Status == domain.TransferConfirmed {
		r.mu.Unlock()
		return
	}
	t.Status = domain.TransferConfirmed
	t.ConfirmedAt = &now
	r.mu.Unlock()

	r.persistTransfer(t)
	metrics.TransferConfirmationLatency.WithLabelValues(t.Network).Observe(now.Sub(t.FirstSeenAt).Seconds())

	r.bus.Publish(eventbus.Event{
		Type: eventbus.TransferConfirmed,
		Data: eventbus.TransferConfirmedData{TransferID: t.ID, SessionID: t.SessionID},
	})

	if t.SessionID == "" {
		return
	}

	r.mu.Lock()
	sess, ok := r.sessions[t.SessionID]
	if !ok || sess.Status != domain.SessionPending {
		r.mu.Unlock()
		return
	}
	sess.Status = domain.SessionCompleted
	sess.CompletedAt = &now
	sess.MatchedTransferID = t.ID
	delete(r.sessionsByAddr, lowerAddr(sess.Network, sess.Address))
	r.mu.Unlock()

	r.addrSrc.Release(sess.Network, sess.Address)
	metrics.SessionsCompleted.WithLabelValues(sess.Network).Inc()
	r.persistSession(sess)

	r.bus.Publish(eventbus.Event{
		Type: eventbus.SessionCompleted,
		Data: eventbus.SessionCompletedData{SessionID: sess.ID, TransferID: t.ID},
	})
}
