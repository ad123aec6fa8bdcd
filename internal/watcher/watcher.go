// Package watcher implements the ChainWatcher of spec.md §4.2: one
// per configured, active chain, polling for new ERC-20 Transfer logs
// at chain.pollIntervalMs and handing normalized sightings to the
// registry.
//
// The tick loop is grounded on the teacher's
// internal/services/unified_polling_service.go ticker-driven catch-up
// loop, generalized from a single-chain scanner to a per-chain
// instance with its own cursor, and from the teacher's raw JSON-RPC
// block scan to go-ethereum's FilterLogs with a halving range-retry on
// "range too wide" provider errors (spec.md §4.2 step 5).
package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/chain"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/config"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/domain"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/eventbus"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/metrics"
)

// Status is the health of a single ChainWatcher, surfaced by
// NetworkStatus (spec.md §6).
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusHalted   Status = "HALTED"
	StatusInactive Status = "INACTIVE"
)

// maxRangeRetries bounds the halving retry of spec.md §4.2 step 5.
const maxRangeRetries = 3

// Applier is the subset of *registry.Registry a ChainWatcher needs.
// Narrowed to an interface so watcher tests don't need a live
// registry's single-writer goroutine.
type Applier interface {
	Apply(chain *config.ChainConfig, observed domain.ObservedTransfer)
}

// ChainClient is the subset of *chain.Client a ChainWatcher needs,
// narrowed to an interface for the same reason Applier is: so tests
// can drive Tick against a fake client instead of a live RPC endpoint.
type ChainClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, filter chain.LogFilter) ([]types.Log, error)
}

// ChainWatcher tails one chain's head and feeds Transfer sightings to
// the registry (spec.md §4.2).
type ChainWatcher struct {
	chainCfg *config.ChainConfig
	client   ChainClient
	registry Applier
	bus      *eventbus.Bus
	log      *logrus.Entry

	tokenAddr common.Address
	recipient common.Address

	cursor  uint64       // last block scanned through; the next tick starts at cursor+1
	status  atomic.Value // Status
	lastErr atomic.Value // string

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New constructs a ChainWatcher for chainCfg. Initialize must be
// called once before Start.
func New(chainCfg *config.ChainConfig, client ChainClient, registry Applier, bus *eventbus.Bus, log *logrus.Entry) *ChainWatcher {
	w := &ChainWatcher{
		chainCfg:  chainCfg,
		client:    client,
		registry:  registry,
		bus:       bus,
		log:       log.WithField("network", chainCfg.ID),
		tokenAddr: common.HexToAddress(chainCfg.TokenContract),
		recipient: common.HexToAddress(chainCfg.Recipient),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	w.status.Store(StatusInactive)
	w.lastErr.Store("")
	return w
}

// Initialize seeds the watcher's cursor at the current chain head, so
// the first tick only scans forward from now (spec.md §4.2 step 1's
// "no prior cursor" case).
func (w *ChainWatcher) Initialize(ctx context.Context) error {
	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		w.status.Store(StatusHalted)
		w.lastErr.Store(err.Error())
		return err
	}
	w.cursor = head
	w.status.Store(StatusActive)
	return nil
}

// Start runs the poll loop until Stop is called. Start is not
// reentrant; call it once per watcher.
func (w *ChainWatcher) Start(ctx context.Context) {
	interval := time.Duration(w.chainCfg.PollIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Stop requests the poll loop to finish its current tick and exit. It
// is idempotent and blocks until the loop has actually stopped.
func (w *ChainWatcher) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
	})
	<-w.doneCh
}

// Status reports the watcher's current health for NetworkStatus.
func (w *ChainWatcher) Status() (status Status, lastBlock uint64, lastErr string) {
	s, _ := w.status.Load().(Status)
	e, _ := w.lastErr.Load().(string)
	return s, w.cursor, e
}

// Tick implements spec.md §4.2's eight-step algorithm for one polling
// cycle. It is exported so callers such as tests can drive it
// directly.
func (w *ChainWatcher) Tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.WatcherTickDuration.WithLabelValues(w.chainCfg.ID).Observe(time.Since(start).Seconds())
	}()

	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		w.handleTickError(err)
		return
	}
	metrics.WatcherHeadBlock.WithLabelValues(w.chainCfg.ID).Set(float64(head))

	if head < w.cursor {
		// Head went backward: a shallow reorg at the tip. Wait for the
		// next tick rather than scanning a negative range.
		return
	}
	if head == w.cursor {
		w.status.Store(StatusActive)
		return
	}

	fromBlock := w.cursor + 1
	toBlock := head
	if toBlock-fromBlock+1 > w.chainCfg.MaxBlockRange {
		// Bounded catch-up: sacrifice the older end of the gap rather
		// than crawling through it one window at a time, so a long
		// restart gap costs one tick, not dozens.
		fromBlock = head - w.chainCfg.MaxBlockRange + 1
	}

	logs, scanned, err := w.scanWithRangeRetry(ctx, fromBlock, toBlock)
	if err != nil {
		w.handleTickError(err)
		return
	}

	for _, raw := range logs {
		parsed, perr := chain.ParseTransferLog(raw)
		if perr != nil {
			w.log.WithError(perr).Warn("watcher: skipping malformed transfer log")
			continue
		}
		if parsed.To != w.recipient {
			continue
		}

		confirmations := head - parsed.BlockNumber + 1
		w.registry.Apply(w.chainCfg, domain.ObservedTransfer{
			Network:       w.chainCfg.ID,
			TokenContract: w.chainCfg.TokenContract,
			TxHash:        parsed.TxHash.Hex(),
			LogIndex:      parsed.LogIndex,
			From:          parsed.From.Hex(),
			To:            parsed.To.Hex(),
			RawValue:      parsed.RawValue,
			BlockNumber:   parsed.BlockNumber,
			Confirmations: confirmations,
		})
	}

	// Never advance the cursor past a block that hasn't yet cleared
	// RequiredConfirmations against the current head: a block that
	// only just entered [fromBlock,toBlock] can still be short of
	// confirmations, and once the cursor passes it, it is never
	// scanned again. Capping the advance at confirmedCeiling leaves
	// the trailing window in [confirmedCeiling+1, head] to be rescanned
	// on the next tick, so a transfer's Confirmations keeps climbing
	// (and apply.go's dedup-by-natural-key folds the rescan into an
	// update, spec.md §5) until it clears the threshold.
	requiredConfs := uint64(w.chainCfg.RequiredConfirmations)
	var confirmedCeiling uint64
	if head+1 >= requiredConfs {
		confirmedCeiling = head + 1 - requiredConfs
	}
	newCursor := scanned
	if newCursor > confirmedCeiling {
		newCursor = confirmedCeiling
	}
	if newCursor > w.cursor {
		w.cursor = newCursor
	}
	w.status.Store(StatusActive)
	w.lastErr.Store("")
	metrics.WatcherCursorBlock.WithLabelValues(w.chainCfg.ID).Set(float64(w.cursor))
	metrics.WatcherStatus.WithLabelValues(w.chainCfg.ID).Set(1)
}

// scanWithRangeRetry fetches logs for [fromBlock,toBlock], halving the
// range up to maxRangeRetries times if the provider rejects it as too
// wide (spec.md §4.2 step 5). Returns the logs found and the highest
// block number actually covered.
func (w *ChainWatcher) scanWithRangeRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, uint64, error) {
	attempt := toBlock
	for i := 0; i <= maxRangeRetries; i++ {
		filter := chain.BuildTransferFilter(w.tokenAddr, w.recipient, fromBlock, attempt)
		logs, err := w.client.GetLogs(ctx, filter)
		if err == nil {
			return logs, attempt, nil
		}
		var rangeErr *chain.RangeTooWideError
		if isRangeTooWide(err, &rangeErr) && i < maxRangeRetries && attempt > fromBlock {
			attempt = fromBlock + (attempt-fromBlock)/2
			continue
		}
		return nil, fromBlock - 1, err
	}
	return nil, fromBlock - 1, nil
}

func isRangeTooWide(err error, target **chain.RangeTooWideError) bool {
	if rt, ok := err.(*chain.RangeTooWideError); ok {
		*target = rt
		return true
	}
	return false
}

func (w *ChainWatcher) handleTickError(err error) {
	w.lastErr.Store(err.Error())
	if _, fatal := err.(*chain.FatalError); fatal {
		w.status.Store(StatusHalted)
		metrics.WatcherStatus.WithLabelValues(w.chainCfg.ID).Set(0)
		metrics.WatcherTickErrors.WithLabelValues(w.chainCfg.ID, "fatal").Inc()
		w.bus.Publish(eventbus.Event{
			Type: eventbus.ChainHalted,
			Data: eventbus.ChainHaltedData{Network: w.chainCfg.ID, Reason: err.Error()},
		})
		w.log.WithError(err).Error("watcher: halted")
		return
	}
	metrics.WatcherTickErrors.WithLabelValues(w.chainCfg.ID, "transient").Inc()
	w.log.WithError(err).Warn("watcher: transient tick error, will retry next tick")
}
