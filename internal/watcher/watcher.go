// File: internal/watcher/watcher.go
package watcher

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/arbiterdevs/btc-arbitration/internal/metrics"
	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/internal/projector"
	"github.com/arbiterdevs/btc-arbitration/internal/storage"
	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// LogSource is the subset of ledger node access the watcher needs
type LogSource interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Config holds watcher configuration
type Config struct {
	PollInterval  time.Duration `json:"poll_interval"`
	MaxBlockRange uint64        `json:"max_block_range"`
	StartBlock    uint64        `json:"start_block"`
	Contracts     []common.Address
}

// Stats provides watcher statistics
type Stats struct {
	StartTime            time.Time  `json:"start_time"`
	IsRunning            bool       `json:"is_running"`
	LatestProcessedBlock uint64     `json:"latest_processed_block"`
	TotalBlocksProcessed uint64     `json:"total_blocks_processed"`
	TotalEventsProjected uint64     `json:"total_events_projected"`
	ErrorCount           uint64     `json:"error_count"`
	LastError            *string    `json:"last_error,omitempty"`
	LastErrorTime        *time.Time `json:"last_error_time,omitempty"`
}

// LedgerWatcher polls the arbitration ledger for events, journals them and
// folds them into the projection in strict (block, index) order. A malformed
// event halts the watcher: skipping history would corrupt the projection.
type LedgerWatcher struct {
	source  LogSource
	storage storage.Storage
	decoder *projector.Decoder
	proj    *projector.Projector
	config  *Config
	logger  *logrus.Entry

	// onEvent observes every projected event, after it is applied
	onEvent func(models.ChainEvent)

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	stats          Stats
	metricsManager *metrics.Manager
}

// New creates a ledger watcher
func New(source LogSource, store storage.Storage, config *Config) (*LedgerWatcher, error) {
	decoder, err := projector.NewDecoder()
	if err != nil {
		return nil, err
	}

	return &LedgerWatcher{
		source:   source,
		storage:  store,
		decoder:  decoder,
		proj:     projector.New(store),
		config:   config,
		logger:   utils.ComponentLogger("watcher"),
		stopChan: make(chan struct{}),
	}, nil
}

// SetMetricsManager wires metrics collection into the watch loop
func (w *LedgerWatcher) SetMetricsManager(m *metrics.Manager) {
	w.metricsManager = m
}

// SetEventHook installs an observer for projected events. Must be called
// before Start.
func (w *LedgerWatcher) SetEventHook(hook func(models.ChainEvent)) {
	w.onEvent = hook
}

// Start starts the watch loop
func (w *LedgerWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Watcher already running", "")
	}

	w.running = true
	w.stats.StartTime = time.Now()
	w.stats.IsRunning = true

	w.wg.Add(1)
	go w.watchLoop(ctx)

	w.logger.WithFields(logrus.Fields{
		"poll_interval":   w.config.PollInterval,
		"max_block_range": w.config.MaxBlockRange,
		"contracts":       len(w.config.Contracts),
	}).Info("Ledger watcher started")

	return nil
}

// Stop stops the watch loop
func (w *LedgerWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.stats.IsRunning = false
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()

	w.logger.Info("Ledger watcher stopped")
	return nil
}

// IsRunning returns whether the watcher is running
func (w *LedgerWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// watchLoop polls for new blocks at the configured interval
func (w *LedgerWatcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.CatchUp(ctx); err != nil {
			w.recordError(err)
			if projector.IsMalformed(err) {
				w.logger.WithError(err).Error("Malformed event, halting watcher")
				w.mu.Lock()
				w.running = false
				w.stats.IsRunning = false
				w.mu.Unlock()
				return
			}
			w.logger.WithError(err).Warn("Catch-up pass failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
		}
	}
}

// CatchUp scans from the checkpoint to the chain head in bounded ranges
func (w *LedgerWatcher) CatchUp(ctx context.Context) error {
	head, err := w.source.BlockNumber(ctx)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to get chain head", err.Error())
	}

	checkpoint, err := w.storage.GetCheckpoint()
	if err != nil {
		return err
	}

	from := checkpoint + 1
	if checkpoint == 0 && w.config.StartBlock > 0 {
		from = w.config.StartBlock
	}

	if w.metricsManager != nil && head >= checkpoint {
		w.metricsManager.GetPrometheusMetrics().UpdateBlocksBehind(head - checkpoint)
	}

	for from <= head {
		to := from + w.config.MaxBlockRange - 1
		if to > head {
			to = head
		}

		if err := w.processRange(ctx, from, to); err != nil {
			return err
		}
		from = to + 1
	}

	return nil
}

// processRange filters, orders, journals and projects one block range
func (w *LedgerWatcher) processRange(ctx context.Context, fromBlock, toBlock uint64) error {
	logs, err := w.source.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: w.config.Contracts,
		Topics:    [][]common.Hash{w.decoder.Topics()},
	})
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to filter logs", err.Error())
	}

	// The node does not guarantee order across blocks.
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	// Events carry the timestamp of their block; one header fetch per block.
	blockTimes := make(map[uint64]time.Time)

	for _, log := range logs {
		if log.Removed {
			continue
		}

		blockTime, err := w.blockTime(ctx, blockTimes, log.BlockNumber)
		if err != nil {
			return err
		}

		event, err := w.decoder.Decode(log, blockTime)
		if err != nil {
			return err
		}

		rec, err := projector.EncodeRecord(event)
		if err != nil {
			return err
		}
		if err := w.storage.SaveEventRecord(ctx, rec); err != nil {
			return err
		}

		start := time.Now()
		err = w.proj.Apply(event)
		if w.metricsManager != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			w.metricsManager.GetPrometheusMetrics().RecordEventProjected(event.Name(), status, time.Since(start))
		}
		if err != nil {
			return err
		}

		if w.onEvent != nil {
			w.onEvent(event)
		}

		w.mu.Lock()
		w.stats.TotalEventsProjected++
		w.mu.Unlock()
	}

	if err := w.storage.SetCheckpoint(toBlock); err != nil {
		return err
	}

	w.mu.Lock()
	w.stats.LatestProcessedBlock = toBlock
	w.stats.TotalBlocksProcessed += toBlock - fromBlock + 1
	w.mu.Unlock()

	if w.metricsManager != nil {
		pm := w.metricsManager.GetPrometheusMetrics()
		pm.UpdateLatestProcessedBlock(toBlock)
		pm.RecordBlocksProcessed(toBlock - fromBlock + 1)
	}

	if len(logs) > 0 {
		w.logger.WithFields(logrus.Fields{
			"from_block": fromBlock,
			"to_block":   toBlock,
			"events":     len(logs),
		}).Info("Block range projected")
	}

	return nil
}

// blockTime resolves the timestamp of a block, caching per processed range
func (w *LedgerWatcher) blockTime(ctx context.Context, cache map[uint64]time.Time, number uint64) (time.Time, error) {
	if ts, ok := cache[number]; ok {
		return ts, nil
	}

	header, err := w.source.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, utils.NewAppError(utils.ErrCodeConnection, "Failed to get block header", err.Error())
	}

	ts := time.Unix(int64(header.Time), 0).UTC()
	cache[number] = ts
	return ts, nil
}

// Rebuild clears the projection and replays the full journal. The rebuilt
// state equals the incrementally projected state for the same history.
func (w *LedgerWatcher) Rebuild(ctx context.Context) error {
	w.logger.Info("Rebuilding projection from event journal")

	if err := w.storage.TruncateProjection(ctx); err != nil {
		return err
	}

	records, err := w.storage.GetEventRecords(ctx, 0, 0)
	if err != nil {
		return err
	}

	events := make([]models.ChainEvent, 0, len(records))
	for _, rec := range records {
		event, err := projector.DecodeRecord(rec)
		if err != nil {
			return err
		}
		events = append(events, event)
	}

	if err := w.proj.Replay(events); err != nil {
		return err
	}

	w.logger.WithField("events", len(events)).Info("Projection rebuilt")
	return nil
}

func (w *LedgerWatcher) recordError(err error) {
	now := time.Now()
	msg := err.Error()

	w.mu.Lock()
	w.stats.ErrorCount++
	w.stats.LastError = &msg
	w.stats.LastErrorTime = &now
	w.mu.Unlock()
}

// GetStats returns watcher statistics
func (w *LedgerWatcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}
