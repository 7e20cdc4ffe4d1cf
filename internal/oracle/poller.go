// File: internal/oracle/poller.go
package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// DefaultPollInterval is the fixed interval between status reads
const DefaultPollInterval = 5 * time.Second

// Poller drives a fixed-interval polling loop against one oracle client.
// The loop stops at the first terminal verdict or when the caller cancels;
// cancellation never touches the oracle-side request state.
type Poller struct {
	client   Client
	interval time.Duration
	logger   *logrus.Entry

	mu         sync.RWMutex
	pollCount  uint64
	errorCount uint64
	lastPoll   time.Time
}

// NewPoller creates a poller. A non-positive interval falls back to the
// default.
func NewPoller(client Client, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		client:   client,
		interval: interval,
		logger:   utils.ComponentLogger("oracle.poller"),
	}
}

// WaitForVerdict polls until the oracle reaches a terminal verdict or ctx is
// cancelled. onUpdate, when non-nil, observes every verdict including the
// terminal one.
func (p *Poller) WaitForVerdict(ctx context.Context, requestID common.Hash, onUpdate func(*Verdict)) (*Verdict, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		verdict, err := p.poll(ctx, requestID)
		if err != nil {
			return nil, err
		}

		if onUpdate != nil {
			onUpdate(verdict)
		}

		if verdict.Terminal() {
			p.logger.WithFields(logrus.Fields{
				"request_id":  requestID.Hex(),
				"oracle_kind": p.client.Kind(),
				"status":      verdict.Status,
			}).Info("Oracle reached terminal verdict")
			return verdict, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll performs a single status read and records stats
func (p *Poller) poll(ctx context.Context, requestID common.Hash) (*Verdict, error) {
	p.mu.Lock()
	p.pollCount++
	p.lastPoll = time.Now()
	p.mu.Unlock()

	verdict, err := p.client.Poll(ctx, requestID)
	if err != nil {
		p.mu.Lock()
		p.errorCount++
		p.mu.Unlock()
		return nil, err
	}
	return verdict, nil
}

// GetStats returns poller statistics
func (p *Poller) GetStats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"poll_count":     p.pollCount,
		"error_count":    p.errorCount,
		"last_poll_time": p.lastPoll,
	}
}
