// File: internal/notification/notification.go
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arbiterdevs/btc-arbitration/internal/config"
	"github.com/arbiterdevs/btc-arbitration/internal/metrics"
	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// Notification is one outbound message about ledger or claim activity
type Notification struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	Subject   string                 `json:"subject"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// Sink delivers notifications to one destination
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n *Notification) error
}

// Stats provides notification statistics
type Stats struct {
	TotalPublished uint64     `json:"total_published"`
	TotalDelivered uint64     `json:"total_delivered"`
	TotalFailed    uint64     `json:"total_failed"`
	TotalDropped   uint64     `json:"total_dropped"`
	QueueLength    int        `json:"queue_length"`
	LastError      *string    `json:"last_error,omitempty"`
	LastErrorTime  *time.Time `json:"last_error_time,omitempty"`
}

// Manager fans notifications out to its sinks through a bounded queue.
// Publishing never blocks; when the queue is full the notification is dropped
// and counted.
type Manager struct {
	config *config.NotifierConfig
	sinks  []Sink
	queue  chan *Notification
	logger *logrus.Entry

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	stats          Stats
	metricsManager *metrics.Manager
}

// NewManager creates a notification manager
func NewManager(cfg *config.NotifierConfig, sinks ...Sink) *Manager {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	return &Manager{
		config:   cfg,
		sinks:    sinks,
		queue:    make(chan *Notification, queueSize),
		logger:   utils.ComponentLogger("notification"),
		stopChan: make(chan struct{}),
	}
}

// SetMetricsManager wires metrics collection into delivery
func (m *Manager) SetMetricsManager(mm *metrics.Manager) {
	m.metricsManager = mm
}

// AddSink registers an additional sink. Must be called before Start.
func (m *Manager) AddSink(sink Sink) {
	m.sinks = append(m.sinks, sink)
}

// Start starts the dispatch loop
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Notification manager already running", "")
	}

	m.running = true
	m.wg.Add(1)
	go m.dispatchLoop(ctx)

	m.logger.WithField("sinks", len(m.sinks)).Info("Notification manager started")
	return nil
}

// Stop drains nothing: queued notifications past the stop signal are dropped
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()

	m.logger.Info("Notification manager stopped")
	return nil
}

// IsRunning returns whether the dispatch loop is active
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Publish enqueues a notification without blocking
func (m *Manager) Publish(n *Notification) {
	if n.ID == "" {
		if id, err := utils.GenerateID(); err == nil {
			n.ID = id
		}
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	select {
	case m.queue <- n:
		m.mu.Lock()
		m.stats.TotalPublished++
		m.mu.Unlock()
	default:
		m.mu.Lock()
		m.stats.TotalDropped++
		m.mu.Unlock()
		m.logger.WithFields(logrus.Fields{
			"kind":    n.Kind,
			"subject": n.Subject,
		}).Warn("Notification queue full, dropping")
	}
}

// PublishEvent publishes a projected ledger event
func (m *Manager) PublishEvent(event models.ChainEvent) {
	meta := event.Meta()
	m.Publish(&Notification{
		Kind:    "ledger_event",
		Subject: event.Name(),
		Data: map[string]interface{}{
			"event":        event,
			"block_number": meta.BlockNumber,
			"log_index":    meta.LogIndex,
			"tx_hash":      meta.TxHash,
		},
	})
}

// PublishClaimTransition publishes a claim state change
func (m *Manager) PublishClaimTransition(txID string, claimType models.ClaimType, state string) {
	m.Publish(&Notification{
		Kind:    "claim_transition",
		Subject: string(claimType),
		Data: map[string]interface{}{
			"transaction_id": txID,
			"claim_type":     claimType,
			"state":          state,
		},
	})
}

func (m *Manager) dispatchLoop(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case n := <-m.queue:
			m.deliver(ctx, n)
		}
	}
}

func (m *Manager) deliver(ctx context.Context, n *Notification) {
	timeout := m.config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	for _, sink := range m.sinks {
		deliverCtx, cancel := context.WithTimeout(ctx, timeout)
		err := sink.Deliver(deliverCtx, n)
		cancel()

		m.mu.Lock()
		if err != nil {
			m.stats.TotalFailed++
			msg := err.Error()
			now := time.Now()
			m.stats.LastError = &msg
			m.stats.LastErrorTime = &now
		} else {
			m.stats.TotalDelivered++
		}
		m.mu.Unlock()

		if m.metricsManager != nil {
			if err != nil {
				m.metricsManager.GetPrometheusMetrics().RecordNotificationFailure(sink.Name(), n.Kind, "delivery")
			} else {
				m.metricsManager.GetPrometheusMetrics().RecordNotificationSent(sink.Name(), n.Kind)
			}
		}

		if err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"sink":    sink.Name(),
				"kind":    n.Kind,
				"subject": n.Subject,
			}).Error("Notification delivery failed")
		}
	}
}

// GetStats returns notification statistics
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.stats
	stats.QueueLength = len(m.queue)
	return stats
}
