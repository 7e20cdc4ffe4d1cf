package oracle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
)

// scriptedClient replays a fixed verdict sequence; once the sequence is
// exhausted it keeps returning the last verdict, like a real oracle whose
// terminal state never changes.
type scriptedClient struct {
	kind models.OracleKind

	mu    sync.Mutex
	seq   []*Verdict
	idx   int
	polls int
}

func (c *scriptedClient) Kind() models.OracleKind { return c.kind }

func (c *scriptedClient) Submit(ctx context.Context, evidence Evidence) (common.Hash, error) {
	return testRequestID, nil
}

func (c *scriptedClient) Poll(ctx context.Context, requestID common.Hash) (*Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	verdict := c.seq[c.idx]
	if c.idx < len(c.seq)-1 {
		c.idx++
	}
	return verdict, nil
}

func verifying() *Verdict { return &Verdict{Status: models.VerificationStatusVerifying} }

func verified() *Verdict {
	return &Verdict{Status: models.VerificationStatusVerified, Evidence: &VerifiedEvidence{MsgHash: testMsgHash}}
}

func failed() *Verdict { return &Verdict{Status: models.VerificationStatusFailed} }

func TestPollerStopsAtTerminal(t *testing.T) {
	client := &scriptedClient{
		kind: models.OracleKindZkProof,
		seq:  []*Verdict{verifying(), verifying(), verified()},
	}
	poller := NewPoller(client, time.Millisecond)

	var observed []models.VerificationStatus
	verdict, err := poller.WaitForVerdict(context.Background(), testRequestID, func(v *Verdict) {
		observed = append(observed, v.Status)
	})
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusVerified, verdict.Status)
	assert.Equal(t, []models.VerificationStatus{
		models.VerificationStatusVerifying,
		models.VerificationStatusVerifying,
		models.VerificationStatusVerified,
	}, observed)
	assert.Equal(t, 3, client.polls, "polling must stop at the first terminal verdict")
}

func TestPollerTerminalIsMonotone(t *testing.T) {
	client := &scriptedClient{
		kind: models.OracleKindSignatureValidation,
		seq:  []*Verdict{failed()},
	}
	poller := NewPoller(client, time.Millisecond)

	// Every subsequent wait observes the same terminal value, immediately.
	for i := 0; i < 3; i++ {
		verdict, err := poller.WaitForVerdict(context.Background(), testRequestID, nil)
		require.NoError(t, err)
		assert.Equal(t, models.VerificationStatusFailed, verdict.Status)
	}
	assert.Equal(t, 3, client.polls)
}

func TestPollerCancellation(t *testing.T) {
	client := &scriptedClient{
		kind: models.OracleKindZkProof,
		seq:  []*Verdict{verifying()},
	}
	poller := NewPoller(client, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := poller.WaitForVerdict(ctx, testRequestID, nil)
		done <- err
	}()

	time.Sleep(12 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancellation")
	}

	stats := poller.GetStats()
	assert.Greater(t, stats["poll_count"].(uint64), uint64(0))
}

func TestPollerDefaultInterval(t *testing.T) {
	poller := NewPoller(&scriptedClient{seq: []*Verdict{verified()}}, 0)
	assert.Equal(t, DefaultPollInterval, poller.interval)
}
