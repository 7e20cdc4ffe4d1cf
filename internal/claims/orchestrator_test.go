package claims

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/internal/oracle"
	"github.com/arbiterdevs/btc-arbitration/internal/requeststore"
)

var (
	testTxID      = common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testRequestID = common.HexToHash("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	testMsgHash   = common.HexToHash("0xcccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc")
	testClaimTx   = common.HexToHash("0xdddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd")
	testArbiter   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

// fakeOracle replays a scripted verdict sequence, sticking at the last one
type fakeOracle struct {
	kind models.OracleKind

	mu          sync.Mutex
	verdicts    []*oracle.Verdict
	idx         int
	submitCalls int
	submitErr   error
}

func (f *fakeOracle) Kind() models.OracleKind { return f.kind }

func (f *fakeOracle) Submit(ctx context.Context, evidence oracle.Evidence) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	return testRequestID, nil
}

func (f *fakeOracle) Poll(ctx context.Context, requestID common.Hash) (*oracle.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.verdicts[f.idx]
	if f.idx < len(f.verdicts)-1 {
		f.idx++
	}
	return v, nil
}

// fakeSubmitter records claim submissions and optionally fails the first n
type fakeSubmitter struct {
	mu       sync.Mutex
	calls    []*Request
	evidence []*oracle.VerifiedEvidence
	failures int
}

func (f *fakeSubmitter) SubmitClaim(ctx context.Context, req *Request, ev *oracle.VerifiedEvidence) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	f.evidence = append(f.evidence, ev)
	if f.failures > 0 {
		f.failures--
		return common.Hash{}, errors.New("nonce too low")
	}
	return testClaimTx, nil
}

func newTestStore(t *testing.T) *requeststore.Store {
	t.Helper()
	store := requeststore.New(filepath.Join(t.TempDir(), "requests.json"))
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func verifyingVerdict() *oracle.Verdict {
	return &oracle.Verdict{Status: models.VerificationStatusVerifying}
}

func verifiedVerdict() *oracle.Verdict {
	return &oracle.Verdict{
		Status:   models.VerificationStatusVerified,
		Evidence: &oracle.VerifiedEvidence{RequestID: testRequestID, MsgHash: testMsgHash, TxHash: testTxID},
	}
}

func failedVerdict() *oracle.Verdict {
	return &oracle.Verdict{Status: models.VerificationStatusFailed}
}

func trackStates(o *Orchestrator) *[]State {
	var states []State
	o.SetTransitionHook(func(_ *Request, s State) {
		states = append(states, s)
	})
	return &states
}

func TestRequiredOracle(t *testing.T) {
	tests := []struct {
		claimType models.ClaimType
		kind      models.OracleKind
		needed    bool
	}{
		{models.ClaimTypeTimeout, "", false},
		{models.ClaimTypeArbitratorFee, "", false},
		{models.ClaimTypeIllegalSignature, models.OracleKindSignatureValidation, true},
		{models.ClaimTypeFailedArbitration, models.OracleKindZkProof, true},
	}

	for _, tt := range tests {
		kind, needed := RequiredOracle(tt.claimType)
		assert.Equal(t, tt.needed, needed, "claim type %s", tt.claimType)
		assert.Equal(t, tt.kind, kind, "claim type %s", tt.claimType)
	}
}

func TestTimeoutClaimSkipsOracle(t *testing.T) {
	sig := &fakeOracle{kind: models.OracleKindSignatureValidation}
	submitter := &fakeSubmitter{}
	o := NewOrchestrator(map[models.OracleKind]oracle.Client{
		models.OracleKindSignatureValidation: sig,
	}, newTestStore(t), submitter, time.Millisecond)
	states := trackStates(o)

	result, err := o.Execute(context.Background(), &Request{
		TransactionID: testTxID,
		Type:          models.ClaimTypeTimeout,
	})
	require.NoError(t, err)
	assert.Equal(t, StateClaimConfirmed, result.State)
	assert.Equal(t, testClaimTx, result.ClaimTx)
	assert.Equal(t, []State{StateClaimSubmitted, StateClaimConfirmed}, *states)
	assert.Zero(t, sig.submitCalls, "timeout claims must not touch any oracle")
	require.Len(t, submitter.calls, 1)
	assert.Nil(t, submitter.evidence[0])
}

func TestIllegalSignatureClaimFlow(t *testing.T) {
	sig := &fakeOracle{
		kind:     models.OracleKindSignatureValidation,
		verdicts: []*oracle.Verdict{verifyingVerdict(), verifyingVerdict(), verifiedVerdict()},
	}
	store := newTestStore(t)
	submitter := &fakeSubmitter{}
	o := NewOrchestrator(map[models.OracleKind]oracle.Client{
		models.OracleKindSignatureValidation: sig,
	}, store, submitter, time.Millisecond)
	states := trackStates(o)

	result, err := o.Execute(context.Background(), &Request{
		TransactionID: testTxID,
		Type:          models.ClaimTypeIllegalSignature,
		Arbiter:       testArbiter,
		Evidence:      oracle.SignatureEvidence{MsgHash: testMsgHash},
	})
	require.NoError(t, err)

	assert.Equal(t, StateClaimConfirmed, result.State)
	assert.Equal(t, testRequestID, result.RequestID)
	assert.Equal(t, []State{
		StateEvidenceSubmitted,
		StatePolling,
		StateVerified,
		StateClaimSubmitted,
		StateClaimConfirmed,
	}, *states)

	// The verified evidence, request id included, reaches the claim submitter.
	require.Len(t, submitter.evidence, 1)
	assert.Equal(t, testRequestID, submitter.evidence[0].RequestID)
	assert.Equal(t, testMsgHash, submitter.evidence[0].MsgHash)

	// The ledger carries the terminal status.
	rec := store.Lookup(testTxID.Hex(), models.OracleKindSignatureValidation)
	require.NotNil(t, rec)
	assert.Equal(t, models.VerificationStatusVerified, rec.Status)
	assert.Equal(t, testRequestID.Hex(), rec.RequestID)
}

func TestFailedVerdictIsDeadEnd(t *testing.T) {
	zk := &fakeOracle{
		kind:     models.OracleKindZkProof,
		verdicts: []*oracle.Verdict{failedVerdict()},
	}
	store := newTestStore(t)
	submitter := &fakeSubmitter{}
	o := NewOrchestrator(map[models.OracleKind]oracle.Client{
		models.OracleKindZkProof: zk,
	}, store, submitter, time.Millisecond)

	result, err := o.Execute(context.Background(), &Request{
		TransactionID: testTxID,
		Type:          models.ClaimTypeFailedArbitration,
		Evidence:      oracle.ProofEvidence{RawTx: []byte{0x01}},
	})
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Equal(t, StateFailed, result.State)
	assert.Empty(t, submitter.calls, "failed verification must never submit a claim")

	rec := store.Lookup(testTxID.Hex(), models.OracleKindZkProof)
	require.NotNil(t, rec)
	assert.Equal(t, models.VerificationStatusFailed, rec.Status)
}

func TestRejectedSubmissionStaysNotStarted(t *testing.T) {
	sig := &fakeOracle{
		kind:      models.OracleKindSignatureValidation,
		submitErr: oracle.ErrSubmissionRejected,
	}
	store := newTestStore(t)
	o := NewOrchestrator(map[models.OracleKind]oracle.Client{
		models.OracleKindSignatureValidation: sig,
	}, store, &fakeSubmitter{}, time.Millisecond)

	result, err := o.Execute(context.Background(), &Request{
		TransactionID: testTxID,
		Type:          models.ClaimTypeIllegalSignature,
		Evidence:      oracle.SignatureEvidence{},
	})
	assert.ErrorIs(t, err, oracle.ErrSubmissionRejected)
	assert.Equal(t, StateNotStarted, result.State)
	assert.Equal(t, 1, sig.submitCalls, "rejected submissions are not retried")
	assert.Nil(t, store.Lookup(testTxID.Hex(), models.OracleKindSignatureValidation))
}

func TestResumesOutstandingRequest(t *testing.T) {
	sig := &fakeOracle{
		kind:     models.OracleKindSignatureValidation,
		verdicts: []*oracle.Verdict{verifiedVerdict()},
	}
	store := newTestStore(t)
	_, err := store.Record(testTxID.Hex(), models.OracleKindSignatureValidation, testRequestID.Hex())
	require.NoError(t, err)

	submitter := &fakeSubmitter{}
	o := NewOrchestrator(map[models.OracleKind]oracle.Client{
		models.OracleKindSignatureValidation: sig,
	}, store, submitter, time.Millisecond)

	result, err := o.Execute(context.Background(), &Request{
		TransactionID: testTxID,
		Type:          models.ClaimTypeIllegalSignature,
		Arbiter:       testArbiter,
		Evidence:      oracle.SignatureEvidence{MsgHash: testMsgHash},
	})
	require.NoError(t, err)
	assert.Equal(t, StateClaimConfirmed, result.State)
	assert.Equal(t, testRequestID, result.RequestID)
	assert.Zero(t, sig.submitCalls, "an active request for the subject must be resumed, not resubmitted")
	assert.Len(t, submitter.calls, 1)
}

func TestFailedClaimSubmissionIsRetryable(t *testing.T) {
	submitter := &fakeSubmitter{failures: 1}
	o := NewOrchestrator(nil, newTestStore(t), submitter, time.Millisecond)
	states := trackStates(o)

	req := &Request{TransactionID: testTxID, Type: models.ClaimTypeArbitratorFee}

	result, err := o.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, StateNotStarted, result.State)
	assert.Equal(t, []State{StateNotStarted}, *states)

	result, err = o.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StateClaimConfirmed, result.State)
	assert.Len(t, submitter.calls, 2)

	stats := o.GetStats()
	assert.Equal(t, uint64(2), stats["claims_executed"])
	assert.Equal(t, uint64(1), stats["claims_confirmed"])
}

func TestMissingOracleClient(t *testing.T) {
	o := NewOrchestrator(map[models.OracleKind]oracle.Client{}, newTestStore(t), &fakeSubmitter{}, time.Millisecond)

	_, err := o.Execute(context.Background(), &Request{
		TransactionID: testTxID,
		Type:          models.ClaimTypeFailedArbitration,
		Evidence:      oracle.ProofEvidence{},
	})
	assert.Error(t, err)
}

func TestCancellationDuringPolling(t *testing.T) {
	sig := &fakeOracle{
		kind:     models.OracleKindSignatureValidation,
		verdicts: []*oracle.Verdict{verifyingVerdict()},
	}
	o := NewOrchestrator(map[models.OracleKind]oracle.Client{
		models.OracleKindSignatureValidation: sig,
	}, newTestStore(t), &fakeSubmitter{}, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	_, err := o.Execute(ctx, &Request{
		TransactionID: testTxID,
		Type:          models.ClaimTypeIllegalSignature,
		Evidence:      oracle.SignatureEvidence{MsgHash: testMsgHash},
	})
	assert.ErrorIs(t, err, context.Canceled)
}
