// File: internal/claims/orchestrator.go
package claims

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/arbiterdevs/btc-arbitration/internal/metrics"
	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/internal/oracle"
	"github.com/arbiterdevs/btc-arbitration/internal/requeststore"
	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// ErrVerificationFailed is returned when an oracle reaches a terminal failed
// verdict. The claim cannot proceed; new evidence needs a fresh request.
var ErrVerificationFailed = errors.New("oracle verification failed")

// State is the orchestrator-side progress of a single claim
type State string

const (
	StateNotStarted        State = "not_started"
	StateEvidenceSubmitted State = "evidence_submitted"
	StatePolling           State = "polling"
	StateVerified          State = "verified"
	StateClaimSubmitted    State = "claim_submitted"
	StateClaimConfirmed    State = "claim_confirmed"
	StateFailed            State = "failed"
)

// Request describes one compensation claim to drive end to end
type Request struct {
	TransactionID common.Hash
	Type          models.ClaimType
	Arbiter       common.Address
	Evidence      oracle.Evidence
}

// Result is the outcome of a completed orchestration
type Result struct {
	State     State           `json:"state"`
	RequestID common.Hash     `json:"request_id,omitempty"`
	ClaimTx   common.Hash     `json:"claim_tx,omitempty"`
	Verdict   *oracle.Verdict `json:"verdict,omitempty"`
}

// RequiredOracle maps a claim type to the oracle that must verify it first.
// Timeout and arbitrator fee claims carry their proof on the ledger itself
// and need no oracle.
func RequiredOracle(t models.ClaimType) (models.OracleKind, bool) {
	switch t {
	case models.ClaimTypeIllegalSignature:
		return models.OracleKindSignatureValidation, true
	case models.ClaimTypeFailedArbitration:
		return models.OracleKindZkProof, true
	default:
		return "", false
	}
}

// Orchestrator drives compensation claims through evidence submission, oracle
// polling and claim submission. A failed claim transaction leaves the claim
// restartable; a failed oracle verdict is a dead end for that evidence.
type Orchestrator struct {
	oracles   map[models.OracleKind]oracle.Client
	requests  *requeststore.Store
	submitter Submitter
	interval  time.Duration
	logger    *logrus.Entry

	// onTransition observes every state change, including re-entry into
	// not_started after a failed claim submission.
	onTransition func(*Request, State)

	metricsManager *metrics.Manager

	mu        sync.RWMutex
	executed  uint64
	confirmed uint64
	failed    uint64
}

// NewOrchestrator creates a claim orchestrator. interval controls oracle
// polling; non-positive falls back to the oracle default.
func NewOrchestrator(oracles map[models.OracleKind]oracle.Client, requests *requeststore.Store, submitter Submitter, interval time.Duration) *Orchestrator {
	return &Orchestrator{
		oracles:   oracles,
		requests:  requests,
		submitter: submitter,
		interval:  interval,
		logger:    utils.ComponentLogger("claims"),
	}
}

// SetTransitionHook installs a state change observer. Must be called before
// Execute.
func (o *Orchestrator) SetTransitionHook(hook func(*Request, State)) {
	o.onTransition = hook
}

// SetMetricsManager wires metrics collection into claim execution
func (o *Orchestrator) SetMetricsManager(m *metrics.Manager) {
	o.metricsManager = m
}

// Execute drives one claim from its current state to confirmation. It resumes
// an outstanding oracle request for the same subject instead of submitting
// evidence twice.
func (o *Orchestrator) Execute(ctx context.Context, req *Request) (*Result, error) {
	o.mu.Lock()
	o.executed++
	o.mu.Unlock()

	result := &Result{State: StateNotStarted}

	kind, needsOracle := RequiredOracle(req.Type)
	if needsOracle {
		if err := o.verify(ctx, req, kind, result); err != nil {
			return result, err
		}
	}

	return result, o.claim(ctx, req, result)
}

// verify obtains a terminal oracle verdict for the request, submitting
// evidence only when no active request for the subject exists.
func (o *Orchestrator) verify(ctx context.Context, req *Request, kind models.OracleKind, result *Result) error {
	client, ok := o.oracles[kind]
	if !ok {
		return utils.NewAppError(utils.ErrCodeConfiguration,
			"No oracle client configured", string(kind))
	}

	subject := req.TransactionID.Hex()

	var requestID common.Hash
	if rec := o.requests.Lookup(subject, kind); rec != nil && rec.Active() {
		requestID = common.HexToHash(rec.RequestID)
		o.logger.WithFields(logrus.Fields{
			"transaction_id": subject,
			"request_id":     rec.RequestID,
		}).Info("Resuming outstanding verification request")
		o.transition(req, result, StateEvidenceSubmitted)
	} else {
		// A rejected submission is not retried here; the claim stays in
		// not_started until the caller supplies acceptable evidence.
		id, err := client.Submit(ctx, req.Evidence)
		if err != nil {
			o.recordOracleSubmission(kind, "rejected")
			o.transition(req, result, StateNotStarted)
			return fmt.Errorf("evidence submission: %w", err)
		}
		requestID = id
		o.recordOracleSubmission(kind, "accepted")

		if _, err := o.requests.Record(subject, kind, requestID.Hex()); err != nil {
			// A concurrent submission won the race; its request carries
			// the subject forward.
			if !errors.Is(err, requeststore.ErrDuplicateActiveRequest) {
				return err
			}
		}
		o.transition(req, result, StateEvidenceSubmitted)
	}
	result.RequestID = requestID

	o.transition(req, result, StatePolling)
	pollStart := time.Now()
	lastPoll := pollStart
	poller := oracle.NewPoller(client, o.interval)
	verdict, err := poller.WaitForVerdict(ctx, requestID, func(v *oracle.Verdict) {
		if o.metricsManager != nil {
			o.metricsManager.GetPrometheusMetrics().RecordOraclePoll(string(kind), string(v.Status), time.Since(lastPoll))
			lastPoll = time.Now()
		}
		if err := o.requests.UpdateStatus(subject, kind, requestID.Hex(), v.Status); err != nil {
			o.logger.WithError(err).Warn("Failed to persist oracle status")
		}
	})
	if err != nil {
		return err
	}
	result.Verdict = verdict
	if o.metricsManager != nil {
		pm := o.metricsManager.GetPrometheusMetrics()
		pm.RecordOracleVerdict(string(kind), string(verdict.Status))
		pm.RecordClaimStateDuration(string(StatePolling), time.Since(pollStart))
	}

	if verdict.Status != models.VerificationStatusVerified {
		o.markFailed(req, result)
		return fmt.Errorf("%w: request %s", ErrVerificationFailed, requestID.Hex())
	}

	o.transition(req, result, StateVerified)
	return nil
}

// claim submits the claim transaction. Submission failure returns the claim
// to not_started so the caller can retry without resubmitting evidence.
func (o *Orchestrator) claim(ctx context.Context, req *Request, result *Result) error {
	var evidence *oracle.VerifiedEvidence
	if result.Verdict != nil {
		evidence = result.Verdict.Evidence
	}

	txHash, err := o.submitter.SubmitClaim(ctx, req, evidence)
	if err != nil {
		o.recordClaim(req.Type, "submission_failed")
		o.transition(req, result, StateNotStarted)
		return err
	}
	result.ClaimTx = txHash
	o.transition(req, result, StateClaimSubmitted)

	// The submitter waits for the claim transaction to be mined.
	o.transition(req, result, StateClaimConfirmed)
	o.recordClaim(req.Type, "confirmed")
	o.mu.Lock()
	o.confirmed++
	o.mu.Unlock()

	o.logger.WithFields(logrus.Fields{
		"claim_type":     req.Type,
		"transaction_id": req.TransactionID.Hex(),
		"claim_tx":       txHash.Hex(),
	}).Info("Compensation claim confirmed")
	return nil
}

func (o *Orchestrator) transition(req *Request, result *Result, state State) {
	result.State = state
	if o.onTransition != nil {
		o.onTransition(req, state)
	}
}

func (o *Orchestrator) markFailed(req *Request, result *Result) {
	o.transition(req, result, StateFailed)
	o.recordClaim(req.Type, "verification_failed")
	o.mu.Lock()
	o.failed++
	o.mu.Unlock()
}

func (o *Orchestrator) recordOracleSubmission(kind models.OracleKind, status string) {
	if o.metricsManager != nil {
		o.metricsManager.GetPrometheusMetrics().RecordOracleSubmission(string(kind), status)
	}
}

func (o *Orchestrator) recordClaim(claimType models.ClaimType, outcome string) {
	if o.metricsManager != nil {
		o.metricsManager.GetPrometheusMetrics().RecordClaim(string(claimType), outcome)
	}
}

// GetStats returns orchestrator statistics
func (o *Orchestrator) GetStats() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return map[string]interface{}{
		"claims_executed":  o.executed,
		"claims_confirmed": o.confirmed,
		"claims_failed":    o.failed,
	}
}
