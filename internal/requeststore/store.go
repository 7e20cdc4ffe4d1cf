// File: internal/requeststore/store.go
package requeststore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// ErrDuplicateActiveRequest is returned when a non-terminal request already
// exists for the same (transactionId, oracleKind) pair. Callers must poll
// the existing request to resolution before resubmitting.
var ErrDuplicateActiveRequest = errors.New("active verification request already exists")

// Well-known storage names for the per-oracle request lists. The layout is
// shared with other clients of the same deployment, so it never changes.
var listKeys = map[models.OracleKind]string{
	models.OracleKindZkProof:             "zkp_verification_requests",
	models.OracleKindSignatureValidation: "signature_verification_requests",
}

// Store is the durable request ledger mapping a dispute subject to its
// outstanding oracle request, so polling can resume after a restart.
// Records are append-only and never deleted.
type Store struct {
	path   string
	logger *logrus.Entry

	mu    sync.Mutex
	lists map[string][]*models.VerificationRequest
	open  bool
}

// New creates a request store backed by the given file path
func New(path string) *Store {
	return &Store{
		path:   path,
		logger: utils.ComponentLogger("requeststore"),
		lists:  make(map[string][]*models.VerificationRequest),
	}
}

// Open loads the full request ledger into memory. A missing file starts an
// empty ledger.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read request ledger", err.Error())
		}
	} else if len(data) > 0 {
		if err := json.Unmarshal(data, &s.lists); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to decode request ledger", err.Error())
		}
	}

	for kind, key := range listKeys {
		if s.lists[key] == nil {
			s.lists[key] = []*models.VerificationRequest{}
		}
		s.logger.WithFields(logrus.Fields{
			"oracle_kind": kind,
			"records":     len(s.lists[key]),
		}).Info("Request ledger list loaded")
	}

	s.open = true
	return nil
}

// Close flushes the ledger to disk
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	if err := s.persistLocked(); err != nil {
		return err
	}
	s.open = false
	return nil
}

// Lookup returns the latest record for the given subject and oracle kind,
// or nil when none exists.
func (s *Store) Lookup(transactionID string, kind models.OracleKind) *models.VerificationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.lists[listKeys[kind]]) - 1; i >= 0; i-- {
		rec := s.lists[listKeys[kind]][i]
		if rec.TransactionID == transactionID {
			copied := *rec
			return &copied
		}
	}
	return nil
}

// Record appends a new request for the subject. It fails with
// ErrDuplicateActiveRequest when the latest record for the same key is still
// active, so a single claim never holds two live oracle requests.
func (s *Store) Record(transactionID string, kind models.OracleKind, requestID string) (*models.VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Request ledger not open", "")
	}

	for i := len(s.lists[listKeys[kind]]) - 1; i >= 0; i-- {
		rec := s.lists[listKeys[kind]][i]
		if rec.TransactionID == transactionID {
			if rec.Active() {
				return nil, ErrDuplicateActiveRequest
			}
			break
		}
	}

	now := time.Now().UTC()
	rec := &models.VerificationRequest{
		TransactionID: transactionID,
		OracleKind:    kind,
		RequestID:     requestID,
		Status:        models.VerificationStatusVerifying,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}
	s.lists[listKeys[kind]] = append(s.lists[listKeys[kind]], rec)

	if err := s.persistLocked(); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"oracle_kind":    kind,
		"request_id":     requestID,
	}).Info("Verification request recorded")

	copied := *rec
	return &copied, nil
}

// UpdateStatus records the last observed oracle status for the request with
// the given id. A subject can accumulate several records over resubmissions,
// so matching on the request id keeps each poll result on its own record.
// Terminal statuses are sticky: once verified or failed, later updates
// cannot move the record back to a non-terminal state.
func (s *Store) UpdateStatus(transactionID string, kind models.OracleKind, requestID string, status models.VerificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return utils.NewAppError(utils.ErrCodeDatabase, "Request ledger not open", "")
	}

	for i := len(s.lists[listKeys[kind]]) - 1; i >= 0; i-- {
		rec := s.lists[listKeys[kind]][i]
		if rec.TransactionID != transactionID || rec.RequestID != requestID {
			continue
		}
		if rec.Status.Terminal() && !status.Terminal() {
			return nil
		}
		rec.Status = status
		rec.UpdatedAt = time.Now().UTC()
		return s.persistLocked()
	}

	return utils.NewAppError(utils.ErrCodeNotFound, "No verification request for subject", transactionID)
}

// All returns a snapshot of every record across both oracle kinds
func (s *Store) All() []*models.VerificationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.VerificationRequest
	for _, key := range listKeys {
		for _, rec := range s.lists[key] {
			copied := *rec
			out = append(out, &copied)
		}
	}
	return out
}

// persistLocked writes the ledger atomically. Callers hold s.mu.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.lists, "", "  ")
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to encode request ledger", err.Error())
	}

	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create ledger directory", err.Error())
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to write request ledger", err.Error())
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to replace request ledger", err.Error())
	}
	return nil
}
