package models

import "time"

// OracleKind identifies which verification oracle a request was sent to
type OracleKind string

const (
	OracleKindZkProof             OracleKind = "zk_proof"
	OracleKindSignatureValidation OracleKind = "signature_validation"
)

// VerificationStatus is the oracle-side status of a verification request
type VerificationStatus string

const (
	VerificationStatusUnknown   VerificationStatus = "unknown"
	VerificationStatusVerifying VerificationStatus = "verifying"
	VerificationStatusVerified  VerificationStatus = "verified"
	VerificationStatusFailed    VerificationStatus = "failed"
)

// Terminal reports whether the status is final. Once terminal, polling stops
// and the status never changes again.
func (s VerificationStatus) Terminal() bool {
	return s == VerificationStatusVerified || s == VerificationStatusFailed
}

// VerificationRequest maps a dispute subject to an outstanding oracle request.
// RequestID is immutable once assigned; records are never deleted.
type VerificationRequest struct {
	TransactionID string             `json:"transactionId"`
	OracleKind    OracleKind         `json:"oracleKind"`
	RequestID     string             `json:"requestId"`
	Status        VerificationStatus `json:"status"`
	SubmittedAt   time.Time          `json:"submittedAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// Active reports whether the request still needs polling
func (r *VerificationRequest) Active() bool {
	return !r.Status.Terminal()
}
