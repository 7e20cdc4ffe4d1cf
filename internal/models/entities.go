package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DAppStatus is the registration status of a dapp on the arbitration ledger
type DAppStatus string

const (
	DAppStatusNone       DAppStatus = "none"
	DAppStatusPending    DAppStatus = "pending"
	DAppStatusActive     DAppStatus = "active"
	DAppStatusSuspended  DAppStatus = "suspended"
	DAppStatusTerminated DAppStatus = "terminated"
)

// DApp represents a registered dapp, projected from ledger events
type DApp struct {
	Address   string     `json:"address" db:"address"`
	Owner     string     `json:"owner" db:"owner"`
	Status    DAppStatus `json:"status" db:"status"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ClaimType categorizes a compensation claim
type ClaimType string

const (
	ClaimTypeUnknown           ClaimType = "unknown"
	ClaimTypeTimeout           ClaimType = "timeout"
	ClaimTypeIllegalSignature  ClaimType = "illegal_signature"
	ClaimTypeFailedArbitration ClaimType = "failed_arbitration"
	ClaimTypeArbitratorFee     ClaimType = "arbitrator_fee"
)

// CompensationClaim represents a claim projected from ledger events.
// Withdrawn is monotone: once true it never reverts.
type CompensationClaim struct {
	ID        string    `json:"id" db:"id"`
	ClaimType ClaimType `json:"claim_type" db:"claim_type"`
	Claimer   string    `json:"claimer" db:"claimer"`
	Arbiter   string    `json:"arbiter" db:"arbiter"`
	Withdrawn bool      `json:"withdrawn" db:"withdrawn"`
	Amount    string    `json:"amount" db:"amount"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ConfigEntry is a last-write-wins configuration value from the ledger
type ConfigEntry struct {
	Key       string    `json:"key" db:"key"`
	Value     int64     `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NFTOwnership tracks the current owner of a token
type NFTOwnership struct {
	TokenID   string    `json:"token_id" db:"token_id"`
	Owner     string    `json:"owner" db:"owner"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// EntityFilter for querying projected entities
type EntityFilter struct {
	Address *common.Address `json:"address,omitempty"`
	Status  *string         `json:"status,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}
