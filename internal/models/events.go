package models

import "time"

// EventMeta carries the ordering position of a ledger event. Events must be
// applied in strictly ascending (BlockNumber, LogIndex) order.
type EventMeta struct {
	BlockNumber uint64    `json:"block_number"`
	LogIndex    uint      `json:"log_index"`
	BlockHash   string    `json:"block_hash"`
	TxHash      string    `json:"tx_hash"`
	Timestamp   time.Time `json:"timestamp"`
}

// Meta returns the event metadata
func (m EventMeta) Meta() EventMeta { return m }

// Before reports whether m was emitted strictly before other
func (m EventMeta) Before(other EventMeta) bool {
	if m.BlockNumber != other.BlockNumber {
		return m.BlockNumber < other.BlockNumber
	}
	return m.LogIndex < other.LogIndex
}

// ChainEvent is one event of the closed arbitration event set
type ChainEvent interface {
	Name() string
	Meta() EventMeta
}

// DAppRegistered creates a dapp with status pending
type DAppRegistered struct {
	EventMeta
	Address string `json:"address"`
	Owner   string `json:"owner"`
}

func (DAppRegistered) Name() string { return "DAppRegistered" }

// DAppAuthorized moves a dapp to active
type DAppAuthorized struct {
	EventMeta
	Address string `json:"address"`
}

func (DAppAuthorized) Name() string { return "DAppAuthorized" }

// DAppSuspended moves a dapp to suspended
type DAppSuspended struct {
	EventMeta
	Address string `json:"address"`
}

func (DAppSuspended) Name() string { return "DAppSuspended" }

// DAppDeregistered moves a dapp to terminated
type DAppDeregistered struct {
	EventMeta
	Address string `json:"address"`
}

func (DAppDeregistered) Name() string { return "DAppDeregistered" }

// CompensationClaimed creates a compensation claim with withdrawn=false
type CompensationClaimed struct {
	EventMeta
	ClaimID   string    `json:"claim_id"`
	Claimer   string    `json:"claimer"`
	Arbiter   string    `json:"arbiter"`
	ClaimType ClaimType `json:"claim_type"`
	Amount    string    `json:"amount"`
}

func (CompensationClaimed) Name() string { return "CompensationClaimed" }

// CompensationWithdrawn marks a claim withdrawn
type CompensationWithdrawn struct {
	EventMeta
	ClaimID string `json:"claim_id"`
}

func (CompensationWithdrawn) Name() string { return "CompensationWithdrawn" }

// ConfigUpdated upserts a configuration value
type ConfigUpdated struct {
	EventMeta
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

func (ConfigUpdated) Name() string { return "ConfigUpdated" }

// NFTTransfer upserts token ownership
type NFTTransfer struct {
	EventMeta
	TokenID string `json:"token_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

func (NFTTransfer) Name() string { return "Transfer" }
