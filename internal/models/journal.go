package models

import "time"

// EventRecord is the journaled form of a decoded ledger event. The journal
// keeps the full ordered history so the projection can be rebuilt from
// scratch.
type EventRecord struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	BlockNumber uint64    `json:"block_number" db:"block_number"`
	LogIndex    uint      `json:"log_index" db:"log_index"`
	BlockHash   string    `json:"block_hash" db:"block_hash"`
	TxHash      string    `json:"tx_hash" db:"tx_hash"`
	Payload     string    `json:"payload" db:"payload"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}
