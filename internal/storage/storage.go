// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
)

// Storage defines the interface for projected-state and journal storage.
// The entity accessors double as the projector's write-through store; Get
// methods return (nil, nil) for absent entities.
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// DApp operations
	GetDApp(address string) (*models.DApp, error)
	PutDApp(dapp *models.DApp) error
	ListDApps(ctx context.Context, filter models.EntityFilter) ([]*models.DApp, error)

	// Compensation claim operations
	GetClaim(id string) (*models.CompensationClaim, error)
	PutClaim(claim *models.CompensationClaim) error
	ListClaims(ctx context.Context, filter models.EntityFilter) ([]*models.CompensationClaim, error)

	// Config operations
	GetConfigEntry(key string) (*models.ConfigEntry, error)
	PutConfigEntry(entry *models.ConfigEntry) error
	ListConfigEntries(ctx context.Context) ([]*models.ConfigEntry, error)

	// NFT ownership operations
	GetNFTOwnership(tokenID string) (*models.NFTOwnership, error)
	PutNFTOwnership(ownership *models.NFTOwnership) error
	ListNFTOwnerships(ctx context.Context, filter models.EntityFilter) ([]*models.NFTOwnership, error)

	// Event journal operations
	SaveEventRecord(ctx context.Context, rec *models.EventRecord) error
	GetEventRecords(ctx context.Context, fromBlock, toBlock uint64) ([]*models.EventRecord, error)
	TruncateProjection(ctx context.Context) error

	// Checkpoint tracking
	GetCheckpoint() (uint64, error)
	SetCheckpoint(blockNumber uint64) error
	GetBlockHash(blockNumber uint64) (string, error)

	// Statistics
	GetStorageStats() (*StorageStats, error)
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalDApps   int64  `json:"total_dapps"`
	TotalClaims  int64  `json:"total_claims"`
	TotalConfig  int64  `json:"total_config_entries"`
	TotalNFTs    int64  `json:"total_nft_ownerships"`
	TotalEvents  int64  `json:"total_journaled_events"`
	LatestBlock  uint64 `json:"latest_processed_block"`
	DatabaseSize int64  `json:"database_size_bytes"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
