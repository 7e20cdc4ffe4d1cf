// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/arbiterdevs/btc-arbitration/internal/metrics"
	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration

	metricsManager *metrics.Manager
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// SetMetricsManager wires metrics collection into storage operations
func (s *SQLiteStorage) SetMetricsManager(m *metrics.Manager) {
	s.metricsManager = m
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// WAL mode for concurrent readers during projection writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable foreign keys", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// recordOp reports one database operation to the metrics manager
func (s *SQLiteStorage) recordOp(operation, table string, err error, start time.Time) {
	if s.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	pm := s.metricsManager.GetPrometheusMetrics()
	pm.RecordDatabaseOperation(operation, table, status, time.Since(start))
	pm.UpdateDatabaseConnections(s.db.Stats().OpenConnections)
}

// GetDApp returns the projected dapp for an address, or nil when absent
func (s *SQLiteStorage) GetDApp(address string) (*models.DApp, error) {
	var dapp models.DApp
	err := s.db.QueryRow(
		`SELECT address, owner, status, updated_at FROM dapps WHERE address = ?`, address,
	).Scan(&dapp.Address, &dapp.Owner, &dapp.Status, &dapp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get dapp", err.Error())
	}
	return &dapp, nil
}

// PutDApp upserts a projected dapp
func (s *SQLiteStorage) PutDApp(dapp *models.DApp) error {
	start := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO dapps (address, owner, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			owner = excluded.owner,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, dapp.Address, dapp.Owner, dapp.Status, dapp.UpdatedAt)
	s.recordOp("upsert", "dapps", err, start)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save dapp", err.Error())
	}
	return nil
}

// ListDApps returns projected dapps matching the filter
func (s *SQLiteStorage) ListDApps(ctx context.Context, filter models.EntityFilter) ([]*models.DApp, error) {
	query := `SELECT address, owner, status, updated_at FROM dapps`
	args := []interface{}{}
	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY address`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list dapps", err.Error())
	}
	defer rows.Close()

	var dapps []*models.DApp
	for rows.Next() {
		var dapp models.DApp
		if err := rows.Scan(&dapp.Address, &dapp.Owner, &dapp.Status, &dapp.UpdatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan dapp", err.Error())
		}
		dapps = append(dapps, &dapp)
	}
	return dapps, rows.Err()
}

// GetClaim returns the projected claim, or nil when absent
func (s *SQLiteStorage) GetClaim(id string) (*models.CompensationClaim, error) {
	var claim models.CompensationClaim
	err := s.db.QueryRow(
		`SELECT id, claim_type, claimer, arbiter, withdrawn, amount, updated_at FROM claims WHERE id = ?`, id,
	).Scan(&claim.ID, &claim.ClaimType, &claim.Claimer, &claim.Arbiter, &claim.Withdrawn, &claim.Amount, &claim.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get claim", err.Error())
	}
	return &claim, nil
}

// PutClaim upserts a projected claim
func (s *SQLiteStorage) PutClaim(claim *models.CompensationClaim) error {
	start := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO claims (id, claim_type, claimer, arbiter, withdrawn, amount, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			claim_type = excluded.claim_type,
			claimer = excluded.claimer,
			arbiter = excluded.arbiter,
			withdrawn = excluded.withdrawn,
			amount = excluded.amount,
			updated_at = excluded.updated_at
	`, claim.ID, claim.ClaimType, claim.Claimer, claim.Arbiter, claim.Withdrawn, claim.Amount, claim.UpdatedAt)
	s.recordOp("upsert", "claims", err, start)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save claim", err.Error())
	}
	return nil
}

// ListClaims returns projected claims matching the filter
func (s *SQLiteStorage) ListClaims(ctx context.Context, filter models.EntityFilter) ([]*models.CompensationClaim, error) {
	query := `SELECT id, claim_type, claimer, arbiter, withdrawn, amount, updated_at FROM claims`
	args := []interface{}{}
	if filter.Address != nil {
		query += ` WHERE claimer = ?`
		args = append(args, filter.Address.Hex())
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list claims", err.Error())
	}
	defer rows.Close()

	var claims []*models.CompensationClaim
	for rows.Next() {
		var claim models.CompensationClaim
		if err := rows.Scan(&claim.ID, &claim.ClaimType, &claim.Claimer, &claim.Arbiter,
			&claim.Withdrawn, &claim.Amount, &claim.UpdatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan claim", err.Error())
		}
		claims = append(claims, &claim)
	}
	return claims, rows.Err()
}

// GetConfigEntry returns a configuration value, or nil when absent
func (s *SQLiteStorage) GetConfigEntry(key string) (*models.ConfigEntry, error) {
	var entry models.ConfigEntry
	err := s.db.QueryRow(
		`SELECT key, value, updated_at FROM config_entries WHERE key = ?`, key,
	).Scan(&entry.Key, &entry.Value, &entry.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get config entry", err.Error())
	}
	return &entry, nil
}

// PutConfigEntry upserts a configuration value
func (s *SQLiteStorage) PutConfigEntry(entry *models.ConfigEntry) error {
	start := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO config_entries (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, entry.Key, entry.Value, entry.UpdatedAt)
	s.recordOp("upsert", "config_entries", err, start)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save config entry", err.Error())
	}
	return nil
}

// ListConfigEntries returns all configuration values
func (s *SQLiteStorage) ListConfigEntries(ctx context.Context) ([]*models.ConfigEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM config_entries ORDER BY key`)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list config entries", err.Error())
	}
	defer rows.Close()

	var entries []*models.ConfigEntry
	for rows.Next() {
		var entry models.ConfigEntry
		if err := rows.Scan(&entry.Key, &entry.Value, &entry.UpdatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan config entry", err.Error())
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// GetNFTOwnership returns the ownership row for a token, or nil when absent
func (s *SQLiteStorage) GetNFTOwnership(tokenID string) (*models.NFTOwnership, error) {
	var ownership models.NFTOwnership
	err := s.db.QueryRow(
		`SELECT token_id, owner, updated_at FROM nft_ownership WHERE token_id = ?`, tokenID,
	).Scan(&ownership.TokenID, &ownership.Owner, &ownership.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get nft ownership", err.Error())
	}
	return &ownership, nil
}

// PutNFTOwnership upserts token ownership
func (s *SQLiteStorage) PutNFTOwnership(ownership *models.NFTOwnership) error {
	start := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO nft_ownership (token_id, owner, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(token_id) DO UPDATE SET
			owner = excluded.owner,
			updated_at = excluded.updated_at
	`, ownership.TokenID, ownership.Owner, ownership.UpdatedAt)
	s.recordOp("upsert", "nft_ownership", err, start)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save nft ownership", err.Error())
	}
	return nil
}

// ListNFTOwnerships returns token ownership rows matching the filter
func (s *SQLiteStorage) ListNFTOwnerships(ctx context.Context, filter models.EntityFilter) ([]*models.NFTOwnership, error) {
	query := `SELECT token_id, owner, updated_at FROM nft_ownership`
	args := []interface{}{}
	if filter.Address != nil {
		query += ` WHERE owner = ?`
		args = append(args, filter.Address.Hex())
	}
	query += ` ORDER BY token_id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list nft ownerships", err.Error())
	}
	defer rows.Close()

	var ownerships []*models.NFTOwnership
	for rows.Next() {
		var ownership models.NFTOwnership
		if err := rows.Scan(&ownership.TokenID, &ownership.Owner, &ownership.UpdatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan nft ownership", err.Error())
		}
		ownerships = append(ownerships, &ownership)
	}
	return ownerships, rows.Err()
}

// SaveEventRecord journals one decoded event. Replayed records overwrite
// their previous row, keeping the journal idempotent.
func (s *SQLiteStorage) SaveEventRecord(ctx context.Context, rec *models.EventRecord) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO chain_events
		(id, name, block_number, log_index, block_hash, tx_hash, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Name, rec.BlockNumber, rec.LogIndex, rec.BlockHash, rec.TxHash, rec.Payload, rec.Timestamp)
	s.recordOp("insert", "chain_events", err, start)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to journal event", err.Error())
	}
	return nil
}

// GetEventRecords returns journaled events in (block, index) order.
// toBlock of zero means no upper bound.
func (s *SQLiteStorage) GetEventRecords(ctx context.Context, fromBlock, toBlock uint64) ([]*models.EventRecord, error) {
	query := `SELECT id, name, block_number, log_index, block_hash, tx_hash, payload, timestamp
		FROM chain_events WHERE block_number >= ?`
	args := []interface{}{fromBlock}
	if toBlock > 0 {
		query += ` AND block_number <= ?`
		args = append(args, toBlock)
	}
	query += ` ORDER BY block_number, log_index`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read event journal", err.Error())
	}
	defer rows.Close()

	var records []*models.EventRecord
	for rows.Next() {
		var rec models.EventRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.BlockNumber, &rec.LogIndex,
			&rec.BlockHash, &rec.TxHash, &rec.Payload, &rec.Timestamp); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan event record", err.Error())
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// TruncateProjection clears the projected entity tables so a full rebuild
// from the journal starts from empty state. The journal itself is kept.
func (s *SQLiteStorage) TruncateProjection(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin truncate transaction", err.Error())
	}
	defer tx.Rollback()

	for _, table := range []string{"dapps", "claims", "config_entries", "nft_ownership"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to truncate "+table, err.Error())
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit truncate", err.Error())
	}
	s.logger.Info("Projected entity tables truncated for rebuild")
	return nil
}

// GetCheckpoint returns the last fully projected block number
func (s *SQLiteStorage) GetCheckpoint() (uint64, error) {
	var block uint64
	err := s.db.QueryRow(`SELECT block_number FROM checkpoint WHERE id = 1`).Scan(&block)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read checkpoint", err.Error())
	}
	return block, nil
}

// SetCheckpoint records the last fully projected block number
func (s *SQLiteStorage) SetCheckpoint(blockNumber uint64) error {
	_, err := s.db.Exec(`UPDATE checkpoint SET block_number = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1`, blockNumber)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update checkpoint", err.Error())
	}
	return nil
}

// GetBlockHash returns the recorded hash of a journaled block, or empty when
// the block carried no arbitration events.
func (s *SQLiteStorage) GetBlockHash(blockNumber uint64) (string, error) {
	var hash string
	err := s.db.QueryRow(
		`SELECT block_hash FROM chain_events WHERE block_number = ? LIMIT 1`, blockNumber,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeDatabase, "Failed to read block hash", err.Error())
	}
	return hash, nil
}

// GetStorageStats returns storage statistics
func (s *SQLiteStorage) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM dapps`, &stats.TotalDApps},
		{`SELECT COUNT(*) FROM claims`, &stats.TotalClaims},
		{`SELECT COUNT(*) FROM config_entries`, &stats.TotalConfig},
		{`SELECT COUNT(*) FROM nft_ownership`, &stats.TotalNFTs},
		{`SELECT COUNT(*) FROM chain_events`, &stats.TotalEvents},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to collect storage stats", err.Error())
		}
	}

	block, err := s.GetCheckpoint()
	if err != nil {
		return nil, err
	}
	stats.LatestBlock = block

	if info, err := os.Stat(s.config.ConnectionString); err == nil {
		stats.DatabaseSize = info.Size()
	}

	return stats, nil
}
