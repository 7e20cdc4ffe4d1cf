// File: internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgreSQLMigrations(),
	}
}

// Connect establishes database connection
func (s *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to connect to PostgreSQL", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgreSQLStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgreSQLStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

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

	return nil
}

// GetDApp returns the projected dapp for an address, or nil when absent
func (s *PostgreSQLStorage) GetDApp(address string) (*models.DApp, error) {
	var dapp models.DApp
	err := s.db.QueryRow(
		`SELECT address, owner, status, updated_at FROM dapps WHERE address = $1`, address,
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
func (s *PostgreSQLStorage) PutDApp(dapp *models.DApp) error {
	_, err := s.db.Exec(`
		INSERT INTO dapps (address, owner, status, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			owner = EXCLUDED.owner,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, dapp.Address, dapp.Owner, dapp.Status, dapp.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save dapp", err.Error())
	}
	return nil
}

// ListDApps returns projected dapps matching the filter
func (s *PostgreSQLStorage) ListDApps(ctx context.Context, filter models.EntityFilter) ([]*models.DApp, error) {
	query := `SELECT address, owner, status, updated_at FROM dapps`
	args := []interface{}{}
	if filter.Status != nil {
		query += ` WHERE status = $1`
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY address`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
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
func (s *PostgreSQLStorage) GetClaim(id string) (*models.CompensationClaim, error) {
	var claim models.CompensationClaim
	err := s.db.QueryRow(
		`SELECT id, claim_type, claimer, arbiter, withdrawn, amount, updated_at FROM claims WHERE id = $1`, id,
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
func (s *PostgreSQLStorage) PutClaim(claim *models.CompensationClaim) error {
	_, err := s.db.Exec(`
		INSERT INTO claims (id, claim_type, claimer, arbiter, withdrawn, amount, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			claim_type = EXCLUDED.claim_type,
			claimer = EXCLUDED.claimer,
			arbiter = EXCLUDED.arbiter,
			withdrawn = EXCLUDED.withdrawn,
			amount = EXCLUDED.amount,
			updated_at = EXCLUDED.updated_at
	`, claim.ID, claim.ClaimType, claim.Claimer, claim.Arbiter, claim.Withdrawn, claim.Amount, claim.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save claim", err.Error())
	}
	return nil
}

// ListClaims returns projected claims matching the filter
func (s *PostgreSQLStorage) ListClaims(ctx context.Context, filter models.EntityFilter) ([]*models.CompensationClaim, error) {
	query := `SELECT id, claim_type, claimer, arbiter, withdrawn, amount, updated_at FROM claims`
	args := []interface{}{}
	if filter.Address != nil {
		query += ` WHERE claimer = $1`
		args = append(args, filter.Address.Hex())
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
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
func (s *PostgreSQLStorage) GetConfigEntry(key string) (*models.ConfigEntry, error) {
	var entry models.ConfigEntry
	err := s.db.QueryRow(
		`SELECT key, value, updated_at FROM config_entries WHERE key = $1`, key,
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
func (s *PostgreSQLStorage) PutConfigEntry(entry *models.ConfigEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO config_entries (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, entry.Key, entry.Value, entry.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save config entry", err.Error())
	}
	return nil
}

// ListConfigEntries returns all configuration values
func (s *PostgreSQLStorage) ListConfigEntries(ctx context.Context) ([]*models.ConfigEntry, error) {
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
func (s *PostgreSQLStorage) GetNFTOwnership(tokenID string) (*models.NFTOwnership, error) {
	var ownership models.NFTOwnership
	err := s.db.QueryRow(
		`SELECT token_id, owner, updated_at FROM nft_ownership WHERE token_id = $1`, tokenID,
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
func (s *PostgreSQLStorage) PutNFTOwnership(ownership *models.NFTOwnership) error {
	_, err := s.db.Exec(`
		INSERT INTO nft_ownership (token_id, owner, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_id) DO UPDATE SET
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at
	`, ownership.TokenID, ownership.Owner, ownership.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save nft ownership", err.Error())
	}
	return nil
}

// ListNFTOwnerships returns token ownership rows matching the filter
func (s *PostgreSQLStorage) ListNFTOwnerships(ctx context.Context, filter models.EntityFilter) ([]*models.NFTOwnership, error) {
	query := `SELECT token_id, owner, updated_at FROM nft_ownership`
	args := []interface{}{}
	if filter.Address != nil {
		query += ` WHERE owner = $1`
		args = append(args, filter.Address.Hex())
	}
	query += ` ORDER BY token_id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
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

// SaveEventRecord journals one decoded event
func (s *PostgreSQLStorage) SaveEventRecord(ctx context.Context, rec *models.EventRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chain_events
		(id, name, block_number, log_index, block_hash, tx_hash, payload, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload
	`, rec.ID, rec.Name, rec.BlockNumber, rec.LogIndex, rec.BlockHash, rec.TxHash, rec.Payload, rec.Timestamp)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to journal event", err.Error())
	}
	return nil
}

// GetEventRecords returns journaled events in (block, index) order
func (s *PostgreSQLStorage) GetEventRecords(ctx context.Context, fromBlock, toBlock uint64) ([]*models.EventRecord, error) {
	query := `SELECT id, name, block_number, log_index, block_hash, tx_hash, payload, timestamp
		FROM chain_events WHERE block_number >= $1`
	args := []interface{}{fromBlock}
	if toBlock > 0 {
		query += ` AND block_number <= $2`
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

// TruncateProjection clears the projected entity tables, keeping the journal
func (s *PostgreSQLStorage) TruncateProjection(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE dapps, claims, config_entries, nft_ownership`)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to truncate projection", err.Error())
	}
	return nil
}

// GetCheckpoint returns the last fully projected block number
func (s *PostgreSQLStorage) GetCheckpoint() (uint64, error) {
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
func (s *PostgreSQLStorage) SetCheckpoint(blockNumber uint64) error {
	_, err := s.db.Exec(`UPDATE checkpoint SET block_number = $1, updated_at = NOW() WHERE id = 1`, blockNumber)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update checkpoint", err.Error())
	}
	return nil
}

// GetBlockHash returns the recorded hash of a journaled block
func (s *PostgreSQLStorage) GetBlockHash(blockNumber uint64) (string, error) {
	var hash string
	err := s.db.QueryRow(
		`SELECT block_hash FROM chain_events WHERE block_number = $1 LIMIT 1`, blockNumber,
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
func (s *PostgreSQLStorage) GetStorageStats() (*StorageStats, error) {
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

	return stats, nil
}
