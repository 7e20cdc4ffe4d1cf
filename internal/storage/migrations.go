package storage

import (
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create projected entity tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS dapps (
					address TEXT PRIMARY KEY,
					owner TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					updated_at DATETIME NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_dapps_status ON dapps(status);

				CREATE TABLE IF NOT EXISTS claims (
					id TEXT PRIMARY KEY,
					claim_type TEXT NOT NULL,
					claimer TEXT NOT NULL DEFAULT '',
					arbiter TEXT NOT NULL DEFAULT '',
					withdrawn BOOLEAN NOT NULL DEFAULT FALSE,
					amount TEXT NOT NULL DEFAULT '0',
					updated_at DATETIME NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_claims_claimer ON claims(claimer);
				CREATE INDEX IF NOT EXISTS idx_claims_type ON claims(claim_type);

				CREATE TABLE IF NOT EXISTS config_entries (
					key TEXT PRIMARY KEY,
					value INTEGER NOT NULL,
					updated_at DATETIME NOT NULL
				);

				CREATE TABLE IF NOT EXISTS nft_ownership (
					token_id TEXT PRIMARY KEY,
					owner TEXT NOT NULL,
					updated_at DATETIME NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_nft_owner ON nft_ownership(owner);
			`,
		},
		{
			Version:     "002",
			Description: "Create event journal table",
			SQL: `
				CREATE TABLE IF NOT EXISTS chain_events (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					block_number INTEGER NOT NULL,
					log_index INTEGER NOT NULL,
					block_hash TEXT NOT NULL,
					tx_hash TEXT NOT NULL,
					payload TEXT NOT NULL,
					timestamp DATETIME NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_chain_events_order ON chain_events(block_number, log_index);
				CREATE INDEX IF NOT EXISTS idx_chain_events_name ON chain_events(name);
			`,
		},
		{
			Version:     "003",
			Description: "Create checkpoint table",
			SQL: `
				CREATE TABLE IF NOT EXISTS checkpoint (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					block_number INTEGER NOT NULL DEFAULT 0,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
				INSERT OR IGNORE INTO checkpoint (id, block_number) VALUES (1, 0);
			`,
		},
	}
}

// GetPostgreSQLMigrations returns PostgreSQL migration scripts
func GetPostgreSQLMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create projected entity tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS dapps (
					address TEXT PRIMARY KEY,
					owner TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_dapps_status ON dapps(status);

				CREATE TABLE IF NOT EXISTS claims (
					id TEXT PRIMARY KEY,
					claim_type TEXT NOT NULL,
					claimer TEXT NOT NULL DEFAULT '',
					arbiter TEXT NOT NULL DEFAULT '',
					withdrawn BOOLEAN NOT NULL DEFAULT FALSE,
					amount TEXT NOT NULL DEFAULT '0',
					updated_at TIMESTAMPTZ NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_claims_claimer ON claims(claimer);
				CREATE INDEX IF NOT EXISTS idx_claims_type ON claims(claim_type);

				CREATE TABLE IF NOT EXISTS config_entries (
					key TEXT PRIMARY KEY,
					value BIGINT NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE TABLE IF NOT EXISTS nft_ownership (
					token_id TEXT PRIMARY KEY,
					owner TEXT NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_nft_owner ON nft_ownership(owner);
			`,
		},
		{
			Version:     "002",
			Description: "Create event journal table",
			SQL: `
				CREATE TABLE IF NOT EXISTS chain_events (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					block_number BIGINT NOT NULL,
					log_index INTEGER NOT NULL,
					block_hash TEXT NOT NULL,
					tx_hash TEXT NOT NULL,
					payload TEXT NOT NULL,
					timestamp TIMESTAMPTZ NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_chain_events_order ON chain_events(block_number, log_index);
				CREATE INDEX IF NOT EXISTS idx_chain_events_name ON chain_events(name);
			`,
		},
		{
			Version:     "003",
			Description: "Create checkpoint table",
			SQL: `
				CREATE TABLE IF NOT EXISTS checkpoint (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					block_number BIGINT NOT NULL DEFAULT 0,
					updated_at TIMESTAMPTZ DEFAULT NOW()
				);
				INSERT INTO checkpoint (id, block_number) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;
			`,
		},
	}
}
