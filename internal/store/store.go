// Package store is the Postgres-backed index database: the durable home for
// everything the ledger sync mirrors, plus contract, delegation, account,
// and provisioning state. It follows the connect/ping/init-schema/batched-
// upsert shape of the pack's flowctl Postgres sink, generalized from a
// single events table to the full set of index tables this node needs.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// errNoRows aliases sql.ErrNoRows so sibling files in this package can
// compare against it without each importing database/sql solely for that.
var errNoRows = sql.ErrNoRows

// Store is a *sql.DB handle plus the schema it owns. Every package-level
// Store interface (ledger.PositionStore/Dispatcher, rewards.ChainInfo/
// RewardState/ProviderRegistry, contract.Store, delegation.Store,
// account.Store, provisioning.Store) is implemented as a method set on
// *Store across the sibling files in this package.
type Store struct {
	db  *sql.DB
	log *logrus.Logger
}

// Open connects to the Postgres index database at dsn, verifies
// connectivity, and initializes the schema.
func Open(dsn string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.New()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_state (
			id INTEGER PRIMARY KEY DEFAULT 1,
			last_sync_position BIGINT NOT NULL DEFAULT 0,
			CHECK (id = 1)
		);

		CREATE TABLE IF NOT EXISTS blocks (
			seq BIGSERIAL PRIMARY KEY,
			hash BYTEA NOT NULL,
			timestamp_ns BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_blocks_timestamp ON blocks(timestamp_ns);

		CREATE TABLE IF NOT EXISTS providers (
			pubkey BYTEA PRIMARY KEY,
			signature BYTEA NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			contacts JSONB,
			last_heartbeat_ns BIGINT,
			registered_at_ns BIGINT NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS users (
			pubkey BYTEA PRIMARY KEY,
			signature BYTEA NOT NULL
		);

		CREATE TABLE IF NOT EXISTS check_ins (
			pubkey BYTEA NOT NULL,
			memo TEXT,
			nonce_sig BYTEA NOT NULL,
			block_seq BIGINT NOT NULL DEFAULT 0,
			recorded_at TIMESTAMPTZ DEFAULT now(),
			PRIMARY KEY (pubkey, block_seq)
		);

		CREATE TABLE IF NOT EXISTS reward_state (
			id INTEGER PRIMARY KEY DEFAULT 1,
			last_distribution_ts BIGINT,
			CHECK (id = 1)
		);

		CREATE TABLE IF NOT EXISTS accounts (
			id BYTEA PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT,
			display_name TEXT,
			is_admin BOOLEAN NOT NULL DEFAULT false,
			email_verified BOOLEAN NOT NULL DEFAULT false,
			created_at_ns BIGINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS public_keys (
			id BYTEA PRIMARY KEY,
			account_id BYTEA NOT NULL REFERENCES accounts(id),
			public_key BYTEA NOT NULL UNIQUE,
			is_active BOOLEAN NOT NULL DEFAULT true,
			added_at_ns BIGINT NOT NULL,
			disabled_at_ns BIGINT,
			disabled_by_key_id BYTEA
		);
		CREATE INDEX IF NOT EXISTS idx_public_keys_account ON public_keys(account_id);

		CREATE TABLE IF NOT EXISTS oauth_identities (
			account_id BYTEA NOT NULL REFERENCES accounts(id),
			provider TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			PRIMARY KEY (provider, subject_id)
		);

		CREATE TABLE IF NOT EXISTS delegations (
			agent_pubkey BYTEA PRIMARY KEY,
			provider_pubkey BYTEA NOT NULL,
			permissions JSONB NOT NULL,
			expires_at_ns BIGINT,
			label TEXT,
			signature BYTEA NOT NULL,
			created_at_ns BIGINT NOT NULL,
			revoked_at_ns BIGINT
		);

		CREATE TABLE IF NOT EXISTS heartbeats (
			provider_pubkey BYTEA PRIMARY KEY,
			last_heartbeat_ns BIGINT NOT NULL,
			version TEXT,
			provisioner_type TEXT,
			capabilities JSONB,
			active_contracts INTEGER NOT NULL DEFAULT 0,
			online BOOLEAN NOT NULL DEFAULT false
		);

		CREATE TABLE IF NOT EXISTS contracts (
			id BYTEA PRIMARY KEY,
			requester_pubkey BYTEA NOT NULL,
			provider_pubkey BYTEA NOT NULL,
			offering_db_id BIGINT NOT NULL,
			payment_amount_e9s BIGINT NOT NULL,
			price_per_hour_e9s BIGINT NOT NULL,
			currency INTEGER NOT NULL,
			payment_method INTEGER NOT NULL,
			payment_status INTEGER NOT NULL,
			duration_hours INTEGER NOT NULL,
			start_ns BIGINT,
			end_ns BIGINT,
			status INTEGER NOT NULL,
			icpay_payment_id TEXT,
			stripe_payment_intent_id TEXT,
			stripe_checkout_url TEXT,
			receipt_number BIGINT,
			requester_contact TEXT,
			ssh_pubkey TEXT,
			memo TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_contracts_provider ON contracts(provider_pubkey);
		CREATE INDEX IF NOT EXISTS idx_contracts_requester ON contracts(requester_pubkey);

		CREATE SEQUENCE IF NOT EXISTS receipt_number_seq START 1;

		CREATE TABLE IF NOT EXISTS contract_extensions (
			contract_id BYTEA NOT NULL REFERENCES contracts(id),
			extension_hours INTEGER NOT NULL,
			amount_e9s BIGINT NOT NULL,
			memo TEXT,
			created_at_ns BIGINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cloud_resources (
			id TEXT PRIMARY KEY,
			cloud_account_id TEXT NOT NULL,
			external_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			server_type TEXT NOT NULL,
			location TEXT NOT NULL,
			image TEXT NOT NULL,
			ssh_pubkey TEXT,
			ssh_key_id TEXT,
			backend_type INTEGER NOT NULL,
			credentials_encrypted_hex TEXT NOT NULL,
			status INTEGER NOT NULL,
			public_ip TEXT,
			gateway_slug TEXT,
			gateway_ssh_port INTEGER,
			gateway_port_range_start INTEGER,
			gateway_port_range_end INTEGER,
			provisioning_locked_at TIMESTAMPTZ,
			provisioning_locked_by TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_cloud_resources_status ON cloud_resources(status);

		INSERT INTO sync_state (id, last_sync_position) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;
		INSERT INTO reward_state (id, last_distribution_ts) VALUES (1, NULL) ON CONFLICT (id) DO NOTHING;
	`)
	if err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}
