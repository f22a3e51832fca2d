// Package wsqlite reads round state and block hashes
// from a SQLite copy of the side-chain database.
package wsqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ssc-witness/witness/wcrypto"
	"github.com/ssc-witness/witness/wround"
	"github.com/ssc-witness/witness/wstore"
	_ "modernc.org/sqlite" // Registers the "sqlite" driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS params (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	round INTEGER NOT NULL,
	last_block_round INTEGER NOT NULL,
	last_verified_block_number INTEGER NOT NULL,
	current_witness TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schedules (
	round INTEGER NOT NULL,
	position INTEGER NOT NULL,
	witness TEXT NOT NULL,
	PRIMARY KEY (round, position)
);

CREATE TABLE IF NOT EXISTS witnesses (
	account TEXT PRIMARY KEY,
	signing_key TEXT NOT NULL,
	ip TEXT NOT NULL,
	rpc_port INTEGER NOT NULL,
	enabled INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chain (
	block_number INTEGER PRIMARY KEY,
	hash TEXT NOT NULL
);
`

// Store implements both [wstore.RoundStateStore] and [wstore.BlockLedger].
type Store struct {
	db *sqlx.DB
}

var (
	_ wstore.RoundStateStore = (*Store)(nil)
	_ wstore.BlockLedger     = (*Store)(nil)
)

// Open opens the database at path, creating the tables if they do not exist.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database %q: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type paramsRow struct {
	Round                   uint64 `db:"round"`
	LastBlockRound          uint64 `db:"last_block_round"`
	LastVerifiedBlockNumber uint64 `db:"last_verified_block_number"`
	CurrentWitness          string `db:"current_witness"`
}

func (s *Store) LoadRoundParams(ctx context.Context) (wround.RoundParams, error) {
	var row paramsRow
	err := s.db.GetContext(ctx, &row, `SELECT round, last_block_round, last_verified_block_number, current_witness
FROM params WHERE id = 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wround.RoundParams{}, wstore.ErrParamsNotFound
		}
		return wround.RoundParams{}, fmt.Errorf("failed to load round params: %w", err)
	}

	return wround.RoundParams{
		Round:                   row.Round,
		LastBlockRound:          row.LastBlockRound,
		LastVerifiedBlockNumber: row.LastVerifiedBlockNumber,
		CurrentWitness:          row.CurrentWitness,
	}, nil
}

func (s *Store) LoadSchedule(ctx context.Context, round uint64) ([]string, error) {
	var accounts []string
	err := s.db.SelectContext(ctx, &accounts, `SELECT witness FROM schedules
WHERE round = ? ORDER BY position`, round)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule for round %d: %w", round, err)
	}
	return accounts, nil
}

type witnessRow struct {
	Account    string `db:"account"`
	SigningKey string `db:"signing_key"`
	IP         string `db:"ip"`
	RPCPort    int    `db:"rpc_port"`
	Enabled    bool   `db:"enabled"`
}

func (s *Store) LoadWitness(ctx context.Context, account string) (wround.Witness, error) {
	var row witnessRow
	err := s.db.GetContext(ctx, &row, `SELECT account, signing_key, ip, rpc_port, enabled
FROM witnesses WHERE account = ?`, account)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wround.Witness{}, fmt.Errorf("%w: %q", wstore.ErrWitnessNotFound, account)
		}
		return wround.Witness{}, fmt.Errorf("failed to load witness %q: %w", account, err)
	}

	key, err := wcrypto.ParsePubKey(row.SigningKey)
	if err != nil {
		return wround.Witness{}, fmt.Errorf("witness %q has invalid signing key: %w", account, err)
	}

	return wround.Witness{
		Account:    row.Account,
		SigningKey: key,
		IP:         row.IP,
		RPCPort:    row.RPCPort,
		Enabled:    row.Enabled,
	}, nil
}

func (s *Store) LoadBlockHash(ctx context.Context, blockNumber uint64) (string, error) {
	var h string
	err := s.db.GetContext(ctx, &h, `SELECT hash FROM chain WHERE block_number = ?`, blockNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %d", wstore.ErrBlockNotFound, blockNumber)
		}
		return "", fmt.Errorf("failed to load block %d: %w", blockNumber, err)
	}
	return h, nil
}
