package wsqlite

import (
	"context"
	"fmt"

	"github.com/ssc-witness/witness/wround"
)

// The write methods exist for tooling and tests.
// In production the tables are maintained by the contract engine.

func (s *Store) SaveRoundParams(ctx context.Context, p wround.RoundParams) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO params
(id, round, last_block_round, last_verified_block_number, current_witness)
VALUES (1, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	round = excluded.round,
	last_block_round = excluded.last_block_round,
	last_verified_block_number = excluded.last_verified_block_number,
	current_witness = excluded.current_witness`,
		p.Round, p.LastBlockRound, p.LastVerifiedBlockNumber, p.CurrentWitness,
	)
	if err != nil {
		return fmt.Errorf("failed to save round params: %w", err)
	}
	return nil
}

func (s *Store) SaveSchedule(ctx context.Context, round uint64, accounts []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE round = ?`, round); err != nil {
		return fmt.Errorf("failed to clear schedule for round %d: %w", round, err)
	}
	for i, a := range accounts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schedules (round, position, witness) VALUES (?, ?, ?)`,
			round, i, a,
		); err != nil {
			return fmt.Errorf("failed to save schedule for round %d: %w", round, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schedule for round %d: %w", round, err)
	}
	return nil
}

func (s *Store) SaveWitness(ctx context.Context, w wround.Witness) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO witnesses
(account, signing_key, ip, rpc_port, enabled)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(account) DO UPDATE SET
	signing_key = excluded.signing_key,
	ip = excluded.ip,
	rpc_port = excluded.rpc_port,
	enabled = excluded.enabled`,
		w.Account, w.SigningKey.String(), w.IP, w.RPCPort, w.Enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to save witness %q: %w", w.Account, err)
	}
	return nil
}

func (s *Store) SaveBlockHash(ctx context.Context, blockNumber uint64, hash string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO chain (block_number, hash) VALUES (?, ?)
ON CONFLICT(block_number) DO UPDATE SET hash = excluded.hash`, blockNumber, hash)
	if err != nil {
		return fmt.Errorf("failed to save block %d: %w", blockNumber, err)
	}
	return nil
}
