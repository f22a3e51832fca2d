// Package wstore defines the read-only views of side-chain state
// that the round engine consumes.
//
// The records behind these interfaces are produced by the contract engine
// and block ingestion, which are outside this module.
package wstore

import (
	"context"
	"errors"

	"github.com/ssc-witness/witness/wround"
)

var (
	ErrWitnessNotFound = errors.New("witness not found")
	ErrParamsNotFound  = errors.New("round params not initialized")

	// ErrBlockNotFound is the same value as [wround.ErrBlockNotFound],
	// so round hash calculation treats a store miss as an incomplete range.
	ErrBlockNotFound = wround.ErrBlockNotFound
)

// RoundStateStore reads the witnesses contract's tables.
type RoundStateStore interface {
	// LoadRoundParams returns ErrParamsNotFound
	// if no schedule has ever been computed.
	LoadRoundParams(ctx context.Context) (wround.RoundParams, error)

	// LoadSchedule returns the accounts scheduled for round,
	// or an empty slice if the round has no schedule.
	LoadSchedule(ctx context.Context, round uint64) ([]string, error)

	// LoadWitness returns ErrWitnessNotFound for unregistered accounts.
	LoadWitness(ctx context.Context, account string) (wround.Witness, error)
}

// BlockLedger reads locally stored side-chain blocks.
type BlockLedger interface {
	wround.BlockHashLoader
}

// LoadScheduledWitnesses resolves every account in round's schedule.
// Unregistered accounts are skipped, so the result may be shorter than the schedule.
func LoadScheduledWitnesses(ctx context.Context, s RoundStateStore, round uint64) ([]wround.Witness, error) {
	accounts, err := s.LoadSchedule(ctx, round)
	if err != nil {
		return nil, err
	}

	out := make([]wround.Witness, 0, len(accounts))
	for _, a := range accounts {
		w, err := s.LoadWitness(ctx, a)
		if err != nil {
			if errors.Is(err, ErrWitnessNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
