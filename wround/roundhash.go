package wround

import (
	"context"
	"errors"
	"fmt"

	"github.com/ssc-witness/witness/wcrypto"
)

var (
	// ErrBlockNotFound is returned by a BlockHashLoader
	// for blocks that have not been stored locally.
	ErrBlockNotFound = errors.New("block not found")

	// ErrRoundNotReady indicates that part of a round's block range
	// has not been ingested yet. The calculation should be retried later.
	ErrRoundNotReady = errors.New("round block range not fully available")

	ErrEmptyRange = errors.New("empty block range")
)

// BlockHashLoader loads the hash of a locally stored side-chain block.
type BlockHashLoader interface {
	// LoadBlockHash returns an error wrapping ErrBlockNotFound
	// if the block is not stored.
	LoadBlockHash(ctx context.Context, blockNumber uint64) (string, error)
}

// ComputeRoundHash folds the hashes of blocks start through end, inclusive,
// into a single hex digest:
//
//	acc = ""
//	acc = hex(sha256(acc + blockHash(b)))  for b = start..end
//
// The fold is order sensitive, so reordering blocks changes the result.
//
// If any block in the range is missing,
// the returned error wraps ErrRoundNotReady and no digest is returned.
func ComputeRoundHash(ctx context.Context, l BlockHashLoader, start, end uint64) (string, error) {
	if start > end {
		return "", fmt.Errorf("%w: [%d..%d]", ErrEmptyRange, start, end)
	}

	var acc string
	for b := start; b <= end; b++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		h, err := l.LoadBlockHash(ctx, b)
		if err != nil {
			if errors.Is(err, ErrBlockNotFound) {
				return "", fmt.Errorf("%w: block %d missing", ErrRoundNotReady, b)
			}
			return "", fmt.Errorf("failed to load hash for block %d: %w", b, err)
		}

		acc = wcrypto.SHA256Hex(acc + h)
	}

	return acc, nil
}

// ComputeParamsRoundHash computes the round hash for the range described by p.
func ComputeParamsRoundHash(ctx context.Context, l BlockHashLoader, p RoundParams) (string, error) {
	start, end := p.BlockRange()
	return ComputeRoundHash(ctx, l, start, end)
}
