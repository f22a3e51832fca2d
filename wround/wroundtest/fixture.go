// Package wroundtest contains fixtures for tests involving multiple witnesses.
package wroundtest

import (
	"context"
	"fmt"

	"github.com/ssc-witness/witness/wcrypto"
	"github.com/ssc-witness/witness/wcrypto/wcryptotest"
	"github.com/ssc-witness/witness/wround"
	"github.com/ssc-witness/witness/wstore/wmemstore"
)

// Fixture is a set of deterministic witnesses
// with helpers for building rounds over deterministic blocks.
type Fixture struct {
	Signers   []wcrypto.Secp256k1Signer
	Witnesses []wround.Witness
}

// NewFixture returns a Fixture with n enabled witnesses
// named witness1 through witnessN.
func NewFixture(n int) *Fixture {
	signers := wcryptotest.DeterministicSigners(n)
	ws := make([]wround.Witness, n)
	for i := range ws {
		ws[i] = wround.Witness{
			Account:    fmt.Sprintf("witness%d", i+1),
			SigningKey: signers[i].PubKey(),
			IP:         "127.0.0.1",
			RPCPort:    5001 + i,
			Enabled:    true,
		}
	}

	return &Fixture{
		Signers:   signers,
		Witnesses: ws,
	}
}

func (f *Fixture) Accounts() []string {
	out := make([]string, len(f.Witnesses))
	for i, w := range f.Witnesses {
		out[i] = w.Account
	}
	return out
}

// BlockHash returns the deterministic hash of block n.
func (f *Fixture) BlockHash(n uint64) string {
	return wcrypto.SHA256Hex(fmt.Sprintf("block-%d", n))
}

// RoundHash computes the expected round hash over the fixture's blocks start..end.
func (f *Fixture) RoundHash(start, end uint64) string {
	var acc string
	for b := start; b <= end; b++ {
		acc = wcrypto.SHA256Hex(acc + f.BlockHash(b))
	}
	return acc
}

// Params returns round parameters for round covering start..end,
// led by the witness at leaderIdx.
func (f *Fixture) Params(round, start, end uint64, leaderIdx int) wround.RoundParams {
	return wround.RoundParams{
		Round:                   round,
		LastBlockRound:          end,
		LastVerifiedBlockNumber: start - 1,
		CurrentWitness:          f.Witnesses[leaderIdx].Account,
	}
}

// Sign returns witness idx's hex signature over roundHash.
func (f *Fixture) Sign(idx int, roundHash string) string {
	sig, err := wcrypto.SignDigest(context.Background(), f.Signers[idx], roundHash)
	if err != nil {
		panic(fmt.Errorf("fixture signing failed: %w", err))
	}
	return sig
}

// Proposal returns a correctly signed proposal from witness idx.
func (f *Fixture) Proposal(idx int, round uint64, roundHash string) wround.RoundProposal {
	return wround.RoundProposal{
		Round:     round,
		RoundHash: roundHash,
		Signature: f.Sign(idx, roundHash),
		Account:   f.Witnesses[idx].Account,
	}
}

// NewStores returns in-memory stores holding the fixture's witnesses,
// params as the current round, a schedule of every witness for that round,
// and the deterministic hashes of blocks 1 through lastBlock.
func (f *Fixture) NewStores(params wround.RoundParams, lastBlock uint64) (*wmemstore.RoundStateStore, *wmemstore.BlockLedger) {
	rs := wmemstore.NewRoundStateStore()
	for _, w := range f.Witnesses {
		rs.PutWitness(w)
	}
	rs.SetSchedule(params.Round, f.Accounts())
	rs.SetRoundParams(params)

	bl := wmemstore.NewBlockLedger()
	for b := uint64(1); b <= lastBlock; b++ {
		bl.PutBlockHash(b, f.BlockHash(b))
	}

	return rs, bl
}
