package wround

import (
	"context"
	"fmt"

	"github.com/ssc-witness/witness/wcrypto"
)

// ProposedRound is the round a node is trying to finalize as its round's witness.
// A node holds at most one at a time.
type ProposedRound struct {
	Round     uint64
	RoundHash string

	// The proposer's own signature, sent in the RoundProposal.
	Signature string

	Sigs *SignatureCollection
}

// NewProposedRound signs roundHash with signer
// and returns a ProposedRound whose collection already holds that self-signature.
func NewProposedRound(
	ctx context.Context,
	round uint64, roundHash string,
	account string, signer wcrypto.Signer,
	schedule []Witness, required int,
) (*ProposedRound, error) {
	sigs, err := NewSignatureCollection(roundHash, schedule, required)
	if err != nil {
		return nil, err
	}

	sig, err := wcrypto.SignDigest(ctx, signer, roundHash)
	if err != nil {
		return nil, err
	}

	if res, _ := sigs.AddSignature(account, sig); res != AddSignatureAccepted {
		return nil, fmt.Errorf("failed to add own signature to round %d: %s", round, res)
	}

	return &ProposedRound{
		Round:     round,
		RoundHash: roundHash,
		Signature: sig,
		Sigs:      sigs,
	}, nil
}

// Proposal returns the message to send to the other scheduled witnesses.
func (p *ProposedRound) Proposal(account string) RoundProposal {
	return RoundProposal{
		Round:     p.Round,
		RoundHash: p.RoundHash,
		Signature: p.Signature,
		Account:   account,
	}
}

// Finalized returns the round with its collected signatures.
func (p *ProposedRound) Finalized() FinalizedRound {
	return FinalizedRound{
		Round:      p.Round,
		RoundHash:  p.RoundHash,
		Signatures: p.Sigs.Signatures(),
	}
}
