package wround

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ssc-witness/witness/wcrypto"
)

// RoundProposal is sent from the round's witness to every other scheduled witness.
type RoundProposal struct {
	Round     uint64 `json:"round"`
	RoundHash string `json:"roundHash"`
	Signature string `json:"signature"`
	Account   string `json:"account"`
}

// RoundVerification is a verifier's counter-signature over a proposed round hash.
type RoundVerification struct {
	Round     uint64 `json:"round"`
	RoundHash string `json:"roundHash"`
	Signature string `json:"signature"`
}

// ParseRoundProposal strictly decodes a proposal from JSON.
//
// Unlike a plain json.Unmarshal,
// every shape problem is reported as a CodeInvalidParams VerificationError,
// including wrong field types and non-integral round numbers.
func ParseRoundProposal(data []byte) (RoundProposal, error) {
	var raw struct {
		Round     any `json:"round"`
		RoundHash any `json:"roundHash"`
		Signature any `json:"signature"`
		Account   any `json:"account"`
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return RoundProposal{}, NewVerificationError(CodeInvalidParams, "malformed proposal: %v", err)
	}

	var p RoundProposal

	n, ok := raw.Round.(json.Number)
	if !ok {
		return p, NewVerificationError(CodeInvalidParams, "round must be a number")
	}
	r, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return p, NewVerificationError(CodeInvalidParams, "round must be a positive integer, got %s", n)
	}
	p.Round = r

	if p.RoundHash, ok = raw.RoundHash.(string); !ok {
		return p, NewVerificationError(CodeInvalidParams, "roundHash must be a string")
	}
	if p.Signature, ok = raw.Signature.(string); !ok {
		return p, NewVerificationError(CodeInvalidParams, "signature must be a string")
	}
	if p.Account, ok = raw.Account.(string); !ok {
		return p, NewVerificationError(CodeInvalidParams, "account must be a string")
	}

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate checks the shape of an already decoded proposal.
func (p RoundProposal) Validate() error {
	if p.Round == 0 {
		return NewVerificationError(CodeInvalidParams, "round must be a positive integer")
	}
	if !wcrypto.IsHexDigest(p.RoundHash) {
		return NewVerificationError(CodeInvalidParams, "roundHash must be 64 hex characters")
	}
	if p.Signature == "" {
		return NewVerificationError(CodeInvalidParams, "signature is required")
	}
	if p.Account == "" {
		return NewVerificationError(CodeInvalidParams, "account is required")
	}
	return nil
}

// RoundSignature is one witness's signature over a round hash.
// On the wire it is the two-element array [account, signature].
type RoundSignature struct {
	Account   string
	Signature string
}

func (s RoundSignature) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{s.Account, s.Signature})
}

func (s *RoundSignature) UnmarshalJSON(b []byte) error {
	var pair []string
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("round signature must be an [account, signature] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("round signature must have 2 elements, got %d", len(pair))
	}
	s.Account, s.Signature = pair[0], pair[1]
	return nil
}

// FinalizedRound is a round hash together with the quorum of signatures over it.
// Signatures are in arrival order.
type FinalizedRound struct {
	Round      uint64           `json:"round"`
	RoundHash  string           `json:"roundHash"`
	Signatures []RoundSignature `json:"signatures"`
}
