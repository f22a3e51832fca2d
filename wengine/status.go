package wengine

import (
	"fmt"
	"time"
)

// State is the leader-side state of the engine.
type State uint8

const (
	StateIdle State = iota
	StateProposing
	StateCollectingSignatures
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateProposing:
		return "Proposing"
	case StateCollectingSignatures:
		return "CollectingSignatures"
	case StateFinalizing:
		return "Finalizing"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Account string `json:"account"`
	State   State  `json:"state"`

	// Round params as of the last tick.
	Round          uint64 `json:"round"`
	CurrentWitness string `json:"currentWitness"`

	LastProposedRound uint64 `json:"lastProposedRound"`
	LastVerifiedRound uint64 `json:"lastVerifiedRound"`

	Proposal    *ProposalStatus `json:"proposal,omitempty"`
	LastDispute *Dispute        `json:"lastDispute,omitempty"`
}

// ProposalStatus describes the round this node is collecting signatures for.
type ProposalStatus struct {
	Round     uint64   `json:"round"`
	RoundHash string   `json:"roundHash"`
	Signers   []string `json:"signers"`
	Required  int      `json:"required"`
}

// Dispute records two witnesses computing different hashes for the same round.
type Dispute struct {
	Round uint64 `json:"round"`

	// The other side of the dispute.
	Account string `json:"account"`

	// Hash claimed by the proposer, and the hash the verifier computed.
	ProposedHash string `json:"proposedHash"`
	ComputedHash string `json:"computedHash,omitempty"`

	At time.Time `json:"at"`
}
