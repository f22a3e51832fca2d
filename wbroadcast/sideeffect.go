// Package wbroadcast submits finalized rounds to the backing chain.
package wbroadcast

import (
	"context"

	"github.com/ssc-witness/witness/wround"
)

// ContractAction is the side-chain contract call carried inside a side effect.
type ContractAction struct {
	ContractName    string `json:"contractName"`
	ContractAction  string `json:"contractAction"`
	ContractPayload any    `json:"contractPayload"`
}

// SideEffect is a custom JSON operation on the backing chain,
// authorized by Account and tagged with the side-chain's ChainID.
type SideEffect struct {
	ChainID string
	Account string
	Action  ContractAction
}

// NewProposeRound returns the side effect that finalizes fr
// through the witnesses contract.
func NewProposeRound(chainID, account string, fr wround.FinalizedRound) SideEffect {
	return SideEffect{
		ChainID: chainID,
		Account: account,
		Action: ContractAction{
			ContractName:    "witnesses",
			ContractAction:  "proposeRound",
			ContractPayload: fr,
		},
	}
}

// SideEffectClient submits side effects to one backing-chain access point.
//
// A client is used for a single attempt and then closed.
type SideEffectClient interface {
	SubmitSideEffect(ctx context.Context, se SideEffect) error
	Close() error
}

// ClientFactory returns a new client for endpoint.
type ClientFactory func(endpoint string) (SideEffectClient, error)
