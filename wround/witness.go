package wround

import (
	"fmt"
	"net"
	"strconv"

	"github.com/ssc-witness/witness/wcrypto"
)

// Witness is a registered witness as seen in the witnesses table.
type Witness struct {
	Account string

	SigningKey wcrypto.PubKey

	IP      string
	RPCPort int

	// Disabled witnesses remain registered but do not take part in rounds.
	Enabled bool
}

// Address returns the base URL of the witness's RPC endpoint.
func (w Witness) Address() string {
	return "http://" + net.JoinHostPort(w.IP, strconv.Itoa(w.RPCPort))
}

// RoundParams is the singleton record driving round scheduling.
// It is maintained by the witnesses contract;
// the round engine only ever reads it.
type RoundParams struct {
	// Current round number. Only advances externally.
	Round uint64

	// Highest block number the current round's hash covers.
	LastBlockRound uint64

	// The block range of the current round starts just after this block.
	LastVerifiedBlockNumber uint64

	// Account scheduled to propose the current round.
	CurrentWitness string
}

// BlockRange returns the inclusive block range the current round covers.
func (p RoundParams) BlockRange() (start, end uint64) {
	return p.LastVerifiedBlockNumber + 1, p.LastBlockRound
}

func (p RoundParams) String() string {
	start, end := p.BlockRange()
	return fmt.Sprintf("round %d [%d..%d] witness=%s", p.Round, start, end, p.CurrentWitness)
}
