package wround

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/ssc-witness/witness/wcrypto"
)

// DefaultRequiredSignatures is the default quorum threshold.
const DefaultRequiredSignatures = 3

var ErrInsufficientSchedule = errors.New("schedule has fewer witnesses than required signatures")

// AddSignatureResult is the outcome of [*SignatureCollection.AddSignature].
type AddSignatureResult uint8

const (
	_ AddSignatureResult = iota // Invalid.

	AddSignatureAccepted  // New distinct signer recorded.
	AddSignatureDuplicate // Signer already recorded; no change.

	// The signer is not part of the round's schedule.
	AddSignatureNotScheduled

	// The signature does not verify against the signer's key.
	AddSignatureInvalid
)

func (r AddSignatureResult) String() string {
	switch r {
	case AddSignatureAccepted:
		return "Accepted"
	case AddSignatureDuplicate:
		return "Duplicate"
	case AddSignatureNotScheduled:
		return "NotScheduled"
	case AddSignatureInvalid:
		return "Invalid"
	default:
		return fmt.Sprintf("AddSignatureResult(%d)", uint8(r))
	}
}

// SignatureCollection aggregates witness signatures over a single round hash
// until a fixed number of distinct witnesses have signed.
//
// One witness is one vote.
// The set of signers is tracked as a bit set over schedule indices,
// and the signatures themselves are kept in arrival order.
//
// SignatureCollection is not safe for concurrent use.
type SignatureCollection struct {
	roundHash string
	digest    []byte

	keys    []wcrypto.PubKey
	keyIdxs map[string]int

	signed bitset.BitSet
	sigs   []RoundSignature

	required int
}

// NewSignatureCollection returns an empty collection
// over the scheduled witnesses.
func NewSignatureCollection(roundHash string, schedule []Witness, required int) (*SignatureCollection, error) {
	if required < 1 {
		return nil, fmt.Errorf("required signatures must be positive, got %d", required)
	}
	if len(schedule) < required {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSchedule, len(schedule), required)
	}

	c := &SignatureCollection{
		roundHash: roundHash,
		digest:    wcrypto.Digest(roundHash),

		keys:    make([]wcrypto.PubKey, len(schedule)),
		keyIdxs: make(map[string]int, len(schedule)),

		sigs: make([]RoundSignature, 0, required),

		required: required,
	}

	for i, w := range schedule {
		if _, ok := c.keyIdxs[w.Account]; ok {
			return nil, fmt.Errorf("witness %q scheduled more than once", w.Account)
		}
		c.keyIdxs[w.Account] = i
		c.keys[i] = w.SigningKey
	}

	return c, nil
}

// AddSignature records account's hex signature over the round hash.
//
// Re-adding a witness that already signed is a no-op reporting AddSignatureDuplicate.
// The returned bool reports whether the quorum has been reached
// after applying the signature.
func (c *SignatureCollection) AddSignature(account, sigHex string) (AddSignatureResult, bool) {
	idx, ok := c.keyIdxs[account]
	if !ok {
		return AddSignatureNotScheduled, c.QuorumReached()
	}

	if c.signed.Test(uint(idx)) {
		return AddSignatureDuplicate, c.QuorumReached()
	}

	if !wcrypto.VerifyDigest(c.roundHash, sigHex, c.keys[idx]) {
		return AddSignatureInvalid, c.QuorumReached()
	}

	c.signed.Set(uint(idx))
	c.sigs = append(c.sigs, RoundSignature{Account: account, Signature: sigHex})

	return AddSignatureAccepted, c.QuorumReached()
}

// Count returns the number of distinct signers.
func (c *SignatureCollection) Count() int {
	return int(c.signed.Count())
}

func (c *SignatureCollection) Required() int {
	return c.required
}

func (c *SignatureCollection) QuorumReached() bool {
	return c.Count() >= c.required
}

// HasSigned reports whether account's signature has been recorded.
func (c *SignatureCollection) HasSigned(account string) bool {
	idx, ok := c.keyIdxs[account]
	return ok && c.signed.Test(uint(idx))
}

// Signatures returns a copy of the recorded signatures in arrival order.
func (c *SignatureCollection) Signatures() []RoundSignature {
	return slices.Clone(c.sigs)
}
