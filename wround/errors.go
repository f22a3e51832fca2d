package wround

import (
	"errors"
	"fmt"
)

// ErrorCode identifies why a verifier refused to counter-sign a proposal.
// Codes are carried as JSON-RPC error codes on the wire.
type ErrorCode int

const (
	CodeInvalidParams ErrorCode = -32602
	CodeInternalError ErrorCode = -32603

	// The verifier has already moved past the proposed round.
	CodeRoundTooLow ErrorCode = 1

	// The proposer is not the verifier's current witness.
	CodeWrongWitness ErrorCode = 2

	// The proposer has no registered signing key.
	CodeUnknownWitness ErrorCode = 3

	// The proposal signature did not verify.
	CodeInvalidSignature ErrorCode = 4

	// The verifier computed a different round hash for the same range.
	CodeHashMismatch ErrorCode = 5

	// The verifier has not ingested the whole block range yet.
	CodeNotReady ErrorCode = 6
)

func (c ErrorCode) String() string {
	switch c {
	case CodeInvalidParams:
		return "InvalidParams"
	case CodeInternalError:
		return "InternalError"
	case CodeRoundTooLow:
		return "RoundTooLow"
	case CodeWrongWitness:
		return "WrongWitness"
	case CodeUnknownWitness:
		return "UnknownWitness"
	case CodeInvalidSignature:
		return "InvalidSignature"
	case CodeHashMismatch:
		return "HashMismatch"
	case CodeNotReady:
		return "NotReady"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// VerificationError is the error a verifier returns instead of a counter-signature.
type VerificationError struct {
	Code    ErrorCode
	Message string
}

func NewVerificationError(code ErrorCode, format string, args ...any) *VerificationError {
	return &VerificationError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retryable reports whether the proposer should retry this verifier once,
// because the two nodes' views of the round may still converge.
func (e *VerificationError) Retryable() bool {
	switch e.Code {
	case CodeRoundTooLow, CodeWrongWitness, CodeNotReady:
		return true
	default:
		return false
	}
}

// AsVerificationError unwraps err into a *VerificationError if it contains one.
func AsVerificationError(err error) (*VerificationError, bool) {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
