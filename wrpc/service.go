package wrpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/ssc-witness/witness/wround"
)

// ProposalHandler verifies a proposal and counter-signs it.
//
// Refusals should be returned as *wround.VerificationError;
// any other error is reported to the caller as an internal error.
type ProposalHandler interface {
	HandleProposal(ctx context.Context, p wround.RoundProposal) (wround.RoundVerification, error)
}

// ProposeRoundHashArgs are the params of a proposeRoundHash request.
//
// The proposal is kept raw so that it can be checked strictly
// before any field is trusted.
type ProposeRoundHashArgs struct {
	Round json.RawMessage `json:"round"`
}

type service struct {
	log *slog.Logger
	h   ProposalHandler
}

func (s *service) ProposeRoundHash(r *http.Request, args *ProposeRoundHashArgs, reply *wround.RoundVerification) error {
	p, err := wround.ParseRoundProposal(args.Round)
	if err != nil {
		s.log.Debug("Rejecting malformed proposal", "err", err)
		return toJSONError(err)
	}

	v, err := s.h.HandleProposal(r.Context(), p)
	if err != nil {
		return toJSONError(err)
	}

	*reply = v
	return nil
}

func toJSONError(err error) *json2.Error {
	if ve, ok := wround.AsVerificationError(err); ok {
		return &json2.Error{
			Code:    json2.ErrorCode(ve.Code),
			Message: ve.Message,
		}
	}

	return &json2.Error{
		Code:    json2.ErrorCode(wround.CodeInternalError),
		Message: "internal error",
	}
}
