package wengine

import (
	"context"
	"errors"
	"time"

	"github.com/ssc-witness/witness/internal/wchan"
	"github.com/ssc-witness/witness/internal/wlog"
	"github.com/ssc-witness/witness/wcrypto"
	"github.com/ssc-witness/witness/wround"
	"github.com/ssc-witness/witness/wstore"
)

// HandleProposal verifies a proposal from another witness
// and returns this node's counter-signature over its round hash.
//
// Refusals are returned as *wround.VerificationError.
func (e *Engine) HandleProposal(ctx context.Context, p wround.RoundProposal) (wround.RoundVerification, error) {
	v, err := e.handleProposal(ctx, p)
	if err != nil {
		if ve, ok := wround.AsVerificationError(err); ok {
			e.metrics.ProposalHandled(ve.Code.String())
		} else {
			e.metrics.ProposalHandled(wround.CodeInternalError.String())
		}
		return v, err
	}

	e.metrics.ProposalHandled("ok")
	return v, nil
}

func (e *Engine) handleProposal(ctx context.Context, p wround.RoundProposal) (wround.RoundVerification, error) {
	var v wround.RoundVerification

	if err := p.Validate(); err != nil {
		return v, err
	}

	log := e.log.With("round", p.Round, "proposer", p.Account)

	params, err := e.rs.LoadRoundParams(ctx)
	if err != nil {
		if errors.Is(err, wstore.ErrParamsNotFound) {
			return v, wround.NewVerificationError(wround.CodeNotReady, "round params not initialized")
		}
		log.Warn("Failed to load round params", "err", err)
		return v, wround.NewVerificationError(wround.CodeInternalError, "failed to load round params")
	}

	if params.Round > p.Round {
		return v, wround.NewVerificationError(
			wround.CodeRoundTooLow, "round %d is behind current round %d", p.Round, params.Round,
		)
	}
	if params.CurrentWitness != p.Account {
		return v, wround.NewVerificationError(
			wround.CodeWrongWitness, "%q is not the current witness", p.Account,
		)
	}
	if params.Round < p.Round {
		return v, wround.NewVerificationError(
			wround.CodeNotReady, "this node has not reached round %d (at %d)", p.Round, params.Round,
		)
	}

	w, err := e.rs.LoadWitness(ctx, p.Account)
	if err != nil {
		if errors.Is(err, wstore.ErrWitnessNotFound) {
			return v, wround.NewVerificationError(wround.CodeUnknownWitness, "no signing key for %q", p.Account)
		}
		log.Warn("Failed to load witness", "err", err)
		return v, wround.NewVerificationError(wround.CodeInternalError, "failed to load witness")
	}
	if !w.Enabled || w.SigningKey == nil {
		return v, wround.NewVerificationError(wround.CodeUnknownWitness, "%q is not an enabled witness", p.Account)
	}

	if !wcrypto.VerifyDigest(p.RoundHash, p.Signature, w.SigningKey) {
		log.Warn(
			"Rejecting proposal with invalid signature",
			"hash", wlog.Abbrev(p.RoundHash),
			"signing_key", w.SigningKey.String(),
		)
		return v, wround.NewVerificationError(wround.CodeInvalidSignature, "signature does not match signing key")
	}

	hash, err := wround.ComputeParamsRoundHash(ctx, e.bl, params)
	if err != nil {
		if errors.Is(err, wround.ErrRoundNotReady) || errors.Is(err, wround.ErrEmptyRange) {
			log.Info("Cannot verify round yet", "err", err)
			return v, wround.NewVerificationError(wround.CodeNotReady, "%v", err)
		}
		log.Warn("Failed to compute round hash", "err", err)
		return v, wround.NewVerificationError(wround.CodeInternalError, "failed to compute round hash")
	}

	if hash != p.RoundHash {
		log.Warn(
			"Round hash dispute: proposal does not match local blocks",
			"proposed_hash", wlog.Abbrev(p.RoundHash),
			"computed_hash", wlog.Abbrev(hash),
		)
		e.metrics.Dispute()
		e.reportDispute(ctx, Dispute{
			Round:        p.Round,
			Account:      p.Account,
			ProposedHash: p.RoundHash,
			ComputedHash: hash,
			At:           time.Now(),
		})
		return v, wround.NewVerificationError(
			wround.CodeHashMismatch, "computed round hash %s", hash,
		)
	}

	sig, err := wcrypto.SignDigest(ctx, e.signer, p.RoundHash)
	if err != nil {
		log.Warn("Failed to sign round hash", "err", err)
		return v, wround.NewVerificationError(wround.CodeInternalError, "failed to sign round hash")
	}

	req := watermarkRequest{Round: p.Round, Resp: make(chan bool, 1)}
	advanced, ok := wchan.ReqResp(ctx, e.log, e.watermarkRequests, req, req.Resp, "advance watermark")
	if !ok {
		return v, wround.NewVerificationError(wround.CodeInternalError, "shutting down")
	}

	log.Info("Verified round", "hash", wlog.Abbrev(p.RoundHash), "watermark_advanced", advanced)

	return wround.RoundVerification{
		Round:     p.Round,
		RoundHash: p.RoundHash,
		Signature: sig,
	}, nil
}

// reportDispute records d for the status snapshot without waiting on a busy kernel.
func (e *Engine) reportDispute(ctx context.Context, d Dispute) {
	select {
	case e.disputes <- d:
	case <-ctx.Done():
	default:
		e.log.Debug("Dropped dispute report; kernel busy", "round", d.Round)
	}
}
