package wengine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ssc-witness/witness/internal/wlog"
	"github.com/ssc-witness/witness/wround"
	"github.com/ssc-witness/witness/wstore"
)

// activeRound is the kernel's bookkeeping for the round this node is leading.
type activeRound struct {
	*wround.ProposedRound

	proposal wround.RoundProposal

	peers map[string]*peer
}

type peerState uint8

const (
	// A proposal is in flight.
	peerPending peerState = iota

	peerSigned

	// The last attempt failed in transport; resend on the next tick.
	peerUnreachable

	// A retry is scheduled.
	peerRetrying

	// The peer refused and will not be asked again this round.
	peerRefused
)

type peer struct {
	w       wround.Witness
	state   peerState
	retried bool
}

type retryTask struct {
	Round   uint64
	Account string
}

type proposalResult struct {
	Round   uint64
	Account string

	Verification wround.RoundVerification
	Err          error
}

func (e *Engine) kernel(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	retryTimer := time.NewTimer(time.Hour)
	retryTimer.Stop()
	defer retryTimer.Stop()

	// Don't wait a whole interval before the first look at the round params.
	e.tick(ctx)

	for {
		var retryC <-chan time.Time
		if due, ok := e.retries.NextDue(); ok {
			retryTimer.Reset(time.Until(due))
			retryC = retryTimer.C
		}

		select {
		case <-ctx.Done():
			e.log.Info("Stopping due to context cancellation", "cause", context.Cause(ctx))
			return

		case <-ticker.C:
			e.tick(ctx)

		case res := <-e.proposalResults:
			e.handleProposalResult(ctx, res)

		case now := <-retryC:
			for _, t := range e.retries.PopDue(now) {
				e.runRetry(ctx, t)
			}

		case req := <-e.watermarkRequests:
			req.Resp <- e.advanceWatermark(req.Round)

		case d := <-e.disputes:
			e.lastDispute = &d

		case req := <-e.statusRequests:
			req.Resp <- e.status()
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	params, err := e.rs.LoadRoundParams(ctx)
	if err != nil {
		if errors.Is(err, wstore.ErrParamsNotFound) {
			e.log.Debug("Round params not initialized yet")
		} else {
			e.log.Warn("Failed to load round params", "err", err)
		}
		return
	}
	e.params = params

	if e.active != nil {
		if params.Round != e.active.Round || params.CurrentWitness != e.account {
			e.log.Info(
				"Abandoning proposed round",
				"round", e.active.Round,
				"signatures", e.active.Sigs.Count(),
				"current_round", params.Round,
				"current_witness", params.CurrentWitness,
			)
			e.metrics.RoundAbandoned()
			e.clearActive()
		} else {
			e.resendUnreachable(ctx)
			return
		}
	}

	if params.CurrentWitness != e.account {
		return
	}
	if params.Round <= e.lastProposedRound || params.Round <= e.watermark.Load() {
		return
	}

	e.propose(ctx, params)
}

// propose moves from Idle to CollectingSignatures,
// or stays Idle if the round cannot be proposed yet.
func (e *Engine) propose(ctx context.Context, params wround.RoundParams) {
	e.state = StateProposing
	defer func() {
		if e.active == nil {
			e.state = StateIdle
		}
	}()

	log := e.log.With("round", params.Round)

	hash, err := wround.ComputeParamsRoundHash(ctx, e.bl, params)
	if err != nil {
		if errors.Is(err, wround.ErrRoundNotReady) {
			log.Debug("Round blocks not fully available yet", "err", err)
		} else {
			log.Warn("Failed to compute round hash", "err", err)
		}
		return
	}

	schedule, err := e.loadSchedule(ctx, params.Round)
	if err != nil {
		log.Warn("Failed to load schedule", "err", err)
		return
	}

	pr, err := wround.NewProposedRound(ctx, params.Round, hash, e.account, e.signer, schedule, e.required)
	if err != nil {
		log.Warn("Failed to start proposed round", "err", err)
		return
	}

	ar := &activeRound{
		ProposedRound: pr,
		proposal:      pr.Proposal(e.account),
		peers:         make(map[string]*peer, len(schedule)-1),
	}
	for _, w := range schedule {
		if w.Account == e.account {
			continue
		}
		ar.peers[w.Account] = &peer{w: w}
	}

	e.active = ar
	e.lastProposedRound = params.Round
	e.state = StateCollectingSignatures
	e.metrics.RoundProposed()

	start, end := params.BlockRange()
	log.Info(
		"Proposing round",
		"hash", wlog.Abbrev(hash),
		"start_block", start, "end_block", end,
		"peers", len(ar.peers),
	)

	for _, p := range ar.peers {
		e.send(ctx, p)
	}
}

// loadSchedule returns the enabled witnesses scheduled for round.
func (e *Engine) loadSchedule(ctx context.Context, round uint64) ([]wround.Witness, error) {
	ws, err := wstore.LoadScheduledWitnesses(ctx, e.rs, round)
	if err != nil {
		return nil, err
	}

	out := ws[:0]
	for _, w := range ws {
		if w.Enabled {
			out = append(out, w)
		}
	}
	return out, nil
}

// send dispatches the active proposal to p without blocking the kernel.
func (e *Engine) send(ctx context.Context, p *peer) {
	p.state = peerPending

	round := e.active.Round
	proposal := e.active.proposal
	w := p.w

	e.sends.Add(1)
	go func() {
		defer e.sends.Done()

		v, err := e.client.ProposeRoundHash(ctx, w.Address(), proposal)

		select {
		case e.proposalResults <- proposalResult{
			Round:        round,
			Account:      w.Account,
			Verification: v,
			Err:          err,
		}:
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) resendUnreachable(ctx context.Context) {
	for _, p := range e.active.peers {
		if p.state == peerUnreachable {
			e.log.Debug("Resending proposal", "round", e.active.Round, "witness", p.w.Account)
			e.send(ctx, p)
		}
	}
}

func (e *Engine) handleProposalResult(ctx context.Context, res proposalResult) {
	log := e.log.With("round", res.Round, "witness", res.Account)

	if e.active == nil || e.active.Round != res.Round {
		log.Debug("Ignoring response for round no longer being proposed", "err", res.Err)
		return
	}

	p, ok := e.active.peers[res.Account]
	if !ok || p.state != peerPending {
		log.Debug("Ignoring unexpected response", "err", res.Err)
		return
	}

	if res.Err != nil {
		e.handleProposalError(log, p, res)
		return
	}

	v := res.Verification
	if v.Round != e.active.Round || v.RoundHash != e.active.RoundHash {
		log.Warn(
			"Witness counter-signed a different round",
			"got_round", v.Round,
			"got_hash", wlog.Abbrev(v.RoundHash),
		)
		p.state = peerRefused
		e.metrics.ProposalResponse("mismatched")
		return
	}

	result, quorum := e.active.Sigs.AddSignature(res.Account, v.Signature)
	switch result {
	case wround.AddSignatureAccepted:
		p.state = peerSigned
		e.metrics.SignaturesCollected(e.active.Sigs.Count())
		log.Debug("Accepted signature", "count", e.active.Sigs.Count(), "required", e.active.Sigs.Required())
	case wround.AddSignatureDuplicate:
		p.state = peerSigned
	default:
		log.Warn("Rejected counter-signature", "result", result)
		p.state = peerRefused
	}
	e.metrics.ProposalResponse(result.String())

	if quorum {
		e.finalize(ctx)
	}
}

func (e *Engine) handleProposalError(log *slog.Logger, p *peer, res proposalResult) {
	ve, ok := wround.AsVerificationError(res.Err)
	if !ok {
		log.Info("Failed to reach witness; will resend on next tick", "err", res.Err)
		p.state = peerUnreachable
		e.metrics.ProposalResponse("unreachable")
		return
	}

	e.metrics.ProposalResponse(ve.Code.String())

	if ve.Retryable() && !p.retried {
		log.Info("Witness refused proposal; retrying once", "code", ve.Code, "msg", ve.Message, "delay", e.retryDelay)
		p.state = peerRetrying
		p.retried = true
		e.retries.Push(time.Now().Add(e.retryDelay), retryTask{Round: res.Round, Account: res.Account})
		return
	}

	p.state = peerRefused

	switch ve.Code {
	case wround.CodeHashMismatch:
		log.Warn(
			"Round hash dispute: witness computed a different hash",
			"hash", wlog.Abbrev(e.active.RoundHash),
			"msg", ve.Message,
		)
		e.metrics.Dispute()
		e.lastDispute = &Dispute{
			Round:        res.Round,
			Account:      res.Account,
			ProposedHash: e.active.RoundHash,
			At:           time.Now(),
		}
	case wround.CodeInvalidSignature:
		log.Warn("Witness rejected this node's signature", "msg", ve.Message)
	default:
		log.Info("Witness refused proposal", "code", ve.Code, "msg", ve.Message)
	}
}

func (e *Engine) runRetry(ctx context.Context, t retryTask) {
	log := e.log.With("round", t.Round, "witness", t.Account)

	if e.active == nil || e.active.Round != t.Round {
		log.Debug("Dropping retry for round no longer being proposed")
		return
	}

	p, ok := e.active.peers[t.Account]
	if !ok || p.state != peerRetrying {
		return
	}

	// The round may have moved on since the last tick.
	params, err := e.rs.LoadRoundParams(ctx)
	if err != nil {
		log.Warn("Failed to load round params before retry", "err", err)
		p.state = peerRefused
		return
	}
	if params.Round != t.Round || params.CurrentWitness != e.account {
		log.Info("Round moved on; not retrying", "current_round", params.Round)
		p.state = peerRefused
		return
	}

	log.Debug("Retrying proposal")
	e.send(ctx, p)
}

func (e *Engine) finalize(ctx context.Context) {
	e.state = StateFinalizing

	fr := e.active.Finalized()
	res := e.broadcaster.Broadcast(fr)

	e.log.Info(
		"Finalized round",
		"round", fr.Round,
		"hash", wlog.Abbrev(fr.RoundHash),
		"signatures", len(fr.Signatures),
		"broadcast", res,
	)

	e.advanceWatermark(fr.Round)
	e.metrics.RoundFinalized()
	e.clearActive()
}

func (e *Engine) clearActive() {
	e.active = nil
	e.retries.Filter(func(retryTask) bool { return false })
	e.state = StateIdle
}

// advanceWatermark raises the verified watermark to round if that is higher.
func (e *Engine) advanceWatermark(round uint64) bool {
	if !e.watermark.Advance(round) {
		return false
	}

	e.metrics.LastVerifiedRound(round)
	return true
}

func (e *Engine) status() Status {
	st := Status{
		Account: e.account,
		State:   e.state,

		Round:          e.params.Round,
		CurrentWitness: e.params.CurrentWitness,

		LastProposedRound: e.lastProposedRound,
		LastVerifiedRound: e.watermark.Load(),
	}

	if e.active != nil {
		sigs := e.active.Sigs.Signatures()
		signers := make([]string, len(sigs))
		for i, s := range sigs {
			signers[i] = s.Account
		}
		st.Proposal = &ProposalStatus{
			Round:     e.active.Round,
			RoundHash: e.active.RoundHash,
			Signers:   signers,
			Required:  e.active.Sigs.Required(),
		}
	}

	if e.lastDispute != nil {
		d := *e.lastDispute
		st.LastDispute = &d
	}

	return st
}
