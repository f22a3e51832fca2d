// Package wchan contains small helpers for context-aware channel operations,
// logging when the context is cancelled before the operation completes.
package wchan

import (
	"context"
	"log/slog"
)

// SendC sends val on out, or returns false if ctx is cancelled first.
func SendC[T any](
	ctx context.Context, log *slog.Logger,
	out chan<- T, val T,
	sendName string,
) bool {
	select {
	case <-ctx.Done():
		log.Info(
			"Context cancelled while sending",
			"send", sendName,
			"cause", context.Cause(ctx),
		)
		return false
	case out <- val:
		return true
	}
}

// RecvC receives from in, or returns false if ctx is cancelled first.
func RecvC[T any](
	ctx context.Context, log *slog.Logger,
	in <-chan T,
	recvName string,
) (T, bool) {
	select {
	case <-ctx.Done():
		log.Info(
			"Context cancelled while receiving",
			"recv", recvName,
			"cause", context.Cause(ctx),
		)
		var zero T
		return zero, false
	case v := <-in:
		return v, true
	}
}

// ReqResp sends req on reqCh and then waits for a value on respCh.
// The respCh should be buffered so the responder never blocks.
func ReqResp[Req, Resp any](
	ctx context.Context, log *slog.Logger,
	reqCh chan<- Req, req Req,
	respCh <-chan Resp,
	name string,
) (Resp, bool) {
	if !SendC(ctx, log, reqCh, req, name+" (request)") {
		var zero Resp
		return zero, false
	}

	return RecvC(ctx, log, respCh, name+" (response)")
}
