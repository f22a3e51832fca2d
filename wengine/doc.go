// Package wengine contains the round consensus engine of a witness node.
//
// An [Engine] plays two roles at once.
// When the node is the scheduled witness for the current round,
// it computes the round hash, collects counter-signatures from the other
// scheduled witnesses, and hands the finalized round to a broadcaster.
// When another witness proposes, [Engine.HandleProposal] verifies the proposal
// and counter-signs it.
//
// All leader state and the verified watermark are owned by a single kernel goroutine.
// Verification runs on the caller's goroutine
// and only crosses into the kernel to advance the watermark.
package wengine
