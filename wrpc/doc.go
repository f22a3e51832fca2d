// Package wrpc is the request/response transport between witnesses.
//
// A round's witness calls proposeRoundHash on every other scheduled witness
// with a JSON-RPC 2.0 request to POST /p2p.
// The verifier answers with its counter-signature,
// or with a JSON-RPC error whose code is a [wround.ErrorCode].
package wrpc
