// Package wround contains the core types of the witness round protocol:
// the externally maintained round parameters and witness records,
// the round hash calculation,
// the quorum aggregation of counter-signatures,
// and the messages exchanged between witnesses.
//
// Types in this package do no I/O of their own.
// Loading state is delegated to the interfaces they accept,
// which are implemented in the wstore packages.
package wround
