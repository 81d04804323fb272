// Package rb implements the reliable-broadcast layer of §4.B: one state
// machine per (author, round) that takes a freshly authored vertex from
// PROPOSE through validation, delivery, and certificate-of-availability
// formation, handling out-of-order PROPOSE/CERT arrival and equivocation
// along the way.
//
// Grounded on the teacher's pkg/rmc (Protocol/incoming/outgoing, a
// mutex-guarded map of per-id instances reached through get/getIn/getOut
// helpers) generalized from RMC's single id-keyed instances to RB's
// (author, round)-keyed ones, and on pkg/adder/pkg/parallel for the
// CPU-bound verification worker pool (see worker.go).
package rb

import "github.com/dagrider/bft-consensus/pkg/types"

// State is a position in the per-(author, round) state machine of §4.B:
//
//	Unknown --PROPOSE--> Validating --ok--> Delivered --CERT(2f+1)--> Certified
//	   |                     |
//	   |                     `--fail--> Rejected
//	   `--CERT--> (CoA held by digest, state stays Unknown) --PROPOSE--> Validating
type State int

const (
	// Unknown: no PROPOSE or CERT has been seen yet for this (author, round).
	Unknown State = iota
	// Validating: a PROPOSE is being checked (signature, parents, CoA presence).
	Validating
	// Delivered: the vertex passed validation; this node has voted for it
	// and is waiting to see or assemble its CoA.
	Delivered
	// Certified: a valid 2f+1 CoA has been recorded; the vertex has been
	// handed to the DAG store.
	Certified
	// Rejected: validation failed, or equivocation was detected; terminal
	// for this (author, round).
	Rejected
	// AwaitingVertex: not entered by the Coordinator. A CERT that arrives
	// before its vertex names only a digest, not an (author, round), so the
	// Coordinator holds the CoA by digest, requests the vertex from peers,
	// and the instance stays Unknown until the PROPOSE arrives.
	AwaitingVertex
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case Validating:
		return "Validating"
	case Delivered:
		return "Delivered"
	case Certified:
		return "Certified"
	case Rejected:
		return "Rejected"
	case AwaitingVertex:
		return "AwaitingVertex"
	default:
		return "?"
	}
}

// key identifies one per-(author, round) broadcast instance.
type key struct {
	Author types.NodeID
	Round  types.Round
}
