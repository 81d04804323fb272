// Package types holds the wire-level data model of the DAG-Rider consensus
// core: vertices, certificates of availability, and the digests that
// identify them. Nothing in this package touches the network or disk.
package types

import "fmt"

// Round is a DAG round number. Genesis vertices live at round 0.
type Round uint64

// NodeID identifies a committee member. Committee members are numbered
// 0..NProc-1, and the same number is carried on the wire and given to the
// CLI's -id flag.
type NodeID uint16

// DigestSize is the length in bytes of a vertex digest.
const DigestSize = 32

// SignatureSize is the length in bytes of an Ed25519 signature.
const SignatureSize = 64

// Digest identifies a Vertex by the hash of its structural encoding.
type Digest [DigestSize]byte

// String renders a digest as hex, truncated for log-friendliness.
func (d Digest) String() string {
	return fmt.Sprintf("%x", d[:8])
}

// IsZero reports whether d is the zero digest (used as a sentinel for "no
// parent"/"not set", never a legitimate vertex digest since genesis digests
// are fixed but nonzero, see Genesis).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Signature is a detached Ed25519 signature over a Digest.
type Signature [SignatureSize]byte

// AckSig is one committee member's acknowledgment that it has durably
// received a vertex, the atomic unit a Certificate of Availability is built
// from.
type AckSig struct {
	Voter NodeID
	Sig   Signature
}

// Vertex is the fundamental DAG node: a batch of transactions (by digest)
// authored by exactly one committee member in exactly one round, together
// with the parent references that tie it into the DAG.
type Vertex struct {
	Round         Round
	Author        NodeID
	Payload       []Digest // batch digests, opaque to the consensus core
	StrongParents []Digest // >= 2f+1 distinct authors, all from Round-1
	WeakParents   []Digest // orphans pulled in from earlier, uncommitted rounds
	Signature     Signature
}

// CoA is a Certificate of Availability: a vertex digest plus at least 2f+1
// signatures from distinct committee members attesting delivery. It is the
// only admissible way to reference a vertex from another vertex's parent
// sets.
type CoA struct {
	VertexDigest Digest
	Signatures   []AckSig
}

// DistinctVoters returns the number of distinct signers in the CoA. A
// well-formed CoA never has duplicate voters, but this is re-derived rather
// than trusted so callers can validate independently of how the CoA was
// built.
func (c *CoA) DistinctVoters() int {
	seen := make(map[NodeID]struct{}, len(c.Signatures))
	for _, s := range c.Signatures {
		seen[s.Voter] = struct{}{}
	}
	return len(seen)
}

// CertifiedVertex bundles a Vertex with the CoA proving its availability;
// this is the unit the DAG Store actually persists.
type CertifiedVertex struct {
	Vertex Vertex
	CoA    CoA
}

// Quorum returns the minimum number of distinct signers (2f+1) required for
// a quorum certificate in a committee of size n, tolerating f = (n-1)/3
// Byzantine faults.
func Quorum(n int) int {
	f := (n - 1) / 3
	return 2*f + 1
}

// MaxFaults returns f = floor((n-1)/3), the maximum tolerated number of
// Byzantine committee members for a committee of size n.
func MaxFaults(n int) int {
	return (n - 1) / 3
}

// WaveLength is the number of rounds per wave (the leader-election unit).
const WaveLength = 4

// WaveOf returns the wave index k such that r lies in rounds
// [4k, 4k+3].
func WaveOf(r Round) uint64 {
	return uint64(r) / WaveLength
}

// LeaderRound returns the leader round 4k for wave k.
func LeaderRound(wave uint64) Round {
	return Round(wave * WaveLength)
}

// VotingRound returns the voting round 4k+2 for wave k.
func VotingRound(wave uint64) Round {
	return Round(wave*WaveLength + 2)
}

// WaveCompleteRound returns the round 4(k+1)+1 at which wave k's commit
// evaluation becomes possible (every round of the wave, plus one of the
// next, has been locally observed).
func WaveCompleteRound(wave uint64) Round {
	return Round((wave+1)*WaveLength + 1)
}
