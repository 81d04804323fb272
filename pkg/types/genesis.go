package types

import "golang.org/x/crypto/sha3"

// Genesis returns the n implicit round-0 vertices, one per committee
// member. They share a fixed digest derived only from (author, nProc) —
// never from a signature, since genesis vertices need no CoA (invariant 5).
func Genesis(nProc int) []Vertex {
	out := make([]Vertex, nProc)
	for i := range out {
		out[i] = Vertex{
			Round:  0,
			Author: NodeID(i),
		}
	}
	return out
}

// GenesisDigest returns the fixed digest of the round-0 vertex authored by
// author in a committee of size nProc. It intentionally does not go through
// StructuralDigest so that genesis digests are stable across any future
// change to the non-genesis encoding.
func GenesisDigest(author NodeID, nProc int) Digest {
	h := sha3.New256()
	h.Write([]byte("dagrider-genesis"))
	var b [4]byte
	b[0] = byte(nProc)
	b[1] = byte(nProc >> 8)
	b[2] = byte(author)
	b[3] = byte(author >> 8)
	h.Write(b[:])
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// GenesisDigests returns the GenesisDigest of every committee member, in
// author order; this is the canonical strong-parent set for every round-1
// vertex.
func GenesisDigests(nProc int) []Digest {
	out := make([]Digest, nProc)
	for i := range out {
		out[i] = GenesisDigest(NodeID(i), nProc)
	}
	return out
}
