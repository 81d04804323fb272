package types

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// StructuralDigest computes the digest of a vertex's structural content
// (round, author, payload, strong parents, weak parents), the value both
// the author's signature and every parent reference commit to. Encoding is
// deterministic: fixed-width fields in declaration order, slices
// length-prefixed, little-endian, matching the framing convention used
// throughout the rest of the wire format.
func StructuralDigest(v *Vertex) Digest {
	h := sha3.New256()

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v.Round))
	h.Write(buf[:])

	var pidBuf [2]byte
	binary.LittleEndian.PutUint16(pidBuf[:], uint16(v.Author))
	h.Write(pidBuf[:])

	writeDigestSlice(h, v.Payload)
	writeDigestSlice(h, v.StrongParents)
	writeDigestSlice(h, v.WeakParents)

	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

func writeDigestSlice(h interface{ Write([]byte) (int, error) }, ds []Digest) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(ds)))
	h.Write(lenBuf[:])
	for _, d := range ds {
		h.Write(d[:])
	}
}

// Digest returns the content-addressed identity of v, computed fresh from
// its fields rather than cached, so a mutated copy never silently keeps a
// stale digest.
func (v *Vertex) Digest() Digest {
	return StructuralDigest(v)
}
