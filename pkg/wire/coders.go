// Package wire implements the binary encoding and framing of the six
// tagged message kinds exchanged between committee members (§6): PROPOSE,
// VOTE, CERT, SYNC_REQ, SYNC_RESP, plus COIN_SHARE. Framing is
// length-prefixed, little-endian, in the same style as the teacher's
// network/tcp/greeting.go; Decode dispatches on a one-byte tag, per the
// "polymorphism over message kinds" design note.
package wire

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/dagrider/bft-consensus/pkg/types"
)

// errShortRead is returned when a frame length is zero or a length prefix
// exceeds maxListLen. Decode and DecodeCertifiedVertex return it to their
// callers unwrapped.
var errShortRead = errors.New("wire: short read")

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeUint16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func writeDigest(w io.Writer, d types.Digest) error {
	_, err := w.Write(d[:])
	return err
}

func readDigest(r io.Reader) (types.Digest, error) {
	var d types.Digest
	_, err := io.ReadFull(r, d[:])
	return d, err
}

func writeSignature(w io.Writer, s types.Signature) error {
	_, err := w.Write(s[:])
	return err
}

func readSignature(r io.Reader) (types.Signature, error) {
	var s types.Signature
	_, err := io.ReadFull(r, s[:])
	return s, err
}

func writeDigests(w io.Writer, ds []types.Digest) error {
	if err := writeUint32(w, uint32(len(ds))); err != nil {
		return err
	}
	for _, d := range ds {
		if err := writeDigest(w, d); err != nil {
			return err
		}
	}
	return nil
}

// maxListLen bounds every length-prefixed list decoded from the wire so a
// corrupt or hostile peer cannot make us allocate an unbounded slice.
const maxListLen = 1 << 20

func readDigests(r io.Reader) ([]types.Digest, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n > maxListLen {
		return nil, errShortRead
	}
	out := make([]types.Digest, n)
	for i := range out {
		if out[i], err = readDigest(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeVertex(w io.Writer, v *types.Vertex) error {
	if err := writeUint64(w, uint64(v.Round)); err != nil {
		return err
	}
	if err := writeUint16(w, uint16(v.Author)); err != nil {
		return err
	}
	if err := writeDigests(w, v.Payload); err != nil {
		return err
	}
	if err := writeDigests(w, v.StrongParents); err != nil {
		return err
	}
	if err := writeDigests(w, v.WeakParents); err != nil {
		return err
	}
	return writeSignature(w, v.Signature)
}

func readVertex(r io.Reader) (types.Vertex, error) {
	var v types.Vertex
	round, err := readUint64(r)
	if err != nil {
		return v, err
	}
	v.Round = types.Round(round)
	author, err := readUint16(r)
	if err != nil {
		return v, err
	}
	v.Author = types.NodeID(author)
	if v.Payload, err = readDigests(r); err != nil {
		return v, err
	}
	if v.StrongParents, err = readDigests(r); err != nil {
		return v, err
	}
	if v.WeakParents, err = readDigests(r); err != nil {
		return v, err
	}
	v.Signature, err = readSignature(r)
	return v, err
}

func writeCoA(w io.Writer, c *types.CoA) error {
	if err := writeDigest(w, c.VertexDigest); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(c.Signatures))); err != nil {
		return err
	}
	for _, s := range c.Signatures {
		if err := writeUint16(w, uint16(s.Voter)); err != nil {
			return err
		}
		if err := writeSignature(w, s.Sig); err != nil {
			return err
		}
	}
	return nil
}

func readCoA(r io.Reader) (types.CoA, error) {
	var c types.CoA
	d, err := readDigest(r)
	if err != nil {
		return c, err
	}
	c.VertexDigest = d
	n, err := readUint32(r)
	if err != nil {
		return c, err
	}
	if n > maxListLen {
		return c, errShortRead
	}
	c.Signatures = make([]types.AckSig, n)
	for i := range c.Signatures {
		voter, err := readUint16(r)
		if err != nil {
			return c, err
		}
		sig, err := readSignature(r)
		if err != nil {
			return c, err
		}
		c.Signatures[i] = types.AckSig{Voter: types.NodeID(voter), Sig: sig}
	}
	return c, nil
}

// EncodeCertifiedVertex writes cv's wire form, with no outer length prefix or
// tag. pkg/storage uses this directly as its on-disk vertex encoding so the
// disk and network representations never drift apart.
func EncodeCertifiedVertex(w io.Writer, cv *types.CertifiedVertex) error {
	return writeCertifiedVertex(w, cv)
}

// DecodeCertifiedVertex reads a value written by EncodeCertifiedVertex.
func DecodeCertifiedVertex(r io.Reader) (types.CertifiedVertex, error) {
	return readCertifiedVertex(r)
}

func writeCertifiedVertex(w io.Writer, cv *types.CertifiedVertex) error {
	if err := writeVertex(w, &cv.Vertex); err != nil {
		return err
	}
	return writeCoA(w, &cv.CoA)
}

func readCertifiedVertex(r io.Reader) (types.CertifiedVertex, error) {
	var cv types.CertifiedVertex
	v, err := readVertex(r)
	if err != nil {
		return cv, err
	}
	cv.Vertex = v
	coa, err := readCoA(r)
	if err != nil {
		return cv, err
	}
	cv.CoA = coa
	return cv, nil
}
