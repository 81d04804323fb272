package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dagrider/bft-consensus/pkg/types"
)

// Tag identifies one of the six closed wire message kinds.
type Tag byte

// The five RB wire tags, in the order §6 lists them, plus one addition:
// COIN_SHARE, which carries a threshold coin partial signature between
// committee members so the Consensus Core can combine 2f+1 of them into
// the shared random coin value for a wave (§4.A). The RB sub-protocol
// itself still only ever sees the original five.
const (
	TagPropose Tag = iota
	TagVote
	TagCert
	TagSyncReq
	TagSyncResp
	TagCoinShare
)

func (t Tag) String() string {
	switch t {
	case TagPropose:
		return "PROPOSE"
	case TagVote:
		return "VOTE"
	case TagCert:
		return "CERT"
	case TagSyncReq:
		return "SYNC_REQ"
	case TagSyncResp:
		return "SYNC_RESP"
	case TagCoinShare:
		return "COIN_SHARE"
	default:
		return "UNKNOWN"
	}
}

// Propose carries a freshly authored, signed vertex.
type Propose struct {
	Vertex types.Vertex
}

// Vote carries one committee member's signature acknowledging delivery of
// a vertex identified by Digest.
type Vote struct {
	Digest types.Digest
	Voter  types.NodeID
	Sig    types.Signature
}

// Cert carries a complete Certificate of Availability for a vertex.
type Cert struct {
	CoA types.CoA
}

// SyncReq asks the peer for the named vertices (with their CoAs, once
// formed). Idempotent: requesting an already-delivered digest is a no-op
// for the requester.
type SyncReq struct {
	Digests []types.Digest
}

// SyncResp answers a SyncReq with whichever of the requested vertices the
// peer has available, each bundled with its CoA.
type SyncResp struct {
	Vertices []types.CertifiedVertex
}

// CoinShare carries one committee member's threshold coin partial
// signature over round (§4.A). Share is the marshaled form of a
// pkg/crypto/coin.PartialSignature's point, kept opaque here so wire does
// not need to import the curve library.
type CoinShare struct {
	Round  types.Round
	Voter  types.NodeID
	Share  []byte
}

func (Propose) tag() Tag   { return TagPropose }
func (Vote) tag() Tag      { return TagVote }
func (Cert) tag() Tag      { return TagCert }
func (SyncReq) tag() Tag   { return TagSyncReq }
func (SyncResp) tag() Tag  { return TagSyncResp }
func (CoinShare) tag() Tag { return TagCoinShare }

// Message is implemented by the six wire message kinds. Decode picks the
// kind of an incoming frame from its tag byte, and tag() supplies that byte
// when encoding; Encode's payload step switches on the concrete type.
type Message interface {
	tag() Tag
}

func payload(w io.Writer, m Message) error {
	switch v := m.(type) {
	case Propose:
		return writeVertex(w, &v.Vertex)
	case Vote:
		if err := writeDigest(w, v.Digest); err != nil {
			return err
		}
		if err := writeUint16(w, uint16(v.Voter)); err != nil {
			return err
		}
		return writeSignature(w, v.Sig)
	case Cert:
		return writeCoA(w, &v.CoA)
	case SyncReq:
		return writeDigests(w, v.Digests)
	case SyncResp:
		if err := writeUint32(w, uint32(len(v.Vertices))); err != nil {
			return err
		}
		for i := range v.Vertices {
			if err := writeCertifiedVertex(w, &v.Vertices[i]); err != nil {
				return err
			}
		}
		return nil
	case CoinShare:
		if err := writeUint64(w, uint64(v.Round)); err != nil {
			return err
		}
		if err := writeUint16(w, uint16(v.Voter)); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(v.Share))); err != nil {
			return err
		}
		_, err := w.Write(v.Share)
		return err
	default:
		return fmt.Errorf("wire: unknown message type %T", m)
	}
}

// Encode writes the length-prefixed, tagged frame for m to w:
// [4-byte little-endian length][1-byte tag][payload].
func Encode(w io.Writer, m Message) error {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.tag()))
	if err := payload(&buf, m); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(buf.Len())); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Decode reads one length-prefixed, tagged frame from r and returns the
// decoded Message.
func Decode(r io.Reader) (Message, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 || n > maxListLen {
		return nil, errShortRead
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	br := bytes.NewReader(body)
	tagByte, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	switch Tag(tagByte) {
	case TagPropose:
		v, err := readVertex(br)
		if err != nil {
			return nil, err
		}
		return Propose{Vertex: v}, nil
	case TagVote:
		d, err := readDigest(br)
		if err != nil {
			return nil, err
		}
		voter, err := readUint16(br)
		if err != nil {
			return nil, err
		}
		sig, err := readSignature(br)
		if err != nil {
			return nil, err
		}
		return Vote{Digest: d, Voter: types.NodeID(voter), Sig: sig}, nil
	case TagCert:
		c, err := readCoA(br)
		if err != nil {
			return nil, err
		}
		return Cert{CoA: c}, nil
	case TagSyncReq:
		ds, err := readDigests(br)
		if err != nil {
			return nil, err
		}
		return SyncReq{Digests: ds}, nil
	case TagSyncResp:
		count, err := readUint32(br)
		if err != nil {
			return nil, err
		}
		if count > maxListLen {
			return nil, errShortRead
		}
		vs := make([]types.CertifiedVertex, count)
		for i := range vs {
			if vs[i], err = readCertifiedVertex(br); err != nil {
				return nil, err
			}
		}
		return SyncResp{Vertices: vs}, nil
	case TagCoinShare:
		round, err := readUint64(br)
		if err != nil {
			return nil, err
		}
		voter, err := readUint16(br)
		if err != nil {
			return nil, err
		}
		n, err := readUint32(br)
		if err != nil {
			return nil, err
		}
		if n > maxListLen {
			return nil, errShortRead
		}
		share := make([]byte, n)
		if _, err := io.ReadFull(br, share); err != nil {
			return nil, err
		}
		return CoinShare{Round: types.Round(round), Voter: types.NodeID(voter), Share: share}, nil
	default:
		return nil, fmt.Errorf("wire: unknown tag %d", tagByte)
	}
}
