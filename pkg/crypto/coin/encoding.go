package coin

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bn256"

	"github.com/dagrider/bft-consensus/pkg/types"
)

// Encode renders a secret key share as hex, for storage in member files
// (matching pkg/crypto/signing.PrivateKey.Encode's style).
func (sk *SecretKeyShare) Encode() string {
	var idx [2]byte
	binary.LittleEndian.PutUint16(idx[:], uint16(sk.Index))
	return hex.EncodeToString(append(idx[:], sk.Scalar.Bytes()...))
}

// DecodeSecretKeyShare parses a hex-encoded secret key share produced by
// Encode.
func DecodeSecretKeyShare(s string) (*SecretKeyShare, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("coin: secret key share too short")
	}
	idx := types.NodeID(binary.LittleEndian.Uint16(raw[:2]))
	return &SecretKeyShare{Index: idx, Scalar: new(big.Int).SetBytes(raw[2:])}, nil
}

// Encode renders the threshold public key as hex, for storage in committee
// files: nProc, threshold, each share's index and marshaled G2 point, then
// the master G2 point.
func (pub *ThresholdPublicKey) Encode() string {
	var buf []byte
	buf = append(buf, le32(uint32(pub.NProc))...)
	buf = append(buf, le32(uint32(pub.Threshold))...)
	buf = append(buf, le32(uint32(len(pub.Shares)))...)
	for _, s := range pub.Shares {
		buf = append(buf, le16(uint16(s.Index))...)
		marshaled := s.Point.Marshal()
		buf = append(buf, le32(uint32(len(marshaled)))...)
		buf = append(buf, marshaled...)
	}
	masterBytes := pub.Master.Marshal()
	buf = append(buf, le32(uint32(len(masterBytes)))...)
	buf = append(buf, masterBytes...)
	return hex.EncodeToString(buf)
}

// DecodeThresholdPublicKey parses a hex-encoded threshold public key
// produced by Encode.
func DecodeThresholdPublicKey(s string) (*ThresholdPublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	r := rawReader{data: raw}
	nProc, err := r.u32()
	if err != nil {
		return nil, err
	}
	threshold, err := r.u32()
	if err != nil {
		return nil, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	shares := make([]PublicKeyShare, count)
	for i := range shares {
		idx, err := r.u16()
		if err != nil {
			return nil, err
		}
		pointBytes, err := r.bytes()
		if err != nil {
			return nil, err
		}
		point := new(bn256.G2)
		if _, ok := point.Unmarshal(pointBytes); !ok {
			return nil, fmt.Errorf("coin: invalid public key share encoding")
		}
		shares[i] = PublicKeyShare{Index: types.NodeID(idx), Point: point}
	}
	masterBytes, err := r.bytes()
	if err != nil {
		return nil, err
	}
	master := new(bn256.G2)
	if _, ok := master.Unmarshal(masterBytes); !ok {
		return nil, fmt.Errorf("coin: invalid master public key encoding")
	}
	return &ThresholdPublicKey{
		NProc:     int(nProc),
		Threshold: int(threshold),
		Shares:    shares,
		Master:    master,
	}, nil
}

func le16(v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return b[:]
}

func le32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

type rawReader struct {
	data []byte
	pos  int
}

func (r *rawReader) u16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("coin: truncated encoding")
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *rawReader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("coin: truncated encoding")
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *rawReader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.data) {
		return nil, fmt.Errorf("coin: truncated encoding")
	}
	out := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}
