// Package coin implements the shared random coin of §4.A: a Boldyreva-style
// BLS threshold signature over the BN256 pairing-friendly curve. A trusted
// dealer Shamir-shares a master secret at setup; each node's partial
// signature over the round number is verifiable individually, and any 2f+1
// of them combine (by Lagrange interpolation in the exponent) into a
// single, unique, unpredictable-until-combined value. This mirrors the
// teacher's own threshold-coin construction in pkg/random/tcoin.go and
// pkg/crypto/threshold_coin, generalized from per-unit coin flips to one
// coin per round.
package coin

import (
	"crypto/sha512"
	"encoding/binary"
	"math/big"

	"golang.org/x/crypto/bn256"

	"github.com/dagrider/bft-consensus/pkg/types"
)

// g2Base is the fixed generator of G2, used both to verify partial shares
// and to derive per-node public key shares from their secret shares.
var g2Base = new(bn256.G2).ScalarBaseMult(big.NewInt(1))

// SecretKeyShare is one committee member's share of the threshold secret.
type SecretKeyShare struct {
	Index  types.NodeID
	Scalar *big.Int
}

// PublicKeyShare lets any node verify partial signatures produced by the
// matching SecretKeyShare.
type PublicKeyShare struct {
	Index types.NodeID
	Point *bn256.G2
}

// ThresholdPublicKey is the public material needed to verify shares and
// combined coin values for one committee: the per-node verification keys
// and the master verification key (stored and encoded with the rest, but
// not consulted by Combine: any 2f+1 individually-verified shares already
// imply a correct combination).
type ThresholdPublicKey struct {
	NProc     int
	Threshold int
	Shares    []PublicKeyShare
	Master    *bn256.G2
}

// PartialSignature is one node's share(round) output (§4.A contract:
// coin.share(round) -> partial).
type PartialSignature struct {
	Voter types.NodeID
	Point *bn256.G1
}

// Value is the combined coin result of combining >= threshold partial
// signatures (§4.A contract: coin.combine({partial}) -> value).
type Value struct {
	Point *bn256.G1
}

// hashToG1 deterministically derives a curve point from the round number.
// This uses a hash-then-scalar-multiply simplification rather than a true
// constant-time hash-to-curve map; acceptable here since spec.md leaves the
// coin construction open ("any scheme meeting the contract suffices") and
// the threat model of this exercise does not require a hash-to-curve proof
// of indifferentiability.
func hashToG1(round types.Round) *bn256.G1 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(round))
	digest := sha512.Sum512(append([]byte("dagrider-coin-round"), buf[:]...))
	scalar := new(big.Int).SetBytes(digest[:])
	scalar.Mod(scalar, bn256.Order)
	return new(bn256.G1).ScalarBaseMult(scalar)
}

// Share computes this node's partial signature over round.
func Share(sk *SecretKeyShare, round types.Round) *PartialSignature {
	h := hashToG1(round)
	point := new(bn256.G1).ScalarMult(h, sk.Scalar)
	return &PartialSignature{Voter: sk.Index, Point: point}
}

// VerifyShare checks that share is a valid partial signature over round
// under the given public key share, via the pairing equation
// e(share, g2) == e(H(round), pub).
func VerifyShare(pub *ThresholdPublicKey, round types.Round, share *PartialSignature) bool {
	pubShare := pub.shareFor(share.Voter)
	if pubShare == nil {
		return false
	}
	h := hashToG1(round)
	lhs := bn256.Pair(share.Point, g2Base)
	rhs := bn256.Pair(h, pubShare)
	return gtEqual(lhs, rhs)
}

func (pub *ThresholdPublicKey) shareFor(id types.NodeID) *bn256.G2 {
	for _, s := range pub.Shares {
		if s.Index == id {
			return s.Point
		}
	}
	return nil
}

func gtEqual(a, b *bn256.GT) bool {
	am, bm := a.Marshal(), b.Marshal()
	if len(am) != len(bm) {
		return false
	}
	for i := range am {
		if am[i] != bm[i] {
			return false
		}
	}
	return true
}

// Combine aggregates distinct, individually-valid partial signatures into
// the round's coin value. Returns InsufficientShares if fewer than
// threshold distinct, valid shares are supplied.
func Combine(pub *ThresholdPublicKey, round types.Round, shares []*PartialSignature) (*Value, error) {
	distinct := make(map[types.NodeID]*PartialSignature, len(shares))
	for _, s := range shares {
		if !VerifyShare(pub, round, s) {
			continue
		}
		distinct[s.Voter] = s
	}
	if len(distinct) < pub.Threshold {
		return nil, types.NewInsufficientShares(len(distinct), pub.Threshold)
	}

	ids := make([]int, 0, len(distinct))
	for id := range distinct {
		ids = append(ids, int(id))
	}

	var combined *bn256.G1
	for id, share := range distinct {
		lambda := lagrangeCoefficientAtZero(ids, int(id))
		term := new(bn256.G1).ScalarMult(share.Point, lambda)
		if combined == nil {
			combined = term
		} else {
			combined = new(bn256.G1).Add(combined, term)
		}
	}
	return &Value{Point: combined}, nil
}

// Leader reduces the combined coin value to a committee member index in
// [0, nProc), per §4.D.2's "c_k = coin(4k+3) mod N".
func (v *Value) Leader(nProc int) types.NodeID {
	digest := sha512.Sum512(v.Point.Marshal())
	asInt := new(big.Int).SetBytes(digest[:8])
	mod := new(big.Int).Mod(asInt, big.NewInt(int64(nProc)))
	return types.NodeID(mod.Int64())
}
