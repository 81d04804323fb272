package coin

import (
	"crypto/rand"
	"math/big"

	"golang.org/x/crypto/bn256"

	"github.com/dagrider/bft-consensus/pkg/types"
)

// GenerateThresholdKeys runs a trusted-dealer setup for a committee of
// nProc members requiring threshold valid shares to combine a coin value
// (threshold is ordinarily 2f+1). It returns one SecretKeyShare per member,
// in member-index order, plus the ThresholdPublicKey all members share.
//
// This mirrors the teacher's tcoin dealer in spirit (a single party
// generates and distributes per-process key material before the protocol
// starts) but shares a scalar polynomial directly rather than constructing
// Aleph's VerificationKey/SecretKey wrapper types.
func GenerateThresholdKeys(nProc, threshold int) ([]SecretKeyShare, *ThresholdPublicKey, error) {
	coeffs := make([]*big.Int, threshold)
	for i := range coeffs {
		c, err := rand.Int(rand.Reader, bn256.Order)
		if err != nil {
			return nil, nil, err
		}
		coeffs[i] = c
	}

	secrets := make([]SecretKeyShare, nProc)
	pubShares := make([]PublicKeyShare, nProc)
	for i := 0; i < nProc; i++ {
		x := big.NewInt(int64(i + 1))
		s := evalPolynomial(coeffs, x)
		secrets[i] = SecretKeyShare{Index: types.NodeID(i), Scalar: s}
		pubShares[i] = PublicKeyShare{
			Index: types.NodeID(i),
			Point: new(bn256.G2).ScalarBaseMult(s),
		}
	}

	master := new(bn256.G2).ScalarBaseMult(coeffs[0])

	pub := &ThresholdPublicKey{
		NProc:     nProc,
		Threshold: threshold,
		Shares:    pubShares,
		Master:    master,
	}
	return secrets, pub, nil
}

// evalPolynomial evaluates the polynomial with the given coefficients
// (coeffs[0] is the constant term, the secret itself) at x, modulo the
// BN256 group order.
func evalPolynomial(coeffs []*big.Int, x *big.Int) *big.Int {
	result := new(big.Int)
	power := big.NewInt(1)
	for _, c := range coeffs {
		term := new(big.Int).Mul(c, power)
		result.Add(result, term)
		result.Mod(result, bn256.Order)
		power.Mul(power, x)
		power.Mod(power, bn256.Order)
	}
	return result
}

// lagrangeCoefficientAtZero computes the Lagrange basis coefficient for
// member id (a 0-based member index from the ids list; member i
// contributes at x = i+1) evaluated at x = 0, modulo the BN256 group
// order. This is the standard "combine shares at the polynomial's
// constant term" step of Shamir reconstruction, applied in the exponent
// by the caller.
func lagrangeCoefficientAtZero(ids []int, id int) *big.Int {
	xi := big.NewInt(int64(id + 1))
	num := big.NewInt(1)
	den := big.NewInt(1)
	for _, j := range ids {
		if j == id {
			continue
		}
		xj := big.NewInt(int64(j + 1))

		num.Mul(num, xj)
		num.Mod(num, bn256.Order)

		diff := new(big.Int).Sub(xj, xi)
		diff.Mod(diff, bn256.Order)
		den.Mul(den, diff)
		den.Mod(den, bn256.Order)
	}
	denInv := new(big.Int).ModInverse(den, bn256.Order)
	coeff := new(big.Int).Mul(num, denInv)
	coeff.Mod(coeff, bn256.Order)
	return coeff
}
