package coin_test

import (
	"bytes"
	"testing"

	"github.com/dagrider/bft-consensus/pkg/crypto/coin"
)

func TestSecretKeyShareEncodeDecodeRoundTrip(t *testing.T) {
	shares, _, err := coin.GenerateThresholdKeys(4, 3)
	if err != nil {
		t.Fatalf("GenerateThresholdKeys: %v", err)
	}
	sk := shares[1]
	encoded := sk.Encode()
	decoded, err := coin.DecodeSecretKeyShare(encoded)
	if err != nil {
		t.Fatalf("DecodeSecretKeyShare: %v", err)
	}
	if decoded.Index != sk.Index || decoded.Scalar.Cmp(sk.Scalar) != 0 {
		t.Fatalf("round-tripped secret key share mismatch")
	}
}

func TestThresholdPublicKeyEncodeDecodeRoundTrip(t *testing.T) {
	_, pub, err := coin.GenerateThresholdKeys(4, 3)
	if err != nil {
		t.Fatalf("GenerateThresholdKeys: %v", err)
	}
	encoded := pub.Encode()
	decoded, err := coin.DecodeThresholdPublicKey(encoded)
	if err != nil {
		t.Fatalf("DecodeThresholdPublicKey: %v", err)
	}
	if decoded.NProc != pub.NProc || decoded.Threshold != pub.Threshold || len(decoded.Shares) != len(pub.Shares) {
		t.Fatalf("round-tripped threshold public key mismatch: got %+v", decoded)
	}
	for i := range pub.Shares {
		if decoded.Shares[i].Index != pub.Shares[i].Index {
			t.Fatalf("share %d index mismatch", i)
		}
		if !bytes.Equal(decoded.Shares[i].Point.Marshal(), pub.Shares[i].Point.Marshal()) {
			t.Fatalf("share %d point mismatch", i)
		}
	}
	if !bytes.Equal(decoded.Master.Marshal(), pub.Master.Marshal()) {
		t.Fatalf("master point mismatch")
	}
}
