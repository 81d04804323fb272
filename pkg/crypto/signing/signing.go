// Package signing implements deterministic EdDSA signing and verification
// over vertex digests (§4.A). Verification is stateless: it needs nothing
// but the public key, the digest, and the signature.
package signing

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/ed25519"

	"github.com/dagrider/bft-consensus/pkg/types"
)

// PublicKey verifies signatures produced by the matching PrivateKey.
type PublicKey struct {
	data ed25519.PublicKey
}

// PrivateKey signs vertex digests.
type PrivateKey struct {
	data ed25519.PrivateKey
}

// GenerateKeys produces a fresh Ed25519 keypair.
func GenerateKeys() (PublicKey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return PublicKey{}, PrivateKey{}, err
	}
	return PublicKey{pub}, PrivateKey{priv}, nil
}

// Sign computes a signature over digest.
func (priv PrivateKey) Sign(digest types.Digest) types.Signature {
	raw := ed25519.Sign(priv.data, digest[:])
	var sig types.Signature
	copy(sig[:], raw)
	return sig
}

// Verify checks that sig is priv's signature (for the matching PublicKey)
// over digest.
func (pub PublicKey) Verify(digest types.Digest, sig types.Signature) bool {
	if len(pub.data) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub.data, digest[:], sig[:])
}

// Encode renders the public key as hex, for storage in committee files.
func (pub PublicKey) Encode() string {
	return hex.EncodeToString(pub.data)
}

// Encode renders the private key as hex, for storage in member files.
func (priv PrivateKey) Encode() string {
	return hex.EncodeToString(priv.data)
}

// DecodePublicKey parses a hex-encoded public key produced by Encode.
func DecodePublicKey(s string) (PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return PublicKey{}, fmt.Errorf("signing: public key has wrong length %d", len(raw))
	}
	return PublicKey{ed25519.PublicKey(raw)}, nil
}

// DecodePrivateKey parses a hex-encoded private key produced by Encode.
func DecodePrivateKey(s string) (PrivateKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return PrivateKey{}, err
	}
	if len(raw) != ed25519.PrivateKeySize {
		return PrivateKey{}, fmt.Errorf("signing: private key has wrong length %d", len(raw))
	}
	return PrivateKey{ed25519.PrivateKey(raw)}, nil
}

// SignVertex signs v's structural digest, mutating v.Signature in place and
// returning the digest for convenience.
func SignVertex(priv PrivateKey, v *types.Vertex) types.Digest {
	d := v.Digest()
	v.Signature = priv.Sign(d)
	return d
}

// VerifyVertex checks v.Signature against the structural digest of v using
// pub.
func VerifyVertex(pub PublicKey, v *types.Vertex) bool {
	return pub.Verify(v.Digest(), v.Signature)
}
