package coin

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bn256"

	"github.com/dagrider/bft-consensus/pkg/types"
)

// MarshalShare renders a PartialSignature's point for transmission as a
// wire.CoinShare payload.
func MarshalShare(s *PartialSignature) []byte {
	return s.Point.Marshal()
}

// UnmarshalShare parses a wire.CoinShare payload back into a
// PartialSignature for the given voter.
func UnmarshalShare(voter types.NodeID, data []byte) (*PartialSignature, error) {
	p := new(bn256.G1)
	if _, ok := p.Unmarshal(data); !ok {
		return nil, errors.New("coin: invalid partial signature encoding")
	}
	return &PartialSignature{Voter: voter, Point: p}, nil
}

// Aggregator collects partial signatures for a single round across
// multiple committee members and produces the combined coin value once
// at least threshold distinct, valid shares have arrived. Grounded on the
// teacher's rmc.Protocol pattern of one small stateful accumulator keyed
// by round, guarded by its own lock so the owning task can feed it shares
// arriving out of order from the network.
type Aggregator struct {
	mu    sync.Mutex
	pub   *ThresholdPublicKey
	round types.Round

	shares map[types.NodeID]*PartialSignature
	value  *Value
}

// NewAggregator creates an Aggregator for round under pub.
func NewAggregator(pub *ThresholdPublicKey, round types.Round) *Aggregator {
	return &Aggregator{
		pub:    pub,
		round:  round,
		shares: make(map[types.NodeID]*PartialSignature),
	}
}

// Add records share, rejecting it with InvalidSignature if it fails
// verification; a second share from an already-seen voter replaces the
// first. Returns nil before quorum is reached, and the combined value from
// the moment it is reached and on every call afterward, since the value is
// fixed once known.
func (a *Aggregator) Add(share *PartialSignature) (*Value, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.value != nil {
		return a.value, nil
	}
	if !VerifyShare(a.pub, a.round, share) {
		return nil, types.NewInvalidSignature("coin share does not verify")
	}
	a.shares[share.Voter] = share

	if len(a.shares) < a.pub.Threshold {
		return nil, nil
	}

	all := make([]*PartialSignature, 0, len(a.shares))
	for _, s := range a.shares {
		all = append(all, s)
	}
	value, err := Combine(a.pub, a.round, all)
	if err != nil {
		return nil, err
	}
	a.value = value
	return value, nil
}

// Ready reports whether the combined value is already available.
func (a *Aggregator) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value != nil
}

// Value returns the combined value, if Ready.
func (a *Aggregator) Value() (*Value, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value, a.value != nil
}
