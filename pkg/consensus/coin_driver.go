package consensus

import (
	"sync"

	"github.com/dagrider/bft-consensus/pkg/crypto/coin"
	"github.com/dagrider/bft-consensus/pkg/types"
	"github.com/dagrider/bft-consensus/pkg/wire"
)

// CoinDriver drives the threshold coin of §4.A for the rounds that matter
// to leader election (4k+3), broadcasting this node's own share and
// aggregating peers' shares into the combined value once 2f+1 arrive.
type CoinDriver struct {
	pub       *coin.ThresholdPublicKey
	secret    *coin.SecretKeyShare
	broadcast func(wire.Message) error

	mu   sync.Mutex
	aggs map[types.Round]*coin.Aggregator
}

// NewCoinDriver creates a CoinDriver for one node's secret key share under
// pub, sending CoinShare messages to the committee through broadcast.
func NewCoinDriver(pub *coin.ThresholdPublicKey, secret *coin.SecretKeyShare, broadcast func(wire.Message) error) *CoinDriver {
	return &CoinDriver{
		pub:       pub,
		secret:    secret,
		broadcast: broadcast,
		aggs:      make(map[types.Round]*coin.Aggregator),
	}
}

func (d *CoinDriver) aggregatorFor(round types.Round) *coin.Aggregator {
	d.mu.Lock()
	defer d.mu.Unlock()
	agg, ok := d.aggs[round]
	if !ok {
		agg = coin.NewAggregator(d.pub, round)
		d.aggs[round] = agg
	}
	return agg
}

// Share computes and broadcasts this node's own partial signature over
// round, also feeding it into the local aggregator.
func (d *CoinDriver) Share(round types.Round, self types.NodeID) (*coin.Value, error) {
	share := coin.Share(d.secret, round)
	if d.broadcast != nil {
		if err := d.broadcast(wire.CoinShare{
			Round: round,
			Voter: self,
			Share: coin.MarshalShare(share),
		}); err != nil {
			return nil, err
		}
	}
	return d.aggregatorFor(round).Add(share)
}

// HandleShare processes an inbound CoinShare message, returning the
// combined value the moment this round reaches threshold.
func (d *CoinDriver) HandleShare(msg wire.CoinShare) (*coin.Value, error) {
	share, err := coin.UnmarshalShare(msg.Voter, msg.Share)
	if err != nil {
		return nil, types.NewInvalidSignature("malformed coin share")
	}
	return d.aggregatorFor(msg.Round).Add(share)
}

// Value returns the already-combined value for round, if any.
func (d *CoinDriver) Value(round types.Round) (*coin.Value, bool) {
	d.mu.Lock()
	agg, ok := d.aggs[round]
	d.mu.Unlock()
	if !ok {
		return nil, false
	}
	return agg.Value()
}
