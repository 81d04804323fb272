package consensus

import (
	"sort"

	"github.com/dagrider/bft-consensus/pkg/types"
	"github.com/dagrider/bft-consensus/pkg/wire"
)

// shareCoin broadcasts this node's partial signature over wave's coin round
// (4k+3) and feeds it into the local aggregator. A failed share simply
// delays this wave's evaluation until retried via an inbound CoinShare.
func (c *Core) shareCoin(wave uint64) {
	if c.coin == nil {
		return
	}
	round := types.Round(wave*types.WaveLength + 3)
	c.coin.Share(round, c.cfg.Self)
}

// HandleCoinShare feeds an inbound partial signature into the coin driver
// and retries any wave whose commit evaluation was waiting on it.
func (c *Core) HandleCoinShare(msg wire.CoinShare) error {
	if c.coin == nil {
		return nil
	}
	if _, err := c.coin.HandleShare(msg); err != nil {
		return err
	}
	return c.retryPendingWaves()
}

func (c *Core) retryPendingWaves() error {
	if len(c.pendingWaves) == 0 {
		return nil
	}
	pending := c.pendingWaves
	c.pendingWaves = nil
	for _, wave := range pending {
		if err := c.evaluateWave(wave); err != nil {
			return err
		}
	}
	return nil
}

// leaderFor derives wave's elected leader from the combined coin value for
// its coin round, per §4.D.2 step 1. ok is false while the value has not
// yet reached threshold.
func (c *Core) leaderFor(wave uint64) (leader types.NodeID, ok bool) {
	if c.coin == nil {
		return 0, true
	}
	round := types.Round(wave*types.WaveLength + 3)
	value, ready := c.coin.Value(round)
	if !ready {
		return 0, false
	}
	return value.Leader(c.cfg.NProc), true
}

// directlyCommittable counts distinct authors of certified round-(4k+2)
// vertices that reach leaderDigest by is_path, per §4.D.2 step 2.
func (c *Core) directlyCommittable(wave uint64, leaderDigest types.Digest) bool {
	round := types.VotingRound(wave)
	count := 0
	for a := 0; a < c.cfg.NProc; a++ {
		cv, ok := c.store.At(round, types.NodeID(a))
		if !ok {
			continue
		}
		if c.store.IsPath(cv.Vertex.Digest(), leaderDigest) {
			count++
		}
	}
	return count >= types.Quorum(c.cfg.NProc)
}

// evaluateWave performs commit evaluation for wave once r_self has reached
// round 4(wave+1)+1 (§4.D.2). A wave whose coin has resolved to a known,
// uncommitted leader is re-evaluated on every later call -- from
// retryPendingWaves once its own coin resolves, or from retryOpenWaves once
// some other wave commits and supplies a fresh anchor -- since a wave's
// coin can resolve out of order relative to its neighbors. Only a
// committed wave, or one definitively without a leader, is a permanent
// no-op on repeat calls.
func (c *Core) evaluateWave(wave uint64) error {
	if wave > c.highestWave {
		c.highestWave = wave
	}
	if prior, done := c.waves[wave]; done && (prior.committed || !prior.hasLeader) {
		return nil
	}

	leader, ready := c.leaderFor(wave)
	if !ready {
		c.pendingWaves = append(c.pendingWaves, wave)
		return nil
	}

	out, exists := c.waves[wave]
	if !exists {
		out = &waveOutcome{}
		c.waves[wave] = out

		leaderCV, hasLeader := c.store.At(types.LeaderRound(wave), leader)
		if !hasLeader {
			// The elected leader's round-4k vertex never arrived: wave is
			// skipped outright, nothing retroactive to anchor on.
			return nil
		}
		if leaderCV.Vertex.Round == 0 {
			// Genesis vertices are keyed by their fixed genesis digest, not
			// their structural digest.
			out.leaderDigest = types.GenesisDigest(leader, c.cfg.NProc)
		} else {
			out.leaderDigest = leaderCV.Vertex.Digest()
		}
		out.hasLeader = true
	}

	if c.directlyCommittable(wave, out.leaderDigest) {
		return c.commitFrom(wave, out.leaderDigest)
	}

	return c.tryRetroactiveCommit(wave, out.leaderDigest)
}

// tryRetroactiveCommit checks whether wave's now-known leader is reachable
// from the nearest later wave already committed. This is the case where
// wave's coin resolves only after that later wave's own commit already
// ran: commitFrom's backward walk treated wave as unresolved at the time
// and moved on, rather than stopping to wait on it. If no later wave has
// committed yet, or the leader isn't reachable from the one that has,
// wave is recorded as open to retry the next time any wave commits.
func (c *Core) tryRetroactiveCommit(wave uint64, leaderDigest types.Digest) error {
	anchorDigest, found := c.nearestCommittedAbove(wave)
	if !found || !c.store.IsPath(anchorDigest, leaderDigest) {
		c.markOpen(wave)
		return nil
	}
	return c.commitFrom(wave, leaderDigest)
}

// nearestCommittedAbove returns the leader digest of the smallest
// already-committed wave index greater than wave, the tightest anchor a
// retroactive commit of wave can reach through.
func (c *Core) nearestCommittedAbove(wave uint64) (types.Digest, bool) {
	for w := wave + 1; w <= c.highestWave; w++ {
		out, known := c.waves[w]
		if known && out.committed {
			return out.leaderDigest, true
		}
	}
	return types.Digest{}, false
}

func (c *Core) markOpen(wave uint64) {
	for _, w := range c.openWaves {
		if w == wave {
			return
		}
	}
	c.openWaves = append(c.openWaves, wave)
}

func (c *Core) removeOpen(wave uint64) {
	for i, w := range c.openWaves {
		if w == wave {
			c.openWaves = append(c.openWaves[:i], c.openWaves[i+1:]...)
			return
		}
	}
}

// commitFrom commits wave's leader and, walking backward, every earlier
// uncommitted wave whose leader is reachable from the tightening anchor
// (§4.D.2 steps 3-5): a skipped wave j is pulled in once its own leader is
// causally reachable from either L_k or a nearer already-chosen leader. A
// wave whose coin has not resolved yet does not stop the walk -- is_path
// is transitive, so an even-earlier wave reachable from the current
// anchor commits correctly whether or not an unresolved wave sits between
// them; that wave is left for tryRetroactiveCommit once its own coin
// resolves. The walk does stop at the first already-committed wave, the
// natural boundary of what is left to discover.
func (c *Core) commitFrom(wave uint64, leaderDigest types.Digest) error {
	type chosen struct {
		wave   uint64
		digest types.Digest
	}
	chain := []chosen{{wave, leaderDigest}}
	anchor := leaderDigest

	for j := wave; j > 0; j-- {
		jj := j - 1
		prev, known := c.waves[jj]
		if known && prev.committed {
			break
		}
		if !known || !prev.hasLeader {
			continue
		}
		if !c.store.IsPath(anchor, prev.leaderDigest) {
			continue
		}
		chain = append(chain, chosen{jj, prev.leaderDigest})
		anchor = prev.leaderDigest
	}

	sort.Slice(chain, func(i, j int) bool { return chain[i].wave < chain[j].wave })

	for _, ch := range chain {
		leaf, ok := c.store.Get(ch.digest)
		if !ok {
			continue
		}
		for _, cv := range c.store.CausalHistory(leaf) {
			c.emit(cv)
		}
		c.emit(leaf)
		c.waves[ch.wave] = &waveOutcome{leaderDigest: ch.digest, hasLeader: true, committed: true}
		c.removeOpen(ch.wave)
	}

	// r_committed only ever advances: a retroactive commit of an earlier
	// wave, resolved after a later wave already committed, must not regress
	// it back down to that earlier wave's round.
	if lr := types.LeaderRound(wave); lr > c.rCommitted {
		c.rCommitted = lr
		if c.rCommitted > types.Round(2*types.WaveLength) {
			c.store.GC(c.rCommitted - types.Round(2*types.WaveLength))
		}
	}

	return c.retryOpenWaves()
}

// retryOpenWaves re-attempts every wave whose leader is known but was not
// yet committed the last time it was checked, now that a commit just ran
// and may supply a fresh, tighter anchor. Runs to a fixed point: committing
// one open wave can in turn make an even-earlier open wave reachable.
func (c *Core) retryOpenWaves() error {
	for {
		progressed := false
		for _, wave := range append([]uint64(nil), c.openWaves...) {
			out, known := c.waves[wave]
			if !known || out.committed {
				continue
			}
			anchorDigest, found := c.nearestCommittedAbove(wave)
			if !found || !c.store.IsPath(anchorDigest, out.leaderDigest) {
				continue
			}
			if err := c.commitFrom(wave, out.leaderDigest); err != nil {
				return err
			}
			progressed = true
		}
		if !progressed {
			return nil
		}
	}
}

// emit appends v to the committed output stream exactly once.
func (c *Core) emit(v *types.CertifiedVertex) {
	if c.store.IsEmitted(v) {
		return
	}
	c.store.MarkEmitted(v)
	c.commitSeq++
	c.sink.Commit(CommitEntry{Seq: c.commitSeq, Vertex: *v})
}
