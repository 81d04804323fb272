// Package consensus implements the Consensus Core of §4.D: round
// advancement, wave-based leader election, and the deterministic commit
// rule that turns one node's local DAG view into the same totally
// ordered stream of vertices at every correct node.
//
// Grounded on the teacher's pkg/linear (extender.go,
// common_random_permutation.go): a "trigger on new information, compute,
// emit" two-phase pipeline, generalized from Aleph's timing-unit
// selection to DAG-Rider's wave-leader commit rule. The per-round timer
// mirrors pkg/creator's delay mechanism in spirit, reduced to a single
// fixed interval per §4.D.3 and §9's open-question decision.
package consensus

import (
	"github.com/dagrider/bft-consensus/pkg/dagstore"
	"github.com/dagrider/bft-consensus/pkg/rb"
	"github.com/dagrider/bft-consensus/pkg/types"
)

// MempoolClient is the consensus core's view of the external mempool
// (§6): a non-blocking source of batch digests to include as a vertex's
// payload.
type MempoolClient interface {
	NextBatchDigests(budgetBytes int) []types.Digest
}

// CommitEntry is one element of the committed output stream handed to the
// external executor (§6): a strictly increasing sequence number paired
// with the vertex it orders.
type CommitEntry struct {
	Seq    uint64
	Vertex types.CertifiedVertex
}

// Sink receives the committed output stream in order.
type Sink interface {
	Commit(CommitEntry)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(CommitEntry)

// Commit implements Sink.
func (f SinkFunc) Commit(e CommitEntry) { f(e) }

// Config parameterizes one Core instance.
type Config struct {
	NProc int
	Self  types.NodeID

	// WeakParentByteBudget caps how many 32-byte digests weak-parent
	// selection pulls in per vertex (§9's deterministic weak-parent
	// policy decision: all delivered, uncommitted vertices, round then
	// author order, under a byte budget).
	WeakParentByteBudget int
	// PayloadByteBudget caps how many bytes of batch digests are pulled
	// from the mempool per vertex.
	PayloadByteBudget int
}

// Core owns r_self, the pending-leader queue, and r_committed (§4.D). It
// is driven by exactly one task, fed by rb.Coordinator's OnCertified hook;
// all exported methods are safe to call only from that task's goroutine,
// matching the "single owning task" rule of §5.
type Core struct {
	cfg   Config
	store *dagstore.Store
	rb    *rb.Coordinator
	pool  MempoolClient
	sink  Sink
	coin  *CoinDriver

	rSelf      types.Round
	rCommitted types.Round
	commitSeq  uint64

	// waves holds the outcome of every wave evaluated so far, indexed by
	// wave number, so later waves can retroactively fill in skipped ones.
	waves map[uint64]*waveOutcome

	// highestWave is the largest wave number ever passed to evaluateWave,
	// the upper bound nearestCommittedAbove scans to.
	highestWave uint64

	pendingWaves []uint64

	// openWaves holds waves whose leader is known but which neither
	// committed directly nor found a later committed wave to anchor off of
	// yet. Retried every time some other wave commits (commitFrom's
	// retryOpenWaves), since a wave's coin can resolve out of order
	// relative to its neighbors.
	openWaves []uint64

	// timer is the §4.D.3 per-round straggler timer. Nil by default: Core
	// then advances the instant r_self reaches the 2f+1 lower bound, which
	// is always a safe special case of the timer rule (the wait duration
	// collapses to zero). pkg/node attaches a real RoundTimer so a node
	// instead waits, up to timer.duration, for stragglers beyond 2f+1.
	timer *RoundTimer
}

type waveOutcome struct {
	leaderDigest types.Digest
	hasLeader    bool
	committed    bool
}

// New creates a Core. coin may be nil for a single-node/test setup where
// leader election is not exercised; evaluateWave then always elects node 0
// without waiting on any threshold signature.
func New(cfg Config, store *dagstore.Store, coordinator *rb.Coordinator, pool MempoolClient, sink Sink, coin *CoinDriver) *Core {
	return &Core{
		cfg:   cfg,
		store: store,
		rb:    coordinator,
		pool:  pool,
		sink:  sink,
		coin:  coin,
		waves: make(map[uint64]*waveOutcome),
	}
}

// Start builds and proposes the round-1 vertex, whose strong parents are
// the N genesis vertices (§4.D.1).
func (c *Core) Start() error {
	c.rSelf = 1
	return c.buildAndPropose(1, types.GenesisDigests(c.cfg.NProc))
}

// RSelf returns the node's current round counter.
func (c *Core) RSelf() types.Round { return c.rSelf }

// RCommitted returns the last committed wave's leader round.
func (c *Core) RCommitted() types.Round { return c.rCommitted }

// AttachTimer wires rt as the §4.D.3 straggler timer. It must be called
// before Start, from the same task that will later call TimerFired: once
// attached, a node at the 2f+1 lower bound waits for the rest of the
// committee to certify, up to rt's duration, instead of advancing
// immediately.
func (c *Core) AttachTimer(rt *RoundTimer) { c.timer = rt }

// OnCertified is registered as the rb.Coordinator's OnCertified hook. It
// drives round advancement (§4.D.1) and, once a wave completes in the
// local DAG, commit evaluation (§4.D.2).
func (c *Core) OnCertified(cv types.CertifiedVertex) error {
	if cv.Vertex.Round != c.rSelf {
		return nil
	}
	count := c.store.CountCertified(c.rSelf)
	if count == 1 && c.timer != nil {
		c.timer.StartIfIdle(c.rSelf)
	}
	if count < types.Quorum(c.cfg.NProc) {
		return nil
	}
	if c.timer == nil || count == c.cfg.NProc {
		if c.timer != nil {
			c.timer.Cancel(c.rSelf)
		}
		return c.advance()
	}
	// Quorum is met but a timer is attached and stragglers may still be
	// coming; TimerFired advances once it fires, or this call recurs with
	// count == NProc and advances via the fast path above.
	return nil
}

// TimerFired is called by the owning task when its RoundTimer fires for
// round (§4.D.3). It advances r_self with whatever has certified so far,
// provided that still meets the 2f+1 lower bound; a round that has
// already advanced, or hasn't reached quorum yet, is a no-op.
func (c *Core) TimerFired(round types.Round) error {
	if round != c.rSelf {
		return nil
	}
	if c.store.CountCertified(c.rSelf) < types.Quorum(c.cfg.NProc) {
		return nil
	}
	return c.advance()
}

// advance moves r_self to r_self+1: collects strong parents from the
// just-completed round, selects weak parents, pulls a fresh payload, and
// hands a new vertex to RB (§4.D.1, steps 1-5).
func (c *Core) advance() error {
	r := c.rSelf
	strong := c.strongParentsAt(r)
	if err := c.buildAndPropose(r+1, strong); err != nil {
		return err
	}
	c.rSelf = r + 1

	if uint64(c.rSelf)%types.WaveLength == 3 {
		// r_self has just reached round 4k+3: the coin round for wave k
		// (§4.D.2 step 1). Share this node's partial signature now so the
		// combined value is ready by the time wave k is evaluated.
		c.shareCoin(types.WaveOf(c.rSelf))
	}

	if c.rSelf >= types.WaveCompleteRound(0) && (uint64(c.rSelf)-1)%types.WaveLength == 0 {
		k := (uint64(c.rSelf)-1)/types.WaveLength - 1
		return c.evaluateWave(k)
	}
	return nil
}

// strongParentsAt collects every certified round-r vertex's digest, for
// use as the strong-parent set of round r+1 (§4.D.1 step 1). round is
// always >= 1 here: round 0's genesis parents are supplied directly by
// Start.
func (c *Core) strongParentsAt(round types.Round) []types.Digest {
	var out []types.Digest
	for a := 0; a < c.cfg.NProc; a++ {
		if cv, ok := c.store.At(round, types.NodeID(a)); ok {
			out = append(out, cv.Vertex.Digest())
		}
	}
	return out
}

// weakParents implements the deterministic weak-parent policy decided in
// DESIGN.md for the open question in §9: all delivered-but-uncommitted
// vertices strictly before the strong-parent round, round then author
// order, capped by WeakParentByteBudget.
func (c *Core) weakParents(strongRound types.Round) []types.Digest {
	budget := c.cfg.WeakParentByteBudget
	if budget <= 0 {
		return nil
	}
	var out []types.Digest
	used := 0
	for _, cv := range c.store.DeliveredUncommitted() {
		if cv.Vertex.Round >= strongRound {
			continue
		}
		if used+types.DigestSize > budget {
			break
		}
		out = append(out, cv.Vertex.Digest())
		used += types.DigestSize
	}
	return out
}

func (c *Core) buildAndPropose(round types.Round, strongParents []types.Digest) error {
	weak := c.weakParents(round - 1)
	payload := c.pool.NextBatchDigests(c.cfg.PayloadByteBudget)

	v := types.Vertex{
		Round:         round,
		Author:        c.cfg.Self,
		Payload:       payload,
		StrongParents: strongParents,
		WeakParents:   weak,
	}
	return c.rb.Propose(v)
}
