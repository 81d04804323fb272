package rb

import (
	"sync"

	"github.com/dagrider/bft-consensus/pkg/crypto/signing"
	"github.com/dagrider/bft-consensus/pkg/dagstore"
	"github.com/dagrider/bft-consensus/pkg/types"
	"github.com/dagrider/bft-consensus/pkg/wire"
)

// VoteStore persists this node's own cast votes across restarts, so that a
// crash and restart never casts a conflicting vote for an (author, round)
// it already voted at (§3 boundary case "persistence across restart").
// Satisfied by *storage.Store; kept as a narrow interface here so rb does
// not need the rest of storage's surface.
type VoteStore interface {
	RecordVote(author types.NodeID, round types.Round, digest types.Digest) error
	LastVote(author types.NodeID, round types.Round) (types.Digest, bool, error)
}

// Deps are the Coordinator's external collaborators: the committee's
// verification keys, this node's own signing key, the DAG store instances
// are delivered into, and the send primitives the network task exposes.
// None of these are owned by rb; the Coordinator only ever reads Store and
// writes to it through Store.Insert.
type Deps struct {
	NProc int
	Self  types.NodeID
	Priv  signing.PrivateKey
	Pubs  []signing.PublicKey
	Store *dagstore.Store

	Unicast   func(to types.NodeID, msg wire.Message) error
	Broadcast func(msg wire.Message) error

	// VerifyPool runs signature verification jobs off the single dispatch
	// goroutine that drives the Coordinator (§5: verification is CPU-bound
	// and belongs on a worker pool). May be nil, in which case verification
	// runs inline, which is what the unit tests that construct Deps
	// directly rely on.
	VerifyPool *VerifyPool

	// Disk durably records every vote this node casts, so a restart never
	// re-votes conflictingly for an (author, round) it already voted at.
	// May be nil, in which case votes are only tracked in memory for the
	// lifetime of the process, which is what the unit tests that construct
	// Deps directly rely on.
	Disk VoteStore

	// OnCertified is invoked once per instance, the moment it is inserted
	// into Store as Certified. The Consensus Core subscribes here to learn
	// about round advancement opportunities.
	OnCertified func(types.CertifiedVertex)
}

// Coordinator runs the per-(author, round) reliable-broadcast state
// machines of §4.B. It is meant to be driven by exactly one task (the "RB
// coordinator" of §5); all exported methods lock internally so it is safe
// to call from a single goroutine dispatch loop without external
// synchronization.
type Coordinator struct {
	mu   sync.Mutex
	deps Deps

	instances map[key]*instance
	// pendingOn maps a not-yet-certified parent digest to the instances
	// blocked waiting for it, so a later certification can re-trigger
	// their validation without the RB layer polling.
	pendingOn map[types.Digest][]key

	// awaitingCoA holds CoAs whose vertex has not arrived yet (a CERT
	// raced ahead of its PROPOSE). Keyed by vertex digest since that is
	// all a bare CoA carries; consumed the moment the matching PROPOSE is
	// validated.
	awaitingCoA map[types.Digest]types.CoA

	// certifiedQueue accumulates vertices certified during the current
	// locked call, fired to deps.OnCertified only after the lock is
	// released (§5: OnCertified typically drives the Consensus Core to
	// propose the next round through this very Coordinator, which would
	// deadlock on sync.Mutex's non-reentrance if fired while still held).
	certifiedQueue []types.CertifiedVertex

	sync *Synchroniser

	misbehavior map[types.NodeID]int
}

// New creates a Coordinator. sync may be nil, in which case missing
// parents/vertices are recorded but never actively fetched (useful in
// tests that supply dependencies directly).
func New(deps Deps, sync *Synchroniser) *Coordinator {
	return &Coordinator{
		deps:        deps,
		instances:   make(map[key]*instance),
		pendingOn:   make(map[types.Digest][]key),
		awaitingCoA: make(map[types.Digest]types.CoA),
		sync:        sync,
		misbehavior: make(map[types.NodeID]int),
	}
}

// verify runs job on deps.VerifyPool if one was supplied, inline otherwise.
func (c *Coordinator) verify(job func() error) error {
	if c.deps.VerifyPool != nil {
		return c.deps.VerifyPool.Verify(job)
	}
	return job()
}

func (c *Coordinator) getOrCreate(k key) *instance {
	inst, ok := c.instances[k]
	if !ok {
		inst = newInstance(k)
		c.instances[k] = inst
	}
	return inst
}

// State returns the current state of the (author, round) instance, or
// Unknown if none exists.
func (c *Coordinator) State(author types.NodeID, round types.Round) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instances[key{author, round}]
	if !ok {
		return Unknown
	}
	return inst.state
}

// Propose authors and broadcasts a new vertex for round r. This is the
// "construct, sign, hand to RB" step of §4.D.1.
func (c *Coordinator) Propose(v types.Vertex) error {
	c.mu.Lock()
	err := c.proposeLocked(v)
	certified := c.takeCertifiedLocked()
	c.mu.Unlock()
	c.fireCertified(certified)
	return err
}

func (c *Coordinator) proposeLocked(v types.Vertex) error {
	digest := signing.SignVertex(c.deps.Priv, &v)
	k := key{v.Author, v.Round}
	inst := c.getOrCreate(k)
	inst.state = Delivered
	inst.vertex = &v
	inst.digest = digest
	inst.votes = map[types.NodeID]types.Signature{
		c.deps.Self: c.deps.Priv.Sign(digest),
	}

	if c.deps.Broadcast != nil {
		if err := c.deps.Broadcast(wire.Propose{Vertex: v}); err != nil {
			return err
		}
	}
	return c.maybeCertifyLocked(inst)
}

// HandlePropose processes an inbound PROPOSE from author at vertex.Round.
func (c *Coordinator) HandlePropose(from types.NodeID, v types.Vertex) error {
	c.mu.Lock()
	err := c.handleProposeLocked(from, v)
	certified := c.takeCertifiedLocked()
	c.mu.Unlock()
	c.fireCertified(certified)
	return err
}

func (c *Coordinator) handleProposeLocked(from types.NodeID, v types.Vertex) error {
	if int(v.Author) >= len(c.deps.Pubs) {
		return types.NewInvalidSignature("unknown author")
	}
	if err := c.verify(func() error {
		if !signing.VerifyVertex(c.deps.Pubs[v.Author], &v) {
			return types.NewInvalidSignature("vertex signature does not verify")
		}
		return nil
	}); err != nil {
		c.penalize(v.Author)
		return err
	}

	k := key{v.Author, v.Round}
	inst := c.getOrCreate(k)
	digest := v.Digest()

	switch inst.state {
	case Rejected:
		return nil
	case Certified, Delivered, Validating:
		if inst.vertex != nil && inst.digest != digest {
			c.penalize(v.Author)
			inst.recordEquivocation(digest)
			return types.NewEquivocatingAuthor(v.Author, v.Round)
		}
		if inst.state != Validating {
			return nil
		}
	case Unknown, AwaitingVertex:
		// fall through to validation below
	}

	inst.state = Validating
	inst.vertex = &v
	inst.digest = digest

	if coa, ok := c.awaitingCoA[digest]; ok {
		delete(c.awaitingCoA, digest)
		if err := c.checkInvariants(inst.vertex); err != nil {
			if _, ok := err.(*types.MissingParent); ok {
				inst.coa = &coa
				c.registerPending(inst)
				return nil
			}
			c.penalize(v.Author)
			inst.state = Rejected
			return err
		}
		inst.state = Delivered
		return c.certifyLocked(inst, coa)
	}

	return c.tryDeliverLocked(inst)
}

// tryDeliverLocked attempts to move inst from Validating to Delivered (or
// straight to Certified if a CoA is already pending for it).
func (c *Coordinator) tryDeliverLocked(inst *instance) error {
	if err := c.checkInvariants(inst.vertex); err != nil {
		if _, ok := err.(*types.MissingParent); ok {
			c.registerPending(inst)
			return nil
		}
		c.penalize(inst.Author)
		inst.state = Rejected
		return err
	}

	inst.state = Delivered
	if c.deps.Self != inst.Author {
		if c.deps.Disk != nil {
			prior, voted, err := c.deps.Disk.LastVote(inst.Author, inst.key.Round)
			if err != nil {
				return err
			}
			if voted && prior != inst.digest {
				// Already voted for a different digest at this
				// (author, round) on a prior run; refuse to vote again
				// rather than risk an equivocating second vote.
				return nil
			}
			if !voted {
				if err := c.deps.Disk.RecordVote(inst.Author, inst.key.Round, inst.digest); err != nil {
					return err
				}
			}
		}
		sig := c.deps.Priv.Sign(inst.digest)
		if c.deps.Unicast != nil {
			if err := c.deps.Unicast(inst.Author, wire.Vote{
				Digest: inst.digest,
				Voter:  c.deps.Self,
				Sig:    sig,
			}); err != nil {
				return err
			}
		}
	}
	return c.maybeCertifyLocked(inst)
}

// checkInvariants re-checks the §3 structural invariants against the DAG
// store's current contents: enough distinct-author strong parents from
// round-1, and every named parent already certified (stored).
func (c *Coordinator) checkInvariants(v *types.Vertex) error {
	if v.Round == 0 {
		return nil
	}
	quorum := types.Quorum(c.deps.NProc)
	if len(v.StrongParents) < quorum {
		return types.NewInvariantViolation("fewer than quorum strong parents")
	}
	seenAuthors := make(map[types.NodeID]struct{}, len(v.StrongParents))
	for _, p := range v.StrongParents {
		parent, ok := c.deps.Store.Get(p)
		if !ok {
			return types.NewMissingParent(p)
		}
		if parent.Vertex.Round != v.Round-1 {
			return types.NewInvariantViolation("strong parent not from round-1")
		}
		if _, dup := seenAuthors[parent.Vertex.Author]; dup {
			return types.NewInvariantViolation("duplicate strong parent author")
		}
		seenAuthors[parent.Vertex.Author] = struct{}{}
	}
	for _, p := range v.WeakParents {
		if !c.deps.Store.Contains(p) {
			return types.NewMissingParent(p)
		}
	}
	return nil
}

func (c *Coordinator) registerPending(inst *instance) {
	if err := c.checkInvariants(inst.vertex); err != nil {
		if mp, ok := err.(*types.MissingParent); ok {
			c.pendingOn[mp.Digest] = append(c.pendingOn[mp.Digest], inst.key)
			if c.sync != nil {
				c.sync.Request(mp.Digest)
			}
		}
	}
}

// maybeCertifyLocked checks whether inst already carries a pending CoA
// (from an out-of-order CERT) or, for self-authored vertices, now has
// quorum votes, and if so finalizes certification.
func (c *Coordinator) maybeCertifyLocked(inst *instance) error {
	if inst.state == Certified {
		return nil
	}
	if inst.state != Delivered {
		return nil
	}

	if inst.coa != nil {
		return c.certifyLocked(inst, *inst.coa)
	}

	if inst.Author == c.deps.Self && inst.distinctVotes() >= types.Quorum(c.deps.NProc) {
		sigs := make([]types.AckSig, 0, len(inst.votes))
		for voter, sig := range inst.votes {
			sigs = append(sigs, types.AckSig{Voter: voter, Sig: sig})
		}
		coa := types.CoA{VertexDigest: inst.digest, Signatures: sigs}
		if c.deps.Broadcast != nil {
			if err := c.deps.Broadcast(wire.Cert{CoA: coa}); err != nil {
				return err
			}
		}
		return c.certifyLocked(inst, coa)
	}
	return nil
}

func (c *Coordinator) certifyLocked(inst *instance, coa types.CoA) error {
	if coa.DistinctVoters() < types.Quorum(c.deps.NProc) {
		return types.NewInvariantViolation("CoA has fewer than quorum signatures")
	}
	if err := c.deps.Store.Insert(*inst.vertex, coa); err != nil {
		return err
	}
	inst.state = Certified
	inst.coa = &coa
	c.certifiedQueue = append(c.certifiedQueue, types.CertifiedVertex{Vertex: *inst.vertex, CoA: coa})
	if c.sync != nil {
		c.sync.Cancel(inst.digest)
	}
	c.retryPending(inst.digest)
	return nil
}

// takeCertifiedLocked drains the vertices certified during the call just
// finished. Must be called with mu still held, right before unlocking.
func (c *Coordinator) takeCertifiedLocked() []types.CertifiedVertex {
	if len(c.certifiedQueue) == 0 {
		return nil
	}
	certified := c.certifiedQueue
	c.certifiedQueue = nil
	return certified
}

// fireCertified invokes deps.OnCertified for each newly certified vertex.
// Must be called with mu NOT held.
func (c *Coordinator) fireCertified(certified []types.CertifiedVertex) {
	if c.deps.OnCertified == nil {
		return
	}
	for _, cv := range certified {
		c.deps.OnCertified(cv)
	}
}

// retryPending re-attempts validation for every instance that was blocked
// waiting on digest, now that it has been certified.
func (c *Coordinator) retryPending(digest types.Digest) {
	keys, ok := c.pendingOn[digest]
	if !ok {
		return
	}
	delete(c.pendingOn, digest)
	for _, k := range keys {
		inst, ok := c.instances[k]
		if !ok || inst.vertex == nil || inst.state == Certified || inst.state == Rejected {
			continue
		}
		c.tryDeliverLocked(inst)
	}
}

// HandleVote processes an inbound VOTE. Only the vertex's own author
// aggregates votes; votes addressed to any other instance are dropped.
func (c *Coordinator) HandleVote(from types.NodeID, v wire.Vote) error {
	c.mu.Lock()
	err := c.handleVoteLocked(from, v)
	certified := c.takeCertifiedLocked()
	c.mu.Unlock()
	c.fireCertified(certified)
	return err
}

func (c *Coordinator) handleVoteLocked(from types.NodeID, v wire.Vote) error {
	if int(v.Voter) >= len(c.deps.Pubs) {
		return types.NewInvalidSignature("unknown voter")
	}
	if err := c.verify(func() error {
		if !c.deps.Pubs[v.Voter].Verify(v.Digest, v.Sig) {
			return types.NewInvalidSignature("vote signature does not verify")
		}
		return nil
	}); err != nil {
		c.penalize(v.Voter)
		return err
	}

	for k, inst := range c.instances {
		if k.Author != c.deps.Self || inst.digest != v.Digest {
			continue
		}
		if inst.votes == nil {
			inst.votes = make(map[types.NodeID]types.Signature)
		}
		inst.votes[v.Voter] = v.Sig
		return c.maybeCertifyLocked(inst)
	}
	return nil
}

// HandleCert processes an inbound CERT carrying a complete CoA.
func (c *Coordinator) HandleCert(from types.NodeID, cert wire.Cert) error {
	c.mu.Lock()
	err := c.handleCertLocked(from, cert)
	certified := c.takeCertifiedLocked()
	c.mu.Unlock()
	c.fireCertified(certified)
	return err
}

func (c *Coordinator) handleCertLocked(from types.NodeID, cert wire.Cert) error {
	coa := cert.CoA
	if coa.DistinctVoters() < types.Quorum(c.deps.NProc) {
		return types.NewInvariantViolation("CoA has fewer than quorum signatures")
	}
	for _, s := range coa.Signatures {
		if int(s.Voter) >= len(c.deps.Pubs) {
			return types.NewInvalidSignature("unknown CoA signer")
		}
		s := s
		if err := c.verify(func() error {
			if !c.deps.Pubs[s.Voter].Verify(coa.VertexDigest, s.Sig) {
				return types.NewInvalidSignature("CoA signature does not verify")
			}
			return nil
		}); err != nil {
			c.penalize(s.Voter)
			return err
		}
	}

	if cv, ok := c.deps.Store.Get(coa.VertexDigest); ok {
		_ = cv
		return nil
	}

	for _, inst := range c.instances {
		if inst.digest == coa.VertexDigest && inst.vertex != nil {
			if inst.state == Rejected {
				return nil
			}
			inst.coa = &coa
			if inst.state == Delivered {
				return c.certifyLocked(inst, coa)
			}
			return nil
		}
	}

	// Vertex not seen yet under this digest: remember the pending CoA so
	// the matching PROPOSE, whenever it arrives, can certify immediately
	// (§4.B state machine's CERT-before-vertex edge; the instance itself
	// stays Unknown, since a bare CoA names no (author, round)).
	if _, already := c.awaitingCoA[coa.VertexDigest]; !already {
		c.awaitingCoA[coa.VertexDigest] = coa
		if c.sync != nil {
			c.sync.Request(coa.VertexDigest)
		}
	}
	return nil
}

func (c *Coordinator) penalize(node types.NodeID) {
	c.misbehavior[node]++
}

// MisbehaviorScore returns the accumulated misbehavior count for node,
// per §7's "counted against a per-round misbehavior budget but not
// disconnected".
func (c *Coordinator) MisbehaviorScore(node types.NodeID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misbehavior[node]
}
