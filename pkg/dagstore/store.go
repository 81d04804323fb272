// Package dagstore holds the per-node view of the growing DAG: an
// append-only, round-indexed map of certified vertices, the parent-link
// and round-monotonicity invariants of §3, and the causal-history and
// reachability queries the Consensus Core drives commit evaluation from.
//
// Grounded on the teacher's pkg/dag (dag.go, adding.go, unit_bag.go,
// level_map.go): the same "round/level indexed slots, authors as the
// second index" layout, generalized from Aleph's level-based DAG to
// DAG-Rider's round-based one. Store is the single owner of this state;
// per §5 it is meant to be driven by exactly one task.
package dagstore

import (
	"sort"

	"github.com/dagrider/bft-consensus/pkg/types"
)

// Store is the append-only DAG: dag[r][author] -> CertifiedVertex.
type Store struct {
	nProc int

	// byRound[r][author] holds the one certified vertex this node has
	// accepted for (author, r), if any.
	byRound map[types.Round]map[types.NodeID]*types.CertifiedVertex
	// byDigest indexes every accepted vertex by its digest for O(1)
	// contains/get lookups regardless of round.
	byDigest map[types.Digest]*types.CertifiedVertex
	// emitted marks vertices already placed in the committed output
	// stream, so causal_history never re-emits them (§4.C).
	emitted map[types.Digest]struct{}

	lowestRound types.Round
}

// New creates an empty Store seeded with the implicit genesis vertices for
// a committee of nProc members (§3 invariant 5: genesis vertices need no
// CoA).
func New(nProc int) *Store {
	s := &Store{
		nProc:    nProc,
		byRound:  make(map[types.Round]map[types.NodeID]*types.CertifiedVertex),
		byDigest: make(map[types.Digest]*types.CertifiedVertex),
		emitted:  make(map[types.Digest]struct{}),
	}
	genesisAuthors := make(map[types.NodeID]*types.CertifiedVertex, nProc)
	for _, v := range types.Genesis(nProc) {
		cv := &types.CertifiedVertex{Vertex: v}
		d := types.GenesisDigest(v.Author, nProc)
		genesisAuthors[v.Author] = cv
		s.byDigest[d] = cv
	}
	s.byRound[0] = genesisAuthors
	return s
}

// digestOf returns the digest a certified vertex is keyed by: the fixed
// genesis digest at round 0, its structural digest otherwise.
func (s *Store) digestOf(v *types.Vertex) types.Digest {
	if v.Round == 0 {
		return types.GenesisDigest(v.Author, s.nProc)
	}
	return v.Digest()
}

// Insert adds a certified vertex to the store. It fails with
// EquivocatingAuthor if (author, round) is already occupied by a
// different digest, with InvariantViolation if any of the §3 structural
// invariants are violated, and with MissingParent if a named parent has
// not itself been delivered with a CoA yet.
func (s *Store) Insert(v types.Vertex, coa types.CoA) error {
	digest := s.digestOf(&v)
	if digest != coa.VertexDigest {
		return types.NewInvariantViolation("CoA digest does not match vertex digest")
	}

	if v.Round > 0 {
		if coa.DistinctVoters() < types.Quorum(s.nProc) {
			return types.NewInvariantViolation("CoA has fewer than quorum distinct signatures")
		}
		if len(v.StrongParents) < types.Quorum(s.nProc) {
			return types.NewInvariantViolation("vertex has fewer than quorum strong parents")
		}
		if err := s.checkStrongParents(v); err != nil {
			return err
		}
		for _, p := range v.StrongParents {
			if !s.contains(p) {
				return types.NewMissingParent(p)
			}
		}
		for _, p := range v.WeakParents {
			if !s.contains(p) {
				return types.NewMissingParent(p)
			}
		}
	}

	authors, ok := s.byRound[v.Round]
	if !ok {
		authors = make(map[types.NodeID]*types.CertifiedVertex)
		s.byRound[v.Round] = authors
	}
	if existing, present := authors[v.Author]; present {
		if s.digestOf(&existing.Vertex) != digest {
			return types.NewEquivocatingAuthor(v.Author, v.Round)
		}
		return nil
	}

	cv := &types.CertifiedVertex{Vertex: v, CoA: coa}
	authors[v.Author] = cv
	s.byDigest[digest] = cv
	return nil
}

// checkStrongParents verifies that strong parents are all from round-1,
// all distinct authors (§3 invariant 3).
func (s *Store) checkStrongParents(v types.Vertex) error {
	seenAuthors := make(map[types.NodeID]struct{}, len(v.StrongParents))
	for _, p := range v.StrongParents {
		parent, ok := s.byDigest[p]
		if !ok {
			return types.NewMissingParent(p)
		}
		if parent.Vertex.Round != v.Round-1 {
			return types.NewInvariantViolation("strong parent is not from round-1")
		}
		if _, dup := seenAuthors[parent.Vertex.Author]; dup {
			return types.NewInvariantViolation("strong parents have a duplicate author")
		}
		seenAuthors[parent.Vertex.Author] = struct{}{}
	}
	return nil
}

func (s *Store) contains(d types.Digest) bool {
	_, ok := s.byDigest[d]
	return ok
}

// Contains reports whether digest has been delivered with a valid CoA.
func (s *Store) Contains(d types.Digest) bool {
	return s.contains(d)
}

// Get returns the certified vertex for digest, if delivered.
func (s *Store) Get(d types.Digest) (*types.CertifiedVertex, bool) {
	cv, ok := s.byDigest[d]
	return cv, ok
}

// At returns the certified vertex authored by author at round, if any.
func (s *Store) At(round types.Round, author types.NodeID) (*types.CertifiedVertex, bool) {
	authors, ok := s.byRound[round]
	if !ok {
		return nil, false
	}
	cv, ok := authors[author]
	return cv, ok
}

// CountCertified returns the number of distinct authors with a certified
// vertex at round.
func (s *Store) CountCertified(round types.Round) int {
	return len(s.byRound[round])
}

// IsPath reports whether u reaches v via directed parent edges (strong or
// weak). Used by the leader commit rule to test reachability.
func (s *Store) IsPath(u, v types.Digest) bool {
	if u == v {
		return true
	}
	visited := map[types.Digest]struct{}{u: {}}
	stack := []types.Digest{u}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cv, ok := s.byDigest[cur]
		if !ok {
			continue
		}
		for _, p := range append(append([]types.Digest{}, cv.Vertex.StrongParents...), cv.Vertex.WeakParents...) {
			if p == v {
				return true
			}
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			stack = append(stack, p)
		}
	}
	return false
}

// CausalHistory returns the transitive closure of v's strong and weak
// parents, stopping at genesis and at already-emitted vertices, ordered
// deterministically round-ascending then author-ascending (§4.C). The
// returned vertices are NOT marked emitted; callers call MarkEmitted once
// they actually append them to the output stream.
func (s *Store) CausalHistory(v *types.CertifiedVertex) []*types.CertifiedVertex {
	visited := make(map[types.Digest]struct{})
	var collected []*types.CertifiedVertex

	var visit func(d types.Digest)
	visit = func(d types.Digest) {
		if _, seen := visited[d]; seen {
			return
		}
		visited[d] = struct{}{}
		cv, ok := s.byDigest[d]
		if !ok || cv.Vertex.Round == 0 {
			return
		}
		if _, done := s.emitted[d]; done {
			return
		}
		for _, p := range cv.Vertex.StrongParents {
			visit(p)
		}
		for _, p := range cv.Vertex.WeakParents {
			visit(p)
		}
		collected = append(collected, cv)
	}

	digest := s.digestOf(&v.Vertex)
	for _, p := range v.Vertex.StrongParents {
		visit(p)
	}
	for _, p := range v.Vertex.WeakParents {
		visit(p)
	}
	_ = digest

	sort.Slice(collected, func(i, j int) bool {
		a, b := collected[i].Vertex, collected[j].Vertex
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		return a.Author < b.Author
	})
	return collected
}

// MarkEmitted records that v has been placed in the committed output
// stream and must never be re-emitted by a later causal_history traversal.
func (s *Store) MarkEmitted(v *types.CertifiedVertex) {
	s.emitted[s.digestOf(&v.Vertex)] = struct{}{}
}

// IsEmitted reports whether v has already been placed in the committed
// output stream.
func (s *Store) IsEmitted(v *types.CertifiedVertex) bool {
	_, ok := s.emitted[s.digestOf(&v.Vertex)]
	return ok
}

// DeliveredUncommitted returns every certified, non-genesis vertex this
// node has delivered but not yet emitted, ordered round ascending then
// author ascending. This is the candidate pool the Consensus Core's
// weak-parent selection policy (§9 open question) draws from.
func (s *Store) DeliveredUncommitted() []*types.CertifiedVertex {
	var out []*types.CertifiedVertex
	for round, authors := range s.byRound {
		if round == 0 {
			continue
		}
		for _, cv := range authors {
			if s.IsEmitted(cv) {
				continue
			}
			out = append(out, cv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Vertex, out[j].Vertex
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		return a.Author < b.Author
	})
	return out
}

// GC prunes rounds at or below keepAbove (the Consensus Core passes
// r_committed - 2*wave_length per §5's resource policy). Genesis (round 0)
// is never pruned.
func (s *Store) GC(keepAbove types.Round) {
	if keepAbove == 0 {
		return
	}
	for round, authors := range s.byRound {
		if round == 0 || round > keepAbove {
			continue
		}
		for _, cv := range authors {
			delete(s.byDigest, s.digestOf(&cv.Vertex))
			delete(s.emitted, s.digestOf(&cv.Vertex))
		}
		delete(s.byRound, round)
	}
	if keepAbove > s.lowestRound {
		s.lowestRound = keepAbove
	}
}

// LowestRound reports the highest keepAbove passed to GC so far: every
// non-genesis round at or below it has been pruned.
func (s *Store) LowestRound() types.Round {
	return s.lowestRound
}
