package rb

import "github.com/dagrider/bft-consensus/pkg/types"

// instance is the mutable state of one (author, round) broadcast. It is
// only ever touched while the owning Coordinator's lock is held.
type instance struct {
	key

	state  State
	vertex *types.Vertex
	digest types.Digest

	// votes collects distinct signatures over digest, populated only when
	// this node is the author (it alone aggregates votes into a CoA).
	votes map[types.NodeID]types.Signature

	coa *types.CoA

	// rejectedDigests records every distinct digest seen for this
	// (author, round), the local evidence of equivocation.
	rejectedDigests map[types.Digest]struct{}
}

func newInstance(k key) *instance {
	return &instance{key: k, state: Unknown}
}

// distinctVotes reports how many distinct voters have signed digest so
// far.
func (i *instance) distinctVotes() int {
	return len(i.votes)
}

// recordEquivocation marks this instance permanently Rejected and notes
// digest as a second, conflicting proposal.
func (i *instance) recordEquivocation(digest types.Digest) {
	if i.rejectedDigests == nil {
		i.rejectedDigests = make(map[types.Digest]struct{}, 2)
	}
	i.rejectedDigests[digest] = struct{}{}
	if !i.digest.IsZero() {
		i.rejectedDigests[i.digest] = struct{}{}
	}
	i.state = Rejected
	i.vertex = nil
	i.votes = nil
}
