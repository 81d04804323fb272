package dagstore_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/dagrider/bft-consensus/pkg/dagstore"
	"github.com/dagrider/bft-consensus/pkg/types"
)

const nProc = 4 // f = 1, quorum = 3

func fakeCoA(digest types.Digest, voters ...types.NodeID) types.CoA {
	sigs := make([]types.AckSig, len(voters))
	for i, v := range voters {
		sigs[i] = types.AckSig{Voter: v, Sig: types.Signature{byte(v) + 1}}
	}
	return types.CoA{VertexDigest: digest, Signatures: sigs}
}

func round1Vertex(author types.NodeID) (types.Vertex, types.CoA) {
	v := types.Vertex{
		Round:         1,
		Author:        author,
		StrongParents: types.GenesisDigests(nProc),
	}
	d := v.Digest()
	return v, fakeCoA(d, 0, 1, 2)
}

var _ = Describe("Store", func() {
	var store *dagstore.Store

	BeforeEach(func() {
		store = dagstore.New(nProc)
	})

	It("seeds genesis vertices for every committee member with no CoA required", func() {
		for i := types.NodeID(0); i < nProc; i++ {
			d := types.GenesisDigest(i, nProc)
			Expect(store.Contains(d)).To(BeTrue())
			cv, ok := store.Get(d)
			Expect(ok).To(BeTrue())
			Expect(cv.Vertex.Round).To(Equal(types.Round(0)))
		}
	})

	It("accepts a round-1 vertex with exactly quorum strong parents", func() {
		v, _ := round1Vertex(0)
		v.StrongParents = types.GenesisDigests(nProc)[:3]
		coa := fakeCoA(v.Digest(), 0, 1, 2)
		Expect(store.Insert(v, coa)).To(Succeed())
		Expect(store.CountCertified(1)).To(Equal(1))
	})

	It("rejects a vertex with fewer than quorum strong parents", func() {
		v := types.Vertex{
			Round:         1,
			Author:        0,
			StrongParents: types.GenesisDigests(nProc)[:2],
		}
		d := v.Digest()
		err := store.Insert(v, fakeCoA(d, 0, 1, 2))
		Expect(err).To(HaveOccurred())
		Expect(err).To(BeAssignableToTypeOf(&types.InvariantViolation{}))
	})

	It("rejects a CoA with fewer than quorum distinct signatures", func() {
		v := types.Vertex{
			Round:         1,
			Author:        0,
			StrongParents: types.GenesisDigests(nProc),
		}
		d := v.Digest()
		err := store.Insert(v, fakeCoA(d, 0, 1))
		Expect(err).To(HaveOccurred())
	})

	It("rejects a parent digest that has not been delivered yet", func() {
		v := types.Vertex{
			Round:         1,
			Author:        0,
			StrongParents: []types.Digest{{1}, {2}, {3}},
		}
		d := v.Digest()
		err := store.Insert(v, fakeCoA(d, 0, 1, 2))
		Expect(err).To(BeAssignableToTypeOf(&types.MissingParent{}))
	})

	It("detects equivocation when a second distinct vertex arrives for the same author and round", func() {
		v1, coa1 := round1Vertex(0)
		Expect(store.Insert(v1, coa1)).To(Succeed())

		v2 := v1
		v2.WeakParents = []types.Digest{types.GenesisDigest(1, nProc)}
		d2 := v2.Digest()
		err := store.Insert(v2, fakeCoA(d2, 0, 1, 2))
		Expect(err).To(BeAssignableToTypeOf(&types.EquivocatingAuthor{}))
	})

	It("is idempotent when the identical vertex is inserted twice", func() {
		v, coa := round1Vertex(0)
		Expect(store.Insert(v, coa)).To(Succeed())
		Expect(store.Insert(v, coa)).To(Succeed())
		Expect(store.CountCertified(1)).To(Equal(1))
	})

	It("computes is_path across strong parent edges", func() {
		v, coa := round1Vertex(0)
		Expect(store.Insert(v, coa)).To(Succeed())
		d := v.Digest()
		g0 := types.GenesisDigest(0, nProc)
		Expect(store.IsPath(d, g0)).To(BeTrue())
		Expect(store.IsPath(g0, d)).To(BeFalse())
	})

	It("emits causal_history in round-ascending then author-ascending order", func() {
		var round1 []types.Vertex
		for a := types.NodeID(0); a < 3; a++ {
			v, coa := round1Vertex(a)
			Expect(store.Insert(v, coa)).To(Succeed())
			round1 = append(round1, v)
		}

		round2 := types.Vertex{
			Round:  2,
			Author: 0,
			StrongParents: []types.Digest{
				round1[0].Digest(), round1[1].Digest(), round1[2].Digest(),
			},
		}
		d2 := round2.Digest()
		Expect(store.Insert(round2, fakeCoA(d2, 0, 1, 2))).To(Succeed())

		cv, _ := store.Get(d2)
		history := store.CausalHistory(cv)
		Expect(history).To(HaveLen(3))
		for i, h := range history {
			Expect(h.Vertex.Round).To(Equal(types.Round(1)))
			Expect(h.Vertex.Author).To(Equal(types.NodeID(i)))
		}
	})

	It("never re-emits a vertex already marked emitted", func() {
		v, coa := round1Vertex(0)
		Expect(store.Insert(v, coa)).To(Succeed())
		cv, _ := store.Get(v.Digest())
		store.MarkEmitted(cv)

		var strong []types.Digest
		for a := types.NodeID(1); a < nProc; a++ {
			other, otherCoA := round1Vertex(a)
			Expect(store.Insert(other, otherCoA)).To(Succeed())
			strong = append(strong, other.Digest())
		}

		round2 := types.Vertex{
			Round:         2,
			Author:        1,
			StrongParents: strong,
			WeakParents:   []types.Digest{v.Digest()},
		}
		d2 := round2.Digest()
		Expect(store.Insert(round2, fakeCoA(d2, 0, 1, 2))).To(Succeed())

		cv2, _ := store.Get(d2)
		history := store.CausalHistory(cv2)
		for _, h := range history {
			Expect(h.Vertex.Digest()).NotTo(Equal(v.Digest()))
		}
	})

	It("prunes rounds below the GC watermark but keeps genesis", func() {
		v, coa := round1Vertex(0)
		Expect(store.Insert(v, coa)).To(Succeed())
		store.GC(1)
		Expect(store.Contains(types.GenesisDigest(0, nProc))).To(BeTrue())
		Expect(store.Contains(v.Digest())).To(BeFalse())
		Expect(store.LowestRound()).To(Equal(types.Round(1)))
	})
})
