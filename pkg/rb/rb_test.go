package rb_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/dagrider/bft-consensus/pkg/crypto/signing"
	"github.com/dagrider/bft-consensus/pkg/dagstore"
	"github.com/dagrider/bft-consensus/pkg/rb"
	"github.com/dagrider/bft-consensus/pkg/types"
	"github.com/dagrider/bft-consensus/pkg/wire"
)

const testNProc = 4 // f = 1, quorum = 3

type envelope struct {
	from types.NodeID
	msg  wire.Message
}

// network wires testNProc in-process Coordinators together over buffered
// channels, one dispatch goroutine per node, so Unicast/Broadcast never
// call back synchronously into the sender's own locked Coordinator (which
// a direct function-call wiring would deadlock on).
type network struct {
	coords []*rb.Coordinator
	stores []*dagstore.Store
	chans  []chan envelope

	mu        sync.Mutex
	certified [][]types.CertifiedVertex
}

func newNetwork() *network {
	pubs := make([]signing.PublicKey, testNProc)
	privs := make([]signing.PrivateKey, testNProc)
	for i := range pubs {
		pub, priv, err := signing.GenerateKeys()
		Expect(err).NotTo(HaveOccurred())
		pubs[i] = pub
		privs[i] = priv
	}

	n := &network{
		coords:    make([]*rb.Coordinator, testNProc),
		stores:    make([]*dagstore.Store, testNProc),
		chans:     make([]chan envelope, testNProc),
		certified: make([][]types.CertifiedVertex, testNProc),
	}

	for i := 0; i < testNProc; i++ {
		i := i
		n.stores[i] = dagstore.New(testNProc)
		n.chans[i] = make(chan envelope, 1024)

		deps := rb.Deps{
			NProc: testNProc,
			Self:  types.NodeID(i),
			Priv:  privs[i],
			Pubs:  pubs,
			Store: n.stores[i],
			Unicast: func(to types.NodeID, msg wire.Message) error {
				n.chans[to] <- envelope{from: types.NodeID(i), msg: msg}
				return nil
			},
			Broadcast: func(msg wire.Message) error {
				for j := 0; j < testNProc; j++ {
					if j == i {
						continue
					}
					n.chans[j] <- envelope{from: types.NodeID(i), msg: msg}
				}
				return nil
			},
			OnCertified: func(cv types.CertifiedVertex) {
				n.mu.Lock()
				n.certified[i] = append(n.certified[i], cv)
				n.mu.Unlock()
			},
		}
		n.coords[i] = rb.New(deps, nil)
	}

	for i := 0; i < testNProc; i++ {
		go n.pump(i)
	}
	return n
}

func (n *network) pump(i int) {
	for env := range n.chans[i] {
		switch m := env.msg.(type) {
		case wire.Propose:
			n.coords[i].HandlePropose(env.from, m.Vertex)
		case wire.Vote:
			n.coords[i].HandleVote(env.from, m)
		case wire.Cert:
			n.coords[i].HandleCert(env.from, m)
		}
	}
}

func (n *network) certifiedCount(node int) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.certified[node])
}

var _ = Describe("Coordinator", func() {
	It("delivers and certifies every author's round-1 vertex at every node", func() {
		n := newNetwork()
		for i := 0; i < testNProc; i++ {
			v := types.Vertex{
				Round:         1,
				Author:        types.NodeID(i),
				StrongParents: types.GenesisDigests(testNProc),
			}
			Expect(n.coords[i].Propose(v)).To(Succeed())
		}

		for i := 0; i < testNProc; i++ {
			i := i
			Eventually(func() int { return n.certifiedCount(i) }, 2*time.Second, 10*time.Millisecond).
				Should(Equal(testNProc))
		}
	})

	It("keeps a rejected instance rejected on a duplicate equivocating PROPOSE", func() {
		pub, priv, err := signing.GenerateKeys()
		Expect(err).NotTo(HaveOccurred())
		store := dagstore.New(testNProc)

		coord := rb.New(rb.Deps{
			NProc: testNProc,
			Self:  1,
			Priv:  priv,
			Pubs:  []signing.PublicKey{pub, pub, pub, pub},
			Store: store,
		}, nil)

		v1 := types.Vertex{Round: 1, Author: 0, StrongParents: types.GenesisDigests(testNProc)}
		signing.SignVertex(priv, &v1)
		Expect(coord.HandlePropose(0, v1)).To(Succeed())
		Expect(coord.State(0, 1)).To(Equal(rb.Delivered))

		v2 := v1
		v2.WeakParents = []types.Digest{types.GenesisDigest(2, testNProc)}
		signing.SignVertex(priv, &v2)

		err = coord.HandlePropose(0, v2)
		Expect(err).To(HaveOccurred())
		Expect(coord.State(0, 1)).To(Equal(rb.Rejected))

		// a third, equally-conflicting vertex is silently dropped: the
		// instance is already terminal.
		v3 := v1
		v3.WeakParents = []types.Digest{types.GenesisDigest(3, testNProc)}
		signing.SignVertex(priv, &v3)
		Expect(coord.HandlePropose(0, v3)).To(Succeed())
		Expect(coord.State(0, 1)).To(Equal(rb.Rejected))
	})
})
