package node

import (
	"testing"

	"github.com/dagrider/bft-consensus/pkg/dagstore"
	"github.com/dagrider/bft-consensus/pkg/storage"
	"github.com/dagrider/bft-consensus/pkg/types"
)

const testNProc = 4

func fakeCoA(digest types.Digest, voters ...types.NodeID) types.CoA {
	sigs := make([]types.AckSig, len(voters))
	for i, v := range voters {
		sigs[i] = types.AckSig{Voter: v, Sig: types.Signature{byte(v) + 1}}
	}
	return types.CoA{VertexDigest: digest, Signatures: sigs}
}

func round1Vertex(author types.NodeID, strongParents []types.Digest) types.CertifiedVertex {
	v := types.Vertex{
		Round:         1,
		Author:        author,
		StrongParents: strongParents,
	}
	return types.CertifiedVertex{
		Vertex: v,
		CoA:    fakeCoA(v.Digest(), 0, 1, 2),
	}
}

// TestRecoverReplaysVerticesInRoundOrder writes round-2 vertices to disk
// before round-1 ones (ForEachVertex has no ordering guarantee beyond key
// order) and checks recover sorts them back into round order before
// replaying into the DAG store, so round-2's strong-parent check never
// sees its round-1 parents missing.
func TestRecoverReplaysVerticesInRoundOrder(t *testing.T) {
	disk, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer disk.Close()

	strong := types.GenesisDigests(testNProc)
	var round1Digests []types.Digest
	round1 := make([]types.CertifiedVertex, testNProc)
	for a := 0; a < testNProc; a++ {
		round1[a] = round1Vertex(types.NodeID(a), strong)
		round1Digests = append(round1Digests, round1[a].Vertex.Digest())
	}

	round2 := types.Vertex{
		Round:         2,
		Author:        0,
		StrongParents: round1Digests,
	}
	cv2 := types.CertifiedVertex{Vertex: round2, CoA: fakeCoA(round2.Digest(), 0, 1, 2)}

	// Deliberately persist round 2 before round 1.
	if err := disk.PutVertex(cv2.Vertex.Digest(), cv2); err != nil {
		t.Fatalf("PutVertex round 2: %v", err)
	}
	for _, cv := range round1 {
		if err := disk.PutVertex(cv.Vertex.Digest(), cv); err != nil {
			t.Fatalf("PutVertex round 1: %v", err)
		}
	}

	r := &Runtime{disk: disk, dagStore: dagstore.New(testNProc)}
	if err := r.recover(); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if !r.dagStore.Contains(cv2.Vertex.Digest()) {
		t.Fatal("round 2 vertex missing from recovered DAG store")
	}
	for _, cv := range round1 {
		if !r.dagStore.Contains(cv.Vertex.Digest()) {
			t.Fatalf("round 1 vertex from author %d missing from recovered DAG store", cv.Vertex.Author)
		}
	}
	if got := r.dagStore.CountCertified(2); got != 1 {
		t.Fatalf("CountCertified(2) = %d, want 1", got)
	}
}

// TestRecoverOnEmptyDiskIsNoop checks a freshly opened store, with nothing
// persisted yet, leaves the DAG store untouched rather than erroring.
func TestRecoverOnEmptyDiskIsNoop(t *testing.T) {
	disk, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer disk.Close()

	r := &Runtime{disk: disk, dagStore: dagstore.New(testNProc)}
	if err := r.recover(); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if r.dagStore.CountCertified(1) != 0 {
		t.Fatal("expected no round 1 vertices after recovering an empty store")
	}
}
