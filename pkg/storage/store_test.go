package storage_test

import (
	"testing"

	"github.com/dagrider/bft-consensus/pkg/storage"
	"github.com/dagrider/bft-consensus/pkg/types"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleVertex(round types.Round, author types.NodeID) types.CertifiedVertex {
	v := types.Vertex{Round: round, Author: author, StrongParents: types.GenesisDigests(4)}
	return types.CertifiedVertex{
		Vertex: v,
		CoA: types.CoA{
			VertexDigest: v.Digest(),
			Signatures: []types.AckSig{
				{Voter: 0}, {Voter: 1}, {Voter: 2},
			},
		},
	}
}

func TestPutGetVertexRoundTrip(t *testing.T) {
	s := openTestStore(t)
	cv := sampleVertex(1, 0)
	digest := cv.Vertex.Digest()

	if err := s.PutVertex(digest, cv); err != nil {
		t.Fatalf("PutVertex: %v", err)
	}
	got, ok, err := s.GetVertex(digest)
	if err != nil {
		t.Fatalf("GetVertex: %v", err)
	}
	if !ok {
		t.Fatalf("expected vertex to be found")
	}
	if got.Vertex.Round != cv.Vertex.Round || got.Vertex.Author != cv.Vertex.Author {
		t.Fatalf("round-tripped vertex mismatch: got %+v, want %+v", got.Vertex, cv.Vertex)
	}
	if len(got.CoA.Signatures) != len(cv.CoA.Signatures) {
		t.Fatalf("round-tripped CoA signature count mismatch: got %d, want %d", len(got.CoA.Signatures), len(cv.CoA.Signatures))
	}
}

func TestGetVertexMissingIsNotFoundNotError(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetVertex(types.Digest{0xff})
	if err != nil {
		t.Fatalf("GetVertex on missing digest returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for a digest never stored")
	}
}

func TestLastVoteRoundTripAndAbsence(t *testing.T) {
	s := openTestStore(t)
	if _, ok, err := s.LastVote(0, 5); err != nil || ok {
		t.Fatalf("expected no prior vote, got ok=%v err=%v", ok, err)
	}

	digest := types.Digest{1, 2, 3}
	if err := s.RecordVote(0, 5, digest); err != nil {
		t.Fatalf("RecordVote: %v", err)
	}
	got, ok, err := s.LastVote(0, 5)
	if err != nil || !ok {
		t.Fatalf("LastVote after RecordVote: ok=%v err=%v", ok, err)
	}
	if got != digest {
		t.Fatalf("LastVote digest mismatch: got %x, want %x", got, digest)
	}

	// a different round or author is a distinct slot.
	if _, ok, _ := s.LastVote(1, 5); ok {
		t.Fatalf("expected no vote recorded for a different author")
	}
	if _, ok, _ := s.LastVote(0, 6); ok {
		t.Fatalf("expected no vote recorded for a different round")
	}
}

func TestCommitCursorRoundTrip(t *testing.T) {
	s := openTestStore(t)
	if _, ok, err := s.CommitCursor(); err != nil || ok {
		t.Fatalf("expected no cursor initially, got ok=%v err=%v", ok, err)
	}

	want := storage.CommitCursor{Wave: 3, LeaderDigest: types.Digest{9, 8, 7}}
	if err := s.SetCommitCursor(want); err != nil {
		t.Fatalf("SetCommitCursor: %v", err)
	}
	got, ok, err := s.CommitCursor()
	if err != nil || !ok {
		t.Fatalf("CommitCursor after SetCommitCursor: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("commit cursor mismatch: got %+v, want %+v", got, want)
	}
}

func TestForEachVertexVisitsAll(t *testing.T) {
	s := openTestStore(t)
	want := map[types.Digest]struct{}{}
	for a := types.NodeID(0); a < 3; a++ {
		cv := sampleVertex(1, a)
		d := cv.Vertex.Digest()
		if err := s.PutVertex(d, cv); err != nil {
			t.Fatalf("PutVertex: %v", err)
		}
		want[d] = struct{}{}
	}

	seen := map[types.Digest]struct{}{}
	if err := s.ForEachVertex(func(cv types.CertifiedVertex) error {
		seen[cv.Vertex.Digest()] = struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("ForEachVertex: %v", err)
	}
	if len(seen) != len(want) {
		t.Fatalf("expected %d vertices visited, got %d", len(want), len(seen))
	}
	for d := range want {
		if _, ok := seen[d]; !ok {
			t.Fatalf("ForEachVertex missed digest %x", d)
		}
	}
}

// TestReopenPreservesState exercises the "Persistence across restart"
// boundary case: data written before Close is still present after
// reopening the same directory.
func TestReopenPreservesState(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	digest := types.Digest{4, 5, 6}
	if err := s.RecordVote(2, 7, digest); err != nil {
		t.Fatalf("RecordVote: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, ok, err := s2.LastVote(2, 7)
	if err != nil || !ok {
		t.Fatalf("LastVote after reopen: ok=%v err=%v", ok, err)
	}
	if got != digest {
		t.Fatalf("vote digest did not survive restart: got %x, want %x", got, digest)
	}
}
