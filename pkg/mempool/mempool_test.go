package mempool_test

import (
	"testing"
	"time"

	"github.com/dagrider/bft-consensus/pkg/mempool"
	"github.com/dagrider/bft-consensus/pkg/types"
)

func TestSubmitThenNextBatchDigestsEventuallyYieldsABatch(t *testing.T) {
	m := mempool.New(16, 8) // tiny batch size so two transactions cut it
	m.Start()
	defer m.Stop()

	if err := m.Submit([]byte("hello")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := m.Submit([]byte("world!!!")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var digests []types.Digest
	for time.Now().Before(deadline) {
		digests = m.NextBatchDigests(1 << 20)
		if len(digests) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(digests) == 0 {
		t.Fatalf("expected at least one batch digest")
	}

	batch, ok := m.BatchFor(digests[0])
	if !ok {
		t.Fatalf("expected BatchFor to find the batch just cut")
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 transactions in the batch, got %d", len(batch))
	}
}

func TestNextBatchDigestsRespectsByteBudget(t *testing.T) {
	m := mempool.New(64, 1) // cut a batch per single transaction
	m.Start()
	defer m.Stop()

	for i := 0; i < 5; i++ {
		if err := m.Submit([]byte{byte(i)}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(m.NextBatchDigests(0)) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	budget := types.DigestSize * 2
	first := m.NextBatchDigests(budget)
	if len(first) > 2 {
		t.Fatalf("expected at most 2 digests under a 2-digest budget, got %d", len(first))
	}
}

func TestSubmitReturnsQueueOverflowWhenFull(t *testing.T) {
	m := mempool.New(1, 1<<20) // capacity 1, never started: nothing drains it
	if err := m.Submit([]byte("first")); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	err := m.Submit([]byte("second"))
	if _, ok := err.(*types.QueueOverflow); !ok {
		t.Fatalf("expected *types.QueueOverflow, got %v (%T)", err, err)
	}
}

func TestBatchForUnknownDigestIsNotFound(t *testing.T) {
	m := mempool.New(4, 1<<20)
	if _, ok := m.BatchFor(types.Digest{1}); ok {
		t.Fatalf("expected BatchFor to report not-found for an unknown digest")
	}
}
