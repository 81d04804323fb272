// Package mempool implements the minimal in-process stand-in for the
// out-of-scope external mempool (§6): it turns submitted client
// transactions into batches, hands out batch digests to the Consensus Core
// on request, and answers batch lookups for the executor.
//
// Grounded on the teacher's pkg/tests/data_source.go (a bounded channel fed
// by one producer goroutine, drained non-blockingly by the consumer that
// builds vertices), generalized from raw random bytes to real submitted
// transactions collected into digest-addressable batches.
package mempool

import (
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/dagrider/bft-consensus/pkg/types"
)

// Batch is an ordered list of transactions, referenced elsewhere only by
// its digest (§2 Glossary, "Batch").
type Batch [][]byte

func (b Batch) digest() types.Digest {
	h := sha3.New256()
	for _, tx := range b {
		var l [4]byte
		n := len(tx)
		l[0] = byte(n)
		l[1] = byte(n >> 8)
		l[2] = byte(n >> 16)
		l[3] = byte(n >> 24)
		h.Write(l[:])
		h.Write(tx)
	}
	var d types.Digest
	copy(d[:], h.Sum(nil))
	return d
}

func (b Batch) byteSize() int {
	n := 0
	for _, tx := range b {
		n += len(tx)
	}
	return n
}

// Mempool batches submitted transactions and exposes the two methods the
// Consensus Core and executor consume (§6): NextBatchDigests and BatchFor.
// It owns its state exclusively; Submit is the only entrypoint other tasks
// call, matching §5's "no shared mutable state" rule.
type Mempool struct {
	maxBatchBytes int
	incoming      chan []byte

	mu      sync.Mutex
	pending Batch
	ready   []types.Digest
	batches map[types.Digest]Batch

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Mempool. incomingCap bounds the Submit backpressure queue;
// maxBatchBytes bounds how large a single batch grows before it is cut and
// made available to NextBatchDigests.
func New(incomingCap, maxBatchBytes int) *Mempool {
	return &Mempool{
		maxBatchBytes: maxBatchBytes,
		incoming:      make(chan []byte, incomingCap),
		batches:       make(map[types.Digest]Batch),
		done:          make(chan struct{}),
	}
}

// Start launches the batching goroutine, draining Submit's queue into
// batches that are cut once their size reaches maxBatchBytes.
func (m *Mempool) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case tx, ok := <-m.incoming:
				if !ok {
					return
				}
				m.absorb(tx)
			case <-m.done:
				return
			}
		}
	}()
}

// Stop signals the batching goroutine to exit and waits for it.
func (m *Mempool) Stop() {
	close(m.done)
	m.wg.Wait()
}

func (m *Mempool) absorb(tx []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, tx)
	if m.pending.byteSize() < m.maxBatchBytes {
		return
	}
	m.cutLocked()
}

func (m *Mempool) cutLocked() {
	if len(m.pending) == 0 {
		return
	}
	batch := m.pending
	m.pending = nil
	d := batch.digest()
	if _, exists := m.batches[d]; exists {
		return
	}
	m.batches[d] = batch
	m.ready = append(m.ready, d)
}

// Submit enqueues tx for inclusion in a future batch. Returns QueueOverflow
// if the incoming queue is full, matching §7's "backpressure reaches the
// mempool and ultimately the client TCP socket" policy.
func (m *Mempool) Submit(tx []byte) error {
	select {
	case m.incoming <- tx:
		return nil
	default:
		return types.NewQueueOverflow("mempool.incoming")
	}
}

// NextBatchDigests implements the consumed mempool interface (§6): returns
// as many ready batch digests as fit under budgetBytes, without blocking.
// An empty slice is a valid, non-error response.
func (m *Mempool) NextBatchDigests(budgetBytes int) []types.Digest {
	m.mu.Lock()
	defer m.mu.Unlock()

	// a batch still accumulating below maxBatchBytes is still worth
	// offering if the caller never gets anything otherwise; cut it now so
	// low-traffic rounds are not starved of a payload.
	if len(m.ready) == 0 {
		m.cutLocked()
	}

	var out []types.Digest
	used := 0
	i := 0
	for ; i < len(m.ready); i++ {
		if used+types.DigestSize > budgetBytes {
			break
		}
		out = append(out, m.ready[i])
		used += types.DigestSize
	}
	m.ready = append([]types.Digest{}, m.ready[i:]...)
	return out
}

// BatchFor returns the transactions of the batch identified by digest, for
// the executor's consumption (§6: "used by downstream executor only").
func (m *Mempool) BatchFor(digest types.Digest) ([][]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[digest]
	if !ok {
		return nil, false
	}
	return [][]byte(b), true
}
