package rb

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dagrider/bft-consensus/pkg/dagstore"
	"github.com/dagrider/bft-consensus/pkg/types"
)

// errStillMissing is returned from the retried operation to tell backoff
// to try again; it never escapes Synchroniser's public surface.
var errStillMissing = errors.New("rb: digest still missing")

// Synchroniser fetches vertices named by digest that a PROPOSE or CERT
// referenced but this node hasn't delivered yet (§4.B, "a synchroniser
// requests missing digests from peers; request is idempotent; backoff on
// failure"). One goroutine per outstanding digest retries SYNC_REQ with
// exponential backoff until the DAG store reports the digest present, at
// which point the request is implicitly satisfied and the goroutine
// exits; an explicit Cancel also stops it early once the dependency
// resolves through another path (e.g. a CERT arriving directly).
type Synchroniser struct {
	store *dagstore.Store
	send  func(types.Digest) error

	mu      sync.Mutex
	cancels map[types.Digest]context.CancelFunc
}

// NewSynchroniser creates a Synchroniser that asks send to deliver a
// SYNC_REQ for a missing digest to some peer (any peer; §4.B).
func NewSynchroniser(store *dagstore.Store, send func(types.Digest) error) *Synchroniser {
	return &Synchroniser{
		store:   store,
		send:    send,
		cancels: make(map[types.Digest]context.CancelFunc),
	}
}

// Request asks for digest to be fetched if it is not already being
// requested. Idempotent: a second Request for the same digest while the
// first is still in flight is a no-op.
func (s *Synchroniser) Request(digest types.Digest) {
	s.mu.Lock()
	if _, inFlight := s.cancels[digest]; inFlight {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[digest] = cancel
	s.mu.Unlock()

	go s.run(ctx, digest)
}

// Cancel stops retrying for digest, used once it has become available
// through another path (e.g. a CERT delivered it directly).
func (s *Synchroniser) Cancel(digest types.Digest) {
	s.mu.Lock()
	cancel, ok := s.cancels[digest]
	if ok {
		delete(s.cancels, digest)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Synchroniser) run(ctx context.Context, digest types.Digest) {
	defer func() {
		s.mu.Lock()
		delete(s.cancels, digest)
		s.mu.Unlock()
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	_, _ = backoff.Retry(ctx, func() (struct{}, error) {
		if s.store.Contains(digest) {
			return struct{}{}, nil
		}
		if err := s.send(digest); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, errStillMissing
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(0))
}
