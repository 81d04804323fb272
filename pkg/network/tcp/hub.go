package tcp

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/dagrider/bft-consensus/pkg/logging"
	"github.com/dagrider/bft-consensus/pkg/network"
	"github.com/dagrider/bft-consensus/pkg/types"
	"github.com/dagrider/bft-consensus/pkg/wire"
)

// maxAcceptedConns bounds how many inbound sockets the accept loop will
// hold open concurrently, the way the teacher's stdlibtcp listener bounds
// concurrent sync connections.
const maxAcceptedConns = 64

// Envelope pairs a decoded wire message with the committee member that
// sent it, the shape the owning network task (§5) pushes onto a channel
// for the RB coordinator's dispatch loop to drain.
type Envelope struct {
	From types.NodeID
	Msg  wire.Message
}

// Hub is the network task of §5: it owns every live Connection, the
// listener, and the per-peer reconnect loops, and it is the only thing
// that ever touches them. Everything else talks to peers through
// Unicast/Broadcast and reads inbound traffic from Inbound(), never
// through a Connection directly.
//
// Dial convention: for a pair (i, j) with i < j, the lower pid dials the
// higher pid. A node only ever dials peers with pid > self; it waits for
// every peer with pid < self to dial in, identifying them via the
// greeting handshake once accepted.
type Hub struct {
	self    types.NodeID
	dialer  network.Dialer
	ln      network.Listener
	log     zerolog.Logger
	inbound chan Envelope
	sem     *semaphore.Weighted

	mu    sync.Mutex
	conns map[types.NodeID]network.Connection

	quit   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub binds localAddr and prepares a Hub for self among a committee
// reachable at addrs (addrs[pid] is pid's address); dialTimeout bounds
// each individual dial attempt, not the reconnect loop as a whole.
func NewHub(self types.NodeID, localAddr string, addrs []string, dialTimeout time.Duration, log zerolog.Logger) (*Hub, error) {
	ln, err := NewListener(localAddr, log)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		self:    self,
		dialer:  NewDialer(uint16(self), addrs, dialTimeout, log),
		ln:      ln,
		log:     log,
		inbound: make(chan Envelope, 1024),
		sem:     semaphore.NewWeighted(maxAcceptedConns),
		conns:   make(map[types.NodeID]network.Connection),
		quit:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Inbound is the channel the owning task selects on to receive decoded
// messages from every peer, tagged by sender.
func (h *Hub) Inbound() <-chan Envelope { return h.inbound }

// Start launches the accept loop and one reconnecting dial loop per peer
// with pid > self (see the dial convention on Hub).
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.acceptLoop()

	for pid := uint16(h.self) + 1; pid < uint16(h.dialer.Length()); pid++ {
		peer := types.NodeID(pid)
		h.wg.Add(1)
		go h.dialLoop(peer)
	}
}

// Stop tears down every connection and waits for all loops to exit.
func (h *Hub) Stop() {
	close(h.quit)
	h.cancel()
	h.ln.Close()
	h.mu.Lock()
	for _, c := range h.conns {
		c.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) acceptLoop() {
	defer h.wg.Done()
	for {
		if !h.sem.TryAcquire(1) {
			select {
			case <-h.quit:
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}
		pid, conn, err := h.ln.Listen(0)
		if err != nil {
			h.sem.Release(1)
			select {
			case <-h.quit:
				return
			default:
				continue
			}
		}
		peer := types.NodeID(pid)
		h.track(peer, conn)
		h.wg.Add(1)
		go func() {
			defer h.sem.Release(1)
			h.readLoop(peer, conn)
		}()
	}
}

func (h *Hub) dialLoop(peer types.NodeID) {
	defer h.wg.Done()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	for {
		conn, err := backoff.Retry(h.ctx, func() (network.Connection, error) {
			c, err := h.dialer.Dial(uint16(peer))
			if err != nil {
				return nil, err
			}
			return c, nil
		}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(0))
		if err != nil {
			// only returns non-nil when the context was cancelled by Stop.
			return
		}
		h.track(peer, conn)
		h.readLoop(peer, conn)

		select {
		case <-h.quit:
			return
		default:
			h.log.Warn().Uint16(logging.PID, uint16(peer)).Msg(logging.ConnectionDropped)
		}
	}
}

func (h *Hub) readLoop(peer types.NodeID, conn network.Connection) {
	defer h.untrack(peer, conn)
	for {
		msg, err := wire.Decode(conn)
		if err != nil {
			return
		}
		select {
		case h.inbound <- Envelope{From: peer, Msg: msg}:
		default:
			h.log.Warn().Err(types.NewQueueOverflow("network.inbound")).Msg("dropping inbound message")
		}
	}
}

func (h *Hub) track(peer types.NodeID, conn network.Connection) {
	h.mu.Lock()
	if old, ok := h.conns[peer]; ok {
		old.Close()
	}
	h.conns[peer] = conn
	h.mu.Unlock()
}

func (h *Hub) untrack(peer types.NodeID, conn network.Connection) {
	h.mu.Lock()
	if h.conns[peer] == conn {
		delete(h.conns, peer)
	}
	h.mu.Unlock()
	conn.Close()
}

// Unicast sends msg to exactly one peer, matching rb.Deps.Unicast.
func (h *Hub) Unicast(to types.NodeID, msg wire.Message) error {
	h.mu.Lock()
	conn, ok := h.conns[to]
	h.mu.Unlock()
	if !ok {
		return types.NewNetworkTimeout("no live connection to peer")
	}
	if err := wire.Encode(conn, msg); err != nil {
		return err
	}
	return conn.Flush()
}

// Broadcast sends msg to every currently connected peer, matching
// rb.Deps.Broadcast. A peer with no live connection simply misses the
// message; RB's synchroniser (§4.B) recovers it later via SYNC_REQ.
func (h *Hub) Broadcast(msg wire.Message) error {
	h.mu.Lock()
	targets := make([]network.Connection, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.Unlock()
	var firstErr error
	for _, c := range targets {
		if err := wire.Encode(c, msg); err != nil && firstErr == nil {
			firstErr = err
			continue
		}
		if err := c.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
