// Package node wires the five cooperating tasks of §5 (network, RB,
// DAG store, Consensus Core, mempool) into one running process: exactly
// one owning goroutine per durable structure, everything else reaching it
// only through a channel or an exported method called from that one
// goroutine.
//
// Grounded on the teacher's pkg/process/process.go and pkg/process/run/
// {process,setup}.go: a services slice started in order and stopped in
// reverse, blocked on a single "done" signal, generalized from Aleph's
// poset/creator/syncer trio to DAG-Rider's five tasks plus the straggler
// timer and coin driver.
package node

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dagrider/bft-consensus/pkg/config"
	"github.com/dagrider/bft-consensus/pkg/consensus"
	"github.com/dagrider/bft-consensus/pkg/dagstore"
	"github.com/dagrider/bft-consensus/pkg/executor"
	"github.com/dagrider/bft-consensus/pkg/logging"
	"github.com/dagrider/bft-consensus/pkg/mempool"
	"github.com/dagrider/bft-consensus/pkg/network/tcp"
	"github.com/dagrider/bft-consensus/pkg/rb"
	"github.com/dagrider/bft-consensus/pkg/storage"
	"github.com/dagrider/bft-consensus/pkg/types"
	"github.com/dagrider/bft-consensus/pkg/wire"
)

// Runtime is one committee member's complete running node.
type Runtime struct {
	cfg config.Config

	disk       *storage.Store
	dagStore   *dagstore.Store
	hub        *tcp.Hub
	coord      *rb.Coordinator
	syncer     *rb.Synchroniser
	core       *consensus.Core
	timer      *consensus.RoundTimer
	pool       *mempool.Mempool
	exec       *executor.Executor
	clients    *clientListener
	verifyPool *rb.VerifyPool

	commits chan consensus.CommitEntry

	log  zerolog.Logger
	self types.NodeID

	quit chan struct{}
	wg   sync.WaitGroup
}

// New assembles a Runtime for self among committee, using member's private
// key material, listening at localAddr, and forwarding committed entries to
// sink. It does not start anything yet; call Start for that.
func New(cfg config.Config, committee *config.Committee, member *config.Member, localAddr string, sink executor.Sink, log zerolog.Logger) (*Runtime, error) {
	self := types.NodeID(member.Pid)
	nProc := committee.NProc()

	disk, err := storage.Open(cfg.StorageDir)
	if err != nil {
		return nil, err
	}

	dagStore := dagstore.New(nProc)

	hub, err := tcp.NewHub(self, localAddr, committee.Addresses, cfg.DialTimeout, log.With().Int(logging.Service, logging.NetworkService).Logger())
	if err != nil {
		disk.Close()
		return nil, err
	}

	r := &Runtime{
		cfg:        cfg,
		disk:       disk,
		dagStore:   dagStore,
		hub:        hub,
		pool:       mempool.New(cfg.MempoolIncomingCap, cfg.MaxBatchBytes),
		commits:    make(chan consensus.CommitEntry, 2*nProc),
		log:        log,
		self:       self,
		quit:       make(chan struct{}),
		verifyPool: rb.NewVerifyPool(cfg.VerifyWorkers),
	}

	r.syncer = rb.NewSynchroniser(dagStore, func(d types.Digest) error {
		return r.hub.Broadcast(wire.SyncReq{Digests: []types.Digest{d}})
	})

	var core *consensus.Core
	r.coord = rb.New(rb.Deps{
		NProc:      nProc,
		Self:       self,
		Priv:       member.PrivateKey,
		Pubs:       committee.PublicKeys,
		Store:      dagStore,
		Unicast:    r.hub.Unicast,
		Broadcast:  r.hub.Broadcast,
		VerifyPool: r.verifyPool,
		Disk:       r.disk,
		OnCertified: func(cv types.CertifiedVertex) {
			if err := r.disk.PutVertex(cv.Vertex.Digest(), cv); err != nil {
				r.log.Error().Err(err).Msg("persisting certified vertex")
			}
			if err := core.OnCertified(cv); err != nil {
				r.log.Error().Err(err).Msg("OnCertified")
			}
		},
	}, r.syncer)

	var coinDriver *consensus.CoinDriver
	if committee.CoinPublicKey != nil {
		coinDriver = consensus.NewCoinDriver(committee.CoinPublicKey, &member.CoinShare, r.hub.Broadcast)
	}

	core = consensus.New(consensus.Config{
		NProc:                nProc,
		Self:                 self,
		WeakParentByteBudget: cfg.WeakParentByteBudget,
		PayloadByteBudget:    cfg.PayloadByteBudget,
	}, dagStore, r.coord, r.pool, consensus.SinkFunc(func(e consensus.CommitEntry) {
		if err := r.disk.SetCommitCursor(storage.CommitCursor{
			Wave:         types.WaveOf(e.Vertex.Vertex.Round),
			LeaderDigest: e.Vertex.Vertex.Digest(),
		}); err != nil {
			r.log.Error().Err(err).Msg("persisting commit cursor")
		}
		select {
		case r.commits <- e:
		case <-r.quit:
		}
	}), coinDriver)
	r.core = core

	if cfg.RoundTimeout > 0 {
		r.timer = consensus.NewRoundTimer(cfg.RoundTimeout)
		core.AttachTimer(r.timer)
	}

	r.exec = executor.New(r.commits, sink, log)

	if cfg.ClientAddr != "" {
		clients, err := newClientListener(cfg.ClientAddr, r.pool, log)
		if err != nil {
			disk.Close()
			return nil, err
		}
		r.clients = clients
	}

	return r, nil
}

// recover replays every vertex persisted on a previous run back into the
// in-memory DAG store, round order first so strong-parent checks never
// see a vertex before its parents (§3 boundary case, "persistence across
// restart").
func (r *Runtime) recover() error {
	var vertices []types.CertifiedVertex
	if err := r.disk.ForEachVertex(func(cv types.CertifiedVertex) error {
		vertices = append(vertices, cv)
		return nil
	}); err != nil {
		return err
	}
	sort.Slice(vertices, func(i, j int) bool {
		if vertices[i].Vertex.Round != vertices[j].Vertex.Round {
			return vertices[i].Vertex.Round < vertices[j].Vertex.Round
		}
		return vertices[i].Vertex.Author < vertices[j].Vertex.Author
	})
	for _, cv := range vertices {
		if err := r.dagStore.Insert(cv.Vertex, cv.CoA); err != nil {
			return err
		}
	}
	return nil
}

// Start recovers any persisted state, then launches every task and
// proposes this node's first vertex.
func (r *Runtime) Start() error {
	if err := r.recover(); err != nil {
		return err
	}

	r.pool.Start()
	if err := r.exec.Start(); err != nil {
		return err
	}
	r.hub.Start()
	if r.clients != nil {
		r.clients.start()
	}

	r.wg.Add(1)
	go r.dispatchLoop()

	if cursor, ok, err := r.disk.CommitCursor(); err == nil && ok {
		r.log.Info().Uint64(logging.Wave, cursor.Wave).Msg("resuming after prior commit")
	}

	return r.core.Start()
}

// Stop tears every task down in reverse start order.
func (r *Runtime) Stop() {
	close(r.quit)
	if r.clients != nil {
		r.clients.stop()
	}
	r.hub.Stop()
	r.wg.Wait()
	r.verifyPool.Close()
	r.exec.Stop()
	r.pool.Stop()
	r.disk.Close()
}

// dispatchLoop is the network task of §5: the only goroutine that ever
// calls into the RB coordinator or the Consensus Core on behalf of inbound
// traffic, draining the Hub's single inbound channel.
func (r *Runtime) dispatchLoop() {
	defer r.wg.Done()
	var timerC <-chan types.Round
	if r.timer != nil {
		timerC = r.timer.C()
	}

	for {
		select {
		case env, ok := <-r.hub.Inbound():
			if !ok {
				return
			}
			r.handle(env)
		case round := <-timerC:
			if err := r.core.TimerFired(round); err != nil {
				r.log.Debug().Err(err).Msg("TimerFired")
			}
		case <-r.quit:
			return
		}
	}
}

func (r *Runtime) handle(env tcp.Envelope) {
	switch m := env.Msg.(type) {
	case wire.Propose:
		if err := r.coord.HandlePropose(env.From, m.Vertex); err != nil {
			r.log.Debug().Err(err).Msg("HandlePropose")
		}
	case wire.Vote:
		if err := r.coord.HandleVote(env.From, m); err != nil {
			r.log.Debug().Err(err).Msg("HandleVote")
		}
	case wire.Cert:
		if err := r.coord.HandleCert(env.From, m); err != nil {
			r.log.Debug().Err(err).Msg("HandleCert")
		}
	case wire.SyncReq:
		r.handleSyncReq(env.From, m)
	case wire.SyncResp:
		r.handleSyncResp(m)
	case wire.CoinShare:
		if err := r.core.HandleCoinShare(m); err != nil {
			r.log.Debug().Err(err).Msg("HandleCoinShare")
		}
	}
}

func (r *Runtime) handleSyncReq(from types.NodeID, req wire.SyncReq) {
	var found []types.CertifiedVertex
	for _, d := range req.Digests {
		if cv, ok := r.dagStore.Get(d); ok {
			found = append(found, *cv)
			continue
		}
		if cv, ok, err := r.disk.GetVertex(d); err == nil && ok {
			found = append(found, cv)
		}
	}
	if len(found) == 0 {
		return
	}
	if err := r.hub.Unicast(from, wire.SyncResp{Vertices: found}); err != nil {
		r.log.Debug().Err(err).Msg("replying to SyncReq")
	}
}

// handleSyncResp inserts each recovered vertex directly: it already
// carries a quorum-signed CoA, so it needs none of HandlePropose's
// vote-collection machinery, only the same structural checks Insert
// applies to a vertex certified locally.
func (r *Runtime) handleSyncResp(resp wire.SyncResp) {
	for _, cv := range resp.Vertices {
		digest := cv.Vertex.Digest()
		if r.dagStore.Contains(digest) {
			r.syncer.Cancel(digest)
			continue
		}
		if err := r.dagStore.Insert(cv.Vertex, cv.CoA); err != nil {
			r.log.Debug().Err(err).Msg("inserting synced vertex")
			continue
		}
		r.syncer.Cancel(digest)
		if err := r.disk.PutVertex(digest, cv); err != nil {
			r.log.Error().Err(err).Msg("persisting synced vertex")
		}
		if err := r.core.OnCertified(cv); err != nil {
			r.log.Error().Err(err).Msg("OnCertified (synced)")
		}
	}
}
