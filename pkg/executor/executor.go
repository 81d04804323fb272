// Package executor implements the minimal stream consumer standing in for
// the out-of-scope external executor (§6): it receives the committed
// output stream, (CommitSeq, Vertex) pairs in order, and hands each to a
// pluggable Sink.
//
// Grounded on the teacher's pkg/services/order/service.go: a single
// goroutine draining one channel, Start/Stop with a wait group and an exit
// channel, generalized from ordered []gomel.Unit slices to single
// consensus.CommitEntry values.
package executor

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/dagrider/bft-consensus/pkg/consensus"
	"github.com/dagrider/bft-consensus/pkg/logging"
)

// Sink receives committed vertices in commit order. Batch payloads are not
// resolved here; a Sink sees only the vertex and its batch digests.
type Sink interface {
	Commit(consensus.CommitEntry)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(consensus.CommitEntry)

// Commit implements Sink.
func (f SinkFunc) Commit(e consensus.CommitEntry) { f(e) }

// Executor drains a channel of CommitEntry values, in the strictly
// increasing Seq order the Consensus Core guarantees, and forwards each to
// Sink. It is its own task per §5's "one owner per durable structure" rule
// applied to the output stream's read position.
type Executor struct {
	in   <-chan consensus.CommitEntry
	sink Sink
	log  zerolog.Logger

	exitChan chan struct{}
	wg       sync.WaitGroup
}

// New creates an Executor reading from in until it is closed or Stop is
// called.
func New(in <-chan consensus.CommitEntry, sink Sink, log zerolog.Logger) *Executor {
	return &Executor{
		in:       in,
		sink:     sink,
		log:      log.With().Int(logging.Service, logging.ConsensusService).Logger(),
		exitChan: make(chan struct{}),
	}
}

// Start launches the draining goroutine.
func (e *Executor) Start() error {
	e.wg.Add(1)
	go e.run()
	e.log.Info().Msg(logging.ServiceStarted)
	return nil
}

// Stop signals the draining goroutine to exit and waits for it.
func (e *Executor) Stop() {
	close(e.exitChan)
	e.wg.Wait()
	e.log.Info().Msg(logging.ServiceStopped)
}

func (e *Executor) run() {
	defer e.wg.Done()
	for {
		select {
		case entry, ok := <-e.in:
			if !ok {
				return
			}
			e.sink.Commit(entry)
		case <-e.exitChan:
			return
		}
	}
}
