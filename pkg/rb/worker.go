package rb

import (
	"sync"

	"github.com/dagrider/bft-consensus/pkg/types"
)

// VerifyPool runs CPU-bound signature verification jobs across a fixed
// number of worker goroutines (§5: "signature verification is CPU-bound
// and should run in a worker pool"). Grounded on the teacher's
// pkg/parallel worker-fan-out shape (a fixed pool of goroutines draining a
// shared job channel), generalized from unit-adding jobs to verification
// jobs.
type VerifyPool struct {
	jobs chan func() error
	wg   sync.WaitGroup

	mu      sync.Mutex
	err     error
	stopped bool
}

// NewVerifyPool starts workers goroutines ready to run verification jobs.
func NewVerifyPool(workers int) *VerifyPool {
	if workers < 1 {
		workers = 1
	}
	p := &VerifyPool{jobs: make(chan func() error, workers*4)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *VerifyPool) run() {
	defer p.wg.Done()
	for job := range p.jobs {
		if err := job(); err != nil {
			p.mu.Lock()
			if p.err == nil {
				p.err = err
			}
			p.mu.Unlock()
		}
	}
}

// Submit enqueues a verification job whose error, if any, only surfaces
// through Err. It blocks if every worker is busy and the internal queue is
// full, providing the backpressure §5 asks for.
func (p *VerifyPool) Submit(job func() error) {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return
	}
	p.jobs <- job
}

// Verify submits job to a worker and blocks until it has run, returning
// its result directly. This is the call the Coordinator's signature checks
// go through: verification is CPU-bound (§5) and belongs on a pool worker
// rather than inline on the single dispatch goroutine that drives the
// Coordinator, even though that goroutine still waits for the answer
// before advancing the instance's state.
func (p *VerifyPool) Verify(job func() error) error {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return &types.ShutdownRequested{}
	}
	done := make(chan error, 1)
	p.jobs <- func() error {
		err := job()
		done <- err
		return err
	}
	return <-done
}

// Err returns the first error observed by any worker, if any.
func (p *VerifyPool) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close stops accepting new jobs and waits for in-flight ones to finish.
func (p *VerifyPool) Close() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()
	close(p.jobs)
	p.wg.Wait()
}
