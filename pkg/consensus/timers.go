package consensus

import (
	"time"

	"github.com/dagrider/bft-consensus/pkg/types"
)

// DefaultRoundTimeout is the 2000ms straggler timer of §4.D.3.
const DefaultRoundTimeout = 2000 * time.Millisecond

// RoundTimer is the single per-round straggler timer of §4.D.3: armed the
// moment a node first observes a certified vertex at a round, it fires
// once, onto a channel the owning task selects on alongside inbound
// messages. Firing never calls back into Core directly — per §5's single
// task ownership rule, only the owning task's select loop (pkg/node) may
// mutate Core, by routing a fired round into Core.TimerFired.
type RoundTimer struct {
	duration time.Duration
	fired    chan types.Round

	active bool
	round  types.Round
	timer  *time.Timer
}

// NewRoundTimer creates a RoundTimer with the given duration, or
// DefaultRoundTimeout if duration is non-positive.
func NewRoundTimer(duration time.Duration) *RoundTimer {
	if duration <= 0 {
		duration = DefaultRoundTimeout
	}
	return &RoundTimer{duration: duration, fired: make(chan types.Round, 1)}
}

// C is the channel the owning task selects on.
func (rt *RoundTimer) C() <-chan types.Round { return rt.fired }

// StartIfIdle arms the timer for round unless one is already running for
// that same round.
func (rt *RoundTimer) StartIfIdle(round types.Round) {
	if rt.active && rt.round == round {
		return
	}
	rt.stop()
	rt.active = true
	rt.round = round
	rt.timer = time.AfterFunc(rt.duration, func() {
		select {
		case rt.fired <- round:
		default:
		}
	})
}

// Cancel disarms the timer if it is currently running for round, because
// the round has since advanced through the fast, every-author path.
func (rt *RoundTimer) Cancel(round types.Round) {
	if rt.active && rt.round == round {
		rt.stop()
	}
}

func (rt *RoundTimer) stop() {
	if rt.timer != nil {
		rt.timer.Stop()
	}
	rt.active = false
	rt.timer = nil
}
