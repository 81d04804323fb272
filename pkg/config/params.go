// Package config reads and writes a node's committee membership data and
// runtime parameters.
package config

import (
	"runtime"
	"time"
)

const (
	// DefaultWeakParentByteBudget caps how many weak-parent digests a
	// proposed vertex carries, per the deterministic weak-parent policy of
	// DESIGN.md's Open Question decisions.
	DefaultWeakParentByteBudget = 64 * 1024
	// DefaultPayloadByteBudget caps how many bytes of mempool batch
	// digests a proposed vertex carries.
	DefaultPayloadByteBudget = 64 * 1024
	// DefaultRoundTimeout is the §4.D.3 per-round straggler timer.
	DefaultRoundTimeout = 2000 * time.Millisecond
	// DefaultMempoolIncomingCap bounds the mempool's inbound transaction
	// queue (§7's QueueOverflow error applies once it is exceeded).
	DefaultMempoolIncomingCap = 1 << 16
	// DefaultMaxBatchBytes caps a single mempool batch's size.
	DefaultMaxBatchBytes = 4 * 1024 * 1024
)

// Config is the set of per-node runtime parameters adjustable via a JSON
// config file (json_loader.go), independent of the committee membership
// data in committee.go.
type Config struct {
	// WeakParentByteBudget caps weak-parent selection (§9's policy
	// decision).
	WeakParentByteBudget int

	// PayloadByteBudget caps how many mempool batch digests a vertex
	// carries.
	PayloadByteBudget int

	// RoundTimeout is the §4.D.3 per-round straggler timer's duration. A
	// value <= 0 disables the timer entirely, reverting to advancing the
	// instant the 2f+1 lower bound is reached (consensus.Core's default
	// behavior when no timer is attached).
	RoundTimeout time.Duration

	// MempoolIncomingCap bounds the mempool's inbound transaction queue.
	MempoolIncomingCap int

	// MaxBatchBytes caps a single mempool batch's size.
	MaxBatchBytes int

	// StorageDir is the directory storage.Store opens its Badger database
	// in.
	StorageDir string

	// DialTimeout bounds how long the network task waits to establish an
	// outbound connection to a peer before retrying (§7's NetworkTimeout).
	DialTimeout time.Duration

	// LogLevel: 0-debug 1-info 2-warn 3-error 4-fatal 5-panic, matching
	// zerolog.Level's own numbering.
	LogLevel int

	// LogBuffer is the size of the log diode's buffer in bytes. 0 disables
	// the diode.
	LogBuffer int

	// LogHuman selects a human-readable console writer instead of JSON.
	LogHuman bool

	// ClientAddr is the address the client-submission listener binds,
	// separate from the committee's peer-to-peer address so a dagclient
	// never needs committee network credentials. Empty disables it.
	ClientAddr string

	// VerifyWorkers is the number of goroutines rb.VerifyPool runs
	// signature-verification jobs across. <= 0 defaults to 1 worker
	// (VerifyPool's own floor).
	VerifyWorkers int
}

// NewDefaultConfig returns the default set of parameters.
func NewDefaultConfig() Config {
	return Config{
		WeakParentByteBudget: DefaultWeakParentByteBudget,
		PayloadByteBudget:    DefaultPayloadByteBudget,
		RoundTimeout:         DefaultRoundTimeout,
		MempoolIncomingCap:   DefaultMempoolIncomingCap,
		MaxBatchBytes:        DefaultMaxBatchBytes,
		StorageDir:           "dagrider-data",
		DialTimeout:          2 * time.Second,
		LogLevel:             1,
		LogBuffer:            100000,
		LogHuman:             false,
		VerifyWorkers:        runtime.NumCPU(),
	}
}
