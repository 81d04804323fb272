package network

import "time"

// Listener waits for incoming connections, reporting the pid of whoever
// greeted it first (see pkg/network/tcp's greeting handshake).
type Listener interface {
	Listen(timeout time.Duration) (pid uint16, conn Connection, err error)
	Close() error
}
