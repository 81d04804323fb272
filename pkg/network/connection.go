package network

import "time"

// Connection is a buffered, bidirectional byte stream to one peer.
type Connection interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Flush() error
	Close() error
	TimeoutAfter(t time.Duration)
}
