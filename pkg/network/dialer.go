package network

// Dialer establishes connections with committee members, identified by
// pid (equal to their types.NodeID).
type Dialer interface {
	// Dial connects to the committee member identified by pid and returns
	// the resulting connection or an error.
	Dial(pid uint16) (Connection, error)

	// Length returns the number of addresses handled by this dialer.
	Length() int
}
