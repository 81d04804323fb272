package types

// The error taxonomy below is closed and exhaustive: every failure mode the
// consensus core can encounter is one of these. Policy for each is fixed by
// spec (see Retryable and Fatal): retry, drop-and-log, or fatal.

// InvalidSignature is raised when a signature over a vertex digest, a vote,
// or a coin share fails verification. The offending message is dropped.
type InvalidSignature struct {
	msg string
}

func (e *InvalidSignature) Error() string { return "InvalidSignature: " + e.msg }

// NewInvalidSignature constructs an InvalidSignature error.
func NewInvalidSignature(msg string) *InvalidSignature { return &InvalidSignature{msg} }

// EquivocatingAuthor is raised when a second, different vertex arrives from
// an author already seen at the same round. The (author, round) instance is
// rejected, and no vote is cast for the second vertex or any later one.
type EquivocatingAuthor struct {
	Author NodeID
	Round  Round
}

func (e *EquivocatingAuthor) Error() string {
	return "EquivocatingAuthor: author equivocated at this round"
}

// NewEquivocatingAuthor constructs an EquivocatingAuthor error.
func NewEquivocatingAuthor(author NodeID, round Round) *EquivocatingAuthor {
	return &EquivocatingAuthor{author, round}
}

// MissingParent is raised when a vertex names a parent digest that has not
// been delivered with a valid CoA at this node yet.
type MissingParent struct {
	Digest Digest
}

func (e *MissingParent) Error() string { return "MissingParent: " + e.Digest.String() }

// NewMissingParent constructs a MissingParent error.
func NewMissingParent(d Digest) *MissingParent { return &MissingParent{d} }

// InvariantViolation is raised when a structural DAG invariant (§3 of the
// spec) is violated by data that otherwise passed signature checks. Fatal
// reports it as fatal. Where the rb Coordinator returns it for a peer's
// vertex or CoA, pkg/node logs the error and drops the message; the node
// does not abort.
type InvariantViolation struct {
	msg string
}

func (e *InvariantViolation) Error() string { return "InvariantViolation: " + e.msg }

// NewInvariantViolation constructs an InvariantViolation error.
func NewInvariantViolation(msg string) *InvariantViolation { return &InvariantViolation{msg} }

// InsufficientShares is raised when combining coin shares with fewer than
// 2f+1 valid, distinct partial signatures.
type InsufficientShares struct {
	Have, Need int
}

func (e *InsufficientShares) Error() string { return "InsufficientShares" }

// NewInsufficientShares constructs an InsufficientShares error.
func NewInsufficientShares(have, need int) *InsufficientShares {
	return &InsufficientShares{have, need}
}

// StoreCorruption is raised when the persistence layer returns data that
// cannot be decoded or is internally inconsistent. Fatal.
type StoreCorruption struct {
	msg string
}

func (e *StoreCorruption) Error() string { return "StoreCorruption: " + e.msg }

// NewStoreCorruption constructs a StoreCorruption error.
func NewStoreCorruption(msg string) *StoreCorruption { return &StoreCorruption{msg} }

// NetworkTimeout is raised when an outbound request does not complete
// before its deadline. Retried with backoff.
type NetworkTimeout struct {
	msg string
}

func (e *NetworkTimeout) Error() string { return "NetworkTimeout: " + e.msg }

// NewNetworkTimeout constructs a NetworkTimeout error.
func NewNetworkTimeout(msg string) *NetworkTimeout { return &NetworkTimeout{msg} }

// QueueOverflow is raised when a bounded channel is full and backpressure
// reaches the caller. Retried with backoff.
type QueueOverflow struct {
	Queue string
}

func (e *QueueOverflow) Error() string { return "QueueOverflow: " + e.Queue }

// NewQueueOverflow constructs a QueueOverflow error.
func NewQueueOverflow(queue string) *QueueOverflow { return &QueueOverflow{queue} }

// ShutdownRequested signals cooperative shutdown: queues drain, state
// persists, and the task exits.
type ShutdownRequested struct{}

func (e *ShutdownRequested) Error() string { return "ShutdownRequested" }

// Retryable reports whether err's policy (per spec §7) is retry-with-backoff
// rather than drop-and-log or fatal.
func Retryable(err error) bool {
	switch err.(type) {
	case *NetworkTimeout, *QueueOverflow:
		return true
	}
	return false
}

// Fatal reports whether err's policy is to abort the node rather than risk
// safety.
func Fatal(err error) bool {
	switch err.(type) {
	case *InvariantViolation, *StoreCorruption:
		return true
	}
	return false
}
