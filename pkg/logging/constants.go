package logging

// Shortcuts for event types.
// Any event that happens multiple times should have a single character representation
const (
	ServiceStarted        = "start"
	ServiceStopped        = "stop"
	VertexProposed        = "V"
	VertexCertified       = "C"
	RoundAdvanced         = "R"
	WaveCommitted         = "W"
	WaveSkipped           = "K"
	EquivocationSeen      = "Q"
	ConnectionReceived    = "I"
	ConnectionEstablished = "E"
	ConnectionClosed      = "X"
	ConnectionDropped     = "F"
	MissingParentSynced   = "S"
)

// eventTypeDict maps short event names to human readable form
var eventTypeDict = map[string]string{
	VertexProposed:        "new vertex proposed",
	VertexCertified:       "vertex certified with a CoA",
	RoundAdvanced:         "advanced to next round",
	WaveCommitted:         "wave committed",
	WaveSkipped:           "wave skipped, leader absent",
	EquivocationSeen:      "author equivocated, vote withheld",
	ConnectionReceived:    "listener received a TCP connection",
	ConnectionEstablished: "dialer established a TCP connection",
	ConnectionClosed:      "connection closed",
	ConnectionDropped:     "connection dropped, reconnecting",
	MissingParentSynced:   "missing parent fetched via SYNC_REQ",
}

// Field names
const (
	Time    = "T"
	Level   = "L"
	Event   = "E"
	Service = "S"
	Size    = "N"
	Digest  = "D"
	Round   = "R"
	Wave    = "W"
	Author  = "A"
	PID     = "P"
	SID     = "Y"
	Sent    = "U"
	Recv    = "V"
)

// fieldNameDict maps short field names to human readable form
var fieldNameDict = map[string]string{
	Time:    "time",
	Level:   "level",
	Event:   "event",
	Service: "service",
	Size:    "size",
	Digest:  "digest",
	Round:   "round",
	Wave:    "wave",
	Author:  "author",
	PID:     "PID",
	SID:     "SyncID",
	Sent:    "bytesSent",
	Recv:    "bytesRecv",
}

// Service types, one per long-lived task (§5: network receiver, RB
// coordinator, DAG Store owner, Consensus Core, mempool client).
const (
	NetworkService int = iota
	RBService
	DAGStoreService
	ConsensusService
	MempoolService
)

// serviceTypeDict maps integer service types to human readable names
var serviceTypeDict = map[int]string{
	NetworkService:   "NETWORK",
	RBService:        "RB",
	DAGStoreService:  "DAGSTORE",
	ConsensusService: "CONSENSUS",
	MempoolService:   "MEMPOOL",
}

// Genesis marks InitLogger's own startup line, logged once before the
// relative-time clock it anchors starts counting. Not a DAG-Rider genesis
// vertex; those never get a log event of their own.
const Genesis = "genesis"
