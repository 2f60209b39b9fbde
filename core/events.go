package core

// EventKind names a replication event recorded in a run trace.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventForked    EventKind = "forked"
	EventSent      EventKind = "sent"
	EventDelivered EventKind = "delivered"
	EventStored    EventKind = "stored"
	EventBuffered  EventKind = "buffered"
	EventDuplicate EventKind = "duplicate"
	EventDropped   EventKind = "dropped"
	EventCommitted EventKind = "committed"
)

// Event is one entry in a run trace.
type Event struct {
	Sequence  int64        `json:"sequence"`
	Kind      EventKind    `json:"kind"`
	Time      float64      `json:"time"`
	Replica   string       `json:"replica"`
	Peer      string       `json:"peer,omitempty"`
	Version   VersionID    `json:"version,omitempty"`
	MessageID int64        `json:"messageID,omitempty"`
	Class     MessageClass `json:"class,omitempty"`
	Reason    string       `json:"reason,omitempty"`
}
