package core

import "fmt"

// Payload is carried by a Message: either a Version or an Ack.
type Payload interface {
	isPayload()
}

// Ack acknowledges receipt of a version to the immediate sender.
type Ack struct {
	Of VersionID `json:"of"`
}

func (Ack) isPayload() {}

// MessageClass labels messages for observability.
type MessageClass string

const (
	ClassWrite MessageClass = "write"
	ClassAck   MessageClass = "ack"
)

// ClassOf returns the class of a payload.
func ClassOf(p Payload) MessageClass {
	if _, ok := p.(Ack); ok {
		return ClassAck
	}
	return ClassWrite
}

// Message is an envelope in flight between two replicas.
type Message struct {
	ID      int64
	Source  string
	Target  string
	Payload Payload
	Delay   float64
	SentAt  float64
	Class   MessageClass
}

// IsAck reports whether the message carries an acknowledgment.
func (m *Message) IsAck() bool {
	if m == nil {
		return false
	}
	_, ok := m.Payload.(Ack)
	return ok
}

// Version returns the carried version, if any.
func (m *Message) Version() (Version, bool) {
	if m == nil {
		return Version{}, false
	}
	v, ok := m.Payload.(Version)
	return v, ok
}

// ArrivesAt is the virtual time of delivery.
func (m *Message) ArrivesAt() float64 {
	return m.SentAt + m.Delay
}

func (m *Message) String() string {
	switch p := m.Payload.(type) {
	case Version:
		return fmt.Sprintf("msg#%d %s->%s %s (%.1f)", m.ID, m.Source, m.Target, p, m.Delay)
	case Ack:
		return fmt.Sprintf("msg#%d %s->%s ack %d (%.1f)", m.ID, m.Source, m.Target, p.Of, m.Delay)
	default:
		return fmt.Sprintf("msg#%d %s->%s (%.1f)", m.ID, m.Source, m.Target, m.Delay)
	}
}
