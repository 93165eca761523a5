package events

import "time"

// Kind names the wire record an event was decoded from, or the decoding
// outcome for records that did not parse.
type Kind string

const (
	KindProgress  Kind = "progress"
	KindInterrupt Kind = "interrupt"
	KindToken     Kind = "token"
	KindTerminate Kind = "terminate"
	KindMalformed Kind = "malformed"
	KindFailure   Kind = "failure"
)

// Event is one item of a research stream, in the order it arrived.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the fields every event shares. Embed it and build it with
// [NewBase].
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
