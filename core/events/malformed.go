package events

import "fmt"

// ParseError reports a payload that is not valid JSON or that misses a field
// its discriminator requires.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Err)
	}
	return "parse error: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Malformed is an event-bearing line that could not be classified. It is kept
// for diagnostics only.
type Malformed struct {
	Base
	Raw string
	Err *ParseError
}

func (e Malformed) String() string {
	if e.Err == nil {
		return "malformed"
	}
	return "malformed: " + e.Err.Error()
}

func NewMalformed(raw string, err *ParseError) Malformed {
	return Malformed{Base: NewBase(KindMalformed), Raw: raw, Err: err}
}
