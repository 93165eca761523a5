package transport

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// Action names the session action a request is issued for.
type Action string

const (
	ActionStart   Action = "start"
	ActionApprove Action = "approve"
)

// Request carries everything a transport needs to open one stream.
//
// Query is only used for [ActionStart]; SessionToken and Approved only for
// [ActionApprove].
type Request struct {
	Action       Action
	Query        string
	SessionToken string
	Approved     bool
}

func StartRequest(query string) Request {
	return Request{Action: ActionStart, Query: query}
}

func ApproveRequest(sessionToken string, approved bool) Request {
	return Request{Action: ActionApprove, SessionToken: sessionToken, Approved: approved}
}

func (r Request) Validate() error {
	switch r.Action {
	case ActionStart, ActionApprove:
		return nil
	case "":
		return errors.New("request action is required")
	default:
		return fmt.Errorf("unknown request action %q", r.Action)
	}
}

// Stream is the body of one open response. Chunks may be ranged over once;
// it ends when the server closes the connection, when ctx is done or when
// Close is called.
type Stream interface {
	Chunks(ctx context.Context) iter.Seq2[[]byte, error]
	Close() error
}

type Transport interface {
	// Open issues the request and returns once the response is established.
	// Failures to establish the stream are reported as *ConnectionError.
	Open(ctx context.Context, req Request) (Stream, error)
}

// ConnectionError reports that a stream could not be opened or broke while
// being read.
type ConnectionError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	msg := "connection error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is or wraps a *ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
