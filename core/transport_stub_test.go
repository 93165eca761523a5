package session

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/cognito-session/core/transport"
)

// scriptedStream replays fixed chunks. When gate is set, no chunk is
// delivered before the gate is closed; when hold is set, the stream stays
// open after the last chunk until it is closed.
type scriptedStream struct {
	chunks []string
	gate   <-chan struct{}
	hold   bool

	closeOnce sync.Once
	closed    chan struct{}
}

func newScriptedStream(chunks ...string) *scriptedStream {
	return &scriptedStream{chunks: chunks, closed: make(chan struct{})}
}

func (s *scriptedStream) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if s.gate != nil {
			select {
			case <-s.gate:
			case <-s.closed:
				return
			case <-ctx.Done():
				return
			}
		}
		for _, chunk := range s.chunks {
			select {
			case <-s.closed:
				return
			case <-ctx.Done():
				return
			default:
			}
			if !yield([]byte(chunk), nil) {
				return
			}
		}
		if s.hold {
			select {
			case <-s.closed:
			case <-ctx.Done():
			}
		}
	}
}

func (s *scriptedStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *scriptedStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// feedStream yields chunks as the test sends them on feed, until feed is
// closed or the stream is.
type feedStream struct {
	feed chan string

	closeOnce sync.Once
	closed    chan struct{}
}

func newFeedStream() *feedStream {
	return &feedStream{feed: make(chan string), closed: make(chan struct{})}
}

func (s *feedStream) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			select {
			case chunk, ok := <-s.feed:
				if !ok || !yield([]byte(chunk), nil) {
					return
				}
			case <-s.closed:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *feedStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// brokenStream yields its chunks and then a read failure.
type brokenStream struct {
	chunks []string
}

func (s brokenStream) Chunks(context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, chunk := range s.chunks {
			if !yield([]byte(chunk), nil) {
				return
			}
		}
		yield(nil, &transport.ConnectionError{Op: "read stream", Err: errors.New("connection reset by peer")})
	}
}

func (brokenStream) Close() error { return nil }

// scriptedTransport hands out the queued stream for each action in order.
type scriptedTransport struct {
	mu       sync.Mutex
	streams  map[transport.Action][]transport.Stream
	openErr  error
	requests []transport.Request
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{streams: map[transport.Action][]transport.Stream{}}
}

func (t *scriptedTransport) queue(action transport.Action, stream transport.Stream) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streams[action] = append(t.streams[action], stream)
}

func (t *scriptedTransport) Open(_ context.Context, req transport.Request) (transport.Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.requests = append(t.requests, req)
	if t.openErr != nil {
		return nil, t.openErr
	}
	queued := t.streams[req.Action]
	if len(queued) == 0 {
		return nil, &transport.ConnectionError{Op: "open stream", Err: errors.New("no scripted stream for " + string(req.Action))}
	}
	t.streams[req.Action] = queued[1:]
	return queued[0], nil
}

func (t *scriptedTransport) opened() []transport.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]transport.Request(nil), t.requests...)
}

func frames(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func waitForState(t *testing.T, c *Controller, description string, predicate func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		state := c.Snapshot()
		if predicate(state) {
			return state
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, last state: %+v", description, state)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitIdleRun(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("timed out waiting for the run to be released: %v", err)
	}
}
