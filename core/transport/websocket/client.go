// Package websocket implements the session transport over a websocket gateway.
//
// Each session action dials a fresh connection and writes a single JSON request
// message. Every message received afterwards is one chunk of the same line
// oriented stream the HTTP transport delivers; message boundaries carry no
// meaning. The gateway ends the stream with a normal close.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/cognito-session/core/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const closeWriteTimeout = time.Second

var _ transport.Transport = (*Client)(nil)

// RequestMessage is the first and only message a client writes.
type RequestMessage struct {
	Action   transport.Action `json:"action"`
	Query    string           `json:"query,omitempty"`
	ThreadID string           `json:"thread_id,omitempty"`
	Approved bool             `json:"approved,omitempty"`
}

type Client struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
}

type Option func(*Client)

func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Set(key, value) }
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:    strings.TrimSpace(url),
		header: http.Header{},
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Open(ctx context.Context, req transport.Request) (transport.Stream, error) {
	ctx, span := tracer.Start(ctx, "open research socket")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.action", string(req.Action)),
		attribute.String("request.url", c.url),
	)

	fail := func(err error) (transport.Stream, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := req.Validate(); err != nil {
		return fail(fmt.Errorf("invalid request: %w", err))
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		connErr := &transport.ConnectionError{Op: "dial", URL: c.url, Err: err}
		if resp != nil {
			connErr.StatusCode = resp.StatusCode
		}
		return fail(connErr)
	}

	message := RequestMessage{Action: req.Action}
	switch req.Action {
	case transport.ActionStart:
		message.Query = req.Query
	case transport.ActionApprove:
		message.ThreadID = req.SessionToken
		message.Approved = req.Approved
	}
	if err := conn.WriteJSON(message); err != nil {
		_ = conn.Close()
		return fail(&transport.ConnectionError{Op: "write request", URL: c.url, Err: err})
	}

	return &Stream{url: c.url, conn: conn}, nil
}

type Stream struct {
	url  string
	conn *websocket.Conn

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func (s *Stream) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		stop := context.AfterFunc(ctx, func() { _ = s.Close() })
		defer stop()

		for {
			msgType, data, err := s.conn.ReadMessage()
			if err != nil {
				if s.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				yield(nil, &transport.ConnectionError{Op: "read stream", URL: s.url, Err: err})
				return
			}

			switch msgType {
			case websocket.TextMessage, websocket.BinaryMessage:
				if len(data) == 0 {
					continue
				}
				if !yield(data, nil) {
					return
				}
			default:
				logger.Debug("ignoring websocket control message", "type", msgType)
			}
		}
	}
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		deadline := time.Now().Add(closeWriteTimeout)
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if writeErr := s.conn.WriteControl(websocket.CloseMessage, closeMsg, deadline); writeErr != nil &&
			!errors.Is(writeErr, websocket.ErrCloseSent) {
			logger.Debug("failed to send websocket close", "error", writeErr)
		}
		err = s.conn.Close()
	})
	return err
}
