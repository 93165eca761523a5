package httpstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/koscakluka/cognito-session/core/transport"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

const (
	DefaultStartPath   = "/api/research/start"
	DefaultApprovePath = "/api/research/approve"

	defaultChunkSize    = 4 * 1024
	maxErrorBodyPreview = 4 * 1024
)

var _ transport.Transport = (*Client)(nil)

// Client opens research streams with one POST per session action.
type Client struct {
	baseURL     string
	startPath   string
	approvePath string
	headers     http.Header
	chunkSize   int
	httpClient  *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default otelhttp instrumented client. The client
// must not set a Timeout shorter than a whole run, the response body stays open
// for the duration of the stream.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithPaths(startPath, approvePath string) Option {
	return func(c *Client) {
		if strings.TrimSpace(startPath) != "" {
			c.startPath = startPath
		}
		if strings.TrimSpace(approvePath) != "" {
			c.approvePath = approvePath
		}
	}
}

func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// WithChunkSize sets the size of a single body read.
func WithChunkSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		startPath:   DefaultStartPath,
		approvePath: DefaultApprovePath,
		headers:     http.Header{},
		chunkSize:   defaultChunkSize,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type startBody struct {
	Query string `json:"query"`
}

type approveBody struct {
	ThreadID string `json:"thread_id"`
	Approved bool   `json:"approved"`
}

func (c *Client) endpoint(req transport.Request) (string, any) {
	switch req.Action {
	case transport.ActionApprove:
		return c.baseURL + c.approvePath, approveBody{ThreadID: req.SessionToken, Approved: req.Approved}
	default:
		return c.baseURL + c.startPath, startBody{Query: req.Query}
	}
}

func (c *Client) Open(ctx context.Context, req transport.Request) (transport.Stream, error) {
	ctx, span := tracer.Start(ctx, "open research stream")
	defer span.End()
	span.SetAttributes(attribute.String("request.action", string(req.Action)))

	fail := func(err error) (transport.Stream, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := req.Validate(); err != nil {
		return fail(fmt.Errorf("invalid request: %w", err))
	}

	url, body := c.endpoint(req)
	span.SetAttributes(attribute.String("request.url", url))

	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		return fail(fmt.Errorf("error marshalling JSON: %w", err))
	}

	// The stream outlives Open, so it gets its own cancellation that Close
	// controls; the caller's ctx still bounds it.
	streamCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		cancel()
		return fail(&transport.ConnectionError{Op: "create request", URL: url, Err: err})
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for key, values := range c.headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return fail(&transport.ConnectionError{Op: "send request", URL: url, Err: err})
	}

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer cancel()
		defer resp.Body.Close()
		statusErr := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		if preview, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyPreview)); readErr == nil && len(bytes.TrimSpace(preview)) > 0 {
			span.SetAttributes(attribute.String("response.error", string(preview)))
			statusErr = fmt.Errorf("%w: %s", statusErr, bytes.TrimSpace(preview))
		}
		return fail(&transport.ConnectionError{Op: "open stream", URL: url, StatusCode: resp.StatusCode, Err: statusErr})
	}

	return &Stream{
		url:       url,
		body:      resp.Body,
		reader:    decodeCharset(resp.Body, resp.Header.Get("Content-Type")),
		cancel:    cancel,
		chunkSize: c.chunkSize,
	}, nil
}

// decodeCharset wraps body with a transcoder when the response declares a
// charset other than UTF-8. transform.Reader carries partial sequences across
// reads, so chunk boundaries never split a transcoded character.
func decodeCharset(body io.Reader, contentType string) io.Reader {
	if contentType == "" {
		return body
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	switch charset {
	case "", "utf-8", "utf8", "us-ascii":
		return body
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		logger.Warn("unsupported response charset, reading body as UTF-8", "charset", charset, "error", err)
		return body
	}
	return transform.NewReader(body, enc.NewDecoder())
}

// Stream is an open response body read in chunks.
type Stream struct {
	url       string
	body      io.ReadCloser
	reader    io.Reader
	cancel    context.CancelFunc
	chunkSize int

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

func (s *Stream) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		stop := context.AfterFunc(ctx, func() { _ = s.Close() })
		defer stop()

		buf := make([]byte, s.chunkSize)
		for {
			n, err := s.reader.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !yield(chunk, nil) {
					return
				}
			}
			if err == nil {
				continue
			}
			if errors.Is(err, io.EOF) || s.isClosed() {
				return
			}
			yield(nil, &transport.ConnectionError{Op: "read stream", URL: s.url, Err: err})
			return
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
		s.cancel()
		err = s.body.Close()
	})
	return err
}
