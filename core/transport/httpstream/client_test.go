package httpstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/koscakluka/cognito-session/core/transport"
)

func readAll(t *testing.T, stream transport.Stream) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var sb strings.Builder
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			return sb.String(), err
		}
		sb.Write(chunk)
	}
	return sb.String(), nil
}

func TestOpenStreamsBodyInChunks(t *testing.T) {
	var gotBody startBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultStartPath {
			t.Errorf("expected path %q, got %q", DefaultStartPath, r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, part := range []string{"data: {\"ty", "pe\":\"token\"}\n", "\ndata: [DONE]\n\n"} {
			_, _ = w.Write([]byte(part))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer server.Close()

	client := New(server.URL, WithChunkSize(3))
	stream, err := client.Open(context.Background(), transport.StartRequest("solid-state batteries"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	body, err := readAll(t, stream)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if want := "data: {\"type\":\"token\"}\n\ndata: [DONE]\n\n"; body != want {
		t.Fatalf("expected body %q, got %q", want, body)
	}
	if gotBody.Query != "solid-state batteries" {
		t.Fatalf("expected query to be forwarded, got %q", gotBody.Query)
	}
}

func TestOpenApproveForwardsToken(t *testing.T) {
	var gotBody approveBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/approve" {
			t.Errorf("expected custom approve path, got %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte("data: [DONE]\n"))
	}))
	defer server.Close()

	client := New(server.URL+"/", WithPaths("/start", "/approve"))
	stream, err := client.Open(context.Background(), transport.ApproveRequest("thread-1", true))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()
	if _, err := readAll(t, stream); err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}

	if gotBody.ThreadID != "thread-1" || !gotBody.Approved {
		t.Fatalf("unexpected approve body: %+v", gotBody)
	}
}

func TestOpenNonSuccessStatusIsConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "No pending actions for this thread.", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := New(server.URL).Open(context.Background(), transport.ApproveRequest("missing", true))
	if err == nil {
		t.Fatalf("expected an error for a non-success status")
	}

	var connErr *transport.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ConnectionError, got %T", err)
	}
	if connErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", connErr.StatusCode)
	}
	if !strings.Contains(err.Error(), "No pending actions") {
		t.Fatalf("expected error body preview in %q", err.Error())
	}
}

func TestOpenUnreachableServerIsConnectionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := New(url).Open(context.Background(), transport.StartRequest("x"))
	if !transport.IsConnectionError(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestOpenRejectsUnknownAction(t *testing.T) {
	_, err := New("http://127.0.0.1:0").Open(context.Background(), transport.Request{Action: "resume"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if transport.IsConnectionError(err) {
		t.Fatalf("expected validation error to not be a connection error")
	}
}

func TestOpenTranscodesDeclaredCharset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=iso-8859-1")
		// "café" in latin-1
		_, _ = w.Write([]byte{'c', 'a', 'f', 0xE9, '\n'})
	}))
	defer server.Close()

	stream, err := New(server.URL).Open(context.Background(), transport.StartRequest("x"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	body, err := readAll(t, stream)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if body != "café\n" {
		t.Fatalf("expected transcoded body, got %q", body)
	}
}

func TestCloseEndsChunksWithoutError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: [DONE]\n"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	stream, err := New(server.URL).Open(context.Background(), transport.StartRequest("x"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for chunk, err := range stream.Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("expected no error after close, got %v", err)
		}
		if len(chunk) > 0 {
			_ = stream.Close()
		}
	}
}
