package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/cognito-session/core/transport"
)

func newGateway(t *testing.T, handle func(conn *websocket.Conn, request RequestMessage)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var request RequestMessage
		if err := conn.ReadJSON(&request); err != nil {
			t.Errorf("failed to read request: %v", err)
			return
		}
		handle(conn, request)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestOpenSendsRequestAndStreamsMessages(t *testing.T) {
	received := make(chan RequestMessage, 1)
	server := newGateway(t, func(conn *websocket.Conn, request RequestMessage) {
		received <- request
		_ = conn.WriteMessage(websocket.TextMessage, []byte("data: {\"type\":\"tok"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("en\",\"content\":\"a\"}\n"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("data: [DONE]\n"))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	defer server.Close()

	stream, err := New(wsURL(server)).Open(context.Background(), transport.ApproveRequest("thread-9", true))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var sb strings.Builder
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sb.Write(chunk)
	}

	if want := "data: {\"type\":\"token\",\"content\":\"a\"}\ndata: [DONE]\n"; sb.String() != want {
		t.Fatalf("expected %q, got %q", want, sb.String())
	}

	request := <-received
	if request.Action != transport.ActionApprove || request.ThreadID != "thread-9" || !request.Approved {
		t.Fatalf("unexpected request message: %+v", request)
	}
}

func TestOpenDialFailureIsConnectionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := New(wsURL(server)).Open(context.Background(), transport.StartRequest("x"))
	if !transport.IsConnectionError(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
}
