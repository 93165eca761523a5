package replay

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	wstransport "github.com/koscakluka/cognito-session/core/transport/websocket"
)

const (
	requestReadTimeout = 10 * time.Second
	closeWriteTimeout  = time.Second
)

// handleSocket answers one request message per connection. Chunks may split
// characters, so each one is sent as a binary message. The stream ends with a
// normal close.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var message wstransport.RequestMessage
	_ = conn.SetReadDeadline(time.Now().Add(requestReadTimeout))
	if err := conn.ReadJSON(&message); err != nil {
		closeSocket(conn, websocket.CloseUnsupportedData, "invalid request message")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	frames, err := s.dispatch(r.Context(), message)
	if err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			closeSocket(conn, websocket.ClosePolicyViolation, reqErr.detail)
			return
		}
		logger.Error("failed to build response", "error", err)
		closeSocket(conn, websocket.CloseInternalServerErr, "internal server error")
		return
	}

	for _, chunk := range s.chunks(frames) {
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte(chunk)); err != nil {
			logger.Debug("client went away", "error", err)
			return
		}
		if !s.pause(r.Context()) {
			return
		}
	}
	closeSocket(conn, websocket.CloseNormalClosure, "")
}

func closeSocket(conn *websocket.Conn, code int, reason string) {
	message := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeWriteTimeout)); err != nil &&
		!errors.Is(err, websocket.ErrCloseSent) {
		logger.Debug("failed to send websocket close", "error", err)
	}
}
