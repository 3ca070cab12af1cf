package api

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nvandessel/forensic-council/internal/engine"
)

const (
	writeTimeout   = 10 * time.Second
	streamBuffer   = 32
	maxClientFrame = 512
)

// StreamRun upgrades to a WebSocket and pushes a snapshot after every state
// change, starting with the current one. Clients only listen; anything they
// send is discarded.
func (s *Server) StreamRun(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return nil
	}

	snaps, unsubscribe := s.svc.Subscribe(streamBuffer)
	closed := make(chan struct{})
	go s.readPump(ws, closed)
	s.writePump(ws, snaps, closed)
	unsubscribe()
	return nil
}

// readPump drains client frames so pongs and close frames are processed.
func (s *Server) readPump(ws *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	ws.SetReadLimit(maxClientFrame)
	ws.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("stream client error", "error", err)
			}
			return
		}
	}
}

func (s *Server) writePump(ws *websocket.Conn, snaps <-chan engine.Snapshot, closed <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteJSON(s.svc.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case snap, ok := <-snaps:
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
				return
			}
			if err := ws.WriteJSON(snap); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
