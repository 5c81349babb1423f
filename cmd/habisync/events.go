package main

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// handleEvents streams queue and sync events to UI shells over WebSocket.
func (s *Server) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to accept event stream connection")
			return
		}
		defer conn.Close(websocket.StatusInternalError, "event stream closed")

		events, unsubscribe := s.hub.Subscribe()
		defer unsubscribe()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case event, ok := <-events:
				if !ok {
					conn.Close(websocket.StatusNormalClosure, "")
					return
				}
				if err := wsjson.Write(ctx, conn, event); err != nil {
					s.logger.WithError(err).Debug("Event stream write failed, closing")
					return
				}
			}
		}
	}
}
