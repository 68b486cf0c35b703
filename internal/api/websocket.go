package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gmsas95/dosekeeper/internal/realtime"
	"github.com/gmsas95/dosekeeper/internal/receiver"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// handleWebSocket serves one app window. Events from the hub are written
// out as they arrive; inbound messages carry mark-taken and snooze actions.
func (s *Server) handleWebSocket(c *websocket.Conn) {
	defer c.Close()

	pid, _ := c.Locals(localPatientID).(string)
	client := realtime.NewClient(pid)
	s.hub.Register(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for data := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("WebSocket write error", zap.Error(err))
				return
			}
		}
	}()

	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			break
		}
		if mt != websocket.TextMessage {
			continue
		}

		var m receiver.Message
		if err := json.Unmarshal(msg, &m); err != nil {
			s.hub.Toast(pid, "error", "Invalid message format")
			continue
		}
		s.handleAppMessage(context.Background(), pid, m)
	}

	s.hub.Unregister(client)
	<-done
}

// handleAppMessage applies a message posted by the app or relayed from a
// notification click.
func (s *Server) handleAppMessage(ctx context.Context, pid string, m receiver.Message) {
	occID := m.Data.OccurrenceID
	if occID == "" {
		return
	}

	switch m.Type {
	case receiver.MessageMarkTaken:
		// failures are reported to the window by the tracker
		if _, err := s.tracker.MarkTaken(ctx, pid, occID); err == nil {
			s.manager.CancelSnooze(pid, occID)
		}

	case receiver.MessageSnooze:
		delay, err := s.manager.Snooze(ctx, pid, occID)
		if err != nil {
			s.hub.Toast(pid, "error", "Could not snooze this dose. Please try again.")
			return
		}
		name := m.Data.MedicineName
		if name == "" {
			name = "Dose"
		}
		s.hub.Toast(pid, "info", fmt.Sprintf("%s snoozed for %d minutes", name, int(delay.Minutes())))

	default:
		s.logger.Debug("Ignoring app message", zap.String("type", m.Type))
	}
}
