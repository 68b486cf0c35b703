// Package realtime pushes events to a patient's open app windows over
// websocket and queues relayed messages until a window is available.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gmsas95/dosekeeper/internal/metrics"
	"github.com/gmsas95/dosekeeper/internal/schedule"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types sent to app windows
const (
	EventToast        = "toast"
	EventNotification = "notification"
	EventCelebrate    = "celebrate"
	EventSummary      = "summary"
	EventMessage      = "message"
)

// maxPending bounds the per-patient queue of relayed messages
const maxPending = 50

// Event is one message written to an app window
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Toast is the payload of EventToast
type Toast struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Notification is the payload of EventNotification
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag,omitempty"`
}

// SessionListener is told when a patient's first window opens and when
// the last one closes
type SessionListener interface {
	SessionStarted(patientID string)
	SessionEnded(patientID string)
}

// Client is one open app window
type Client struct {
	ID        string
	PatientID string
	Send      chan []byte
}

// NewClient creates a client for a patient's window
func NewClient(patientID string) *Client {
	return &Client{
		ID:        uuid.New().String(),
		PatientID: patientID,
		Send:      make(chan []byte, 64),
	}
}

// Hub tracks open windows per patient. All operations are safe for
// concurrent use.
type Hub struct {
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	pending  map[string][]Event
	listener SessionListener
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		now:     time.Now,
		clients: make(map[string]map[*Client]struct{}),
		pending: make(map[string][]Event),
	}
}

// SetListener installs the session listener
func (h *Hub) SetListener(l SessionListener) {
	h.mu.Lock()
	h.listener = l
	h.mu.Unlock()
}

// Register adds a window. Messages queued while the patient had no window
// open are delivered to it.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	set, ok := h.clients[client.PatientID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[client.PatientID] = set
	}
	first := len(set) == 0
	set[client] = struct{}{}

	queued := h.pending[client.PatientID]
	delete(h.pending, client.PatientID)
	listener := h.listener
	h.mu.Unlock()

	metrics.IncrementActiveWindows()

	for _, ev := range queued {
		h.deliver(client, ev)
	}

	if first && listener != nil {
		listener.SessionStarted(client.PatientID)
	}
}

// Unregister removes a window and closes its Send channel
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	set, ok := h.clients[client.PatientID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := set[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, client)
	last := len(set) == 0
	if last {
		delete(h.clients, client.PatientID)
	}
	close(client.Send)
	listener := h.listener
	h.mu.Unlock()

	metrics.DecrementActiveWindows()

	if last && listener != nil {
		listener.SessionEnded(client.PatientID)
	}
}

// Send writes an event to every open window of the patient and returns how
// many windows accepted it. Windows with a full buffer are skipped.
func (h *Hub) Send(patientID string, ev Event) int {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("type", ev.Type), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients[patientID] {
		select {
		case client.Send <- data:
			delivered++
		default:
			h.logger.Warn("Window buffer full, dropping event",
				zap.String("client_id", client.ID),
				zap.String("type", ev.Type),
			)
		}
	}
	return delivered
}

// Relay delivers an app message to the patient's open windows, or queues it
// for the next window to connect. It reports whether a window received it.
func (h *Hub) Relay(patientID string, data interface{}) bool {
	ev := Event{Type: EventMessage, Timestamp: h.now(), Data: data}
	if h.Send(patientID, ev) > 0 {
		return true
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// a window may have registered between Send and here
	if len(h.clients[patientID]) > 0 {
		for client := range h.clients[patientID] {
			h.deliverLocked(client, ev)
		}
		return true
	}

	queue := append(h.pending[patientID], ev)
	if len(queue) > maxPending {
		queue = queue[len(queue)-maxPending:]
	}
	h.pending[patientID] = queue
	return false
}

func (h *Hub) deliver(client *Client, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliverLocked(client, ev)
}

func (h *Hub) deliverLocked(client *Client, ev Event) {
	if _, ok := h.clients[client.PatientID][client]; !ok {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

// Pending returns how many relayed messages wait for the patient
func (h *Hub) Pending(patientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pending[patientID])
}

// Connected reports whether the patient has at least one open window
func (h *Hub) Connected(patientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[patientID]) > 0
}

// ClientCount returns the total number of open windows
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Toast shows an in-app toast
func (h *Hub) Toast(patientID, level, message string) {
	h.Send(patientID, Event{Type: EventToast, Data: Toast{Level: level, Message: message}})
}

// Celebrate tells the windows a dose was just taken
func (h *Hub) Celebrate(patientID string, occ schedule.Occurrence) {
	h.Send(patientID, Event{Type: EventCelebrate, Data: occ})
}

// Notify shows a plain local notification in an open window. It reports
// false when no window took it.
func (h *Hub) Notify(patientID, title, body, tag string) bool {
	return h.Send(patientID, Event{
		Type: EventNotification,
		Data: Notification{Title: title, Body: body, Tag: tag},
	}) > 0
}

// PublishSummary sends the next-dose banner
func (h *Hub) PublishSummary(patientID string, s schedule.Summary) {
	h.Send(patientID, Event{Type: EventSummary, Data: s})
}
