// Package receiver implements the device side of a dose push: decoding the
// payload, describing the OS notification and turning notification clicks
// into messages for the app.
package receiver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gmsas95/dosekeeper/internal/errors"
	"github.com/gmsas95/dosekeeper/internal/push"
	"go.uber.org/zap"
)

// Notification assets
const (
	Icon  = "/icons/icon-192.png"
	Badge = "/icons/badge-72.png"
)

// Notification action ids
const (
	ActionTake   = "take"
	ActionSnooze = "snooze"
	ActionView   = "view"
)

// App message types posted to open windows
const (
	MessageMarkTaken = "MARK_MEDICINE_TAKEN"
	MessageSnooze    = "SNOOZE_MEDICINE"
)

// Action is one notification button
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Display describes the OS notification for a push
type Display struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Icon               string   `json:"icon"`
	Badge              string   `json:"badge"`
	Tag                string   `json:"tag,omitempty"`
	RequireInteraction bool     `json:"requireInteraction"`
	Actions            []Action `json:"actions"`
	URL                string   `json:"url,omitempty"`
}

// MessageData is the body of an app message
type MessageData struct {
	OccurrenceID string `json:"occurrenceId"`
	MedicineName string `json:"medicineName"`
}

// Message is posted from the receiver to the app windows
type Message struct {
	Type string      `json:"type"`
	Data MessageData `json:"data"`
}

// ClickResult reports what a notification click did
type ClickResult struct {
	Message *Message `json:"message,omitempty"`
	Relayed bool     `json:"relayed"`
	OpenURL string   `json:"open_url"`
}

// Relayer forwards a message to the patient's open windows or queues it
type Relayer interface {
	Relay(patientID string, data interface{}) bool
}

// Decode parses a push payload. A payload that is not JSON or has no title is
// rejected with PAYLOAD_001.
func Decode(raw []byte) (push.Payload, error) {
	var p push.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return push.Payload{}, errors.ErrMalformedPayload.WithCause(err)
	}
	if strings.TrimSpace(p.Title) == "" {
		return push.Payload{}, errors.ErrMalformedPayload.WithCause(fmt.Errorf("missing title"))
	}
	return p, nil
}

// Render builds the notification display for a payload
func Render(p push.Payload) Display {
	d := Display{
		Title:              p.Title,
		Body:               p.Body,
		Icon:               Icon,
		Badge:              Badge,
		Tag:                p.Tag,
		RequireInteraction: true,
		URL:                p.URL,
	}
	if p.Tag != "" {
		d.Actions = []Action{
			{Action: ActionTake, Title: "Mark as taken"},
			{Action: ActionSnooze, Title: "Snooze 10 min"},
		}
	} else {
		d.Actions = []Action{
			{Action: ActionView, Title: "View details"},
		}
	}
	return d
}

// Receiver handles pushes and notification clicks for app windows
type Receiver struct {
	relay  Relayer
	logger *zap.Logger
}

// New creates a receiver
func New(relay Relayer, logger *zap.Logger) *Receiver {
	return &Receiver{relay: relay, logger: logger}
}

// HandlePush decodes and renders one push. Malformed payloads are skipped.
func (r *Receiver) HandlePush(raw []byte) (Display, bool) {
	p, err := Decode(raw)
	if err != nil {
		r.logger.Warn("Skipping malformed push payload", zap.Error(err))
		return Display{}, false
	}
	return Render(p), true
}

// HandleClick maps a notification click to an app message and relays it.
// Clicks other than take and snooze only open the app.
func (r *Receiver) HandleClick(patientID, action string, p push.Payload) ClickResult {
	res := ClickResult{OpenURL: p.URL}
	if res.OpenURL == "" {
		res.OpenURL = "/"
	}

	var msgType string
	switch action {
	case ActionTake:
		msgType = MessageMarkTaken
	case ActionSnooze:
		msgType = MessageSnooze
	default:
		return res
	}

	if p.Tag == "" {
		return res
	}

	res.Message = &Message{
		Type: msgType,
		Data: MessageData{
			OccurrenceID: p.Tag,
			MedicineName: MedicineName(p.Title),
		},
	}
	res.Relayed = r.relay.Relay(patientID, res.Message)

	r.logger.Info("Notification action relayed",
		zap.String("patient_id", patientID),
		zap.String("action", action),
		zap.String("occurrence_id", p.Tag),
		zap.Bool("window_open", res.Relayed),
	)
	return res
}

// MedicineName recovers the medicine from an alert title
func MedicineName(title string) string {
	for _, prefix := range []string{"Time to take ", "Reminder: "} {
		if strings.HasPrefix(title, prefix) {
			return strings.TrimPrefix(title, prefix)
		}
	}
	return title
}
