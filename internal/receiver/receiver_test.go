package receiver

import (
	"encoding/json"
	"testing"

	"github.com/gmsas95/dosekeeper/internal/errors"
	"github.com/gmsas95/dosekeeper/internal/push"
	"github.com/gmsas95/dosekeeper/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"title":"Time to take Metformin","body":"500mg","tag":"s1","url":"/schedule?occurrence=s1"}`, false},
		{"title only", `{"title":"Hello"}`, false},
		{"not json", `Time to take Metformin`, true},
		{"missing title", `{"body":"500mg","tag":"s1"}`, true},
		{"blank title", `{"title":"  "}`, true},
		{"empty", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Decode([]byte(tt.raw))
			if tt.wantErr {
				assert.Equal(t, "PAYLOAD_001", errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, p.Title)
		})
	}
}

func TestRender(t *testing.T) {
	d := Render(push.Payload{Title: "Time to take Metformin", Body: "500mg", Tag: "s1", URL: "/schedule?occurrence=s1"})

	assert.Equal(t, Icon, d.Icon)
	assert.Equal(t, Badge, d.Badge)
	assert.Equal(t, "s1", d.Tag)
	assert.True(t, d.RequireInteraction)
	assert.Equal(t, []Action{
		{Action: ActionTake, Title: "Mark as taken"},
		{Action: ActionSnooze, Title: "Snooze 10 min"},
	}, d.Actions)

	untagged := Render(push.Payload{Title: "Welcome"})
	assert.Equal(t, []Action{{Action: ActionView, Title: "View details"}}, untagged.Actions)
}

func TestHandlePush_SkipsMalformed(t *testing.T) {
	r := New(realtime.NewHub(zap.NewNop()), zap.NewNop())

	_, ok := r.HandlePush([]byte(`{"body":"no title"}`))
	assert.False(t, ok)

	d, ok := r.HandlePush([]byte(`{"title":"Reminder: Aspirin","tag":"s2"}`))
	assert.True(t, ok)
	assert.Equal(t, "Reminder: Aspirin", d.Title)
}

func TestHandleClick(t *testing.T) {
	payload := push.Payload{Title: "Time to take Metformin", Tag: "s1", URL: "http://app/schedule?occurrence=s1"}

	t.Run("take relays to an open window", func(t *testing.T) {
		hub := realtime.NewHub(zap.NewNop())
		client := realtime.NewClient("p1")
		hub.Register(client)

		res := New(hub, zap.NewNop()).HandleClick("p1", ActionTake, payload)
		require.NotNil(t, res.Message)
		assert.True(t, res.Relayed)
		assert.Equal(t, payload.URL, res.OpenURL)

		var ev struct {
			Type string  `json:"type"`
			Data Message `json:"data"`
		}
		require.NoError(t, json.Unmarshal(<-client.Send, &ev))
		assert.Equal(t, realtime.EventMessage, ev.Type)
		assert.Equal(t, MessageMarkTaken, ev.Data.Type)
		assert.Equal(t, "s1", ev.Data.Data.OccurrenceID)
		assert.Equal(t, "Metformin", ev.Data.Data.MedicineName)
	})

	t.Run("snooze queues without a window", func(t *testing.T) {
		hub := realtime.NewHub(zap.NewNop())

		res := New(hub, zap.NewNop()).HandleClick("p1", ActionSnooze, payload)
		require.NotNil(t, res.Message)
		assert.Equal(t, MessageSnooze, res.Message.Type)
		assert.False(t, res.Relayed)
		assert.Equal(t, 1, hub.Pending("p1"))
	})

	t.Run("body click only opens the app", func(t *testing.T) {
		hub := realtime.NewHub(zap.NewNop())

		res := New(hub, zap.NewNop()).HandleClick("p1", "", push.Payload{Title: "Time to take Metformin"})
		assert.Nil(t, res.Message)
		assert.Equal(t, "/", res.OpenURL)
		assert.Zero(t, hub.Pending("p1"))
	})
}

func TestMedicineName(t *testing.T) {
	assert.Equal(t, "Metformin", MedicineName("Time to take Metformin"))
	assert.Equal(t, "Aspirin", MedicineName("Reminder: Aspirin"))
	assert.Equal(t, "Custom", MedicineName("Custom"))
}
