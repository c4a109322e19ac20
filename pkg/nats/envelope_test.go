package nats

import (
	"encoding/json"
	"testing"
	"time"

	"daw-agent-be/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	data, err := json.Marshal(Envelope{
		Type:       events.ActionExecuted,
		Data:       map[string]interface{}{"action": "addTrack"},
		OccurredAt: at,
	})
	require.NoError(t, err)

	e, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, events.ActionExecuted, e.EventType())
	assert.Equal(t, "addTrack", e.Payload()["action"])
	assert.True(t, at.Equal(e.Timestamp()))
	assert.Equal(t, "agent.actionExecuted", Subject(e.EventType()))
}

func TestDecodeRejectsUntyped(t *testing.T) {
	_, err := Decode([]byte(`{"data":{}}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)

	e, err := Decode([]byte(`{"type":"allChangesApproved"}`))
	require.NoError(t, err)
	assert.NotNil(t, e.Payload())
}
