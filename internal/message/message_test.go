package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/qia/internal/task"
)

type ackPayload struct {
	Message string `json:"message"`
}

func (p ackPayload) Summary() string { return p.Message }

func TestNewEnvelopeSuccess(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	env := NewEnvelope(task.Succeeded(task.IntentGeneral, ackPayload{Message: "General task handled"}, at))

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"status": "success",
		"task_type": "general",
		"result": {"message": "General task handled"},
		"error": null,
		"timestamp": "2026-03-01T11:00:00Z"
	}`, string(data))
}

func TestNewEnvelopeError(t *testing.T) {
	env := NewEnvelope(task.Failed("", task.ErrClassification, "", time.Unix(0, 0)))

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"status": "error",
		"task_type": "",
		"result": null,
		"error": "could not identify task",
		"timestamp": "1970-01-01T00:00:00Z"
	}`, string(data))
}

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"text":"turn on the light","room":"kitchen","n":3}`))
	require.NoError(t, err)
	assert.Equal(t, "turn on the light", f.Text)
	assert.Equal(t, map[string]string{"room": "kitchen"}, f.Aux)
}

func TestParseFrameRejects(t *testing.T) {
	cases := map[string]error{
		`{not json`:       ErrInvalidJSON,
		`["text"]`:        ErrInvalidJSON,
		`"hello"`:         ErrInvalidJSON,
		``:                ErrInvalidJSON,
		`{}`:              ErrMissingText,
		`{"text":42}`:     ErrMissingText,
		`{"text":"   "}`:  ErrMissingText,
		`{"command":"x"}`: ErrMissingText,
	}
	for in, want := range cases {
		_, err := ParseFrame([]byte(in))
		assert.True(t, errors.Is(err, want), "input %q: got %v", in, err)
	}
}

func TestErrorFrame(t *testing.T) {
	data, err := Encode(NewErrorFrame(ErrInvalidJSON))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"Invalid JSON format"}`, string(data))
}

func TestClientMessage(t *testing.T) {
	assert.Equal(t, "invalid JSON format", ErrInvalidJSON.Error())
	assert.Equal(t, "missing text field", ErrMissingText.Error())

	assert.Equal(t, InvalidJSONMessage, ClientMessage(ErrInvalidJSON))
	assert.Equal(t, MissingTextMessage, ClientMessage(fmt.Errorf("frame 3: %w", ErrMissingText)))
	assert.Equal(t, "boom", ClientMessage(errors.New("boom")))
}

func TestVoiceResponseAudio(t *testing.T) {
	var r VoiceResponse
	r.SetAudio(nil, "audio/wav")
	assert.Nil(t, r.AudioResponse)
	assert.Empty(t, r.AudioContentType)

	r.SetAudio([]byte("RIFF"), "audio/wav")
	require.NotNil(t, r.AudioResponse)
	assert.Equal(t, "UklGRg==", *r.AudioResponse)
	assert.Equal(t, "audio/wav", r.AudioContentType)
}
