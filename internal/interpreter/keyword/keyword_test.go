package keyword

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/qia/internal/interpreter"
	"github.com/nadzzz/qia/internal/task"
)

func TestClassify(t *testing.T) {
	i := New(nil)
	cases := map[string]string{
		"turn on the kitchen light":        "smart_home",
		"unlock the front door":            "smart_home",
		"remind me to call mom tomorrow":   "schedule",
		"help me refactor this function":   "code_assist",
		"search for the best pizza nearby": "web_search",
		"what is the capital of France":    "web_search",
		"tell me a joke":                   "general",
	}
	for text, want := range cases {
		got, err := i.Classify(context.Background(), text, task.EmptyContext("u"))
		require.NoError(t, err)
		assert.Equal(t, want, got, "text %q", text)
	}
}

func TestCustomRules(t *testing.T) {
	i := New([]Rule{{Label: "weather", Keywords: []string{"rain"}}})
	got, err := i.Classify(context.Background(), "will it rain", task.EmptyContext("u"))
	require.NoError(t, err)
	assert.Equal(t, "weather", got)
}

func TestTranscribeUnsupported(t *testing.T) {
	_, err := New(nil).Transcribe(context.Background(), []byte("x"), "audio/wav", interpreter.TranscribeOpts{})
	assert.ErrorIs(t, err, interpreter.ErrTranscriptionUnsupported)
}

func TestClassifyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Classify(ctx, "hello", task.EmptyContext("u"))
	assert.ErrorIs(t, err, context.Canceled)
}
