package phrase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContains(t *testing.T) {
	text := New("Please turn on the living-room Light!")

	assert.True(t, text.Contains("turn on"))
	assert.True(t, text.Contains("light"))
	assert.True(t, text.Contains("living room"))
	assert.False(t, text.Contains("turn off"))
	assert.False(t, text.Contains("on the light"))
	assert.False(t, text.Contains(""))
}

func TestContainsWordBoundaries(t *testing.T) {
	assert.False(t, New("unlock the door").Contains("lock"))
	assert.True(t, New("unlock the door").Contains("unlock"))
	assert.False(t, New("activate the camera").Contains("ac"))
	assert.False(t, New("what is the weather").Contains("at"))
	assert.True(t, New("meet at noon").Contains("at"))
}

func TestContainsAny(t *testing.T) {
	text := New("set temperature to 70 degrees")
	assert.True(t, text.ContainsAny([]string{"thermostat", "temperature"}))
	assert.False(t, text.ContainsAny(nil))
}

func TestContainsInflections(t *testing.T) {
	assert.True(t, New("turn on the lights").Contains("light"))
	assert.True(t, New("unlock the doors").Contains("door"))
	assert.True(t, New("switches in the hall").Contains("switch"))
	assert.True(t, New("schedule today's standup").Contains("today"))
	assert.True(t, New("turn on the light's dimmer").Contains("light"))
	assert.False(t, New("turns on").Contains("turn on"), "only the last token inflects")
	assert.False(t, New("unlocks the door").Contains("lock"))
	assert.False(t, New("lightest shade").Contains("light"))
	assert.False(t, New("the blue ones").Contains("on"))
}
