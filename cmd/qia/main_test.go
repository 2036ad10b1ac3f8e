package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
interpreter:
  backend: keyword
store:
  backend: memory
devices:
  backend: memory
  poll_interval: 5ms
  confirm_timeout: 1s
logging:
  level: error
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qia.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "qia dev")
}

func TestAskInProcess(t *testing.T) {
	path := writeConfig(t, testConfig)

	out, err := execute(t, "--config", path, "ask", "--user", "alice", "turn on the kitchen light")
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Equal(t, "success", env["status"])
	assert.Equal(t, "smart_home", env["task_type"])
	result := env["result"].(map[string]any)
	assert.Equal(t, "light", result["device_type"])
	assert.Equal(t, "turn_on", result["action"])
	assert.Equal(t, true, result["confirmed"])
}

func TestAskRequiresText(t *testing.T) {
	_, err := execute(t, "ask")
	assert.Error(t, err)
}

func TestBuildRejectsUnknownHandlerTimeout(t *testing.T) {
	path := writeConfig(t, testConfig+`
orchestrator:
  handler_timeouts:
    weather: 3s
`)
	_, err := execute(t, "--config", path, "ask", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler_timeouts")
}
