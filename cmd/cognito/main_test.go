package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/koscakluka/cognito-session/core/replay"
	"github.com/koscakluka/cognito-session/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", filepath.Join(t.TempDir(), "home"))
	t.Setenv(config.EnvBaseURL, "")
	t.Setenv(config.EnvMode, "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newReplay(t *testing.T, script replay.Script) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(replay.New(replay.WithScript(script), replay.WithChunkSize(9)).Handler())
	t.Cleanup(server.Close)
	return server
}

func TestAskApprovesWithFlag(t *testing.T) {
	server := newReplay(t, replay.DefaultScript())

	out, err := execute(t, "", "ask", "--base-url", server.URL, "--yes", "ocean", "tides")
	require.NoError(t, err)
	assert.Contains(t, out, "Research plan:")
	assert.Contains(t, out, "Break down the question: ocean tides")
	assert.Contains(t, out, "[completed] Completed")
	assert.Contains(t, out, "Findings for **ocean tides**")
}

func TestAskPromptsForApproval(t *testing.T) {
	server := newReplay(t, replay.DefaultScript())

	out, err := execute(t, "n\n", "ask", "--base-url", server.URL, "tides")
	require.NoError(t, err)
	assert.Contains(t, out, "Approve plan? [y/N]")
	assert.Contains(t, out, "Plan rejected.")
	assert.NotContains(t, out, "Findings")
}

func TestAskWithoutAnswerFails(t *testing.T) {
	server := newReplay(t, replay.DefaultScript())

	_, err := execute(t, "", "ask", "--base-url", server.URL, "tides")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes or --reject")
}

func TestAskAutonomousOverWebsocket(t *testing.T) {
	script := replay.DefaultScript()
	script.Gated = false
	script.Tokens = true
	server := newReplay(t, script)

	out, err := execute(t, "",
		"ask", "--base-url", server.URL, "--transport", "websocket",
		"--mode", "autonomous", "--report-mode", "append", "tides",
	)
	require.NoError(t, err)
	assert.NotContains(t, out, "Approve plan?")
	assert.Contains(t, out, "Findings for **tides**")
}

func TestAskReportsConnectionFailure(t *testing.T) {
	server := httptest.NewServer(nil)
	url := server.URL
	server.Close()

	_, err := execute(t, "", "ask", "--base-url", url, "--yes", "tides")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "research stopped while planning")
}

func TestAskFailsWhenGateHasNoThreadID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"node_update\",\"node\":\"architect\",\"data\":{\"plan\":[\"Only step\"]}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	out, err := execute(t, "", "ask", "--base-url", server.URL, "--yes", "tides")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no thread id")
	assert.NotContains(t, out, "Findings")
}

func TestAskRejectsConflictingFlags(t *testing.T) {
	_, err := execute(t, "", "ask", "--yes", "--reject", "tides")
	assert.Error(t, err)
}

func TestInvalidModeFlag(t *testing.T) {
	_, err := execute(t, "", "ask", "--mode", "sometimes", "--yes", "tides")
	assert.Error(t, err)
}

func TestSchemaPrintsJSON(t *testing.T) {
	out, err := execute(t, "", "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Contains(t, out, "node_update")
}
