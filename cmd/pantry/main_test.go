package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/pantrykit/api"
	"github.com/randalmurphal/pantrykit/internal/pantrytest"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_RegisterListPrompt(t *testing.T) {
	srv := pantrytest.New(t)
	socket := srv.StartUnix()
	srv.AddLLM(api.LLMStatus{ID: "llama-7b", FamilyID: "llama", Running: true})

	creds := filepath.Join(t.TempDir(), "creds.json")
	global := []string{"--socket", socket, "--base-url", "off", "--credentials", creds}

	out, err := run(t, append(global, "register", "cli-test", "--perm", "session,perm_view_llms")...)
	require.NoError(t, err)

	var status api.UserRequestStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.Equal(t, api.RequestTypePermission, status.Request.Type)
	assert.Equal(t, api.UserPermissions{Session: true, ViewLLMs: true}, status.Request.Permission.RequestedPermissions)
	_, err = os.Stat(creds)
	require.NoError(t, err)

	out, err = run(t, append(global, "llms", "--running")...)
	require.NoError(t, err)
	assert.Contains(t, out, "llama-7b")
	assert.Contains(t, out, "RUNNING")

	out, err = run(t, append(global, "prompt", "who are you", "-p", "temperature=0.5")...)
	require.NoError(t, err)
	assert.Equal(t, "I am a llama\n", out)

	calls := srv.CallsTo("/prompt_session_stream")
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{"temperature": 0.5}, calls[0].Body["parameters"])
}

func TestCLI_MissingCredentials(t *testing.T) {
	_, err := run(t, "--socket", "/tmp/unused.sock", "--credentials", filepath.Join(t.TempDir(), "none.json"), "llms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pantry register")
}

func TestCLI_BothChannelsOff(t *testing.T) {
	_, err := run(t, "--socket", "off", "--base-url", "off", "schema")
	assert.Error(t, err)
}

func TestCLI_Schema(t *testing.T) {
	out, err := run(t, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "llm_event\n")

	out, err = run(t, "schema", "llm_event")
	require.NoError(t, err)
	assert.Contains(t, out, "stream_id")

	_, err = run(t, "schema", "nope")
	assert.Error(t, err)
}

func TestCLI_Wait(t *testing.T) {
	srv := pantrytest.New(t)
	socket := srv.StartUnix()

	_, err := run(t, "--socket", socket, "wait", "--timeout", "2s")
	assert.NoError(t, err)

	missing := filepath.Join(t.TempDir(), "absent.sock")
	start := time.Now()
	_, err = run(t, "--socket", missing, "wait", "--timeout", "50ms")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestParsePermissions(t *testing.T) {
	perms, err := parsePermissions([]string{"load_llm", "perm_bare_model"})
	require.NoError(t, err)
	assert.Equal(t, api.UserPermissions{LoadLLM: true, BareModel: true}, perms)

	_, err = parsePermissions([]string{"root"})
	assert.Error(t, err)
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"temperature=0.7", "stop=[\"\\n\"]", "mode=fast", "greedy=true"})
	require.NoError(t, err)

	f, ok := params.Get("temperature").AsFloat()
	assert.True(t, ok)
	assert.InDelta(t, 0.7, f, 1e-9)

	stop, ok := params.Get("stop").AsArray()
	require.True(t, ok)
	require.Len(t, stop, 1)

	mode, ok := params.Get("mode").AsString()
	assert.True(t, ok)
	assert.Equal(t, "fast", mode)

	greedy, ok := params.Get("greedy").AsBool()
	assert.True(t, ok)
	assert.True(t, greedy)

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)
}
