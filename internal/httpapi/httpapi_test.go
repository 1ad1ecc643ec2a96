package httpapi_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homedash/dashd/internal/automation"
	"github.com/homedash/dashd/internal/httpapi"
	"github.com/homedash/dashd/internal/jobengine"
)

type envelope struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type statusResponse struct {
	Success    bool              `json:"success"`
	Automation string            `json:"automation"`
	State      jobengine.JobView `json:"state"`
}

func testCatalogue() []automation.Automation {
	return []automation.Automation{
		{
			Name:        "greet",
			DisplayName: "GREET",
			Command:     "echo",
			ButtonText:  "RUN",
			AcceptsArgs: true,
		},
		{
			Name:        "napper",
			DisplayName: "NAPPER",
			Command:     "sleep",
			ButtonText:  "NAP",
			AcceptsArgs: true,
		},
	}
}

func newTestServer(t *testing.T, authToken string) *httptest.Server {
	t.Helper()

	registry := jobengine.NewRegistry(testCatalogue(), nil, time.Second)
	t.Cleanup(registry.Shutdown)

	ts := httptest.NewServer(
		httpapi.NewServer(registry, nil, authToken).Handler(),
	)
	t.Cleanup(ts.Close)

	return ts
}

func postJSON(
	t *testing.T,
	url string,
	body string,
	out any,
) *http.Response {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)

	defer resp.Body.Close()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))

	return resp
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)

	defer resp.Body.Close()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))

	return resp
}

// waitDone polls the status endpoint until the automation is terminal.
func waitDone(t *testing.T, ts *httptest.Server, name string) jobengine.JobView {
	t.Helper()

	deadline := time.After(5 * time.Second)

	for {
		var status statusResponse
		getJSON(t, ts.URL+"/api/automation/"+name+"/status", &status)

		if !status.State.Running && status.State.ReturnCode != nil {
			return status.State
		}

		select {
		case <-deadline:
			t.Fatalf("timed out waiting for '%s' to finish", name)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestListAutomations(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	var resp struct {
		Automations []automation.Automation `json:"automations"`
	}

	r := getJSON(t, ts.URL+"/api/automations", &resp)

	assert.Equal(t, http.StatusOK, r.StatusCode)
	require.Len(t, resp.Automations, 2)
	assert.Equal(t, "greet", resp.Automations[0].Name)
}

func TestStartStatusLifecycle(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	var start envelope
	r := postJSON(
		t,
		ts.URL+"/api/automation/greet",
		`{"args": "hello world"}`,
		&start,
	)

	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.True(t, start.Success)
	assert.NotEmpty(t, start.JobID)
	assert.Equal(t, "greet started", start.Message)

	view := waitDone(t, ts, "greet")

	assert.Equal(t, 0, *view.ReturnCode)
	assert.Equal(t, start.JobID, view.JobID)
	assert.Contains(t, view.Output, "hello world")
	assert.NotNil(t, view.CompletedAt)
	assert.False(t, view.Incremental)
}

func TestStartUnknownAutomation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	var resp envelope
	r := postJSON(t, ts.URL+"/api/automation/nope", "", &resp)

	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
	assert.False(t, resp.Success)
	assert.Equal(t, "unknown automation", resp.Error)
}

func TestStartConflict(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	var first envelope
	postJSON(t, ts.URL+"/api/automation/napper", `{"args": "30"}`, &first)
	require.True(t, first.Success)

	var second envelope
	r := postJSON(t, ts.URL+"/api/automation/napper", `{"args": "5"}`, &second)

	assert.Equal(t, http.StatusConflict, r.StatusCode)
	assert.False(t, second.Success)
	assert.Equal(t, "already running", second.Error)

	var cancel envelope
	r = postJSON(t, ts.URL+"/api/automation/napper/cancel", "", &cancel)

	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.True(t, cancel.Success)

	view := waitDone(t, ts, "napper")

	assert.Equal(t, jobengine.CancelReturnCode, *view.ReturnCode)
}

func TestCancelNotRunning(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	var resp envelope
	r := postJSON(t, ts.URL+"/api/automation/greet/cancel", "", &resp)

	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.False(t, resp.Success)
	assert.Equal(t, "not running", resp.Error)
}

func TestStatusUnknownAutomation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	var resp envelope
	r := getJSON(t, ts.URL+"/api/automation/nope/status", &resp)

	assert.Equal(t, http.StatusNotFound, r.StatusCode)
	assert.Equal(t, "unknown automation", resp.Error)
}

func TestAllStatusIncludesIdleAutomations(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	var resp struct {
		Success     bool                         `json:"success"`
		Automations map[string]jobengine.JobView `json:"automations"`
	}

	getJSON(t, ts.URL+"/api/automations/status", &resp)

	require.Len(t, resp.Automations, 2)

	idle := resp.Automations["greet"]
	assert.False(t, idle.Running)
	assert.Nil(t, idle.ReturnCode)
	assert.Empty(t, idle.Output)
}

func TestAuthTokenGuardsMutations(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "sekrit")

	// Reads stay open.
	var list struct {
		Automations []automation.Automation `json:"automations"`
	}
	r := getJSON(t, ts.URL+"/api/automations", &list)
	assert.Equal(t, http.StatusOK, r.StatusCode)

	// Writes without a token are rejected.
	var denied envelope
	r = postJSON(t, ts.URL+"/api/automation/greet", "", &denied)
	assert.Equal(t, http.StatusUnauthorized, r.StatusCode)
	assert.Equal(t, "unauthorized", denied.Error)

	// Writes with the token succeed.
	req, err := http.NewRequest(
		http.MethodPost,
		ts.URL+"/api/automation/greet",
		strings.NewReader(`{"args": "authed"}`),
	)
	require.NoError(t, err)

	req.Header.Set("Authorization", "Bearer sekrit")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	var started envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, started.Success)

	waitDone(t, ts, "greet")
}

func TestEventsStreamSnapshotThenDeltas(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		ts.URL+"/api/events",
		nil,
	)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(
		t,
		"text/event-stream",
		resp.Header.Get("Content-Type"),
	)

	scanner := bufio.NewScanner(resp.Body)

	readUpdate := func() jobengine.Update {
		t.Helper()

		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}

			var u jobengine.Update
			require.NoError(t, json.Unmarshal([]byte(data), &u))

			return u
		}

		t.Fatalf("stream ended early: %v", scanner.Err())

		return jobengine.Update{}
	}

	// Initial connect delivers one full snapshot per automation.
	seen := map[string]bool{}
	for range 2 {
		u := readUpdate()
		assert.False(t, u.State.Incremental)
		seen[u.Automation] = true
	}

	assert.True(t, seen["greet"])
	assert.True(t, seen["napper"])

	// Starting a job pushes a full running update, then increments, then
	// exactly one terminal notification.
	var start envelope
	postJSON(t, ts.URL+"/api/automation/greet", `{"args": "delta"}`, &start)
	require.True(t, start.Success)

	u := readUpdate()
	assert.Equal(t, "greet", u.Automation)
	assert.True(t, u.State.Running)
	assert.False(t, u.State.Incremental)
	assert.Equal(t, "Starting...\n", u.State.Output)

	var sawIncrement bool

	for {
		u = readUpdate()
		require.Equal(t, "greet", u.Automation)

		if u.State.ReturnCode != nil {
			break
		}

		if u.State.Incremental {
			sawIncrement = true
			assert.Contains(t, u.State.Output, "delta")
		}
	}

	assert.True(t, sawIncrement)
	assert.False(t, u.State.Incremental)
	assert.Equal(t, 0, *u.State.ReturnCode)
	assert.False(t, u.State.Running)
	assert.NotNil(t, u.State.CompletedAt)
}
