package wire

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dusk-indust/coordinate/internal/agent"
	"github.com/dusk-indust/coordinate/internal/coordinator"
	"github.com/dusk-indust/coordinate/internal/logging"
	"github.com/dusk-indust/coordinate/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sequentialTask = `{"id":"t1","type":"sequential","description":"two steps",
 "subtasks":[{"id":"s1","description":"one"},{"id":"s2","description":"two"}]}`

func startHost(t *testing.T) (*coordinator.Coordinator, string) {
	t.Helper()
	c := coordinator.New()
	c.RegisterAgent(agent.NewEchoAgent("a"))
	c.RegisterAgent(agent.NewEchoAgent("b"))

	h := NewHost(c, logging.NoOp{})
	ts := httptest.NewServer(h.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(h.Close) // runs first so open streams end before ts.Close
	return c, ts.URL
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHost_CreateRunAndStream(t *testing.T) {
	_, url := startHost(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/events", nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))
	events := ReadEvents(ctx, stream.Body)

	resp := do(t, http.MethodPost, url+"/sessions?run=true", sequentialTask)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	snap := decodeBody[session.Snapshot](t, resp)
	assert.Equal(t, []string{"a", "b"}, snap.Agents)

	var (
		statuses []session.Status
		final    coordinator.Event
	)
	timeout := time.After(5 * time.Second)
	for final.Result == nil {
		select {
		case se, ok := <-events:
			require.True(t, ok, "stream ended early")
			require.NoError(t, se.Err)
			require.Equal(t, snap.ID, se.SessionID)

			var ev coordinator.Event
			require.NoError(t, json.Unmarshal(se.Data, &ev))
			if ev.Type == coordinator.EventResultProduced {
				final = ev
				continue
			}
			statuses = append(statuses, ev.Status)
		case <-timeout:
			t.Fatal("no result.produced event")
		}
	}

	assert.Contains(t, statuses, session.StatusPlanning)
	assert.Contains(t, statuses, session.StatusCompleted)
	assert.True(t, final.Result.Success)
	assert.Len(t, final.Result.SubtaskResults, 2)
	assert.Equal(t, 1.0, final.Result.Metrics.Efficiency)

	resp = do(t, http.MethodGet, url+"/sessions/"+snap.ID+"/result", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeBody[session.Result](t, resp)
	assert.Equal(t, snap.ID, res.SessionID)

	resp = do(t, http.MethodDelete, url+"/sessions/"+snap.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodGet, url+"/sessions/"+snap.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHost_ListAndInspect(t *testing.T) {
	_, url := startHost(t)

	resp := do(t, http.MethodGet, url+"/agents", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	agents := decodeBody[[]coordinator.AgentInfo](t, resp)
	require.Len(t, agents, 2)
	assert.Equal(t, "a", agents[0].ID)

	resp = do(t, http.MethodPost, url+"/sessions", sequentialTask)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	snap := decodeBody[session.Snapshot](t, resp)
	assert.Equal(t, session.StatusInitialized, snap.Status)

	resp = do(t, http.MethodGet, url+"/sessions", "")
	list := decodeBody[[]session.Snapshot](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, snap.ID, list[0].ID)

	resp = do(t, http.MethodGet, url+"/sessions/"+snap.ID+"/result", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no drive yet")

	resp = do(t, http.MethodPost, url+"/sessions/"+snap.ID+"/resolve", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resolution := decodeBody[session.Resolution](t, resp)
	assert.Equal(t, session.ResolutionNegotiated, resolution.Kind)

	resp = do(t, http.MethodPost, url+"/sessions/"+snap.ID+"/optimize", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHost_Errors(t *testing.T) {
	c, url := startHost(t)

	resp := do(t, http.MethodGet, url+"/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPost, url+"/sessions/missing/run", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPost, url+"/sessions", "{not yaml: [")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, url+"/sessions", `{"type":"parallel","subtasks":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing task id")

	resp = do(t, http.MethodPost, url+"/sessions", sequentialTask)
	snap := decodeBody[session.Snapshot](t, resp)
	resp = do(t, http.MethodDelete, url+"/sessions/"+snap.ID, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "initialized sessions stay active")

	_, err := c.Session(snap.ID)
	assert.NoError(t, err)
}

func TestHost_RunInBackground(t *testing.T) {
	c, url := startHost(t)

	resp := do(t, http.MethodPost, url+"/sessions", sequentialTask)
	snap := decodeBody[session.Snapshot](t, resp)

	resp = do(t, http.MethodPost, url+"/sessions/"+snap.ID+"/run", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		res, err := c.Result(snap.ID)
		return err == nil && res != nil
	}, 5*time.Second, 5*time.Millisecond)

	got, err := c.Session(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.Status)
}
