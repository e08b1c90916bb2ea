package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/manager"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/runtime"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type apiFixture struct {
	server  *Server
	mgr     *manager.Manager
	runtime *runtime.SimulatedRuntime
}

func newAPIFixture(t *testing.T, journal EventSource) *apiFixture {
	t.Helper()
	f := &apiFixture{runtime: runtime.NewSimulatedRuntime()}
	f.mgr = manager.NewManager(&manager.Config{
		Runtime:          f.runtime,
		Clock:            testingclock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		StrictInvariants: true,
	})
	t.Cleanup(f.mgr.Stop)
	f.server = NewServer(f.mgr, journal)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func (f *apiFixture) addNode(t *testing.T, cores string) types.Node {
	t.Helper()
	w := f.do(t, http.MethodPost, "/nodes", `{"cpuCores":`+cores+`}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var node types.Node
	require.NoError(t, json.NewDecoder(w.Body).Decode(&node))
	return node
}

func (f *apiFixture) createPod(t *testing.T, cores string) CreatePodResponse {
	t.Helper()
	w := f.do(t, http.MethodPost, "/pods", `{"cpuCores":`+cores+`}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp CreatePodResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestCreateNode(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.do(t, http.MethodPost, "/nodes", `{"cpuCores":4}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	for _, key := range []string{"id", "totalCpuCores", "availableCpuCores", "pods", "status", "containerId"} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, 4.0, raw["totalCpuCores"])
	assert.Equal(t, 4.0, raw["availableCpuCores"])
	assert.Equal(t, "healthy", raw["status"])
	assert.Equal(t, []interface{}{}, raw["pods"])
	assert.NotEmpty(t, raw["containerId"])
}

func TestCreateNodeValidation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{name: "empty body", body: "", wantError: "Missing required field: cpuCores"},
		{name: "missing field", body: `{}`, wantError: "Missing required field: cpuCores"},
		{name: "null", body: `{"cpuCores":null}`, wantError: "Missing required field: cpuCores"},
		{name: "string", body: `{"cpuCores":"4"}`, wantError: "Invalid cpuCores value"},
		{name: "zero", body: `{"cpuCores":0}`, wantError: "Invalid cpuCores value"},
		{name: "negative", body: `{"cpuCores":-2}`, wantError: "Invalid cpuCores value"},
		{name: "boolean", body: `{"cpuCores":true}`, wantError: "Invalid cpuCores value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, nil)

			w := f.do(t, http.MethodPost, "/nodes", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			resp := decodeError(t, w)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.NotEmpty(t, resp.Suggestion)
			assert.Empty(t, f.mgr.ListNodes())
			assert.Zero(t, f.runtime.Count())
		})
	}
}

func TestCreateNodeMalformedBody(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.do(t, http.MethodPost, "/nodes", `{"cpuCores":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Error, "Invalid request body")
}

func TestCreateNodeProvisionFailure(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.runtime.FailProvision(errors.New("daemon down"))

	w := f.do(t, http.MethodPost, "/nodes", `{"cpuCores":4}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decodeError(t, w).Error, "daemon down")
	assert.Empty(t, f.mgr.ListNodes())
}

func TestListNodes(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.do(t, http.MethodGet, "/nodes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	a := f.addNode(t, "4")
	b := f.addNode(t, "2")

	w = f.do(t, http.MethodGet, "/nodes", "")
	require.Equal(t, http.StatusOK, w.Code)
	var nodes []types.Node
	require.NoError(t, json.NewDecoder(w.Body).Decode(&nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, a.ID, nodes[0].ID)
	assert.Equal(t, b.ID, nodes[1].ID)
}

func TestNodeJSONFields(t *testing.T) {
	f := newAPIFixture(t, nil)
	want := []string{"availableCpuCores", "containerId", "id", "pods", "status", "totalCpuCores"}

	keys := func(obj map[string]json.RawMessage) []string {
		out := make([]string, 0, len(obj))
		for k := range obj {
			out = append(out, k)
		}
		return out
	}

	w := f.do(t, http.MethodPost, "/nodes", `{"cpuCores":2}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.ElementsMatch(t, want, keys(created))

	w = f.do(t, http.MethodGet, "/nodes", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed []map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.ElementsMatch(t, want, keys(listed[0]))
}

func TestGetNode(t *testing.T) {
	f := newAPIFixture(t, nil)
	node := f.addNode(t, "4")
	pod := f.createPod(t, "1.5")

	w := f.do(t, http.MethodGet, "/nodes/"+node.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	var detail types.NodeDetail
	require.NoError(t, json.NewDecoder(w.Body).Decode(&detail))
	assert.Equal(t, node.ID, detail.ID)
	assert.Equal(t, types.NodeStatusHealthy, detail.Status)
	assert.InDelta(t, 4.0, detail.CPU.Total, 1e-9)
	assert.InDelta(t, 2.5, detail.CPU.Available, 1e-9)
	assert.InDelta(t, 1.5, detail.CPU.Used, 1e-9)
	assert.Equal(t, []string{pod.Pod.ID}, detail.Pods)
	assert.NotNil(t, detail.LastHeartbeat)

	w = f.do(t, http.MethodGet, "/nodes/missing", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Node not found", decodeError(t, w).Error)
}

func TestCreatePod(t *testing.T) {
	f := newAPIFixture(t, nil)

	t.Run("pending without nodes", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/pods", `{"cpuCores":1}`)
		require.Equal(t, http.StatusCreated, w.Code)

		var raw map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
		assert.Contains(t, raw, "nodeId")
		assert.Nil(t, raw["nodeId"])

		pod := raw["pod"].(map[string]interface{})
		assert.Equal(t, "pending", pod["status"])
		assert.Nil(t, pod["nodeId"])
		assert.Equal(t, 1.0, pod["requiredCpuCores"])
	})

	t.Run("placed on first fit", func(t *testing.T) {
		node := f.addNode(t, "4")

		resp := f.createPod(t, "2")
		require.NotNil(t, resp.NodeID)
		assert.Equal(t, node.ID, *resp.NodeID)
		assert.Equal(t, types.PodStatusRunning, resp.Pod.Status)
		assert.Equal(t, node.ID, resp.Pod.HostID())
	})

	t.Run("no capacity is not an error", func(t *testing.T) {
		resp := f.createPod(t, "16")
		assert.Nil(t, resp.NodeID)
		assert.Equal(t, types.PodStatusPending, resp.Pod.Status)
	})
}

func TestCreatePodValidation(t *testing.T) {
	f := newAPIFixture(t, nil)

	for _, body := range []string{"", `{}`, `{"cpuCores":0}`, `{"cpuCores":-1}`, `{"cpuCores":"x"}`} {
		w := f.do(t, http.MethodPost, "/pods", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, f.mgr.ListPods())
}

func TestListPods(t *testing.T) {
	f := newAPIFixture(t, nil)
	node := f.addNode(t, "2")
	placed := f.createPod(t, "2")
	pending := f.createPod(t, "1")

	w := f.do(t, http.MethodGet, "/pods", "")
	require.Equal(t, http.StatusOK, w.Code)

	var pods []map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&pods))
	require.Len(t, pods, 2)

	assert.Equal(t, placed.Pod.ID, pods[0]["id"])
	assert.Equal(t, node.ID, pods[0]["nodeId"])
	assert.Equal(t, "healthy", pods[0]["nodeStatus"])
	assert.Equal(t, "running", pods[0]["status"])

	assert.Equal(t, pending.Pod.ID, pods[1]["id"])
	assert.Nil(t, pods[1]["nodeId"])
	assert.Nil(t, pods[1]["nodeStatus"])
	assert.Equal(t, "pending", pods[1]["status"])
}

func TestHeartbeat(t *testing.T) {
	f := newAPIFixture(t, nil)
	node := f.addNode(t, "1")

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "missing nodeId", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "empty body", body: "", wantStatus: http.StatusBadRequest},
		{name: "unknown node", body: `{"nodeId":"nope"}`, wantStatus: http.StatusNotFound},
		{name: "known node", body: `{"nodeId":"` + node.ID + `"}`, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/heartbeat", tt.body)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.JSONEq(t, `{"status":"success"}`, w.Body.String())
				return
			}
			resp := decodeError(t, w)
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.Suggestion)
		})
	}
}

func TestDeleteNode(t *testing.T) {
	f := newAPIFixture(t, nil)

	t.Run("absent node", func(t *testing.T) {
		w := f.do(t, http.MethodDelete, "/nodes/ghost", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp MessageResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Node ghost already removed", resp.Message)
	})

	t.Run("reschedules hosted pods", func(t *testing.T) {
		a := f.addNode(t, "2")
		b := f.addNode(t, "2")
		p1 := f.createPod(t, "1")
		p2 := f.createPod(t, "1")
		require.Equal(t, a.ID, *p1.NodeID)
		require.Equal(t, a.ID, *p2.NodeID)

		w := f.do(t, http.MethodDelete, "/nodes/"+a.ID, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp RemoveNodeResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Node removed successfully", resp.Message)
		assert.Equal(t, a.ID, resp.NodeID)
		assert.ElementsMatch(t, []string{p1.Pod.ID, p2.Pod.ID}, resp.OrphanedPods)
		assert.Equal(t, 2, resp.Rescheduled)
		assert.Zero(t, resp.Pending)

		for _, view := range f.mgr.ListPods() {
			assert.Equal(t, b.ID, view.HostID())
		}
		require.NoError(t, f.mgr.Verify())
	})

	t.Run("deprovision failure keeps the node", func(t *testing.T) {
		node := f.addNode(t, "1")
		f.runtime.FailDeprovision(errors.New("stuck"))
		defer f.runtime.FailDeprovision(nil)

		w := f.do(t, http.MethodDelete, "/nodes/"+node.ID, "")
		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, decodeError(t, w).Error, "stuck")

		_, err := f.mgr.GetNode(node.ID)
		assert.NoError(t, err)
	})
}

func TestDeletePod(t *testing.T) {
	f := newAPIFixture(t, nil)
	node := f.addNode(t, "2")
	pod := f.createPod(t, "2")

	w := f.do(t, http.MethodDelete, "/pods/"+pod.Pod.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp MessageResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Pod "+pod.Pod.ID+" deleted successfully", resp.Message)

	stored, err := f.mgr.GetNode(node.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, stored.AvailableCPUCores, 1e-9)

	w = f.do(t, http.MethodDelete, "/pods/"+pod.Pod.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = MessageResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Pod "+pod.Pod.ID+" already removed", resp.Message)
}

func TestClusterResources(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.addNode(t, "4")
	f.addNode(t, "2")
	f.createPod(t, "3")
	f.createPod(t, "8")

	w := f.do(t, http.MethodGet, "/cluster/resources", "")
	require.Equal(t, http.StatusOK, w.Code)

	var res types.ClusterResources
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.InDelta(t, 6.0, res.TotalCPUCores, 1e-9)
	assert.InDelta(t, 3.0, res.AvailableCPUCores, 1e-9)
	assert.Equal(t, 2, res.NodeCount)
	assert.Equal(t, 2, res.HealthyNodes)
	assert.Equal(t, 2, res.PodCount)
	assert.Equal(t, 1, res.PendingPods)
}

type fakeJournal struct {
	events    []*events.Event
	lastLimit int
	err       error
}

func (j *fakeJournal) Recent(limit int) ([]*events.Event, error) {
	j.lastLimit = limit
	return j.events, j.err
}

func TestEvents(t *testing.T) {
	t.Run("no journal", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		w := f.do(t, http.MethodGet, "/events", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("limit handling", func(t *testing.T) {
		journal := &fakeJournal{events: []*events.Event{
			{ID: "e1", Type: events.EventNodeRegistered, NodeID: "n1", Message: "node registered"},
		}}
		f := newAPIFixture(t, journal)

		w := f.do(t, http.MethodGet, "/events", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, defaultEventLimit, journal.lastLimit)

		var got []events.Event
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		require.Len(t, got, 1)
		assert.Equal(t, events.EventNodeRegistered, got[0].Type)

		f.do(t, http.MethodGet, "/events?limit=5", "")
		assert.Equal(t, 5, journal.lastLimit)

		f.do(t, http.MethodGet, "/events?limit=999999", "")
		assert.Equal(t, maxEventLimit, journal.lastLimit)

		for _, bad := range []string{"0", "-1", "abc"} {
			w := f.do(t, http.MethodGet, "/events?limit="+bad, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, bad)
		}
	})

	t.Run("journal error", func(t *testing.T) {
		f := newAPIFixture(t, &fakeJournal{err: errors.New("closed")})
		w := f.do(t, http.MethodGet, "/events", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestCORS(t *testing.T) {
	f := newAPIFixture(t, nil)

	for _, path := range []string{"/nodes", "/pods/some-id", "/heartbeat"} {
		w := f.do(t, http.MethodOptions, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	}

	w := f.do(t, http.MethodGet, "/nodes", "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestMetricsUseRouteTemplate(t *testing.T) {
	f := newAPIFixture(t, nil)
	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodDelete, "/pods/{id}", "200")
	before := testutil.ToFloat64(counter)

	f.do(t, http.MethodDelete, "/pods/first", "")
	f.do(t, http.MethodDelete, "/pods/second", "")

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "burrow_api_requests_total")
}

func TestListenWithFallback(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	lis, err := listenWithFallback(busy.Addr().String(), 5, zerolog.Nop())
	require.NoError(t, err)
	defer lis.Close()
	assert.NotEqual(t, busy.Addr().String(), lis.Addr().String())

	_, err = listenWithFallback(busy.Addr().String(), 1, zerolog.Nop())
	assert.Error(t, err)

	_, err = listenWithFallback("no-port", 1, zerolog.Nop())
	assert.Error(t, err)
}

func TestServerStartAndShutdown(t *testing.T) {
	f := newAPIFixture(t, nil)
	assert.Empty(t, f.server.Addr())

	require.NoError(t, f.server.Start("127.0.0.1:0", 1))
	require.NotEmpty(t, f.server.Addr())

	resp, err := http.Get("http://" + f.server.Addr() + "/nodes")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, f.server.Shutdown(ctx))
}
