package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/gocollo/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := config.Default()
	s.MaxNLPIterations = 5000
	ts := httptest.NewServer(newServer(s, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(ts.Close)
	return ts
}

func callTool(t *testing.T, ts *httptest.Server, body string) (int, toolResponse) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/tool", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out toolResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestServe_Health(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_Schema(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/schema")
	require.NoError(t, err)
	defer resp.Body.Close()
	var tools []toolSpec
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tools))
	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"examples", "diff", "derivatives", "solve"}, names)
}

func TestServe_Examples(t *testing.T) {
	ts := newTestServer(t)
	code, resp := callTool(t, ts, `{"tool":"examples"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Error)
	assert.Equal(t, []interface{}{"brachistochrone", "cannonball", "minimum-time", "pendulum"}, resp.Result)
}

func TestServe_Diff(t *testing.T) {
	ts := newTestServer(t)
	_, resp := callTool(t, ts, `{"tool":"diff","params":{
		"expr":{"type":"pow","base":{"type":"sym","name":"x"},"exp":{"type":"num","value":"2"}},
		"var":"x"}}`)
	require.Empty(t, resp.Error)
	assert.Equal(t, "2*x", resp.String)
}

func TestServe_Derivatives(t *testing.T) {
	ts := newTestServer(t)
	_, resp := callTool(t, ts, `{"tool":"derivatives","params":{"example":"minimum-time"}}`)
	require.Empty(t, resp.Error)
	funcs, ok := resp.Result.([]interface{})
	require.True(t, ok)
	names := map[string]bool{}
	for _, f := range funcs {
		names[f.(map[string]interface{})["name"].(string)] = true
	}
	assert.True(t, names["c_d1"])
	assert.True(t, names["L_zeta_d2"])
}

func TestServe_Solve(t *testing.T) {
	ts := newTestServer(t)
	_, resp := callTool(t, ts, `{"tool":"solve","params":{"example":"minimum-time","segments":1,"points":4}}`)
	require.Empty(t, resp.Error)
	sum, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "solved", sum["status"])
	assert.Equal(t, true, sum["converged"])
	assert.InDelta(t, 1.0, sum["final_time"].(float64), 1e-3)

	resp2, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp2.Body.Close()
	body, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	assert.Contains(t, resp2.Header.Get("Content-Type"), "text/plain")
	assert.Contains(t, string(body), `gocollo_nlp_solve_total{backend="alm",status="solved"}`)
	assert.Contains(t, string(body), "# TYPE gocollo_nlp_callback_duration_seconds histogram")
}

func TestServe_Errors(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"unknown tool", `{"tool":"integrate"}`, http.StatusOK, "unknown tool"},
		{"unknown example", `{"tool":"solve","params":{"example":"rocket"}}`, http.StatusOK, "rocket"},
		{"missing param", `{"tool":"derivatives","params":{}}`, http.StatusOK, "missing param: example"},
		{"bad points", `{"tool":"solve","params":{"example":"minimum-time","points":2.5}}`, http.StatusOK, "must be an integer"},
		{"bad expr", `{"tool":"diff","params":{"expr":{"type":"nope"},"var":"x"}}`, http.StatusOK, "nope"},
		{"unknown field", `{"tool":"examples","extra":1}`, http.StatusBadRequest, "unknown field"},
		{"trailing data", `{"tool":"examples"} {}`, http.StatusBadRequest, "trailing data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := callTool(t, ts, tt.body)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, resp.Error, tt.msg)
		})
	}

	resp, err := http.Get(ts.URL + "/tool")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
