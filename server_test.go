package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *Session, *Hub) {
	t.Helper()
	sess, _ := newTestSession(t, cfg, sineSim())
	exp, err := NewExporter(cfg.Export)
	require.NoError(t, err)
	logger := log.New(io.Discard)
	hub := NewHub()
	srv := NewServer(sess, hub, exp, NewFrameRecorder(logger), logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, sess, hub
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServerIndexPage(t *testing.T) {
	ts, _, _ := newTestServer(t, testConfig(t))
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "20ns/div")
}

func TestServerState(t *testing.T) {
	ts, _, _ := newTestServer(t, testConfig(t))
	resp, err := http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var st StateView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "run", st.Status)
	assert.Equal(t, fastTimebase, st.Timebase)
}

func TestServerControl(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run = false
	ts, sess, _ := newTestServer(t, cfg)

	resp := postJSON(t, ts.URL+"/api/mode", `{"mode":"hold"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/timebase", `{"index":7}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/mode", `{"mode":"normal"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Success bool      `json:"success"`
		State   StateView `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Success)
	assert.Equal(t, "normal", out.State.Mode)
	assert.Equal(t, "run", out.State.Status)

	resp = postJSON(t, ts.URL+"/api/channel/2", `{"preset":4,"invert":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, sess.State().Channels[1].Preset)
	assert.True(t, sess.State().Channels[1].Invert)

	resp = postJSON(t, ts.URL+"/api/channel/x", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/trigger", `{"channel":2,"edge":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/holdoff", `{"ms":5}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5*time.Millisecond, sess.Loop().Settings().Holdoff)
}

func TestServerTraceAndExportNeedAFrame(t *testing.T) {
	ts, _, _ := newTestServer(t, testConfig(t))

	resp, err := http.Get(ts.URL + "/api/trace")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/export", `{"format":"csv"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/export", `{"format":"xlsx"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerRecording(t *testing.T) {
	ts, _, _ := newTestServer(t, testConfig(t))

	resp := postJSON(t, ts.URL+"/api/record/start", `{"frames":-1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/record/start", `{"frames":10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postJSON(t, ts.URL+"/api/record/start", `{"frames":10}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	get, err := http.Get(ts.URL + "/api/record/status")
	require.NoError(t, err)
	defer get.Body.Close()
	var st RecordStatus
	require.NoError(t, json.NewDecoder(get.Body).Decode(&st))
	assert.True(t, st.Recording)
	assert.Equal(t, 10, st.Limit)

	resp = postJSON(t, ts.URL+"/api/record/stop", `{}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerWebsocket(t *testing.T) {
	ts, sess, hub := newTestServer(t, testConfig(t))
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello struct {
		Type  string    `json:"type"`
		ID    string    `json:"id"`
		State StateView `json:"state"`
	}
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.NotEmpty(t, hello.ID)
	assert.Equal(t, "run", hello.State.Status)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "arm"}))
	var msg struct {
		Type  string    `json:"type"`
		State StateView `json:"state"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "state", msg.Type)
	assert.Equal(t, "stop", msg.State.Status)
	assert.Equal(t, "stop", sess.State().Status)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "bogus"}))
	var bad map[string]string
	require.NoError(t, conn.ReadJSON(&bad))
	assert.Equal(t, "error", bad["type"])

	// traces arrive as binary frames
	want := encodeTrace(&Trace{Seq: 1, Time: []float64{0, 1}, CH1: []float64{2, 3}})
	hub.Broadcast(want)
	kind, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, hub.Len())
}
