package statusfeed

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/estateview/internal/viewer"
)

type fakeSource struct {
	mu     sync.Mutex
	status viewer.Status
	subs   map[int]chan viewer.Status
	next   int
}

func newFakeSource(st viewer.Status) *fakeSource {
	return &fakeSource{status: st, subs: make(map[int]chan viewer.Status)}
}

func (f *fakeSource) Status() viewer.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSource) Subscribe() (<-chan viewer.Status, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	ch := make(chan viewer.Status, 4)
	ch <- f.status
	f.subs[id] = ch
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(ch)
		}
	}
}

func (f *fakeSource) publish(st viewer.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = st
	for _, ch := range f.subs {
		ch <- st
	}
}

func (f *fakeSource) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readStatus(t *testing.T, conn *websocket.Conn) viewer.Status {
	t.Helper()
	var st viewer.Status
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&st))
	return st
}

func TestStatusEndpoint(t *testing.T) {
	src := newFakeSource(viewer.Status{State: "error", HasError: true, ErrorMessage: viewer.MsgNetwork})
	srv := httptest.NewServer(New(src).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "error", got["state"])
	assert.Equal(t, true, got["has_error"])
	assert.Equal(t, viewer.MsgNetwork, got["error_message"])
}

func TestStreamPushesUpdates(t *testing.T) {
	src := newFakeSource(viewer.Status{State: "loading", IsLoading: true})
	feed := New(src)
	srv := httptest.NewServer(feed.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	assert.Equal(t, "loading", readStatus(t, conn).State)
	assert.Equal(t, 1, feed.Clients())

	src.publish(viewer.Status{State: "ready", HasModel: true, BuildingID: "DEBY0001"})
	st := readStatus(t, conn)
	assert.Equal(t, "ready", st.State)
	assert.True(t, st.HasModel)
	assert.Equal(t, "DEBY0001", st.BuildingID)

	conn.Close()
	require.Eventually(t, func() bool {
		return feed.Clients() == 0 && src.subscribers() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCloseEndsStreams(t *testing.T) {
	src := newFakeSource(viewer.Status{State: "idle"})
	feed := New(src)
	srv := httptest.NewServer(feed.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	readStatus(t, conn)

	feed.Close()
	feed.Close()

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "err = %v", err)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := newFakeSource(viewer.Status{State: "idle"})
	feed := New(src, WithRegistry(reg))
	srv := httptest.NewServer(feed.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	readStatus(t, conn)

	scrape := func() string {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			return ""
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}
	// The counter moves after the write returns, so the client can be ahead.
	require.Eventually(t, func() bool {
		body := scrape()
		return strings.Contains(body, "estateview_statusfeed_clients 1") &&
			strings.Contains(body, "estateview_statusfeed_messages_total 1")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMetricsDisabledWithoutRegistry(t *testing.T) {
	srv := httptest.NewServer(New(newFakeSource(viewer.Status{})).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAllowedOrigins(t *testing.T) {
	feed := New(newFakeSource(viewer.Status{}), WithAllowedOrigins("https://portal.example"))
	srv := httptest.NewServer(feed.Handler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://portal.example"}})
	require.NoError(t, err)
	resp.Body.Close()
	conn.Close()
}
