package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-cli/internal/protocol"
)

func wsURL(srv *httptest.Server) URLFunc {
	return func(jobID string) (string, error) {
		return "ws" + strings.TrimPrefix(srv.URL, "http") + "/research/ws/" + jobID, nil
	}
}

func TestWebSocketDialerReadsFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/research/ws/job-1" {
			http.NotFound(w, r)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"status_update","data":{"status":"processing","result":{"step":"Briefing"}}}`))
		_, _, _ = c.ReadMessage() // wait for the client close frame
	}))
	defer srv.Close()

	d := NewWebSocketDialer(wsURL(srv))
	conn, err := d.Dial(context.Background(), "job-1")
	require.NoError(t, err)

	data, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := protocol.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "Briefing", ev.(protocol.Processing).Step)

	assert.NoError(t, conn.Close())
}

func TestWebSocketDialerErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := NewWebSocketDialer(wsURL(srv))
	_, err := d.Dial(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")

	bad := NewWebSocketDialer(func(string) (string, error) { return "", errors.New("bad server url") })
	_, err = bad.Dial(context.Background(), "job-1")
	assert.EqualError(t, err, "bad server url")
}

// The manager runs end to end against a socket that closes after one frame
// and refuses reopens, with a poller that reports completion.
func TestManagerOverWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var accepted atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accepted.Swap(true) {
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"status_update","data":{"status":"report_chunk","result":{"chunk":"# Acme"}}}`))
		_ = c.Close()
	}))

	poller := &fakePoller{fn: func(int) protocol.Snapshot {
		return protocol.Snapshot{Status: protocol.StatusCompleted, Report: mo.Some("# Acme\n\nDone")}
	}}
	opts := fastOptions()
	opts.MaxRetries = 1
	m := New(NewWebSocketDialer(wsURL(srv)), poller, opts)

	defer srv.Close()
	require.NoError(t, m.Open(context.Background(), "job-1"))

	done := make(chan []Update)
	go func() {
		var got []Update
		for u := range m.Updates() {
			got = append(got, u)
		}
		done <- got
	}()

	select {
	case got := <-done:
		events := eventsOf(got)
		require.NotEmpty(t, events)
		assert.IsType(t, protocol.Completed{}, events[len(events)-1])
	case <-time.After(3 * time.Second):
		t.Fatal("manager did not finish")
	}
	m.Close()
}
