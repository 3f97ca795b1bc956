package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumetube/lume/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// pushServer accepts one websocket client, records its join message, and
// forwards frames the test pushes through send.
type pushServer struct {
	*httptest.Server
	joins chan map[string]string
	send  chan []byte
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{
		joins: make(chan map[string]string, 4),
		send:  make(chan []byte, 16),
	}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var join map[string]string
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		ps.joins <- join

		for frame := range ps.send {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(func() {
		close(ps.send)
		ps.Server.Close()
	})
	return ps
}

func (ps *pushServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ps.Server.URL, "http")
}

func startBus(t *testing.T) events.EventBus {
	t.Helper()
	bus := events.NewEventBus(events.EventBusConfig{BufferSize: 64}, hclog.NewNullLogger())
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { bus.Stop(context.Background()) })
	return bus
}

func TestChannel_JoinsRoomAndRelaysProgress(t *testing.T) {
	server := newPushServer(t)
	bus := startBus(t)

	received := make(chan events.Event, 8)
	_, err := bus.Subscribe(events.EventFilter{Types: []events.EventType{events.EventUploadProgress}}, func(e events.Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	channel := NewChannel(Config{
		URL:    server.wsURL(),
		UserID: "user-7",
	}, bus, hclog.NewNullLogger())
	require.NoError(t, channel.Start(context.Background()))
	defer channel.Close()

	select {
	case join := <-server.joins:
		assert.Equal(t, "join", join["event"])
		assert.Equal(t, "user-7", join["room"])
	case <-time.After(3 * time.Second):
		t.Fatal("server never saw a join message")
	}

	frame, _ := json.Marshal(map[string]interface{}{
		"event": "upload-progress",
		"data": map[string]interface{}{
			"jobId":    "job-1",
			"stage":    "download",
			"progress": 42.0,
			"message":  "downloading",
		},
	})
	server.send <- frame

	select {
	case e := <-received:
		assert.Equal(t, "job-1", e.JobID)
		assert.Equal(t, "download", e.Data["stage"])
		assert.Equal(t, 42.0, e.Data["progress"])
	case <-time.After(3 * time.Second):
		t.Fatal("progress event never reached the bus")
	}
}

func TestChannel_IgnoresOtherEventsAndMalformedFrames(t *testing.T) {
	server := newPushServer(t)
	bus := startBus(t)

	received := make(chan events.Event, 8)
	_, err := bus.Subscribe(events.EventFilter{Types: []events.EventType{events.EventUploadProgress}}, func(e events.Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	channel := NewChannel(Config{URL: server.wsURL(), UserID: "u"}, bus, hclog.NewNullLogger())
	require.NoError(t, channel.Start(context.Background()))
	defer channel.Close()

	<-server.joins

	server.send <- []byte(`not json at all`)
	server.send <- []byte(`{"event":"chat-message","data":{"text":"hi"}}`)
	server.send <- []byte(`{"event":"upload-progress","data":{"stage":"download"}}`) // no jobId
	frame, _ := json.Marshal(map[string]interface{}{
		"event": "upload-progress",
		"data":  map[string]interface{}{"jobId": "job-2", "stage": "complete", "progress": 100.0, "mediaId": "m1"},
	})
	server.send <- frame

	select {
	case e := <-received:
		// Only the well-formed frame comes through.
		assert.Equal(t, "job-2", e.JobID)
		assert.Equal(t, "m1", e.Data["mediaId"])
	case <-time.After(3 * time.Second):
		t.Fatal("valid frame never arrived")
	}
	select {
	case e := <-received:
		t.Fatalf("unexpected extra event: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestChannel_CloseIsIdempotent(t *testing.T) {
	server := newPushServer(t)
	bus := startBus(t)

	channel := NewChannel(Config{URL: server.wsURL(), UserID: "u"}, bus, hclog.NewNullLogger())
	require.NoError(t, channel.Start(context.Background()))
	<-server.joins

	require.NoError(t, channel.Close())
	require.NoError(t, channel.Close())
	assert.False(t, channel.Connected())
}

func TestChannel_StartAfterCloseFails(t *testing.T) {
	bus := startBus(t)
	channel := NewChannel(Config{URL: "ws://127.0.0.1:1", UserID: "u"}, bus, hclog.NewNullLogger())
	require.NoError(t, channel.Start(context.Background()))
	require.NoError(t, channel.Close())
	assert.Error(t, channel.Start(context.Background()))
}
