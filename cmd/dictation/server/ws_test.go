package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/voicescribe/dictation-core/cmd/dictation/session"
)

func dialTestServer(t *testing.T, s *Server) (*websocket.Conn, func()) {
	t.Helper()

	ts := httptest.NewServer(s.Handler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		ts.Close()
	}
}

func waitForClients(t *testing.T, s *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.ClientCount() == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewServer(t *testing.T) {
	t.Run("missing addr", func(t *testing.T) {
		s, err := New(Config{})
		require.Error(t, err)
		require.Nil(t, s)
	})

	t.Run("valid", func(t *testing.T) {
		s, err := New(Config{ListenAddr: "localhost:0"})
		require.NoError(t, err)
		require.NotNil(t, s)
	})
}

func TestServerBroadcast(t *testing.T) {
	s, err := New(Config{ListenAddr: "localhost:0"})
	require.NoError(t, err)

	conn, teardown := dialTestServer(t, s)
	defer teardown()
	waitForClients(t, s, 1)

	ev := session.Event{
		Type:      session.EventTranscriptionResult,
		Data:      map[string]any{"text": "hello world"},
		Timestamp: time.Now(),
	}
	s.Broadcast(ev)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type session.EventType `json:"type"`
		Data struct {
			Text string `json:"text"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &got))
	require.Equal(t, session.EventTranscriptionResult, got.Type)
	require.Equal(t, "hello world", got.Data.Text)
}

func TestServerClientDisconnect(t *testing.T) {
	s, err := New(Config{ListenAddr: "localhost:0"})
	require.NoError(t, err)

	conn, teardown := dialTestServer(t, s)
	waitForClients(t, s, 1)

	conn.Close()
	waitForClients(t, s, 0)

	// Broadcasting with no clients is a no-op.
	s.Broadcast(session.Event{Type: session.EventAudioLevel})
	teardown()
}

func TestServerForward(t *testing.T) {
	s, err := New(Config{ListenAddr: "localhost:0"})
	require.NoError(t, err)

	conn, teardown := dialTestServer(t, s)
	defer teardown()
	waitForClients(t, s, 1)

	events := make(chan session.Event, 2)
	events <- session.Event{Type: session.EventAudioLevel, Timestamp: time.Now()}
	events <- session.Event{Type: session.EventRecordingStopped, Timestamp: time.Now()}
	close(events)

	done := make(chan struct{})
	go func() {
		s.Forward(context.Background(), events)
		close(done)
	}()

	for _, expected := range []session.EventType{session.EventAudioLevel, session.EventRecordingStopped} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var got struct {
			Type session.EventType `json:"type"`
		}
		require.NoError(t, json.Unmarshal(payload, &got))
		require.Equal(t, expected, got.Type)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forward did not return after stream close")
	}
}
