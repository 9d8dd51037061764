package gamehost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/tessu-bridge/internal/identity"
	"github.com/park285/tessu-bridge/internal/wsfeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func commandServer(t *testing.T) (string, <-chan wsfeed.Envelope) {
	t.Helper()
	frames := make(chan wsfeed.Envelope, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			var e wsfeed.Envelope
			if err := wsjson.Read(r.Context(), conn, &e); err != nil {
				return
			}
			frames <- e
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), frames
}

func TestEgressWithoutFeedUsesREST(t *testing.T) {
	h := &fakeHost{}
	e := NewEgress("ws", newClient(t, h), nil, nil)

	require.NoError(t, e.ShowActionMarker(context.Background(), 7, "help"))

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []markerRequest{{VehicleID: 7, Action: "help"}}, h.markers)
}

func TestWSEgressNeedsConnection(t *testing.T) {
	feed := wsfeed.New("ws://127.0.0.1:1", wsfeed.WithReconnect(0))
	e := NewEgress("ws", nil, feed, nil)

	err := e.SetSpeaking(context.Background(), 1, true)
	assert.ErrorIs(t, err, wsfeed.ErrNotConnected)
}

func TestAutoEgressFallsBackWhileDisconnected(t *testing.T) {
	h := &fakeHost{}
	feed := wsfeed.New("ws://127.0.0.1:1", wsfeed.WithReconnect(0))
	e := NewEgress("auto", newClient(t, h), feed, nil)

	require.NoError(t, e.SetSpeaking(context.Background(), identity.PlayerID(3), false))

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []speakingRequest{{PlayerID: 3, Speaking: false}}, h.speaking)
}

func TestAutoEgressPrefersFeed(t *testing.T) {
	url, frames := commandServer(t)
	feed := wsfeed.New(url, wsfeed.WithReconnect(0))
	defer feed.Close(context.Background())
	require.NoError(t, feed.Connect(context.Background()))

	h := &fakeHost{}
	e := NewEgress("auto", newClient(t, h), feed, nil)
	require.NoError(t, e.ShowActionMarker(context.Background(), 101, "attackSender"))

	select {
	case f := <-frames:
		assert.Equal(t, CommandMarker, f.Type)
		var m markerRequest
		require.NoError(t, json.Unmarshal(f.Data, &m))
		assert.Equal(t, markerRequest{VehicleID: 101, Action: "attackSender"}, m)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Empty(t, h.markers)
}
