package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, cfg *Config, setup func(*Hub)) (*Hub, *httptest.Server) {
	t.Helper()

	h := newHub(cfg)
	if setup != nil {
		setup(h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go h.run(ctx)

	srv := httptest.NewServer(newRouter(cfg, h, make(chan error, 64)))

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

// readUntil reads messages until one of type typ arrives and returns all of
// them, the match last.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) []map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var msgs []map[string]any
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		msgs = append(msgs, msg)

		if msg["type"] == typ {
			return msgs
		}
	}
}

func countType(msgs []map[string]any, typ string) int {
	n := 0
	for _, m := range msgs {
		if m["type"] == typ {
			n++
		}
	}

	return n
}

func checkRoom(t *testing.T, srv *httptest.Server, id string) bool {
	t.Helper()

	res, err := http.Get(srv.URL + "/check-rooms?id=" + id)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		NotFound bool `json:"notFound"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))

	return !body.NotFound
}

func TestServeHomePage(t *testing.T) {
	_, srv := startServer(t, newTestConfig(), nil)

	res, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"response":"I am alive"}`, string(body))
	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
}

func TestServeHealthAndVersion(t *testing.T) {
	_, srv := startServer(t, newTestConfig(), nil)

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, "Ok\n", string(body))

	res, err = http.Get(srv.URL + "/version")
	require.NoError(t, err)
	body, _ = io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, "fishbowl v"+releaseVersion+"\n", string(body))
}

func TestCheckRooms_FollowsRoomLifecycle(t *testing.T) {
	_, srv := startServer(t, newTestConfig(), nil)

	assert.False(t, checkRoom(t, srv, "R1"))

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: cmdCreateRoom, RoomID: "R1"}))
	ack := readUntil(t, conn, evtCreateRoom)
	assert.Equal(t, "R1", ack[len(ack)-1]["id"])

	assert.True(t, checkRoom(t, srv, "R1"))

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: cmdJoinRoom, RoomID: "R1", Name: "alice"}))
	readUntil(t, conn, evtAllPrompts)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: cmdLeaveRoom, RoomID: "R1"}))

	assert.Eventually(t, func() bool {
		return !checkRoom(t, srv, "R1")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWebSocket_DuplicateCreateGetsNewID(t *testing.T) {
	_, srv := startServer(t, newTestConfig(), nil)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: cmdCreateRoom, RoomID: "R1"}))
	first := readUntil(t, conn, evtCreateRoom)
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: cmdCreateRoom, RoomID: "R1"}))
	second := readUntil(t, conn, evtCreateRoom)

	assert.Equal(t, "R1", first[len(first)-1]["id"])
	assert.Equal(t, "R1e", second[len(second)-1]["id"])
}

func TestWebSocket_RoundTimesOut(t *testing.T) {
	cfg := newTestConfig()
	cfg.roundDuration = 300 * time.Millisecond

	_, srv := startServer(t, cfg, func(h *Hub) {
		h.rounds.interval = 50 * time.Millisecond
	})

	alice := dial(t, srv)
	bob := dial(t, srv)

	require.NoError(t, alice.WriteJSON(ClientMessage{Type: cmdCreateRoom, RoomID: "R1"}))
	readUntil(t, alice, evtCreateRoom)
	require.NoError(t, alice.WriteJSON(ClientMessage{Type: cmdJoinRoom, RoomID: "R1", Name: "alice"}))
	readUntil(t, alice, evtAllPrompts)
	require.NoError(t, bob.WriteJSON(ClientMessage{Type: cmdJoinRoom, RoomID: "R1", Name: "bob"}))

	joined := readUntil(t, bob, evtAllPrompts)
	teams := joined[0]["teams"].(map[string]any)
	assert.Equal(t, "alice", teams["A"].(map[string]any)["members"].([]any)[0].(map[string]any)["username"])
	assert.Equal(t, "bob", teams["B"].(map[string]any)["members"].([]any)[0].(map[string]any)["username"])

	require.NoError(t, alice.WriteJSON(ClientMessage{Type: cmdStartRound, RoomID: "R1", Name: "alice", Team: "A"}))

	msgs := readUntil(t, bob, evtRoundStop)
	assert.Equal(t, 1, countType(msgs, evtRoundStart))
	assert.Equal(t, 1, countType(msgs, evtStopTimer))
	assert.Equal(t, 1, countType(msgs, evtRoundStop))
	assert.Positive(t, countType(msgs, evtTimer))

	// nothing else may follow the stop
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var extra map[string]any
	assert.Error(t, bob.ReadJSON(&extra))
}

func TestWebSocket_JoinMissingRoom(t *testing.T) {
	_, srv := startServer(t, newTestConfig(), nil)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: cmdJoinRoom, RoomID: "nope", Name: "alice"}))

	msgs := readUntil(t, conn, evtNotFound)
	assert.Len(t, msgs, 1)
}

func TestWebSocket_RateLimited(t *testing.T) {
	cfg := newTestConfig()
	cfg.rateLimit = 1

	_, srv := startServer(t, cfg, nil)
	conn := dial(t, srv)

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteJSON(ClientMessage{Type: cmdCreateRoom}))
	}

	msgs := readUntil(t, conn, evtRateLimited)
	assert.Equal(t, 1, countType(msgs, evtCreateRoom))
}

func TestWebSocket_OversizedMessageClosesConnection(t *testing.T) {
	h, srv := startServer(t, newTestConfig(), nil)
	conn := dial(t, srv)

	_ = conn.WriteJSON(ClientMessage{Type: cmdCreateRoom, RoomID: strings.Repeat("x", 2*maxMessageSize)})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg map[string]any
	err := conn.ReadJSON(&msg)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseMessageTooBig), "got %v", err)

	rooms, err := query(context.Background(), h, func() int { return h.rooms.Len() })
	require.NoError(t, err)
	assert.Zero(t, rooms)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	cfg := newTestConfig()
	cfg.allowedOrigin = "http://localhost:3000"

	_, srv := startServer(t, cfg, nil)

	header := http.Header{}
	header.Set("Origin", "http://evil.example")

	_, res, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestServeQR(t *testing.T) {
	h, srv := startServer(t, newTestConfig(), nil)

	_, err := query(context.Background(), h, func() *Room {
		return h.rooms.Create("R1")
	})
	require.NoError(t, err)

	res, err := http.Get(srv.URL + "/rooms/R1/qr")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "image/png", res.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))

	res, err = http.Get(srv.URL + "/rooms/nope/qr")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestRoomLink(t *testing.T) {
	cfg := newTestConfig()
	cfg.prefix = "/party"

	r := httptest.NewRequest(http.MethodGet, "http://example.com/party/rooms/R%201/qr", nil)
	r.Header.Set("X-Forwarded-Proto", "https")

	assert.Equal(t, "https://example.com/party/?room=R+1", roomLink(cfg, r, "R 1"))
}

func TestHumanReadableSize(t *testing.T) {
	assert.Equal(t, "999 B", humanReadableSize(999))
	assert.Equal(t, "1.5 kB", humanReadableSize(1500))
	assert.Equal(t, "2.0 MB", humanReadableSize(2_000_000))
}

func TestRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1:5555", realIP(r))

	r.Header.Set("X-Real-IP", "192.0.2.7")
	assert.Equal(t, "192.0.2.7:5555", realIP(r))

	r.Header.Set("CF-Connecting-IP", "2001:db8::1")
	assert.Equal(t, "[2001:db8::1]:5555", realIP(r))
}
