package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prayush21/connect-a-fun-social-game-sub002/games/signull"
)

type testServer struct {
	*httptest.Server
	cfg   *Config
	gm    *GameManager
	store Store
}

func newTestServer(t *testing.T, cfg *Config) *testServer {
	t.Helper()

	store := newMemoryStore()
	ids, err := newIdentities("test-secret")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	mux, gm := newRouter(ctx, cfg, store, ids, make(chan error, 16))
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		gm.close()
		srv.Close()
		cancel()
	})
	return &testServer{Server: srv, cfg: cfg, gm: gm, store: store}
}

type wsPlayer struct {
	t    *testing.T
	conn *websocket.Conn
	jar  http.CookieJar
	info serverMessage
}

// dial connects to a room. Players sharing a jar share an identity.
func (s *testServer) dial(t *testing.T, room string, jar http.CookieJar) *wsPlayer {
	t.Helper()

	if jar == nil {
		var err error
		jar, err = cookiejar.New(nil)
		require.NoError(t, err)
	}
	dialer := websocket.Dialer{Jar: jar, HandshakeTimeout: 5 * time.Second}
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/signull/" + room + "/ws"
	conn, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	p := &wsPlayer{t: t, conn: conn, jar: jar}
	p.info = p.next(func(m serverMessage) bool { return m.Type == "session_info" })
	return p
}

func (p *wsPlayer) send(id, line string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(ClientMessage{ID: id, Line: line}))
}

// next reads until a message matches.
func (p *wsPlayer) next(match func(serverMessage) bool) serverMessage {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg serverMessage
		require.NoError(p.t, p.conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

// do sends a command and waits for its answer.
func (p *wsPlayer) do(id, line string) serverMessage {
	p.t.Helper()
	p.send(id, line)
	return p.next(func(m serverMessage) bool { return m.ID == id })
}

func (p *wsPlayer) state(match func(signull.Room) bool) signull.Room {
	p.t.Helper()
	msg := p.next(func(m serverMessage) bool {
		return m.Type == "state" && m.ID == "" && m.Room != nil && match(*m.Room)
	})
	return *msg.Room
}

func TestSignullGame_Round(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testConfig())

	sam := s.dial(t, "ROOM1", nil)
	assert.False(t, sam.info.IsMember)
	assert.Equal(t, "ROOM1", sam.info.RoomID)
	assert.Equal(t, "ack", sam.do("c1", "create Sam").Type)

	ann := s.dial(t, "room1", nil)
	assert.Equal(t, "ack", ann.do("c1", "join Ann").Type)
	bob := s.dial(t, "ROOM1", nil)
	assert.Equal(t, "ack", bob.do("c1", "join Bob").Type)
	assert.NotEqual(t, ann.info.PlayerID, bob.info.PlayerID)

	assert.Equal(t, "ack", sam.do("c2", "start").Type)
	assert.Equal(t, "ack", sam.do("c3", "setword ELEPHANT").Type)

	view := sam.state(func(r signull.Room) bool { return r.Phase == signull.PhaseGuessing })
	assert.Equal(t, "ELEPHANT", view.SecretWord)
	view = ann.state(func(r signull.Room) bool { return r.Phase == signull.PhaseGuessing })
	assert.Empty(t, view.SecretWord)
	assert.Equal(t, ann.info.PlayerID, view.Rotation.ClueGiver)

	// bob is not the clue giver
	msg := bob.do("c2", "signull EAGLE bird of prey")
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, string(signull.KindPermission), msg.Kind)
	assert.Equal(t, "not_your_turn", msg.Code)

	msg = ann.do("c2", "signull EAGLE bird of prey")
	require.Equal(t, "ack", msg.Type)
	require.NotEmpty(t, msg.Events)

	view = bob.state(func(r signull.Room) bool { return r.CurrentReference != nil })
	assert.Empty(t, view.CurrentReference.Word)
	assert.Equal(t, "bird of prey", view.CurrentReference.Clue)

	msg = sam.do("c4", "intercept "+view.CurrentReference.ID+" EAGLE")
	require.Equal(t, "ack", msg.Type)
	view = bob.state(func(r signull.Room) bool { return len(r.Signulls) == 1 })
	assert.Equal(t, signull.StatusIntercepted, view.Signulls[0].Status)
	assert.Equal(t, "EAGLE", view.Signulls[0].Word)

	msg = bob.do("c3", "connect "+view.Signulls[0].ID+" EAGLE")
	assert.Equal(t, string(signull.KindStaleReference), msg.Kind)
	assert.Equal(t, "that clue already intercepted", msg.Message)

	require.Eventually(t, func() bool {
		room, err := s.store.Load(context.Background(), "ROOM1")
		return err == nil && len(room.Signulls) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSignullGame_Queries(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testConfig())

	ann := s.dial(t, "ROOM2", nil)
	msg := ann.do("q1", "status")
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "not_in_room", msg.Code)

	ann.do("c1", "join Ann")
	msg = ann.do("q2", "players")
	require.Equal(t, "state", msg.Type)
	require.NotNil(t, msg.Room)
	assert.Equal(t, ann.info.PlayerID, msg.Room.HostID)

	msg = ann.do("c2", "dance")
	assert.Equal(t, "unknown_command", msg.Code)

	require.NoError(t, ann.conn.WriteJSON(ClientMessage{
		ID:      "c3",
		Command: &signull.Command{Kind: signull.CmdSet, Key: "mode", Value: "signull", Actor: "someone-else"},
	}))
	msg = ann.next(func(m serverMessage) bool { return m.ID == "c3" })
	assert.Equal(t, "ack", msg.Type)

	msg = ann.do("c4", "disconnect")
	assert.Equal(t, "unknown_command", msg.Code)

	require.NoError(t, ann.conn.WriteJSON(ClientMessage{
		ID:      "c5",
		Command: &signull.Command{Kind: signull.CmdDisconnect},
	}))
	msg = ann.next(func(m serverMessage) bool { return m.ID == "c5" })
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "unknown_command", msg.Code)

	msg = ann.do("q3", "players")
	require.NotNil(t, msg.Room)
	assert.True(t, msg.Room.Players[ann.info.PlayerID].IsOnline)
}

func TestSignullGame_Reconnect(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testConfig())

	sam := s.dial(t, "ROOM3", nil)
	sam.do("c1", "create Sam")
	ann := s.dial(t, "ROOM3", nil)
	ann.do("c1", "join Ann")
	annID := ann.info.PlayerID

	require.NoError(t, ann.conn.Close())
	sam.state(func(r signull.Room) bool {
		p := r.Players[annID]
		return p != nil && !p.IsOnline
	})

	again := s.dial(t, "ROOM3", ann.jar)
	assert.True(t, again.info.IsMember)
	assert.Equal(t, annID, again.info.PlayerID)
	assert.Equal(t, "Ann", again.info.Name)
	sam.state(func(r signull.Room) bool {
		p := r.Players[annID]
		return p != nil && p.IsOnline
	})
}

func TestSignullGame_PlayerTimeout(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.playerTimeout = 50 * time.Millisecond
	s := newTestServer(t, cfg)

	sam := s.dial(t, "ROOM4", nil)
	sam.do("c1", "create Sam")
	ann := s.dial(t, "ROOM4", nil)
	ann.do("c1", "join Ann")
	annID := ann.info.PlayerID
	sam.state(func(r signull.Room) bool { return r.Players[annID] != nil })
	require.NoError(t, ann.conn.Close())

	sam.state(func(r signull.Room) bool { return r.Players[annID] == nil })
}

func TestHub_ReconnectOutdatesRemoval(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.playerTimeout = time.Hour

	room := signull.EmptyRoom("ROOM9", cfg.roomSettings())
	for _, c := range []signull.Command{
		{Kind: signull.CmdCreate, Actor: "sam", Name: "Sam", At: t0},
		{Kind: signull.CmdJoin, Actor: "ann", Name: "Ann", At: t0},
	} {
		var err error
		room, _, err = signull.Apply(room, c)
		require.NoError(t, err)
	}

	h := newHub(room, newMemoryStore())
	t.Cleanup(h.closeAll)

	client := func() *Client {
		c := &Client{send: make(chan any, 16), playerID: "ann"}
		h.handleRegister(c)
		return c
	}
	absentGen := func() int {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.absence["ann"]
	}

	first := client()
	h.handleUnregister(cfg, first)
	require.False(t, h.session.Snapshot().Players["ann"].IsOnline)
	stale := removal{playerID: "ann", gen: absentGen()}

	second := client()
	require.True(t, h.session.Snapshot().Players["ann"].IsOnline)
	h.handleUnregister(cfg, second)
	require.False(t, h.session.Snapshot().Players["ann"].IsOnline)

	// the timer from the first absence fires after ann came back
	h.handleLeave(cfg, stale)
	assert.NotNil(t, h.session.Snapshot().Players["ann"])

	h.handleLeave(cfg, removal{playerID: "ann", gen: absentGen()})
	assert.Nil(t, h.session.Snapshot().Players["ann"])
}

func TestSignullGame_RateLimit(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.rateLimit = 1
	s := newTestServer(t, cfg)

	ann := s.dial(t, "ROOM5", nil)
	for i := 0; i < 6; i++ {
		ann.send(string(rune('a'+i)), "status")
	}
	msg := ann.next(func(m serverMessage) bool { return m.Kind == "rate_limited" })
	assert.Equal(t, "error", msg.Type)
}

func TestSignullGame_HTTP(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testConfig())

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	resp, err := client.Get(s.URL + "/signull")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	loc := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(loc, "/signull/"), loc)
	assert.True(t, validRoomID(strings.TrimPrefix(loc, "/signull/")), loc)

	resp, err = client.Get(s.URL + loc)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Cookies())

	resp, err = client.Get(s.URL + loc + "/qr")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp, err = client.Get(s.URL + "/signull/ROOM6/state")
	require.NoError(t, err)
	var room signull.Room
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
	resp.Body.Close()
	assert.Equal(t, "ROOM6", room.ID)
	assert.Equal(t, signull.PhaseLobby, room.Phase)

	resp, err = client.Get(s.URL + "/signull/x!/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for _, path := range []string{"/", "/healthz", "/version", "/robots.txt"} {
		resp, err = client.Get(s.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestGameManager_RestoresRooms(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	room := playedRoom(t, "ROOM7")
	require.NoError(t, store.Save(context.Background(), room))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gm := newGameManager(ctx, testConfig(), store)
	defer gm.close()

	hub, err := gm.getHub(ctx, testConfig(), "ROOM7")
	require.NoError(t, err)

	restored := hub.session.Snapshot()
	assert.Equal(t, room.SecretWord, restored.SecretWord)
	assert.Equal(t, room.RevealedCount, restored.RevealedCount)
	for id, p := range restored.Players {
		assert.False(t, p.IsOnline, id)
	}
	// bob's signull lost its clue giver
	assert.Nil(t, restored.CurrentReference)

	again, err := gm.getHub(ctx, testConfig(), "ROOM7")
	require.NoError(t, err)
	assert.Same(t, hub, again)
}

func TestValidRoomID(t *testing.T) {
	t.Parallel()

	assert.True(t, validRoomID("ABCD"))
	assert.True(t, validRoomID("K7PQ2Z"))
	assert.False(t, validRoomID("ABC"))
	assert.False(t, validRoomID("abcd"))
	assert.False(t, validRoomID("AB-CD"))
	assert.False(t, validRoomID(strings.Repeat("A", 17)))
}
