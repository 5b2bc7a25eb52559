// Signull rooms
//
// One player (the setter) picks a secret word; the guessers reveal it letter
// by letter through signulls, which the setter may intercept.
//
// Features:
// - WebSockets per room: /signull/:roomid and /signull/:roomid/ws
// - Commands arrive as text lines ("connect s3 PLANT") or as JSON commands
// - Every command is applied by the room's session, one at a time
// - Each client gets its own view of the room after every change
// - Rejections go to the sender only, with kind and code
// - Players identified by a signed cookie (or bearer token)
// - Disconnected players leave after a configurable timeout
// - Rooms unloaded after an idle timeout and restored from the store
// - Per-connection command rate limit
// - QR code to share the room

package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"

	"github.com/prayush21/connect-a-fun-social-game-sub002/games/signull"
)

const (
	maxMessageSize = 4096
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	writeWait      = 10 * time.Second
	saveTimeout    = 5 * time.Second
	roomIDLength   = 6
)

// ClientMessage is one command from a client. Line takes the text command
// surface; Command takes the same command already structured. The actor is
// always the connection's player.
type ClientMessage struct {
	ID      string           `json:"id,omitempty"`
	Line    string           `json:"line,omitempty"`
	Command *signull.Command `json:"command,omitempty"`
}

func (m ClientMessage) command(playerID string) (signull.Command, error) {
	var cmd signull.Command
	switch {
	case strings.TrimSpace(m.Line) != "":
		parsed, err := signull.ParseCommand(playerID, m.Line)
		if err != nil {
			return cmd, err
		}
		cmd = parsed
	case m.Command != nil:
		cmd = *m.Command
		if cmd.Kind == signull.CmdDisconnect {
			return cmd, &signull.Error{Kind: signull.KindValidation, Code: "unknown_command", Msg: fmt.Sprintf("unknown command %q", cmd.Kind)}
		}
	default:
		return cmd, &signull.Error{Kind: signull.KindValidation, Code: "empty_command", Msg: "empty command"}
	}
	cmd.ID = m.ID
	cmd.Actor = playerID
	cmd.At = time.Time{}
	return cmd, nil
}

// SessionInfoMessage is sent immediately on connect so the client knows who
// it is and whether it still has to join.
type SessionInfoMessage struct {
	Type     string `json:"type"` // "session_info"
	RoomID   string `json:"room_id"`
	PlayerID string `json:"player_id"`
	IsMember bool   `json:"is_member"`
	Name     string `json:"name,omitempty"`
}

// StateMessage carries the room as the receiving player may see it. ID is
// set when the state answers a query.
type StateMessage struct {
	Type string       `json:"type"` // "state"
	ID   string       `json:"id,omitempty"`
	Room signull.Room `json:"room"`
}

// AckMessage confirms a command was applied.
type AckMessage struct {
	Type   string          `json:"type"` // "ack"
	ID     string          `json:"id,omitempty"`
	Events []signull.Entry `json:"events,omitempty"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
	limiter  *rate.Limiter
}

// removal asks the hub to drop a player who has stayed away. Gen is the
// player's absence count when the timer started; a later reconnect makes it
// stale.
type removal struct {
	playerID string
	gen      int
}

type commandRequest struct {
	client    *Client
	msg       ClientMessage
	throttled bool
}

type Hub struct {
	id      string
	session *signull.Session
	store   Store
	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	commands chan commandRequest
	leaves   chan removal
	done     chan struct{}
	once     sync.Once

	mu      sync.RWMutex
	absence map[string]int

	createdAt  time.Time
	lastActive time.Time
}

func newHub(room signull.Room, store Store) *Hub {
	now := time.Now()
	return &Hub{
		id:         room.ID,
		session:    signull.NewSession(room),
		store:      store,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan commandRequest),
		leaves:     make(chan removal),
		absence:    make(map[string]int),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (h *Hub) run(cfg *Config) {
	updates, cancel := h.session.Subscribe(4)
	defer cancel()

	for {
		select {
		case <-h.done:
			return

		case c := <-h.register:
			h.handleRegister(c)

		case c := <-h.unreg:
			h.handleUnregister(cfg, c)

		case rm := <-h.leaves:
			h.handleLeave(cfg, rm)

		case req := <-h.commands:
			h.handleCommand(cfg, req)

		case room, ok := <-updates:
			if !ok {
				return
			}
			h.broadcast(room)
			h.persist(room)
		}
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.clients[c] = true
	h.absence[c.playerID]++
	h.mu.Unlock()

	room := h.session.Snapshot()
	p := room.Players[c.playerID]

	info := SessionInfoMessage{
		Type:     "session_info",
		RoomID:   h.id,
		PlayerID: c.playerID,
		IsMember: p != nil,
	}
	if p != nil {
		info.Name = p.Name
	}
	h.send(c, info)
	h.send(c, StateMessage{Type: "state", Room: room.ViewFor(c.playerID)})

	// a returning player comes back online without having to join again
	if p != nil && !p.IsOnline {
		cmd := signull.Command{Kind: signull.CmdJoin, Actor: c.playerID, Name: p.Name}
		if _, _, err := h.session.Apply(cmd); err != nil {
			log.Warn().Err(err).Str("room", h.id).Str("player", c.playerID).Msg("rejoin failed")
		}
	}
}

func (h *Hub) handleUnregister(cfg *Config, c *Client) {
	h.mu.Lock()
	h.lastActive = time.Now()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	stillConnected := h.connectedLocked(c.playerID)
	h.mu.Unlock()

	if stillConnected {
		return
	}
	if p := h.session.Snapshot().Players[c.playerID]; p == nil || !p.IsOnline {
		return
	}

	if _, _, err := h.session.Apply(signull.Command{Kind: signull.CmdDisconnect, Actor: c.playerID}); err != nil {
		log.Warn().Err(err).Str("room", h.id).Str("player", c.playerID).Msg("disconnect failed")
		return
	}
	logf(cfg, "GAMES: Player %s went offline in %s", c.playerID, h.id)

	go h.scheduleRemoval(h.markAbsent(c.playerID), cfg.playerTimeout)
}

// markAbsent starts a new absence for playerID, outdating any removal
// already scheduled.
func (h *Hub) markAbsent(playerID string) removal {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.absence[playerID]++
	return removal{playerID: playerID, gen: h.absence[playerID]}
}

func (h *Hub) scheduleRemoval(rm removal, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
	case <-h.done:
		return
	}

	select {
	case h.leaves <- rm:
	case <-h.done:
	}
}

func (h *Hub) handleLeave(cfg *Config, rm removal) {
	playerID := rm.playerID

	h.mu.RLock()
	connected := h.connectedLocked(playerID)
	stale := h.absence[playerID] != rm.gen
	h.mu.RUnlock()
	if connected || stale {
		return
	}

	p := h.session.Snapshot().Players[playerID]
	if p == nil || p.IsOnline {
		return
	}

	if _, _, err := h.session.Apply(signull.Command{Kind: signull.CmdLeave, Actor: playerID}); err != nil {
		log.Warn().Err(err).Str("room", h.id).Str("player", playerID).Msg("leave failed")
		return
	}
	logf(cfg, "GAMES: Player %q timed out of %s", p.Name, h.id)
}

func (h *Hub) handleCommand(cfg *Config, req commandRequest) {
	c, msg := req.client, req.msg
	h.touch()

	if req.throttled {
		h.send(c, ErrorMessage{
			Type:    "error",
			ID:      msg.ID,
			Kind:    "rate_limited",
			Message: "slow down",
		})
		return
	}

	cmd, err := msg.command(c.playerID)
	if err != nil {
		h.send(c, newErrorMessage(msg.ID, err))
		return
	}

	room, events, err := h.session.Apply(cmd)
	if err != nil {
		logf(cfg, "GAMES: %s rejected in %s for %s: %v", cmd.Kind, h.id, c.playerID, err)
		h.send(c, newErrorMessage(msg.ID, err))
		return
	}

	if cmd.Kind.IsQuery() {
		h.send(c, StateMessage{Type: "state", ID: msg.ID, Room: room.ViewFor(c.playerID)})
		return
	}

	log.Debug().
		Str("room", h.id).
		Str("player", c.playerID).
		Str("command", string(cmd.Kind)).
		Int("events", len(events)).
		Msg("applied")

	h.send(c, AckMessage{Type: "ack", ID: msg.ID, Events: events})
}

func (h *Hub) connectedLocked(playerID string) bool {
	for c := range h.clients {
		if c.playerID == playerID {
			return true
		}
	}
	return false
}

func (h *Hub) send(c *Client, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendLocked(c, msg)
}

// sendLocked drops clients that cannot keep up.
func (h *Hub) sendLocked(c *Client, msg any) {
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(room signull.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		h.sendLocked(c, StateMessage{Type: "state", Room: room.ViewFor(c.playerID)})
	}
}

func (h *Hub) persist(room signull.Room) {
	if room.NextSeq == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := h.store.Save(ctx, room); err != nil {
		log.Error().Err(err).Str("room", h.id).Msg("save failed")
	}
}

func (h *Hub) closeAll() {
	h.once.Do(func() {
		close(h.done)
		h.session.Close()
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	store       Store
	settings    signull.Settings
	idleTimeout time.Duration
}

func newGameManager(ctx context.Context, cfg *Config, store Store) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		store:       store,
		settings:    cfg.roomSettings(),
		idleTimeout: cfg.sessionTimeout,
	}
	if gm.idleTimeout > 0 {
		go gm.reaperLoop(ctx)
	}
	return gm
}

// getHub returns the live hub for roomID, restoring the room from the store
// or opening an empty one.
func (gm *GameManager) getHub(ctx context.Context, cfg *Config, roomID string) (*Hub, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[roomID]; ok {
		return hub, nil
	}

	room, err := gm.store.Load(ctx, roomID)
	switch {
	case errors.Is(err, errRoomNotFound):
		room = signull.EmptyRoom(roomID, gm.settings)
	case err != nil:
		return nil, err
	default:
		logf(cfg, "GAMES: Restored room %s (%s, %d players)", roomID, room.Phase, len(room.Players))
	}

	hub := newHub(room, gm.store)
	gm.hubs[roomID] = hub

	// nobody is connected to a room that was just loaded
	for _, p := range room.Roster() {
		if !p.IsOnline {
			continue
		}
		if _, _, err := hub.session.Apply(signull.Command{Kind: signull.CmdDisconnect, Actor: p.ID}); err == nil {
			go hub.scheduleRemoval(hub.markAbsent(p.ID), cfg.playerTimeout)
		}
	}

	go hub.run(cfg)
	return hub, nil
}

// roomAlphabet leaves out letters that read alike when a code is spoken.
const roomAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func (gm *GameManager) newGameID(ctx context.Context) string {
	for {
		buf := make([]byte, roomIDLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomIDLength)
		for i := range out {
			out[i] = roomAlphabet[int(buf[i])%len(roomAlphabet)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()
		if exists {
			continue
		}
		if _, err := gm.store.Load(ctx, id); errors.Is(err, errRoomNotFound) {
			return id
		}
	}
}

func validRoomID(id string) bool {
	if len(id) < 4 || len(id) > 16 {
		return false
	}
	for _, r := range id {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func (gm *GameManager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for id, hub := range gm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(gm.hubs, id)
				go hub.closeAll()
			}
		}
		gm.mu.Unlock()
	}
}

func (gm *GameManager) close() {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for id, hub := range gm.hubs {
		delete(gm.hubs, id)
		hub.closeAll()
	}
}

func roomID(ps httprouter.Params) (string, bool) {
	id := strings.ToUpper(ps.ByName("roomid"))
	return id, validRoomID(id)
}

func serveWSForManager(cfg *Config, gm *GameManager, ids *identities) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id, ok := roomID(ps)
		if !ok {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		playerID, cookie, err := ids.resolve(r)
		if err != nil {
			log.Error().Err(err).Msg("unable to assign player id")
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub, err := gm.getHub(r.Context(), cfg, id)
		if err != nil {
			log.Error().Err(err).Str("room", id).Msg("unable to load room")
			http.Error(w, "unable to load room", http.StatusInternalServerError)
			return
		}

		header := http.Header{}
		if cookie != nil {
			header.Add("Set-Cookie", cookie.String())
		}

		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			log.Warn().Err(err).Str("room", id).Msg("upgrade failed")
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			playerID: playerID,
			limiter:  rate.NewLimiter(rate.Limit(cfg.rateLimit), max(int(cfg.rateLimit*2), 1)),
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: %s connected to %s from %s", playerID, id, realIP(r))

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		req := commandRequest{
			client:    c,
			msg:       msg,
			throttled: !c.limiter.Allow(),
		}
		select {
		case h.commands <- req:
		case <-h.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if _, ok := roomID(ps); !ok {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

const roomBody = `<h1>Room %[1]s</h1>
<p><img src="%[2]s/qr" alt="QR code for room %[1]s" width="320" height="320"></p>
<p>Join from a terminal:</p>
<pre>signull play %[3]s --name you</pre>
<p><a href="%[2]s/state">Your view of the room</a></p>`

func serveRoomPage(cfg *Config, ids *identities) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id, ok := roomID(ps)
		if !ok {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		_, cookie, err := ids.resolve(r)
		if err != nil {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}
		if cookie != nil {
			http.SetCookie(w, cookie)
		}

		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		path := strings.TrimSuffix(r.URL.Path, "/")
		body := fmt.Sprintf(roomBody, id, html.EscapeString(path), html.EscapeString(scheme+"://"+r.Host+path))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(newPage("Signull "+id, body)))
	}
}

func serveState(cfg *Config, gm *GameManager, ids *identities) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id, ok := roomID(ps)
		if !ok {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		playerID, cookie, err := ids.resolve(r)
		if err != nil {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}
		if cookie != nil {
			http.SetCookie(w, cookie)
		}

		hub, err := gm.getHub(r.Context(), cfg, id)
		if err != nil {
			http.Error(w, "unable to load room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		_ = json.NewEncoder(w).Encode(hub.session.Snapshot().ViewFor(playerID))
	}
}

func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID(r.Context())
		logf(cfg, "GAMES: Created room %s/%s", path, gameID)
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

func registerSignullGame(ctx context.Context, cfg *Config, path string, mux *httprouter.Router, store Store, ids *identities) *GameManager {
	gm := newGameManager(ctx, cfg, store)

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	mux.GET(cfg.prefix+path+"/:roomid", serveRoomPage(cfg, ids))

	mux.GET(cfg.prefix+path+"/:roomid/ws", serveWSForManager(cfg, gm, ids))

	mux.GET(cfg.prefix+path+"/:roomid/qr", qrHandler)

	mux.GET(cfg.prefix+path+"/:roomid/state", serveState(cfg, gm, ids))

	return gm
}
