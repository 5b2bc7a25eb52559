/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/prayush21/connect-a-fun-social-game-sub002/games/signull"
)

// serverMessage is the union of everything the room socket sends.
type serverMessage struct {
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	RoomID   string          `json:"room_id"`
	PlayerID string          `json:"player_id"`
	IsMember bool            `json:"is_member"`
	Name     string          `json:"name"`
	Room     *signull.Room   `json:"room"`
	Events   []signull.Entry `json:"events"`
	Kind     string          `json:"kind"`
	Code     string          `json:"code"`
	Message  string          `json:"message"`
}

// roomSocketURL turns a room link into its websocket address.
func roomSocketURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported room url %q: want http(s) or ws(s)", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("room url %q has no host", raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(u.Path, "/ws") {
		u.Path += "/ws"
	}
	u.RawQuery, u.Fragment = "", ""
	return u.String(), nil
}

// terminal is the client side of one play session. Commands are predicted
// locally until the server answers or the pending table expires them.
type terminal struct {
	cfg      *Config
	out      io.Writer
	pending  *signull.PendingTable
	playerID string
	room     signull.Room
	synced   bool
}

func runPlay(ctx context.Context, cfg *Config, rawURL string, in io.Reader, out io.Writer) error {
	wsURL, err := roomSocketURL(rawURL)
	if err != nil {
		return err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout, Jar: jar}

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	logf(cfg, "PLAY: Connected to %s", wsURL)

	stop := make(chan struct{})
	defer close(stop)

	incoming := make(chan serverMessage)
	readErr := make(chan error, 1)
	go func() {
		for {
			var msg serverMessage
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			select {
			case incoming <- msg:
			case <-stop:
				return
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
	}()

	t := &terminal{
		cfg:     cfg,
		out:     out,
		pending: signull.NewPendingTable(signull.DefaultPendingTTL),
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	inputDone := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				fmt.Fprintln(out, "room closed")
				return nil
			}
			return err

		case msg := <-incoming:
			if line := t.handle(msg); line != "" {
				if err := t.submit(conn, line, time.Now()); err != nil {
					return err
				}
			}

		case line, ok := <-lines:
			if !ok {
				lines = nil
				inputDone = true
				break
			}
			switch strings.TrimSpace(strings.ToLower(line)) {
			case "":
				continue
			case "quit", "exit":
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
			if err := t.submit(conn, line, time.Now()); err != nil {
				return err
			}

		case now := <-ticker.C:
			for _, cmd := range t.pending.Expire(now) {
				fmt.Fprintf(t.out, "! no answer to %q, rolled back\n", string(cmd.Kind))
				t.render()
			}
		}

		if inputDone && t.pending.Len() == 0 {
			return nil
		}
	}
}

// submit checks line locally, tracks it and sends it.
func (t *terminal) submit(conn *websocket.Conn, line string, now time.Time) error {
	cmd, err := signull.ParseCommand(t.playerID, line)
	if err != nil {
		fmt.Fprintf(t.out, "! %s\n", err)
		return nil
	}
	cmd.ID = uuid.NewString()
	cmd.At = now
	if err := t.pending.Track(cmd, now); err != nil {
		return err
	}

	if err := conn.WriteJSON(ClientMessage{ID: cmd.ID, Line: line}); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Kind, err)
	}
	log.Debug().Str("command", string(cmd.Kind)).Str("id", cmd.ID).Msg("sent")

	if !cmd.Kind.IsQuery() && t.synced {
		t.render()
	}
	return nil
}

// handle processes one server message. It returns a command line to send
// in response, if any.
func (t *terminal) handle(msg serverMessage) string {
	switch msg.Type {
	case "session_info":
		t.playerID = msg.PlayerID
		fmt.Fprintf(t.out, "connected to room %s\n", msg.RoomID)
		if !msg.IsMember && t.cfg.name != "" {
			return "join " + t.cfg.name
		}
		if !msg.IsMember {
			fmt.Fprintln(t.out, "type: join <name>")
		}

	case "state":
		if msg.Room == nil {
			return ""
		}
		if msg.ID != "" {
			t.pending.Confirm(msg.ID)
			fmt.Fprint(t.out, describe(*msg.Room, t.playerID))
			return ""
		}
		t.room = *msg.Room
		t.synced = true
		t.render()

	case "ack":
		t.pending.Confirm(msg.ID)
		for _, e := range msg.Events {
			if e.Kind != signull.EntryScore || e.Actor == t.playerID {
				fmt.Fprintf(t.out, "* %s\n", e.Text)
			}
		}

	case "error":
		t.pending.Confirm(msg.ID)
		fmt.Fprintf(t.out, "! %s\n", msg.Message)
	}
	return ""
}

// render prints the confirmed room with still-pending commands layered on.
func (t *terminal) render() {
	room := t.room
	if n := t.pending.Len(); n > 0 {
		room = t.pending.Predict(t.room)
		fmt.Fprintf(t.out, "(%d pending)\n", n)
	}
	fmt.Fprint(t.out, describe(room, t.playerID))
}

// describe renders a room view as a few lines of text.
func describe(room signull.Room, me string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "room %s, round %d, %s\n", room.ID, room.Round, strings.ReplaceAll(string(room.Phase), "_", " "))

	switch room.Phase {
	case signull.PhaseGuessing:
		word := room.SecretWord
		if me != room.SetterID {
			word = room.SecretWord + "..."
		}
		fmt.Fprintf(&b, "word: %s  (%d revealed, %d direct guesses left)\n", word, room.RevealedCount, room.DirectGuessesLeft)
	case signull.PhaseEnded:
		fmt.Fprintf(&b, "word: %s  winner: %s\n", room.SecretWord, room.Winner)
	}

	var players []string
	for _, p := range room.Roster() {
		s := fmt.Sprintf("%s (%s %d)", p.Name, p.Role, p.Score)
		if p.ID == me {
			s = "*" + s
		}
		if !p.IsOnline {
			s += " offline"
		}
		players = append(players, s)
	}
	if len(players) > 0 {
		fmt.Fprintf(&b, "players: %s\n", strings.Join(players, ", "))
	}

	if room.Phase == signull.PhaseGuessing {
		switch giver := room.Rotation.ClueGiver; {
		case giver == me:
			fmt.Fprintln(&b, "your turn to send a signull")
		case giver != "":
			fmt.Fprintf(&b, "turn: %s\n", playerName(room, giver))
		case room.Rotation.Mode == signull.TurnSignull:
			fmt.Fprintln(&b, "turn open: volunteer to give the next clue")
		}
	}

	if ref := room.CurrentReference; ref != nil {
		fmt.Fprintf(&b, "signull %s from %s: %q  %d/%d connects",
			ref.ID, playerName(room, ref.ClueGiverID), ref.Clue, len(ref.Connects), ref.Required)
		if ref.Word != "" {
			fmt.Fprintf(&b, "  [%s]", ref.Word)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func playerName(room signull.Room, id string) string {
	if p := room.Players[id]; p != nil {
		return p.Name
	}
	return id
}
