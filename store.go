/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/prayush21/connect-a-fun-social-game-sub002/games/signull"
)

var errRoomNotFound = errors.New("room not found")

// Store keeps the latest snapshot of every room so a room survives being
// unloaded or the process restarting.
type Store interface {
	Save(ctx context.Context, room signull.Room) error
	Load(ctx context.Context, id string) (signull.Room, error)
	Close() error
}

func openStore(ctx context.Context, path string) (Store, error) {
	if path == "" {
		return newMemoryStore(), nil
	}
	return openSQLiteStore(ctx, path)
}

// memoryStore holds encoded snapshots, so callers never share pointers with
// a stored room.
type memoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rooms: make(map[string][]byte)}
}

func (m *memoryStore) Save(_ context.Context, room signull.Room) error {
	doc, err := json.Marshal(room)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.ID] = doc
	return nil
}

func (m *memoryStore) Load(_ context.Context, id string) (signull.Room, error) {
	m.mu.RLock()
	doc, ok := m.rooms[id]
	m.mu.RUnlock()
	if !ok {
		return signull.Room{}, errRoomNotFound
	}
	return decodeRoom(id, doc)
}

func (m *memoryStore) Close() error {
	return nil
}

const roomsSchema = `CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	phase      TEXT NOT NULL,
	doc        TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

type sqliteStore struct {
	db *sql.DB
}

func openSQLiteStore(ctx context.Context, path string) (*sqliteStore, error) {
	if err := ensureParent(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, roomsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create rooms table: %w", err)
	}

	log.Info().Str("db", path).Msg("room snapshots stored in sqlite")

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Save(ctx context.Context, room signull.Room) error {
	doc, err := json.Marshal(room)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, phase, doc, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET phase=excluded.phase, doc=excluded.doc, updated_at=excluded.updated_at`,
		room.ID, string(room.Phase), string(doc), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save room %s: %w", room.ID, err)
	}
	return nil
}

func (s *sqliteStore) Load(ctx context.Context, id string) (signull.Room, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM rooms WHERE id=?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return signull.Room{}, errRoomNotFound
	}
	if err != nil {
		return signull.Room{}, fmt.Errorf("load room %s: %w", id, err)
	}
	return decodeRoom(id, []byte(doc))
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// decodeRoom refuses documents that do not hold up as a snapshot.
func decodeRoom(id string, doc []byte) (signull.Room, error) {
	var room signull.Room
	if err := json.Unmarshal(doc, &room); err != nil {
		return signull.Room{}, fmt.Errorf("decode room %s: %w", id, err)
	}
	if room.Players == nil {
		room.Players = make(map[string]*signull.Player)
	}
	if err := room.Validate(); err != nil {
		return signull.Room{}, err
	}
	return room, nil
}
