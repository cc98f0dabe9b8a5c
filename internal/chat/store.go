package chat

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is the durable message log plus the room and profile tables. It
// stands in for the hosted relational backend: append-only messages,
// point-in-time history reads, narrow profile updates.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			vibe TEXT NOT NULL DEFAULT '',
			insecurity TEXT NOT NULL DEFAULT '',
			preferred_status TEXT NOT NULL DEFAULT 'online',
			custom_activity TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			is_agent INTEGER NOT NULL DEFAULT 0,
			is_private INTEGER NOT NULL DEFAULT 0,
			parent_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'text',
			metadata TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, is_private, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertMessage appends one message. A zero ID gets a fresh UUID and a zero
// CreatedAt gets the current time; the stored row is never touched again.
func (s *Store) InsertMessage(msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(msg.RoomID) == "" {
		return fmt.Errorf("insert message: missing room id")
	}
	if strings.TrimSpace(msg.AuthorID) == "" {
		return fmt.Errorf("insert message: missing author id")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Kind == "" {
		msg.Kind = KindText
	}

	metaJSON := ""
	if msg.Metadata != nil {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
		metaJSON = string(data)
	}

	_, err := s.db.Exec(`
		INSERT INTO messages (id, room_id, author_id, content, created_at, is_agent, is_private, parent_id, kind, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.RoomID, msg.AuthorID, msg.Content, msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(msg.IsAgent), boolToInt(msg.IsPrivate), msg.ParentID, msg.Kind, metaJSON)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecentHistory returns the newest non-private messages of a room,
// newest-first, capped at limit. Private messages never leave this layer.
func (s *Store) RecentHistory(roomID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT m.id, m.room_id, m.author_id, m.content, m.created_at, m.is_agent, m.is_private,
		       m.parent_id, m.kind, m.metadata, COALESCE(p.name, '')
		FROM messages m
		LEFT JOIN profiles p ON p.id = m.author_id
		WHERE m.room_id = ? AND m.is_private = 0
		ORDER BY m.created_at DESC
		LIMIT ?
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *Store) Room(id string) (*Room, error) {
	row := s.db.QueryRow(`SELECT id, name, created_at FROM rooms WHERE id = ?`, id)
	var r Room
	var createdAt string
	if err := row.Scan(&r.ID, &r.Name, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

func (s *Store) CreateRoom(name string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Room{ID: uuid.NewString(), Name: strings.TrimSpace(name), CreatedAt: time.Now().UTC()}
	if r.Name == "" {
		return nil, fmt.Errorf("create room: empty name")
	}
	_, err := s.db.Exec(`INSERT INTO rooms (id, name, created_at) VALUES (?, ?, ?)`,
		r.ID, r.Name, r.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return r, nil
}

func (s *Store) Profile(id string) (*Profile, error) {
	row := s.db.QueryRow(`
		SELECT id, name, vibe, insecurity, preferred_status, custom_activity
		FROM profiles WHERE id = ?
	`, id)
	var p Profile
	if err := row.Scan(&p.ID, &p.Name, &p.Vibe, &p.Insecurity, &p.PreferredStatus, &p.CustomActivity); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &p, nil
}

func (s *Store) UpsertProfile(p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PreferredStatus == "" {
		p.PreferredStatus = "online"
	}
	_, err := s.db.Exec(`
		INSERT INTO profiles (id, name, vibe, insecurity, preferred_status, custom_activity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			vibe = excluded.vibe,
			insecurity = excluded.insecurity
	`, p.ID, p.Name, p.Vibe, p.Insecurity, p.PreferredStatus, p.CustomActivity)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// UpdateProfileStatus writes the presence fields the status tool is allowed
// to touch. Empty strings leave the stored value alone; calling with both
// empty is an error so the tool layer can report a no-op.
func (s *Store) UpdateProfileStatus(userID, preferredStatus, customActivity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sets := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if preferredStatus != "" {
		sets = append(sets, "preferred_status = ?")
		args = append(args, preferredStatus)
	}
	if customActivity != "" {
		sets = append(sets, "custom_activity = ?")
		args = append(args, customActivity)
	}
	if len(sets) == 0 {
		return fmt.Errorf("update profile status: no fields provided")
	}
	args = append(args, userID)

	res, err := s.db.Exec(`UPDATE profiles SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update profile status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update profile status: unknown user %s", userID)
	}
	return nil
}

// EnsureAgentProfile makes sure the agent's sentinel profile row exists so
// history joins resolve its display name.
func (s *Store) EnsureAgentProfile(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO profiles (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, AgentUserID, name)
	if err != nil {
		return fmt.Errorf("ensure agent profile: %w", err)
	}
	return nil
}

// IdleRooms returns ids of rooms whose newest non-private message is older
// than the cutoff. Used by the revive sweep job.
func (s *Store) IdleRooms(olderThan time.Time) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT r.id FROM rooms r
		JOIN messages m ON m.room_id = r.id AND m.is_private = 0
		GROUP BY r.id
		HAVING MAX(m.created_at) < ?
	`, olderThan.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("query idle rooms: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan idle room: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idle rooms: %w", err)
	}
	return ids, nil
}

// MessageCount reports total stored messages. Used by status reporting.
func (s *Store) MessageCount() (int, error) {
	row := s.db.QueryRow(`SELECT COUNT(*) FROM messages`)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	result := make([]Message, 0)
	for rows.Next() {
		var m Message
		var createdAt, metaJSON string
		var isAgent, isPrivate int
		if err := rows.Scan(
			&m.ID,
			&m.RoomID,
			&m.AuthorID,
			&m.Content,
			&createdAt,
			&isAgent,
			&isPrivate,
			&m.ParentID,
			&m.Kind,
			&metaJSON,
			&m.AuthorName,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		m.IsAgent = isAgent == 1
		m.IsPrivate = isPrivate == 1
		if metaJSON != "" {
			var meta Metadata
			if err := json.Unmarshal([]byte(metaJSON), &meta); err == nil {
				m.Metadata = &meta
			}
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return result, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
