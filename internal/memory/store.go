package memory

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Fact is one persisted memory about a user.
type Fact struct {
	ID        string
	UserID    string
	RoomID    string
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

// Store persists facts with their embeddings in sqlite. Similarity search
// is brute force over all rows, which is plenty for a group chat.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}

	s := &Store{db: db}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure memory db: %w", err)
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		room_id TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init memory schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Insert(fact *Fact) error {
	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now().UTC()
	}

	blob, err := EncodeVector(fact.Embedding)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT INTO memories (id, user_id, room_id, content, embedding, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		fact.ID, fact.UserID, fact.RoomID, fact.Content, blob, fact.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

type scoredFact struct {
	fact  Fact
	score float64
}

// Search returns up to limit facts whose cosine similarity with query
// meets threshold, best match first.
func (s *Store) Search(query []float32, threshold float64, limit int) ([]Fact, error) {
	rows, err := s.db.Query(`SELECT id, user_id, room_id, content, embedding, created_at FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	var scored []scoredFact
	for rows.Next() {
		var f Fact
		var blob []byte
		var createdAt string
		if err := rows.Scan(&f.ID, &f.UserID, &f.RoomID, &f.Content, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		vector, err := DecodeVector(blob)
		if err != nil {
			continue // skip corrupt rows rather than fail the recall
		}
		score, err := CosineSimilarity(query, vector)
		if err != nil || score < threshold {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			f.CreatedAt = t
		}
		f.Embedding = vector
		scored = append(scored, scoredFact{fact: f, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}

	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && scored[j].score > scored[j-1].score; j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	facts := make([]Fact, len(scored))
	for i, sf := range scored {
		facts[i] = sf.fact
	}
	return facts, nil
}

func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}
