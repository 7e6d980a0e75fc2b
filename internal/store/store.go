package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"

	"github.com/fieldwise/farmhand/internal/advisor"
)

// Store wraps the Postgres connection behind the persistence operations the
// service needs. Schema management lives in migrations/.
type Store struct {
	DB *sql.DB
}

var _ advisor.Storage = (*Store)(nil)

// Conversation is one advisory thread. The title is derived from the first
// question and never overwritten afterwards.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn is a single message in a conversation. Assistant turns carry the
// sources, strategy and timing of the answer that produced them.
type Turn struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversation_id"`
	Role           string              `json:"role"`
	Content        string              `json:"content"`
	Sources        []advisor.SourceRef `json:"sources"`
	Strategy       advisor.Strategy    `json:"strategy,omitempty"`
	ElapsedMS      int64               `json:"elapsed_ms"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Document is registered reference material; its text lives in fragments.
type Document struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"display_name"`
	FragmentCount int       `json:"fragment_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// New connects using DATABASE_URL or the POSTGRES_* variables. The CLI uses
// this path when no config file is given.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// Conversation operations

func (s *Store) CreateConversation(ctx context.Context, title string) (Conversation, error) {
	var conv Conversation
	err := s.DB.QueryRowContext(ctx, `INSERT INTO conversations (title) VALUES ($1) RETURNING id, title, created_at, updated_at`, title).
		Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	return conv, err
}

func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// GetConversation fetches one conversation. Bool reports whether it exists.
func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, bool, error) {
	var conv Conversation
	err := s.DB.QueryRowContext(ctx, `SELECT id, title, created_at, updated_at FROM conversations WHERE id=$1`, id).
		Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return Conversation{}, false, nil
	}
	if err != nil {
		return Conversation{}, false, err
	}
	return conv, true, nil
}

// DeleteConversation removes a conversation and, through the FK cascade, its
// turns. Bool reports whether a row was deleted.
func (s *Store) DeleteConversation(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM conversations WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeConversationsIdleSince deletes conversations whose last activity is
// older than the cutoff. Used by the janitor when retention is configured.
func (s *Store) PurgeConversationsIdleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM conversations WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TouchConversation bumps the activity timestamp and fills the title, but
// only while the title is still empty.
func (s *Store) TouchConversation(ctx context.Context, conversationID, title string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE conversations
SET updated_at = NOW(),
    title = CASE WHEN title = '' THEN $2 ELSE title END
WHERE id=$1
`, conversationID, title)
	return err
}

// Turn operations

func (s *Store) AppendTurn(ctx context.Context, conversationID, role, content string, sources []advisor.SourceRef, strategy advisor.Strategy, elapsedMS int64) (string, error) {
	if sources == nil {
		sources = []advisor.SourceRef{}
	}
	srcJSON, err := json.Marshal(sources)
	if err != nil {
		return "", fmt.Errorf("marshal sources: %w", err)
	}
	var id string
	err = s.DB.QueryRowContext(ctx, `INSERT INTO turns (conversation_id, role, content, sources, strategy, elapsed_ms) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		conversationID, role, content, srcJSON, string(strategy), elapsedMS).Scan(&id)
	return id, err
}

func (s *Store) ListTurns(ctx context.Context, conversationID string) ([]Turn, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, conversation_id, role, content, sources, strategy, elapsed_ms, created_at
FROM turns
WHERE conversation_id=$1
ORDER BY created_at ASC
`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Turn
	for rows.Next() {
		var (
			t        Turn
			srcJSON  []byte
			strategy string
		)
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Role, &t.Content, &srcJSON, &strategy, &t.ElapsedMS, &t.CreatedAt); err != nil {
			return nil, err
		}
		if len(srcJSON) > 0 {
			if err := json.Unmarshal(srcJSON, &t.Sources); err != nil {
				return nil, fmt.Errorf("unmarshal sources for turn %s: %w", t.ID, err)
			}
		}
		t.Strategy = advisor.Strategy(strategy)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Document operations

// CreateDocument registers reference material whose text arrives already
// chunked. The document row and its fragments commit atomically.
func (s *Store) CreateDocument(ctx context.Context, displayName string, fragments []string) (Document, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, err
	}
	defer tx.Rollback()

	var doc Document
	if err := tx.QueryRowContext(ctx, `INSERT INTO documents (display_name) VALUES ($1) RETURNING id, display_name, created_at`, displayName).
		Scan(&doc.ID, &doc.DisplayName, &doc.CreatedAt); err != nil {
		return Document{}, err
	}
	for i, text := range fragments {
		if _, err := tx.ExecContext(ctx, `INSERT INTO fragments (document_id, seq, content) VALUES ($1,$2,$3)`, doc.ID, i+1, text); err != nil {
			return Document{}, fmt.Errorf("insert fragment %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Document{}, err
	}
	doc.FragmentCount = len(fragments)
	return doc, nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT d.id, d.display_name, d.created_at, COUNT(f.id)
FROM documents d
LEFT JOIN fragments f ON f.document_id = d.id
GROUP BY d.id, d.display_name, d.created_at
ORDER BY d.created_at DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.DisplayName, &doc.CreatedAt, &doc.FragmentCount); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document and its fragments. Bool reports whether
// a row was deleted.
func (s *Store) DeleteDocument(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) FragmentsForDocument(ctx context.Context, documentID string) ([]advisor.Fragment, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT f.id, f.document_id, d.display_name, f.seq, f.content
FROM fragments f
JOIN documents d ON d.id = f.document_id
WHERE f.document_id=$1
ORDER BY f.seq ASC
`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFragments(rows)
}

// FragmentsForDocuments loads the retrieval candidates for a question. The
// ordering is fixed so repeated questions rank over an identical sequence.
func (s *Store) FragmentsForDocuments(ctx context.Context, documentIDs []string) ([]advisor.Fragment, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT f.id, f.document_id, d.display_name, f.seq, f.content
FROM fragments f
JOIN documents d ON d.id = f.document_id
WHERE f.document_id = ANY($1)
ORDER BY f.document_id, f.seq
`, pq.Array(documentIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFragments(rows)
}

// AllFragments streams the whole reference library, oldest document first.
// The search index rebuild uses this at boot.
func (s *Store) AllFragments(ctx context.Context) ([]advisor.Fragment, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT f.id, f.document_id, d.display_name, f.seq, f.content
FROM fragments f
JOIN documents d ON d.id = f.document_id
ORDER BY d.created_at ASC, f.seq ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFragments(rows)
}

func scanFragments(rows *sql.Rows) ([]advisor.Fragment, error) {
	var out []advisor.Fragment
	for rows.Next() {
		var f advisor.Fragment
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.Document, &f.Seq, &f.Text); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Dataset operations

func (s *Store) RegisterDataset(ctx context.Context, name, storagePath string, columns []string, rowCount int) (advisor.Dataset, error) {
	if columns == nil {
		columns = []string{}
	}
	ds := advisor.Dataset{Name: name, StoragePath: storagePath, Columns: columns, RowCount: rowCount}
	err := s.DB.QueryRowContext(ctx, `INSERT INTO datasets (name, storage_path, columns, row_count) VALUES ($1,$2,$3,$4) RETURNING id, registered_at`,
		name, storagePath, pq.Array(columns), rowCount).Scan(&ds.ID, &ds.RegisteredAt)
	return ds, err
}

func (s *Store) ListDatasets(ctx context.Context) ([]advisor.Dataset, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, name, storage_path, columns, row_count, registered_at
FROM datasets
ORDER BY registered_at DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDatasets(rows)
}

func (s *Store) DatasetsByIDs(ctx context.Context, ids []string) ([]advisor.Dataset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, name, storage_path, columns, row_count, registered_at
FROM datasets
WHERE id = ANY($1)
ORDER BY registered_at ASC
`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDatasets(rows)
}

func scanDatasets(rows *sql.Rows) ([]advisor.Dataset, error) {
	var out []advisor.Dataset
	for rows.Next() {
		var (
			ds      advisor.Dataset
			columns pq.StringArray
		)
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.StoragePath, &columns, &ds.RowCount, &ds.RegisteredAt); err != nil {
			return nil, err
		}
		ds.Columns = []string(columns)
		out = append(out, ds)
	}
	return out, rows.Err()
}

// Query event operations

func (s *Store) RecordQueryEvent(ctx context.Context, ev advisor.QueryEvent) error {
	docIDs := ev.DocumentIDs
	if docIDs == nil {
		docIDs = []string{}
	}
	dsIDs := ev.DatasetIDs
	if dsIDs == nil {
		dsIDs = []string{}
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO query_events (conversation_id, query, strategy, document_ids, dataset_ids, web_lookup) VALUES ($1,$2,$3,$4,$5,$6)`,
		ev.ConversationID, ev.Query, string(ev.Strategy), pq.Array(docIDs), pq.Array(dsIDs), ev.WebLookup)
	return err
}
