// Package sqlite is the single-file storage backend built on the pure-Go
// modernc SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/evcomx/ragcore/internal/conversation"
	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/prompt"
	"github.com/evcomx/ragcore/internal/storage/sqlite/migrations"
	"github.com/evcomx/ragcore/internal/tenant"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store implements every domain store on one SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies
// pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := path
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == MemoryPath {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context, fsys fs.FS) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}
	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Tenants ====================

func (s *Store) UpsertTenant(ctx context.Context, t *tenant.Tenant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, plan, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, plan = excluded.plan`,
		t.ID, t.Name, t.Plan, toUnix(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving tenant: %w", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	var (
		t       tenant.Tenant
		created int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT id, name, plan, created_at FROM tenants WHERE id = ?", id).
		Scan(&t.ID, &t.Name, &t.Plan, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	t.CreatedAt = fromUnix(created)
	return &t, nil
}

func (s *Store) CountConversations(ctx context.Context, tenantID string) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM conversations WHERE tenant_id = ?", tenantID)
}

func (s *Store) CountDocuments(ctx context.Context, tenantID string) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM documents WHERE tenant_id = ?", tenantID)
}

func (s *Store) count(ctx context.Context, query, tenantID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting: %w", err)
	}
	return n, nil
}

// ==================== Knowledge ====================

func (s *Store) CreateDocument(ctx context.Context, doc *knowledge.Document, chunks []knowledge.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, title, content, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.TenantID, doc.Title, doc.Content, string(doc.Type),
		toUnix(doc.CreatedAt), toUnix(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, tenant_id, chunk, embedding, chunk_index, total_chunks)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()
	for _, c := range chunks {
		if c.DocumentID != doc.ID || c.TenantID != doc.TenantID {
			return fmt.Errorf("chunk %s does not belong to document %s", c.ID, doc.ID)
		}
		_, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.TenantID, c.Text,
			encodeVector(c.Vector), c.Metadata.ChunkIndex, c.Metadata.TotalChunks)
		if err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Metadata.ChunkIndex, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing document: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, tenantID, id string) (*knowledge.Document, error) {
	var (
		d                knowledge.Document
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, title, content, type, created_at, updated_at
		FROM documents WHERE id = ? AND tenant_id = ?`, id, tenantID).
		Scan(&d.ID, &d.TenantID, &d.Title, &d.Content, &d.Type, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, knowledge.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	d.CreatedAt, d.UpdatedAt = fromUnix(created), fromUnix(updated)
	return &d, nil
}

func (s *Store) ListDocuments(ctx context.Context, tenantID string) ([]knowledge.DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.tenant_id, d.title, d.type, d.created_at, d.updated_at,
		       (SELECT COUNT(*) FROM chunks k WHERE k.document_id = d.id)
		FROM documents d
		WHERE d.tenant_id = ?
		ORDER BY d.created_at DESC, d.seq DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()
	out := []knowledge.DocumentSummary{}
	for rows.Next() {
		var (
			d                knowledge.DocumentSummary
			created, updated int64
		)
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Title, &d.Type, &created, &updated, &d.ChunkCount); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.CreatedAt, d.UpdatedAt = fromUnix(created), fromUnix(updated)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListChunks(ctx context.Context, tenantID string) ([]knowledge.ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT k.id, k.document_id, k.tenant_id, k.chunk, k.embedding, k.chunk_index, k.total_chunks,
		       d.title, d.type, d.created_at, d.updated_at
		FROM chunks k
		JOIN documents d ON d.id = k.document_id
		WHERE k.tenant_id = ? AND d.tenant_id = ?
		ORDER BY k.seq`, tenantID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()
	out := []knowledge.ChunkRecord{}
	for rows.Next() {
		var (
			r                knowledge.ChunkRecord
			blob             []byte
			created, updated int64
		)
		err := rows.Scan(&r.ID, &r.DocumentID, &r.TenantID, &r.Text, &blob,
			&r.Metadata.ChunkIndex, &r.Metadata.TotalChunks,
			&r.Document.Title, &r.Document.Type, &created, &updated)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		r.Vector = decodeVector(blob)
		r.Document.ID = r.DocumentID
		r.Document.TenantID = r.TenantID
		r.Document.ChunkCount = r.Metadata.TotalChunks
		r.Document.CreatedAt, r.Document.UpdatedAt = fromUnix(created), fromUnix(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ==================== Memories ====================

func (s *Store) SaveMemory(ctx context.Context, e *memory.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (tenant_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		e.TenantID, e.Key, e.Value, toUnix(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving memory: %w", err)
	}
	return nil
}

func (s *Store) GetMemory(ctx context.Context, tenantID, key string) (*memory.Entry, error) {
	e := memory.Entry{TenantID: tenantID, Key: key}
	var updated int64
	err := s.db.QueryRowContext(ctx,
		"SELECT value, updated_at FROM memories WHERE tenant_id = ? AND key = ?", tenantID, key).
		Scan(&e.Value, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting memory: %w", err)
	}
	e.UpdatedAt = fromUnix(updated)
	return &e, nil
}

func (s *Store) ListMemories(ctx context.Context, tenantID string) ([]memory.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value, updated_at FROM memories WHERE tenant_id = ? ORDER BY key", tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()
	out := []memory.Entry{}
	for rows.Next() {
		e := memory.Entry{TenantID: tenantID}
		var updated int64
		if err := rows.Scan(&e.Key, &e.Value, &updated); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		e.UpdatedAt = fromUnix(updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ==================== Conversations ====================

func (s *Store) CreateConversation(ctx context.Context, c *conversation.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, tenant_id, title, created_at) VALUES (?, ?, ?, ?)",
		c.ID, c.TenantID, c.Title, toUnix(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, tenantID, id string) (*conversation.Conversation, error) {
	c := conversation.Conversation{ID: id, TenantID: tenantID}
	var created int64
	err := s.db.QueryRowContext(ctx,
		"SELECT title, created_at FROM conversations WHERE id = ? AND tenant_id = ?", id, tenantID).
		Scan(&c.Title, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conversation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	c.CreatedAt = fromUnix(created)
	return &c, nil
}

func (s *Store) ListConversations(ctx context.Context, tenantID string) ([]conversation.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
		       COALESCE((SELECT m.text FROM messages m WHERE m.conversation_id = c.id ORDER BY m.seq LIMIT 1), '')
		FROM conversations c
		WHERE c.tenant_id = ?
		ORDER BY c.created_at DESC, c.seq DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()
	out := []conversation.Summary{}
	for rows.Next() {
		sum := conversation.Summary{Conversation: conversation.Conversation{TenantID: tenantID}}
		var created int64
		if err := rows.Scan(&sum.ID, &sum.Title, &created, &sum.MessageCount, &sum.Preview); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		sum.CreatedAt = fromUnix(created)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) AppendMessage(ctx context.Context, m *conversation.Message) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, conversation_id, role, text, created_at) VALUES (?, ?, ?, ?, ?)",
		m.ID, m.ConversationID, string(m.Role), m.Text, toUnix(m.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return conversation.ErrNotFound
		}
		return fmt.Errorf("appending message: %w", err)
	}
	return nil
}

func (s *Store) RecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]conversation.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, text, created_at FROM (
			SELECT m.seq, m.id, m.role, m.text, m.created_at
			FROM messages m
			JOIN conversations c ON c.id = m.conversation_id
			WHERE m.conversation_id = ? AND c.tenant_id = ?
			ORDER BY m.seq DESC
			LIMIT ?
		) ORDER BY seq`, conversationID, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()
	out := []conversation.Message{}
	for rows.Next() {
		m := conversation.Message{ConversationID: conversationID}
		var created int64
		if err := rows.Scan(&m.ID, &m.Role, &m.Text, &created); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.CreatedAt = fromUnix(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ==================== Prompts ====================

func (s *Store) UpsertTemplate(ctx context.Context, t *prompt.Template) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompt_templates (key, content, version) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET content = excluded.content, version = excluded.version`,
		t.Key, t.Content, t.Version)
	if err != nil {
		return fmt.Errorf("saving template: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, key string) (*prompt.Template, error) {
	t := prompt.Template{Key: key}
	err := s.db.QueryRowContext(ctx, "SELECT content, version FROM prompt_templates WHERE key = ?", key).
		Scan(&t.Content, &t.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, prompt.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting template: %w", err)
	}
	return &t, nil
}

func (s *Store) UpsertOverride(ctx context.Context, tenantID, key, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompt_overrides (tenant_id, template_key, content) VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, template_key) DO UPDATE SET content = excluded.content`,
		tenantID, key, content)
	if err != nil {
		return fmt.Errorf("saving override: %w", err)
	}
	return nil
}

func (s *Store) GetOverride(ctx context.Context, tenantID, key string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		"SELECT content FROM prompt_overrides WHERE tenant_id = ? AND template_key = ?", tenantID, key).
		Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", prompt.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting override: %w", err)
	}
	return content, nil
}

// ==================== Encoding ====================

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}

func toUnix(t time.Time) int64 { return t.UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }
