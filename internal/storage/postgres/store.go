// Package postgres is the shared-database storage backend built on a
// pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evcomx/ragcore/internal/conversation"
	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/prompt"
	"github.com/evcomx/ragcore/internal/storage/postgres/migrations"
	"github.com/evcomx/ragcore/internal/tenant"
)

const foreignKeyViolation = "23503"

// Store implements every domain store on one Postgres database.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx, migrations.FS); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Truncate empties every data table. It exists for tests.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE tenants, documents, chunks, memories, conversations, messages,
		prompt_templates, prompt_overrides RESTART IDENTITY CASCADE`)
	return err
}

func (s *Store) migrate(ctx context.Context, fsys fs.FS) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}
	var current int
	if err := s.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
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
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Tenants.

func (s *Store) UpsertTenant(ctx context.Context, t *tenant.Tenant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, plan, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, plan = EXCLUDED.plan`,
		t.ID, t.Name, t.Plan, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving tenant: %w", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := s.pool.QueryRow(ctx, "SELECT id, name, plan, created_at FROM tenants WHERE id = $1", id).
		Scan(&t.ID, &t.Name, &t.Plan, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func (s *Store) CountConversations(ctx context.Context, tenantID string) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM conversations WHERE tenant_id = $1", tenantID)
}

func (s *Store) CountDocuments(ctx context.Context, tenantID string) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM documents WHERE tenant_id = $1", tenantID)
}

func (s *Store) count(ctx context.Context, query, tenantID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, query, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting: %w", err)
	}
	return n, nil
}

// Knowledge.

func (s *Store) CreateDocument(ctx context.Context, doc *knowledge.Document, chunks []knowledge.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO documents (id, tenant_id, title, content, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.TenantID, doc.Title, doc.Content, string(doc.Type), doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	batch := &pgx.Batch{}
	for _, c := range chunks {
		if c.DocumentID != doc.ID || c.TenantID != doc.TenantID {
			return fmt.Errorf("chunk %s does not belong to document %s", c.ID, doc.ID)
		}
		batch.Queue(`
			INSERT INTO chunks (id, document_id, tenant_id, chunk, embedding, chunk_index, total_chunks)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, c.DocumentID, c.TenantID, c.Text, c.Vector, c.Metadata.ChunkIndex, c.Metadata.TotalChunks)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting chunks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing document: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, tenantID, id string) (*knowledge.Document, error) {
	var (
		d   knowledge.Document
		typ string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, title, content, type, created_at, updated_at
		FROM documents WHERE id = $1 AND tenant_id = $2`, id, tenantID).
		Scan(&d.ID, &d.TenantID, &d.Title, &d.Content, &typ, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, knowledge.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	d.Type = knowledge.DocumentType(typ)
	d.CreatedAt, d.UpdatedAt = d.CreatedAt.UTC(), d.UpdatedAt.UTC()
	return &d, nil
}

func (s *Store) ListDocuments(ctx context.Context, tenantID string) ([]knowledge.DocumentSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.tenant_id, d.title, d.type, d.created_at, d.updated_at,
		       (SELECT COUNT(*) FROM chunks k WHERE k.document_id = d.id)
		FROM documents d
		WHERE d.tenant_id = $1
		ORDER BY d.created_at DESC, d.seq DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()
	out := []knowledge.DocumentSummary{}
	for rows.Next() {
		var (
			d   knowledge.DocumentSummary
			typ string
		)
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Title, &typ, &d.CreatedAt, &d.UpdatedAt, &d.ChunkCount); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.Type = knowledge.DocumentType(typ)
		d.CreatedAt, d.UpdatedAt = d.CreatedAt.UTC(), d.UpdatedAt.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListChunks(ctx context.Context, tenantID string) ([]knowledge.ChunkRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT k.id, k.document_id, k.tenant_id, k.chunk, k.embedding, k.chunk_index, k.total_chunks,
		       d.title, d.type, d.created_at, d.updated_at
		FROM chunks k
		JOIN documents d ON d.id = k.document_id
		WHERE k.tenant_id = $1 AND d.tenant_id = $1
		ORDER BY k.seq`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()
	out := []knowledge.ChunkRecord{}
	for rows.Next() {
		var (
			r   knowledge.ChunkRecord
			typ string
		)
		err := rows.Scan(&r.ID, &r.DocumentID, &r.TenantID, &r.Text, &r.Vector,
			&r.Metadata.ChunkIndex, &r.Metadata.TotalChunks,
			&r.Document.Title, &typ, &r.Document.CreatedAt, &r.Document.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		r.Document.ID = r.DocumentID
		r.Document.TenantID = r.TenantID
		r.Document.Type = knowledge.DocumentType(typ)
		r.Document.ChunkCount = r.Metadata.TotalChunks
		r.Document.CreatedAt, r.Document.UpdatedAt = r.Document.CreatedAt.UTC(), r.Document.UpdatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Memories.

func (s *Store) SaveMemory(ctx context.Context, e *memory.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memories (tenant_id, key, value, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		e.TenantID, e.Key, e.Value, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving memory: %w", err)
	}
	return nil
}

func (s *Store) GetMemory(ctx context.Context, tenantID, key string) (*memory.Entry, error) {
	e := memory.Entry{TenantID: tenantID, Key: key}
	err := s.pool.QueryRow(ctx,
		"SELECT value, updated_at FROM memories WHERE tenant_id = $1 AND key = $2", tenantID, key).
		Scan(&e.Value, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting memory: %w", err)
	}
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func (s *Store) ListMemories(ctx context.Context, tenantID string) ([]memory.Entry, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT key, value, updated_at FROM memories WHERE tenant_id = $1 ORDER BY key", tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()
	out := []memory.Entry{}
	for rows.Next() {
		e := memory.Entry{TenantID: tenantID}
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		e.UpdatedAt = e.UpdatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Conversations.

func (s *Store) CreateConversation(ctx context.Context, c *conversation.Conversation) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO conversations (id, tenant_id, title, created_at) VALUES ($1, $2, $3, $4)",
		c.ID, c.TenantID, c.Title, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, tenantID, id string) (*conversation.Conversation, error) {
	c := conversation.Conversation{ID: id, TenantID: tenantID}
	err := s.pool.QueryRow(ctx,
		"SELECT title, created_at FROM conversations WHERE id = $1 AND tenant_id = $2", id, tenantID).
		Scan(&c.Title, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, conversation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) ListConversations(ctx context.Context, tenantID string) ([]conversation.Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.title, c.created_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
		       COALESCE((SELECT m.text FROM messages m WHERE m.conversation_id = c.id ORDER BY m.seq LIMIT 1), '')
		FROM conversations c
		WHERE c.tenant_id = $1
		ORDER BY c.created_at DESC, c.seq DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()
	out := []conversation.Summary{}
	for rows.Next() {
		sum := conversation.Summary{Conversation: conversation.Conversation{TenantID: tenantID}}
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.CreatedAt, &sum.MessageCount, &sum.Preview); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		sum.CreatedAt = sum.CreatedAt.UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) AppendMessage(ctx context.Context, m *conversation.Message) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO messages (id, conversation_id, role, text, created_at) VALUES ($1, $2, $3, $4, $5)",
		m.ID, m.ConversationID, string(m.Role), m.Text, m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return conversation.ErrNotFound
		}
		return fmt.Errorf("appending message: %w", err)
	}
	return nil
}

func (s *Store) RecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]conversation.Message, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, role, text, created_at FROM (
			SELECT m.seq, m.id, m.role, m.text, m.created_at
			FROM messages m
			JOIN conversations c ON c.id = m.conversation_id
			WHERE m.conversation_id = $1 AND c.tenant_id = $2
			ORDER BY m.seq DESC
			LIMIT $3
		) recent ORDER BY seq`, conversationID, tenantID, lim)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()
	out := []conversation.Message{}
	for rows.Next() {
		m := conversation.Message{ConversationID: conversationID}
		var role string
		if err := rows.Scan(&m.ID, &role, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = conversation.Role(role)
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// Prompts.

func (s *Store) UpsertTemplate(ctx context.Context, t *prompt.Template) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO prompt_templates (key, content, version) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET content = EXCLUDED.content, version = EXCLUDED.version`,
		t.Key, t.Content, t.Version)
	if err != nil {
		return fmt.Errorf("saving template: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, key string) (*prompt.Template, error) {
	t := prompt.Template{Key: key}
	err := s.pool.QueryRow(ctx, "SELECT content, version FROM prompt_templates WHERE key = $1", key).
		Scan(&t.Content, &t.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, prompt.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting template: %w", err)
	}
	return &t, nil
}

func (s *Store) UpsertOverride(ctx context.Context, tenantID, key, content string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO prompt_overrides (tenant_id, template_key, content) VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, template_key) DO UPDATE SET content = EXCLUDED.content`,
		tenantID, key, content)
	if err != nil {
		return fmt.Errorf("saving override: %w", err)
	}
	return nil
}

func (s *Store) GetOverride(ctx context.Context, tenantID, key string) (string, error) {
	var content string
	err := s.pool.QueryRow(ctx,
		"SELECT content FROM prompt_overrides WHERE tenant_id = $1 AND template_key = $2", tenantID, key).
		Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", prompt.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting override: %w", err)
	}
	return content, nil
}
