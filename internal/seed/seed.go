// Package seed loads tenants, prompt templates, overrides, documents,
// memories and sample conversations from a TOML file and applies them
// to the engine's services.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/conversation"
	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/prompt"
	"github.com/evcomx/ragcore/internal/tenant"
)

// File is the decoded seed document.
type File struct {
	Templates []prompt.Template `toml:"templates"`
	Tenants   []Tenant          `toml:"tenants"`
}

// Tenant is one tenant with the data seeded for it.
type Tenant struct {
	tenant.Tenant
	// SystemPrompt overrides the system_chatbot template for this tenant.
	SystemPrompt  string         `toml:"system_prompt"`
	Documents     []Document     `toml:"documents"`
	Memories      []Memory       `toml:"memories"`
	Conversations []Conversation `toml:"conversations"`
}

// Document is ingested through the knowledge service.
type Document struct {
	Title   string `toml:"title"`
	Type    string `toml:"type"`
	Content string `toml:"content"`
}

// Memory is a long-term memory entry.
type Memory struct {
	Key   string `toml:"key"`
	Value string `toml:"value"`
}

// Conversation is a sample thread with its messages.
type Conversation struct {
	Title    string    `toml:"title"`
	Messages []Message `toml:"messages"`
}

// Message is one seeded turn.
type Message struct {
	Role string `toml:"role"`
	Text string `toml:"text"`
}

//go:embed sample.toml
var sampleTOML string

// Sample returns the bundled demonstration data.
func Sample() (*File, error) {
	return Parse(sampleTOML)
}

// Load reads and decodes path. Unknown keys are an error so typos do not
// go unnoticed.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes a seed document.
func Parse(data string) (*File, error) {
	var f File
	md, err := toml.Decode(data, &f)
	if err != nil {
		return nil, fmt.Errorf("decoding seed file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("decoding seed file: unknown keys %s", strings.Join(keys, ", "))
	}
	return &f, nil
}

// Tenants registers tenants.
type Tenants interface {
	Register(ctx context.Context, t *tenant.Tenant) error
}

// Prompts stores templates and overrides.
type Prompts interface {
	UpsertTemplate(ctx context.Context, t *prompt.Template) error
	UpsertOverride(ctx context.Context, tenantID, key, content string) error
}

// Knowledge ingests and lists documents.
type Knowledge interface {
	Ingest(ctx context.Context, req knowledge.IngestRequest) (*knowledge.IngestResult, error)
	List(ctx context.Context, tenantID string) ([]knowledge.DocumentSummary, error)
}

// Memories saves long-term memory.
type Memories interface {
	Save(ctx context.Context, tenantID, key, value string) (*memory.Entry, error)
}

// Conversations creates and fills threads.
type Conversations interface {
	List(ctx context.Context, tenantID string) ([]conversation.Summary, error)
	Start(ctx context.Context, tenantID, title string) (*conversation.Conversation, error)
	Append(ctx context.Context, tenantID, conversationID string, role conversation.Role, text string) (*conversation.Message, error)
}

// Targets receive the seeded data. All are required.
type Targets struct {
	Tenants       Tenants
	Prompts       Prompts
	Knowledge     Knowledge
	Memories      Memories
	Conversations Conversations
}

// Report counts what Apply wrote.
type Report struct {
	Templates     int `json:"templates"`
	Tenants       int `json:"tenants"`
	Overrides     int `json:"overrides"`
	Documents     int `json:"documents"`
	Memories      int `json:"memories"`
	Conversations int `json:"conversations"`
	Skipped       int `json:"skipped"`
}

// Apply writes f through t. Templates, tenants, overrides and memories are
// upserts. Documents and conversations whose title already exists for the
// tenant are skipped, so applying the same file twice adds nothing.
func Apply(ctx context.Context, f *File, t Targets, logger *logging.Logger) (*Report, error) {
	if t.Tenants == nil || t.Prompts == nil || t.Knowledge == nil || t.Memories == nil || t.Conversations == nil {
		return nil, errors.New("seed: every target is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("seed")
	rep := &Report{}

	for i := range f.Templates {
		tpl := f.Templates[i]
		if tpl.Version == 0 {
			tpl.Version = 1
		}
		if err := t.Prompts.UpsertTemplate(ctx, &tpl); err != nil {
			return rep, fmt.Errorf("template %q: %w", tpl.Key, err)
		}
		rep.Templates++
	}

	for i := range f.Tenants {
		if err := applyTenant(ctx, &f.Tenants[i], t, rep); err != nil {
			return rep, fmt.Errorf("tenant %q: %w", f.Tenants[i].ID, err)
		}
		logger.Info(ctx, "tenant seeded", zap.String("tenant_id", f.Tenants[i].ID))
	}
	return rep, nil
}

func applyTenant(ctx context.Context, s *Tenant, t Targets, rep *Report) error {
	tn := s.Tenant
	if err := t.Tenants.Register(ctx, &tn); err != nil {
		return err
	}
	rep.Tenants++

	if strings.TrimSpace(s.SystemPrompt) != "" {
		if err := t.Prompts.UpsertOverride(ctx, s.ID, prompt.SystemChatbot, s.SystemPrompt); err != nil {
			return fmt.Errorf("override: %w", err)
		}
		rep.Overrides++
	}

	existingDocs, err := t.Knowledge.List(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	titles := make(map[string]bool, len(existingDocs))
	for _, d := range existingDocs {
		titles[d.Title] = true
	}
	for _, d := range s.Documents {
		if titles[strings.TrimSpace(d.Title)] {
			rep.Skipped++
			continue
		}
		_, err := t.Knowledge.Ingest(ctx, knowledge.IngestRequest{
			TenantID: s.ID,
			Title:    d.Title,
			Content:  d.Content,
			Type:     knowledge.DocumentType(d.Type),
		})
		if err != nil {
			return fmt.Errorf("document %q: %w", d.Title, err)
		}
		rep.Documents++
	}

	for _, m := range s.Memories {
		if _, err := t.Memories.Save(ctx, s.ID, m.Key, m.Value); err != nil {
			return fmt.Errorf("memory %q: %w", m.Key, err)
		}
		rep.Memories++
	}

	existingConvs, err := t.Conversations.List(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}
	convTitles := make(map[string]bool, len(existingConvs))
	for _, c := range existingConvs {
		convTitles[c.Title] = true
	}
	for _, c := range s.Conversations {
		if convTitles[strings.TrimSpace(c.Title)] {
			rep.Skipped++
			continue
		}
		conv, err := t.Conversations.Start(ctx, s.ID, c.Title)
		if err != nil {
			return fmt.Errorf("conversation %q: %w", c.Title, err)
		}
		for _, m := range c.Messages {
			if _, err := t.Conversations.Append(ctx, s.ID, conv.ID, conversation.Role(m.Role), m.Text); err != nil {
				return fmt.Errorf("conversation %q: %w", c.Title, err)
			}
		}
		rep.Conversations++
	}
	return nil
}
