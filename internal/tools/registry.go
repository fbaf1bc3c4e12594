package tools

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/tenant"
)

var tracer = otel.Tracer("github.com/evcomx/ragcore/internal/tools")

// Descriptor is the serializable view of a tool.
type Descriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Parameters  Schema   `json:"parameters"`
}

// Describe returns the Descriptor of t.
func Describe(t Tool) Descriptor {
	return Descriptor{
		Name:        t.Name(),
		Description: t.Description(),
		Category:    t.Category(),
		Parameters:  t.Parameters(),
	}
}

// Registry is a named catalogue of tools kept in registration order.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	order   []string
	logger  *logging.Logger
	metrics *metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		tools:   make(map[string]Tool),
		logger:  logger.Named("tools"),
		metrics: newMetrics(),
	}
}

// Register adds t. Names are unique.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("registering tool: name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[t.Name()]; dup {
		return fmt.Errorf("registering tool: %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Get returns the tool named name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every tool in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Descriptors returns the catalogue in registration order.
func (r *Registry) Descriptors() []Descriptor {
	tools := r.List()
	out := make([]Descriptor, len(tools))
	for i, t := range tools {
		out[i] = Describe(t)
	}
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs the tool named name for tenantID. Unknown names return
// ErrUnknownTool; any failure of the tool itself is an *ExecutionError.
func (r *Registry) Execute(ctx context.Context, name, tenantID string, params Params) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, &ExecutionError{Tool: name, Err: err}
	}
	if params == nil {
		params = Params{}
	}

	ctx, span := tracer.Start(ctx, "tools.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	start := time.Now()
	result, err := t.Execute(ctx, tenantID, params)
	r.metrics.record(ctx, name, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn(ctx, "tool failed", zap.String("tool", name), zap.Error(err))
		return nil, &ExecutionError{Tool: name, Err: err}
	}
	r.logger.Debug(ctx, "tool executed",
		zap.String("tool", name),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// SearchResult is a tool matched by Search.
type SearchResult struct {
	Tool        Descriptor `json:"tool"`
	Score       int        `json:"score"`
	MatchReason string     `json:"matchReason"`
}

// Search finds tools by name or description, case-insensitively. The
// query is also tried as a regular expression. Exact name matches score
// 3, name matches 2 and description matches 1.
func (r *Registry) Search(query string) []SearchResult {
	if query == "" {
		return []SearchResult{}
	}
	q := strings.ToLower(query)
	var re *regexp.Regexp
	if compiled, err := regexp.Compile("(?i)" + query); err == nil {
		re = compiled
	}

	out := []SearchResult{}
	for _, t := range r.List() {
		name := strings.ToLower(t.Name())
		desc := strings.ToLower(t.Description())
		var score int
		var reason string
		switch {
		case name == q:
			score, reason = 3, "exact name match"
		case strings.Contains(name, q):
			score, reason = 2, "name contains query"
		case re != nil && re.MatchString(t.Name()):
			score, reason = 2, "name matches pattern"
		case strings.Contains(desc, q):
			score, reason = 1, "description contains query"
		case re != nil && re.MatchString(t.Description()):
			score, reason = 1, "description matches pattern"
		default:
			continue
		}
		out = append(out, SearchResult{Tool: Describe(t), Score: score, MatchReason: reason})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
