package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/evcomx/ragcore/internal/validation"
)

var (
	// ErrToolExecution matches every *ExecutionError.
	ErrToolExecution = errors.New("tool execution failed")
	// ErrUnknownTool is returned for a name missing from the registry.
	ErrUnknownTool = errors.New("unknown tool")
)

// ExecutionError reports a failed tool invocation.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Is reports true for ErrToolExecution.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrToolExecution
}

// Category groups tools in listings.
type Category string

const (
	CategoryKnowledge    Category = "knowledge"
	CategoryConversation Category = "conversation"
	CategoryTenant       Category = "tenant"
	CategoryMemory       Category = "memory"
	CategoryUtility      Category = "utility"
)

// Param describes one tool parameter.
type Param struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Schema maps parameter names to their description.
type Schema map[string]Param

// JSONSchema renders s as a JSON Schema object.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s))
	required := []string{}
	for name, p := range s {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}
	out := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		sort.Strings(required)
		out["required"] = required
	}
	return out
}

// Tool is one invocable operation.
type Tool interface {
	Name() string
	Description() string
	Category() Category
	Parameters() Schema
	Execute(ctx context.Context, tenantID string, params Params) (any, error)
}

// Params are the decoded arguments of one invocation.
type Params map[string]any

// String returns the trimmed string value of key. A missing key yields
// "" and a non-string value is a validation error.
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", validation.Newf(key, "must be a string")
	}
	return strings.TrimSpace(s), nil
}

// RequiredString is String that rejects an empty value.
func (p Params) RequiredString(key string) (string, error) {
	s, err := p.String(key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", validation.New(key, "is required")
	}
	return s, nil
}

// Int returns the integer value of key, or def when it is missing or zero.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		if x != math.Trunc(x) {
			return 0, validation.Newf(key, "must be an integer")
		}
		n = int(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, validation.Newf(key, "must be an integer")
		}
		n = int(i)
	default:
		return 0, validation.Newf(key, "must be a number")
	}
	if n == 0 {
		return def, nil
	}
	if n < 0 {
		return 0, validation.Newf(key, "must not be negative")
	}
	return n, nil
}
