// Package tool holds the static registry of health data-retrieval tools the
// orchestrator exposes to the completion service, plus the built-in tool set.
// The registry is populated once at process start and read-only afterwards.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"quantia/internal/domain"
	"quantia/internal/metrics"
)

// Registry maps tool names to implementations and dispatches calls.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

func (r *Registry) Register(t domain.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.logger.Debug("registered tool", "name", t.Name())
}

func (r *Registry) Get(name string) domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Execute resolves and runs one tool call for an owner. The result is
// always a usable string: unknown tools and tool failures come back as
// textual errors, never as aborts. One malfunctioning tool must not take
// the round down with it.
func (r *Registry) Execute(ctx context.Context, ownerID int64, name string, args map[string]any) string {
	t := r.Get(name)
	if t == nil {
		r.logger.Warn("model requested unknown tool", "name", name)
		return fmt.Sprintf("Error: tool %q not found.", name)
	}

	start := time.Now()
	result, err := func() (res string, execErr error) {
		defer func() {
			if rec := recover(); rec != nil {
				execErr = fmt.Errorf("tool panicked: %v", rec)
			}
		}()
		return t.Execute(ctx, ownerID, args)
	}()
	elapsed := time.Since(start)
	metrics.ToolInvocations.Inc()
	metrics.ToolLatency.Observe(elapsed.Seconds())

	if err != nil {
		r.logger.Warn("tool execution failed", "tool", name, "elapsed", elapsed, "error", err)
		return fmt.Sprintf("Error executing %s: %s", name, err.Error())
	}
	r.logger.Debug("tool completed", "tool", name, "elapsed", elapsed, "result_len", len(result))
	return result
}

// Definitions returns the tool catalog in the completion API shape, sorted
// by name for a stable prompt.
func (r *Registry) Definitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Param describes a single tool parameter.
type Param struct {
	Type        string
	Description string
}

// ToolParameters builds a JSON Schema "parameters" object for a tool.
func ToolParameters(properties map[string]Param, required []string) map[string]any {
	props := make(map[string]any)
	for name, p := range properties {
		props[name] = map[string]any{"type": p.Type, "description": p.Description}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ArgsString extracts a string argument; non-strings are JSON-encoded.
func ArgsString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// ArgsInt extracts an integer argument; JSON numbers arrive as float64.
func ArgsInt(args map[string]any, key string) (int, bool) {
	if args == nil {
		return 0, false
	}
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
	}
	return 0, false
}

// ArgsFloat extracts a numeric argument.
func ArgsFloat(args map[string]any, key string) (float64, bool) {
	if args == nil {
		return 0, false
	}
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

// ArgsStringSlice extracts a list-of-strings argument; a lone string yields
// a one-element slice.
func ArgsStringSlice(args map[string]any, key string) []string {
	if args == nil {
		return nil
	}
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}
