// Package agent implements the orchestration engine: one analyze turn is at
// most two completion calls with one round of tool execution in between.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"quantia/internal/domain"
	"quantia/internal/memory"
	"quantia/internal/metrics"
	"quantia/internal/tool"
)

const (
	// toolSnippetLength bounds the reference snippet cut from each tool
	// result.
	toolSnippetLength = 200

	defaultMaxTokens   = 4096
	defaultTemperature = 0.7
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is one analyze turn.
type Request struct {
	Query          string
	OwnerID        int64
	ConversationID string
	Role           string            // "patient" (default) or "doctor"
	Extra          map[string]string // optional extra context folded into the prompt
}

// Response is the outcome of a turn. Status is "success" or "error"; on
// error FinalText still carries a user-safe message and ConversationID is
// preserved when one was minted so the client can retry in-thread.
type Response struct {
	Status         string             `json:"status"`
	FinalText      string             `json:"final_text"`
	ConversationID string             `json:"conversation_id,omitempty"`
	References     []domain.Reference `json:"references"`
}

// StatusInfo is the liveness/capability probe result.
type StatusInfo struct {
	Status      string   `json:"status"`
	ToolsLoaded []string `json:"tools_loaded"`
}

// Engine drives the two-call orchestration turn.
type Engine struct {
	provider domain.Provider
	tools    *tool.Registry
	memory   *memory.Manager
	prompt   *PromptBuilder
	logger   *slog.Logger
	model    string
}

type EngineConfig struct {
	Provider domain.Provider // nil means not configured; analyze returns a configuration error
	Tools    *tool.Registry
	Memory   *memory.Manager
	Model    string
	Logger   *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		provider: cfg.Provider,
		tools:    cfg.Tools,
		memory:   cfg.Memory,
		prompt:   NewPromptBuilder(),
		logger:   cfg.Logger,
		model:    cfg.Model,
	}
}

// Analyze runs one turn: validate the caller, gather context, let the model
// decide on tools, execute them, and fold the results into a final answer.
// Every failure comes back as a well-formed error Response, never as a
// panic or raw error to the transport layer.
func (e *Engine) Analyze(ctx context.Context, req Request) Response {
	metrics.AnalyzeRequests.Inc()

	if req.OwnerID <= 0 {
		metrics.AnalyzeFailures.Inc()
		e.logger.Warn("analyze rejected: unresolvable owner", "owner", req.OwnerID)
		return Response{
			Status:     StatusError,
			FinalText:  "I could not verify who this request is for. Please sign in again.",
			References: []domain.Reference{},
		}
	}

	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	if e.provider == nil {
		metrics.AnalyzeFailures.Inc()
		e.logger.Error("analyze rejected: no completion provider configured")
		return Response{
			Status:         StatusError,
			FinalText:      "The assistant is not fully configured yet. Please try again later.",
			ConversationID: convID,
			References:     []domain.Reference{},
		}
	}

	role := req.Role
	if role != "doctor" {
		role = "patient"
	}

	var history []domain.Episode
	if e.memory != nil {
		history = e.memory.History(ctx, req.OwnerID, convID, 0)
	}
	messages := e.prompt.BuildMessages(req.OwnerID, role, req.Query, history, req.Extra)

	var toolDefs []domain.ToolDefinition
	if e.tools != nil {
		toolDefs = e.tools.Definitions()
	}

	first, err := e.chat(ctx, domain.ChatRequest{
		Messages:   messages,
		Tools:      toolDefs,
		ToolChoice: "auto",
	})
	if err != nil {
		metrics.AnalyzeFailures.Inc()
		e.logger.Error("first completion failed", "owner", req.OwnerID, "error", err)
		return e.errorResponse(convID)
	}

	finalText := first.Content
	references := []domain.Reference{}
	var toolsUsed []string

	if first.HasToolCalls() {
		messages = append(messages, domain.Message{
			Role:      "assistant",
			Content:   first.Content,
			ToolCalls: first.ToolCalls,
		})

		// Tool calls run sequentially; each result is threaded back under
		// its originating call id and cited as a reference.
		for _, tc := range first.ToolCalls {
			start := time.Now()
			result := e.tools.Execute(ctx, req.OwnerID, tc.Name, tc.Arguments)
			e.logger.Debug("tool round step",
				"tool", tc.Name, "call_id", tc.ID, "elapsed", time.Since(start))

			messages = append(messages, domain.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
			references = append(references, domain.Reference{
				Title:   "Tool: " + tc.Name,
				Source:  "System",
				Snippet: snippet(result, toolSnippetLength),
			})
			toolsUsed = append(toolsUsed, tc.Name)
		}

		second, err := e.chat(ctx, domain.ChatRequest{Messages: messages})
		if err != nil {
			metrics.AnalyzeFailures.Inc()
			e.logger.Error("second completion failed", "owner", req.OwnerID, "error", err)
			return e.errorResponse(convID)
		}
		finalText = second.Content
	}

	if e.memory != nil {
		e.memory.Append(ctx, req.OwnerID, role, req.Query, convID, map[string]any{
			"conv_id": convID,
		})
		assistantRole := "assistant"
		if role == "doctor" {
			assistantRole = "assistant_doctor"
		}
		e.memory.Append(ctx, req.OwnerID, assistantRole, finalText, convID, map[string]any{
			"conv_id":    convID,
			"tools_used": toolsUsed,
		})
	}

	return Response{
		Status:         StatusSuccess,
		FinalText:      finalText,
		ConversationID: convID,
		References:     references,
	}
}

// Status reports liveness and the loaded tool catalog. No side effects.
func (e *Engine) Status() StatusInfo {
	info := StatusInfo{Status: "ok", ToolsLoaded: []string{}}
	if e.tools != nil {
		info.ToolsLoaded = e.tools.Names()
	}
	return info
}

func (e *Engine) chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	req.Model = e.model
	req.MaxTokens = defaultMaxTokens
	req.Temperature = defaultTemperature

	start := time.Now()
	resp, err := e.provider.Chat(ctx, req)
	metrics.CompletionsTotal.Inc()
	metrics.CompletionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	return resp, nil
}

func (e *Engine) errorResponse(convID string) Response {
	return Response{
		Status:         StatusError,
		FinalText:      "Sorry, I ran into an internal problem while processing your request.",
		ConversationID: convID,
		References:     []domain.Reference{},
	}
}

// snippet truncates a tool result for citation, marking the cut.
func snippet(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s + "..."
	}
	return string(runes[:limit]) + "..."
}
