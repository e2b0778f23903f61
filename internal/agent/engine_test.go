package agent

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"quantia/internal/domain"
	"quantia/internal/memory"
	"quantia/internal/tool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeProvider replays scripted responses and records every request.
type fakeProvider struct {
	responses []*domain.ChatResponse
	errs      []error
	requests  []domain.ChatRequest
}

func (f *fakeProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return &domain.ChatResponse{Content: "unscripted", FinishReason: "stop"}, nil
}

func (f *fakeProvider) Name() string                      { return "fake" }
func (f *fakeProvider) Healthy(ctx context.Context) error { return nil }

var _ domain.Provider = (*fakeProvider)(nil)

// scriptedTool returns a canned result or error.
type scriptedTool struct {
	name   string
	result string
	err    error
	calls  int
}

func (s *scriptedTool) Name() string               { return s.name }
func (s *scriptedTool) Description() string        { return "scripted " + s.name }
func (s *scriptedTool) Parameters() map[string]any { return tool.ToolParameters(nil, nil) }
func (s *scriptedTool) Execute(ctx context.Context, ownerID int64, args map[string]any) (string, error) {
	s.calls++
	return s.result, s.err
}

// memoryEpisodeStore keeps episodes in a slice.
type memoryEpisodeStore struct {
	episodes []domain.Episode
	failAll  bool
}

func (m *memoryEpisodeStore) AppendEpisode(ctx context.Context, ep domain.Episode) error {
	if m.failAll {
		return errors.New("store down")
	}
	ep.ID = int64(len(m.episodes) + 1)
	m.episodes = append(m.episodes, ep)
	return nil
}

func (m *memoryEpisodeStore) RecentEpisodes(ctx context.Context, ownerID int64, conversationID string, limit int) ([]domain.Episode, error) {
	if m.failAll {
		return nil, errors.New("store down")
	}
	var out []domain.Episode
	for i := len(m.episodes) - 1; i >= 0 && len(out) < limit; i-- {
		if m.episodes[i].OwnerID == ownerID {
			out = append(out, m.episodes[i])
		}
	}
	return out, nil
}

func newTestEngine(p domain.Provider, tools []domain.Tool, store domain.EpisodeStore) *Engine {
	reg := tool.NewRegistry(testLogger())
	for _, t := range tools {
		reg.Register(t)
	}
	var mem *memory.Manager
	if store != nil {
		mem = memory.NewManager(store, 5, testLogger())
	}
	return NewEngine(EngineConfig{
		Provider: p,
		Tools:    reg,
		Memory:   mem,
		Model:    "gpt-4o",
		Logger:   testLogger(),
	})
}

func TestAnalyze_DirectAnswer(t *testing.T) {
	provider := &fakeProvider{responses: []*domain.ChatResponse{
		{Content: "You are doing fine.", FinishReason: "stop"},
	}}
	store := &memoryEpisodeStore{}
	engine := newTestEngine(provider, nil, store)

	resp := engine.Analyze(context.Background(), Request{Query: "how am I?", OwnerID: 7})
	if resp.Status != StatusSuccess {
		t.Fatalf("status: %q (%q)", resp.Status, resp.FinalText)
	}
	if resp.FinalText != "You are doing fine." {
		t.Fatalf("final text: %q", resp.FinalText)
	}
	if resp.ConversationID == "" {
		t.Fatal("expected a minted conversation id")
	}
	if len(resp.References) != 0 {
		t.Fatalf("direct answer must carry no references: %v", resp.References)
	}
	if len(provider.requests) != 1 {
		t.Fatalf("direct answer must use exactly one completion call, got %d", len(provider.requests))
	}
	if provider.requests[0].ToolChoice != "auto" {
		t.Fatalf("first call tool choice: %q", provider.requests[0].ToolChoice)
	}
	if len(store.episodes) != 2 {
		t.Fatalf("expected user+assistant episodes, got %d", len(store.episodes))
	}
	if store.episodes[0].Role != "patient" || store.episodes[1].Role != "assistant" {
		t.Fatalf("episode roles: %q %q", store.episodes[0].Role, store.episodes[1].Role)
	}
}

func TestAnalyze_ToolRound(t *testing.T) {
	provider := &fakeProvider{responses: []*domain.ChatResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls: []domain.ToolCall{
				{ID: "call_1", Name: "get_biometric_data", Arguments: map[string]any{"metric": "glucose"}},
				{ID: "call_2", Name: "calculate_health_score", Arguments: map[string]any{"score_type": "bmi"}},
			},
		},
		{Content: "Your glucose averages 110 and your BMI is 24.", FinishReason: "stop"},
	}}
	biometric := &scriptedTool{name: "get_biometric_data", result: `[{"code":"glucose","value":110}]`}
	score := &scriptedTool{name: "calculate_health_score", result: `{"score":"BMI","value":24}`}
	store := &memoryEpisodeStore{}
	engine := newTestEngine(provider, []domain.Tool{biometric, score}, store)

	resp := engine.Analyze(context.Background(), Request{Query: "glucose and bmi?", OwnerID: 7})
	if resp.Status != StatusSuccess {
		t.Fatalf("status: %q (%q)", resp.Status, resp.FinalText)
	}
	if len(provider.requests) != 2 {
		t.Fatalf("tool round must use exactly two completion calls, got %d", len(provider.requests))
	}
	if len(provider.requests[1].Tools) != 0 {
		t.Fatal("second call must not offer tools")
	}
	if biometric.calls != 1 || score.calls != 1 {
		t.Fatalf("tool call counts: %d %d", biometric.calls, score.calls)
	}

	// Tool results threaded back under their call ids.
	second := provider.requests[1].Messages
	var toolMsgs []domain.Message
	for _, m := range second {
		if m.Role == "tool" {
			toolMsgs = append(toolMsgs, m)
		}
	}
	if len(toolMsgs) != 2 {
		t.Fatalf("expected 2 tool messages, got %d", len(toolMsgs))
	}
	if toolMsgs[0].ToolCallID != "call_1" || toolMsgs[1].ToolCallID != "call_2" {
		t.Fatalf("tool call ids: %q %q", toolMsgs[0].ToolCallID, toolMsgs[1].ToolCallID)
	}

	if len(resp.References) != 2 {
		t.Fatalf("expected one reference per tool call, got %d", len(resp.References))
	}
	ref := resp.References[0]
	if ref.Title != "Tool: get_biometric_data" || ref.Source != "System" {
		t.Fatalf("reference header: %+v", ref)
	}
	if !strings.HasSuffix(ref.Snippet, "...") {
		t.Fatalf("snippet must be marked as cut: %q", ref.Snippet)
	}

	meta := store.episodes[1].Metadata
	used, _ := meta["tools_used"].([]string)
	if len(used) != 2 || used[0] != "get_biometric_data" {
		t.Fatalf("tools_used metadata: %v", meta["tools_used"])
	}
}

func TestAnalyze_ToolIsolation(t *testing.T) {
	provider := &fakeProvider{responses: []*domain.ChatResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls: []domain.ToolCall{
				{ID: "call_1", Name: "broken_tool", Arguments: map[string]any{}},
				{ID: "call_2", Name: "working_tool", Arguments: map[string]any{}},
				{ID: "call_3", Name: "never_registered", Arguments: map[string]any{}},
			},
		},
		{Content: "Partial answer.", FinishReason: "stop"},
	}}
	broken := &scriptedTool{name: "broken_tool", err: errors.New("backend exploded")}
	working := &scriptedTool{name: "working_tool", result: "fine"}
	engine := newTestEngine(provider, []domain.Tool{broken, working}, nil)

	resp := engine.Analyze(context.Background(), Request{Query: "q", OwnerID: 3})
	if resp.Status != StatusSuccess {
		t.Fatalf("a failing tool must not fail the round: %q %q", resp.Status, resp.FinalText)
	}
	if working.calls != 1 {
		t.Fatal("failing sibling must not block other tools")
	}

	second := provider.requests[1].Messages
	var results []string
	for _, m := range second {
		if m.Role == "tool" {
			results = append(results, m.Content)
		}
	}
	if len(results) != 3 {
		t.Fatalf("every call needs a threaded result, got %d", len(results))
	}
	if !strings.Contains(results[0], "Error executing broken_tool") {
		t.Fatalf("broken tool result: %q", results[0])
	}
	if !strings.Contains(results[2], "not found") {
		t.Fatalf("unknown tool result: %q", results[2])
	}
}

func TestAnalyze_IdentityError(t *testing.T) {
	provider := &fakeProvider{}
	engine := newTestEngine(provider, nil, nil)

	resp := engine.Analyze(context.Background(), Request{Query: "q", OwnerID: 0})
	if resp.Status != StatusError {
		t.Fatalf("status: %q", resp.Status)
	}
	if resp.ConversationID != "" {
		t.Fatal("identity failure must not mint a conversation id")
	}
	if len(provider.requests) != 0 {
		t.Fatal("identity failure must not reach the provider")
	}
}

func TestAnalyze_ConfigurationError(t *testing.T) {
	engine := NewEngine(EngineConfig{Provider: nil, Logger: testLogger()})

	resp := engine.Analyze(context.Background(), Request{Query: "q", OwnerID: 5})
	if resp.Status != StatusError {
		t.Fatalf("status: %q", resp.Status)
	}
	if resp.ConversationID == "" {
		t.Fatal("configuration failure should still return the minted conversation id")
	}
	if resp.FinalText == "" {
		t.Fatal("error response must carry a user-safe message")
	}
}

func TestAnalyze_CompletionFailurePreservesConversation(t *testing.T) {
	provider := &fakeProvider{errs: []error{errors.New("upstream 500")}}
	engine := newTestEngine(provider, nil, nil)

	resp := engine.Analyze(context.Background(), Request{Query: "q", OwnerID: 5, ConversationID: "conv-abc"})
	if resp.Status != StatusError {
		t.Fatalf("status: %q", resp.Status)
	}
	if resp.ConversationID != "conv-abc" {
		t.Fatalf("conversation id must survive the failure: %q", resp.ConversationID)
	}
	if strings.Contains(resp.FinalText, "500") {
		t.Fatalf("error response must not leak upstream details: %q", resp.FinalText)
	}
}

func TestAnalyze_MemoryFailureIsBestEffort(t *testing.T) {
	provider := &fakeProvider{responses: []*domain.ChatResponse{
		{Content: "answer", FinishReason: "stop"},
	}}
	engine := newTestEngine(provider, nil, &memoryEpisodeStore{failAll: true})

	resp := engine.Analyze(context.Background(), Request{Query: "q", OwnerID: 5})
	if resp.Status != StatusSuccess {
		t.Fatalf("memory failure must not fail the turn: %q", resp.Status)
	}
}

func TestAnalyze_HistoryInPrompt(t *testing.T) {
	store := &memoryEpisodeStore{}
	provider := &fakeProvider{responses: []*domain.ChatResponse{
		{Content: "first answer", FinishReason: "stop"},
		{Content: "second answer", FinishReason: "stop"},
	}}
	engine := newTestEngine(provider, nil, store)

	first := engine.Analyze(context.Background(), Request{Query: "do I have diabetes notes?", OwnerID: 9})
	if first.Status != StatusSuccess {
		t.Fatalf("first turn: %q", first.Status)
	}
	second := engine.Analyze(context.Background(), Request{
		Query: "and what about last year?", OwnerID: 9, ConversationID: first.ConversationID,
	})
	if second.Status != StatusSuccess {
		t.Fatalf("second turn: %q", second.Status)
	}

	userMsg := provider.requests[1].Messages[1].Content
	if !strings.Contains(userMsg, "Previous context:") || !strings.Contains(userMsg, "do I have diabetes notes?") {
		t.Fatalf("second turn must carry the prior turn as context: %q", userMsg)
	}
	if !strings.Contains(userMsg, "Current question: and what about last year?") {
		t.Fatalf("current question missing: %q", userMsg)
	}
}

func TestAnalyze_DoctorRolePrompt(t *testing.T) {
	provider := &fakeProvider{responses: []*domain.ChatResponse{
		{Content: "clinical answer", FinishReason: "stop"},
	}}
	store := &memoryEpisodeStore{}
	engine := newTestEngine(provider, nil, store)

	resp := engine.Analyze(context.Background(), Request{Query: "renal function trend", OwnerID: 4, Role: "doctor"})
	if resp.Status != StatusSuccess {
		t.Fatalf("status: %q", resp.Status)
	}
	system := provider.requests[0].Messages[0].Content
	if !strings.Contains(system, "decision-support") {
		t.Fatalf("doctor prompt missing: %q", system)
	}
	if store.episodes[1].Role != "assistant_doctor" {
		t.Fatalf("assistant episode role: %q", store.episodes[1].Role)
	}
}

func TestStatus(t *testing.T) {
	engine := newTestEngine(&fakeProvider{}, []domain.Tool{
		&scriptedTool{name: "beta"}, &scriptedTool{name: "alpha"},
	}, nil)

	info := engine.Status()
	if info.Status != "ok" {
		t.Fatalf("status: %q", info.Status)
	}
	if len(info.ToolsLoaded) != 2 || info.ToolsLoaded[0] != "alpha" {
		t.Fatalf("tools loaded: %v", info.ToolsLoaded)
	}
}
