package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Service is the deployment embedder: OpenAI first, lexical fallback on any
// failure (network, quota, malformed response, missing key). Callers get a
// vector either way.
type Service struct {
	client   *openai.Client
	model    openai.EmbeddingModel
	fallback *Lexical
	logger   *slog.Logger
}

type ServiceConfig struct {
	APIKey    string
	APIBase   string
	Model     string
	Dimension int
	Logger    *slog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var client *openai.Client
	if cfg.APIKey != "" {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.APIBase != "" {
			oc.BaseURL = cfg.APIBase
		}
		client = openai.NewClientWithConfig(oc)
	}

	return &Service{
		client:   client,
		model:    openai.EmbeddingModel(cfg.Model),
		fallback: NewLexical(cfg.Dimension),
		logger:   cfg.Logger,
	}
}

func (s *Service) Dimension() int { return s.fallback.Dimension() }

func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return make([]float32, s.Dimension()), nil
	}
	if s.client == nil {
		return s.fallback.Embed(ctx, text)
	}

	vec, err := s.remoteEmbed(ctx, text)
	if err != nil {
		s.logger.Warn("embedding service failed, using lexical fallback", "error", err)
		return s.fallback.Embed(ctx, text)
	}
	return vec, nil
}

func (s *Service) remoteEmbed(ctx context.Context, text string) ([]float32, error) {
	// Newlines degrade embedding quality; flatten before the call.
	text = strings.ReplaceAll(text, "\n", " ")

	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: s.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	copy(vec, resp.Data[0].Embedding)
	Normalize(vec)
	return vec, nil
}
