package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"novel-vote-server/internal/config"
	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/ollama/ollama/api"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var errEmptyResponse = errors.New("empty response")

// chatBackend - транспорт к конкретному провайдеру модели.
type chatBackend interface {
	Complete(ctx context.Context, system, user string) (string, models.UsageInfo, error)
	Model() string
}

// contentGenerator собирает промпт, вызывает модель и разбирает JSON-ответ.
type contentGenerator struct {
	backend         chatBackend
	trimmer         *contextTrimmer
	inputCostPer1K  float64
	outputCostPer1K float64
	logger          *zap.Logger
}

var _ interfaces.ContentGenerator = (*contentGenerator)(nil)

// NewContentGenerator создает генератор текста по AI_CLIENT_TYPE.
func NewContentGenerator(cfg config.AIConfig, timeout time.Duration, logger *zap.Logger) (interfaces.ContentGenerator, error) {
	log := logger.Named("ContentGenerator")
	var backend chatBackend
	switch strings.ToLower(cfg.ClientType) {
	case config.AIClientTypeOpenAI:
		backend = newOpenAIBackend(cfg, timeout)
	case config.AIClientTypeOllama:
		b, err := newOllamaBackend(cfg, timeout)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unknown AI client type %q", cfg.ClientType)
	}
	log.Info("Content generator configured",
		zap.String("clientType", cfg.ClientType),
		zap.String("baseURL", cfg.BaseURL),
		zap.String("model", cfg.Model),
	)
	return newContentGenerator(backend, newContextTrimmer(cfg.Model, cfg.ContextTokens, log), cfg, log), nil
}

func newContentGenerator(backend chatBackend, trimmer *contextTrimmer, cfg config.AIConfig, logger *zap.Logger) *contentGenerator {
	return &contentGenerator{
		backend:         backend,
		trimmer:         trimmer,
		inputCostPer1K:  cfg.InputCostPer1K,
		outputCostPer1K: cfg.OutputCostPer1K,
		logger:          logger,
	}
}

// Generate вызывает модель один раз. Повторов здесь нет.
func (g *contentGenerator) Generate(ctx context.Context, input models.GenerationInput, final bool) (*models.GenerationOutput, models.UsageInfo, error) {
	logFields := []zap.Field{
		zap.String("sourceChapterID", input.SourceChapterID.String()),
		zap.String("model", g.backend.Model()),
	}

	previous := g.trimmer.Trim(input.PreviousContext)
	if len(previous) < len(input.PreviousContext) {
		g.logger.Debug("Previous context trimmed to token budget",
			append(logFields, zap.Int("originalBytes", len(input.PreviousContext)), zap.Int("trimmedBytes", len(previous)))...)
	}
	user := buildUserPrompt(input, previous, final)

	start := time.Now()
	raw, usage, err := g.backend.Complete(ctx, systemPrompt, user)
	if usage.PromptTokens == 0 {
		usage.PromptTokens = g.trimmer.Count(systemPrompt) + g.trimmer.Count(user)
	}
	if err != nil {
		g.logger.Error("Model call failed", append(logFields, zap.Duration("elapsed", time.Since(start)), zap.Error(err))...)
		return nil, usage, fmt.Errorf("%w: %w", models.ErrGenerationFailed, err)
	}
	if usage.CompletionTokens == 0 {
		usage.CompletionTokens = g.trimmer.Count(raw)
	}
	usage.EstimatedCostUSD = float64(usage.PromptTokens)*g.inputCostPer1K/1000 +
		float64(usage.CompletionTokens)*g.outputCostPer1K/1000

	g.logger.Info("Model call finished", append(logFields,
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("promptTokens", usage.PromptTokens),
		zap.Int("completionTokens", usage.CompletionTokens),
		zap.Float64("estimatedCostUSD", usage.EstimatedCostUSD),
	)...)

	output, err := parseOutput(raw)
	if err != nil {
		g.logger.Warn("Model returned malformed output", append(logFields, zap.Int("responseBytes", len(raw)), zap.Error(err))...)
		return nil, usage, err
	}
	return output, usage, nil
}

// --- OpenAI-совместимый провайдер ---

type openAIBackend struct {
	client      *openaigo.Client
	model       string
	temperature float32
	maxTokens   int
}

func newOpenAIBackend(cfg config.AIConfig, timeout time.Duration) *openAIBackend {
	clientCfg := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	return &openAIBackend{
		client:      openaigo.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (b *openAIBackend) Model() string { return b.model }

func (b *openAIBackend) Complete(ctx context.Context, system, user string) (string, models.UsageInfo, error) {
	var usage models.UsageInfo
	resp, err := b.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model: b.model,
		Messages: []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleSystem, Content: system},
			{Role: openaigo.ChatMessageRoleUser, Content: user},
		},
		Temperature: b.temperature,
		MaxTokens:   b.maxTokens,
		ResponseFormat: &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", usage, err
	}
	usage.PromptTokens = resp.Usage.PromptTokens
	usage.CompletionTokens = resp.Usage.CompletionTokens
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", usage, errEmptyResponse
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// --- Ollama ---

type ollamaBackend struct {
	client      *api.Client
	model       string
	temperature float32
	maxTokens   int
}

func newOllamaBackend(cfg config.AIConfig, timeout time.Duration) (*ollamaBackend, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/"), "/v1")
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL %q: %w", base, err)
	}
	return &ollamaBackend{
		client:      api.NewClient(parsed, &http.Client{Timeout: timeout}),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (b *ollamaBackend) Model() string { return b.model }

func (b *ollamaBackend) Complete(ctx context.Context, system, user string) (string, models.UsageInfo, error) {
	var usage models.UsageInfo
	stream := false
	req := &api.ChatRequest{
		Model: b.model,
		Messages: []api.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: &stream,
		Format: json.RawMessage(`"json"`),
		Options: map[string]interface{}{
			"temperature": b.temperature,
			"num_predict": b.maxTokens,
		},
	}

	var last api.ChatResponse
	err := b.client.Chat(ctx, req, func(r api.ChatResponse) error {
		last = r
		return nil
	})
	if err != nil {
		return "", usage, err
	}
	usage.PromptTokens = last.PromptEvalCount
	usage.CompletionTokens = last.EvalCount
	if strings.TrimSpace(last.Message.Content) == "" {
		return "", usage, errEmptyResponse
	}
	return last.Message.Content, usage, nil
}
