package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/models"
)

// OpenAIConfig carries the provider settings.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxTokens   int64
	Temperature float64
}

// OpenAIProvider generates descriptions through the OpenAI chat API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int64
	temperature float64
	logger      *zap.Logger
}

// NewOpenAIProvider creates a provider. BaseURL is optional and exists
// for proxies and tests.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 700
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	return &OpenAIProvider{
		client:      &client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}, nil
}

const systemPrompt = "You write factual, neutral encyclopedia-style descriptions " +
	"of movies, TV series and film-industry people. Use only information " +
	"supported by the reference material when one is provided. Plain text, " +
	"no markup, 2-4 paragraphs."

// GenerateDescription asks the model for one description.
func (p *OpenAIProvider) GenerateDescription(ctx context.Context, req Request) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(req)),
		},
		MaxTokens:   openai.Int(p.maxTokens),
		Temperature: openai.Float(p.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("generate description for %s: %w", req.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate description for %s: empty response", req.Name)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	p.logger.Info("Description generated",
		zap.String("entity_type", string(req.EntityType)),
		zap.String("name", req.Name),
		zap.String("locale", req.Locale),
		zap.Int("length", len(text)),
	)
	return text, nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	switch req.EntityType {
	case models.EntityPerson:
		b.WriteString("Write a description of the person ")
	case models.EntityTVSeries, models.EntityTVShow:
		b.WriteString("Write a description of the TV series ")
	default:
		b.WriteString("Write a description of the movie ")
	}
	b.WriteString(`"` + req.Name + `"`)
	if req.Year != nil {
		fmt.Fprintf(&b, " (%d)", *req.Year)
	}
	b.WriteString(".")
	if req.Locale != "" {
		fmt.Fprintf(&b, " Write in the language of locale %s.", req.Locale)
	}
	if req.ContextTag != "" {
		fmt.Fprintf(&b, " Context: %s.", req.ContextTag)
	}
	if req.Reference != nil && req.Reference.Overview != "" {
		b.WriteString("\n\nReference material:\n" + req.Reference.Overview)
	}
	return b.String()
}

// StaticProvider returns canned text and records requests. It backs
// tests and local development without an API key.
type StaticProvider struct {
	Text     string
	Err      error
	Requests []Request
}

// GenerateDescription returns the configured text or error.
func (p *StaticProvider) GenerateDescription(_ context.Context, req Request) (string, error) {
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return "", p.Err
	}
	return p.Text, nil
}
