package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const extractionPrompt = `You extract email addresses from chat messages.
Reply with exactly one of:
- the bare email address, nothing else
- the word "none" if the message contains no email address
Never reply with anything else.`

// Extractor is the model-assisted fallback contract. Implementations must
// return either a valid address or ok=false; never free text.
type Extractor interface {
	ExtractEmail(ctx context.Context, message string) (string, bool, error)
}

type llmExtractor struct {
	client openai.Client
	model  string
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewLLMExtractor creates an Extractor backed by a chat-completion model.
func NewLLMExtractor(cfg LLMConfig) Extractor {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &llmExtractor{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (e *llmExtractor) ExtractEmail(ctx context.Context, message string) (string, bool, error) {
	start := time.Now()
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractionPrompt),
			openai.UserMessage(message),
		},
		Temperature:         openai.Float(0),
		MaxCompletionTokens: openai.Int(32),
	})
	if err != nil {
		return "", false, fmt.Errorf("llm extraction: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", false, fmt.Errorf("llm extraction: no choices in response")
	}

	answer := strings.TrimSpace(strings.ToLower(resp.Choices[0].Message.Content))

	slog.DebugContext(ctx, "llm extraction completed",
		"model", e.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"found", answer != "none")

	if answer == "none" || answer == "" {
		return "", false, nil
	}

	// The model is instructed to return a bare address; re-validate rather
	// than trusting it.
	if email, ok := Email(answer); ok {
		return email, true, nil
	}
	return "", false, nil
}
