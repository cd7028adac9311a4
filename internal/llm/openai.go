package llm

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/joelkehle/visual-abstract/internal/config"
)

const defaultOpenAIModel = "gpt-4o"

type OpenAIChatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

type OpenAIClientCreator func(apiKey, baseURL string) OpenAIChatService

func defaultOpenAICreator(apiKey, baseURL string) OpenAIChatService {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := openai.NewClient(opts...)
	return &c.Chat.Completions
}

var newOpenAIClient OpenAIClientCreator = defaultOpenAICreator

type OpenAICompleter struct {
	chat        OpenAIChatService
	model       string
	maxTokens   int64
	temperature float64
}

func NewOpenAICompleter(apiKey string, cfg config.CompletionConfig) (*OpenAICompleter, error) {
	if err := requireKey("OPENAI_API_KEY", apiKey); err != nil {
		return nil, err
	}
	model := cfg.Model
	// Guard against an anthropic default leaking into an openai config.
	if model == "" || strings.HasPrefix(model, "claude") {
		model = defaultOpenAIModel
	}
	return &OpenAICompleter{
		chat:        newOpenAIClient(strings.TrimSpace(apiKey), cfg.BaseURL),
		model:       model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}, nil
}

func (o *OpenAICompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := o.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(o.maxTokens),
		Temperature: openai.Float(o.temperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
