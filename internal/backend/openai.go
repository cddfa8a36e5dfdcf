package backend

import (
	"context"
	"fmt"

	"github.com/ashureev/persona-relay/internal/domain"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAI generates replies with the Chat Completions API.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAI creates an OpenAI provider. BaseURL points it at a compatible
// server when set.
func NewOpenAI(opts Options, extra ...option.RequestOption) *OpenAI {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	reqOpts = append(reqOpts, extra...)
	return &OpenAI{
		client:    openai.NewClient(reqOpts...),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
	}
}

// Generate implements Generator.
func (p *OpenAI) Generate(ctx context.Context, history []domain.Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, t := range history {
		switch t.Role {
		case domain.RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Text))
		case domain.RoleUser:
			messages = append(messages, openai.UserMessage(t.Text))
		case domain.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(p.maxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return checkReply(resp.Choices[0].Message.Content)
}
