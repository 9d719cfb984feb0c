package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/parley/backend/internal/config"
	"github.com/zhouzirui/parley/backend/internal/model/chat"
)

// ErrEmptyCompletion is returned when the provider answers without choices.
var ErrEmptyCompletion = errors.New("model returned no choices")

// OpenAIConverser answers through an OpenAI-compatible chat completions API.
type OpenAIConverser struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIConverser builds a converser from the OpenAI fields of cfg.
func NewOpenAIConverser(cfg config.AIConfig) (*OpenAIConverser, error) {
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}

	modelName := cfg.OpenAIModel
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	c := &OpenAIConverser{
		client: openai.NewClientWithConfig(clientConfig),
		model:  modelName,
	}
	if cfg.MaxTokens != nil {
		c.maxTokens = *cfg.MaxTokens
	}
	if cfg.Temperature != nil {
		c.temperature = float32(*cfg.Temperature)
	}
	return c, nil
}

// Converse sends the instruction, prior turns and message as one completion.
func (c *OpenAIConverser) Converse(ctx context.Context, history []chat.Turn, message, instruction string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if instruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: instruction})
	}
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == chat.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	log.Debug().Str("component", "ai").Str("model", c.model).Int("tokens", resp.Usage.TotalTokens).Msg("generated response")
	return resp.Choices[0].Message.Content, nil
}
