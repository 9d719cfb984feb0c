package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/parley/backend/internal/config"
	"github.com/zhouzirui/parley/backend/internal/model/chat"
)

// ArkConverser answers through an eino chain: system instruction, prior
// turns, then the new user message, fed to the chat model.
type ArkConverser struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArkConverser creates the Ark chat model from cfg and compiles the chain.
func NewArkConverser(ctx context.Context, cfg config.AIConfig) (*ArkConverser, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewConverserWithModel(ctx, chatModel)
}

// NewConverserWithModel compiles the chain around an existing chat model.
func NewConverserWithModel(ctx context.Context, chatModel model.ChatModel) (*ArkConverser, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkConverser{chain: runnable}, nil
}

// Converse returns the model's reply to message given the prior turns.
func (c *ArkConverser) Converse(ctx context.Context, history []chat.Turn, message, instruction string) (string, error) {
	response, err := c.chain.Invoke(ctx, map[string]any{
		"system":  instruction,
		"history": toSchemaMessages(history),
		"query":   message,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Debug().Str("component", "ai").Int("history", len(history)).Int("length", len(response.Content)).Msg("generated response")
	return response.Content, nil
}

func toSchemaMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	messages := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return messages
}
