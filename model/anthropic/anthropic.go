// Package anthropic implements model.ChatModel for Anthropic's Claude API.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/opsmend/opsmend/model"
)

const defaultModel = "claude-sonnet-4-20250514"

const defaultMaxTokens = 4096

// ChatModel calls Anthropic's Messages API.
//
// Anthropic takes the system prompt as a separate request parameter, so
// system messages are extracted from the conversation before sending.
type ChatModel struct {
	client    sdk.Client
	modelName string
	maxTokens int64
}

// NewChatModel creates a Claude-backed ChatModel. An empty modelName
// selects a default Sonnet model.
func NewChatModel(apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	if modelName == "" {
		modelName = defaultModel
	}
	return &ChatModel{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
		maxTokens: defaultMaxTokens,
	}, nil
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	system, conversation := splitSystem(messages)

	params := sdk.MessageNewParams{
		Model:     sdk.Model(m.modelName),
		MaxTokens: m.maxTokens,
		Messages:  toParams(conversation),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}

	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic chat failed: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return model.ChatOut{
		Text:      text,
		TokensIn:  int(message.Usage.InputTokens),
		TokensOut: int(message.Usage.OutputTokens),
	}, nil
}

// splitSystem separates system messages from the conversation. Multiple
// system messages are concatenated.
func splitSystem(messages []model.Message) (string, []model.Message) {
	var system string
	var conversation []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		conversation = append(conversation, msg)
	}
	return system, conversation
}

func toParams(messages []model.Message) []sdk.MessageParam {
	params := make([]sdk.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := sdk.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			params = append(params, sdk.NewAssistantMessage(block))
		} else {
			params = append(params, sdk.NewUserMessage(block))
		}
	}
	return params
}
