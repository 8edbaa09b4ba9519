// Package openai implements model.ChatModel for OpenAI's Chat Completions API.
package openai

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/opsmend/opsmend/model"
)

const defaultModel = "gpt-4o"

// ChatModel calls OpenAI's Chat Completions API.
//
// The underlying SDK client handles retries for transient errors and is
// safe for concurrent use.
type ChatModel struct {
	client    *sdk.Client
	modelName string
}

// NewChatModel creates a GPT-backed ChatModel. An empty modelName
// selects a default model.
func NewChatModel(apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("openai API key is required")
	}
	if modelName == "" {
		modelName = defaultModel
	}

	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &ChatModel{
		client:    &client,
		modelName: modelName,
	}, nil
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	completion, err := m.client.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: toParams(messages),
	})
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("openai chat failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return model.ChatOut{}, errors.New("openai returned no choices")
	}

	return model.ChatOut{
		Text:      completion.Choices[0].Message.Content,
		TokensIn:  int(completion.Usage.PromptTokens),
		TokensOut: int(completion.Usage.CompletionTokens),
	}, nil
}

func toParams(messages []model.Message) []sdk.ChatCompletionMessageParamUnion {
	params := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			params = append(params, sdk.ChatCompletionMessageParamUnion{
				OfSystem: &sdk.ChatCompletionSystemMessageParam{
					Content: sdk.ChatCompletionSystemMessageParamContentUnion{
						OfString: sdk.String(msg.Content),
					},
				},
			})
		case model.RoleAssistant:
			params = append(params, sdk.ChatCompletionMessageParamUnion{
				OfAssistant: &sdk.ChatCompletionAssistantMessageParam{
					Content: sdk.ChatCompletionAssistantMessageParamContentUnion{
						OfString: sdk.String(msg.Content),
					},
				},
			})
		default:
			params = append(params, sdk.ChatCompletionMessageParamUnion{
				OfUser: &sdk.ChatCompletionUserMessageParam{
					Content: sdk.ChatCompletionUserMessageParamContentUnion{
						OfString: sdk.String(msg.Content),
					},
				},
			})
		}
	}
	return params
}
