// Package google implements model.ChatModel for Google's Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/opsmend/opsmend/model"
)

const defaultModel = "gemini-1.5-flash"

// ChatModel calls Google's Gemini API via the generative-ai-go client.
//
// Gemini has no dedicated system role in its chat format, so system
// messages are applied as the model's system instruction. Call Close
// when the model is no longer needed.
type ChatModel struct {
	client    *genai.Client
	modelName string
}

// NewChatModel creates a Gemini-backed ChatModel. An empty modelName
// selects a default Flash model.
func NewChatModel(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("google API key is required")
	}
	if modelName == "" {
		modelName = defaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &ChatModel{
		client:    client,
		modelName: modelName,
	}, nil
}

// Close releases the underlying client.
func (m *ChatModel) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	gm := m.client.GenerativeModel(m.modelName)

	var system, prompt strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.Content)
		default:
			if prompt.Len() > 0 {
				prompt.WriteString("\n\n")
			}
			prompt.WriteString(msg.Content)
		}
	}
	if system.Len() > 0 {
		gm.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system.String())},
		}
	}

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt.String()))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("gemini chat failed: %w", err)
	}

	out := model.ChatOut{}
	if resp.UsageMetadata != nil {
		out.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, errors.New("gemini returned no candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.Text += string(text)
		}
	}
	return out, nil
}
