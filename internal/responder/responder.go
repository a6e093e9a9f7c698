// Package responder is the reply-generation boundary. The relay treats it
// as an external collaborator: it takes conversation history plus the new
// inbound text and returns the agent's reply.
package responder

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"channel-relay/internal/models"
)

type Responder interface {
	Respond(ctx context.Context, history []models.Message, inbound string) (string, error)
}

// OpenAIResponder generates replies with a chat completion.
type OpenAIResponder struct {
	client *openai.Client
	model  string
	system string
}

func NewOpenAIResponder(apiKey string) *OpenAIResponder {
	return &OpenAIResponder{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4oMini,
		system: "You are a helpful customer support agent. Reply concisely in the user's language.",
	}
}

func (r *OpenAIResponder) Respond(ctx context.Context, history []models.Message, inbound string) (string, error) {
	msgs := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: r.system,
	}}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAI || m.Role == models.RoleHuman {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: inbound,
	})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Static replies with a fixed acknowledgment. Used when no AI provider is
// configured.
type Static struct {
	Reply string
}

func (s Static) Respond(ctx context.Context, history []models.Message, inbound string) (string, error) {
	if s.Reply == "" {
		return "Thanks for your message, we'll get back to you shortly.", nil
	}
	return s.Reply, nil
}
