package openai

import (
	"context"
	"io"
	"strings"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/steps/ai/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// MakeClient creates a client for any OpenAI compatible endpoint. An empty base URL
// keeps the library default.
func MakeClient(clientSettings *settings.ClientSettings) *go_openai.Client {
	config := go_openai.DefaultConfig(clientSettings.GetAPIKey())
	if baseURL := clientSettings.GetBaseURL(); baseURL != "" {
		config.BaseURL = baseURL
	}
	if clientSettings != nil && clientSettings.HTTPClient != nil {
		config.HTTPClient = clientSettings.HTTPClient
	}
	return go_openai.NewClientWithConfig(config)
}

type Engine struct {
	client   *go_openai.Client
	settings *settings.StepSettings
}

func NewEngine(client *go_openai.Client, settings *settings.StepSettings) *Engine {
	return &Engine{
		client:   client,
		settings: settings,
	}
}

func (e *Engine) makeRequest(history conversation.Conversation) go_openai.ChatCompletionRequest {
	messages := make([]go_openai.ChatCompletionMessage, 0, len(history))
	for _, msg := range history {
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    toOpenAIRole(msg.Role),
			Content: msg.Content,
		})
	}

	req := go_openai.ChatCompletionRequest{
		Model:    e.settings.Chat.EngineName(),
		Messages: messages,
		Stream:   e.settings.Chat.Stream,
	}
	if e.settings.Chat.MaxResponseTokens != nil {
		req.MaxTokens = *e.settings.Chat.MaxResponseTokens
	}
	if e.settings.Chat.Temperature != nil {
		req.Temperature = float32(*e.settings.Chat.Temperature)
	}
	e.settings.OpenAI.Apply(&req)
	return req
}

func (e *Engine) RunInference(ctx context.Context, history conversation.Conversation) (*conversation.Message, error) {
	req := e.makeRequest(history)
	log.Trace().Str("model", req.Model).Int("messages", len(req.Messages)).Bool("stream", req.Stream).
		Msg("sending openai chat completion request")

	var content string
	var err error
	if req.Stream {
		content, err = e.stream(ctx, req)
	} else {
		content, err = e.complete(ctx, req)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "openai chat completion with model %s failed", req.Model)
	}

	msg := conversation.NewAssistantMessage(content,
		conversation.WithMetadata(map[string]interface{}{
			"model": req.Model,
		}))
	return &msg, nil
}

func (e *Engine) complete(ctx context.Context, req go_openai.ChatCompletionRequest) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (e *Engine) stream(ctx context.Context, req go_openai.ChatCompletionRequest) (string, error) {
	stream, err := e.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		if len(resp.Choices) > 0 {
			sb.WriteString(resp.Choices[0].Delta.Content)
		}
	}
}

func toOpenAIRole(role conversation.Role) string {
	switch role {
	case conversation.RoleHuman:
		return go_openai.ChatMessageRoleUser
	case conversation.RoleAssistant:
		return go_openai.ChatMessageRoleAssistant
	default:
		return string(role)
	}
}
