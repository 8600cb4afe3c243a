package ollama

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/steps/ai/settings"
	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const hostEnvVar = "OLLAMA_HOST"

var clientMu sync.Mutex

// NewClient creates an ollama API client for baseURL. The api package only reads its
// host from OLLAMA_HOST, once, while building the client, so baseURL is exported for
// the duration of that call and the previous value is restored afterwards.
func NewClient(baseURL string) (*api.Client, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	if baseURL != "" {
		previous, wasSet := os.LookupEnv(hostEnvVar)
		if err := os.Setenv(hostEnvVar, baseURL); err != nil {
			return nil, errors.Wrap(err, "could not set ollama host")
		}
		defer func() {
			var err error
			if wasSet {
				err = os.Setenv(hostEnvVar, previous)
			} else {
				err = os.Unsetenv(hostEnvVar)
			}
			if err != nil {
				log.Warn().Err(err).Msg("could not restore " + hostEnvVar)
			}
		}()
	}
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "could not create ollama client")
	}
	return client, nil
}

// Engine sends the history to an ollama chat endpoint and accumulates the streamed
// answer into a single assistant message.
type Engine struct {
	client   *api.Client
	settings *settings.StepSettings
}

func NewEngine(client *api.Client, settings *settings.StepSettings) *Engine {
	return &Engine{
		client:   client,
		settings: settings,
	}
}

func (e *Engine) RunInference(ctx context.Context, history conversation.Conversation) (*conversation.Message, error) {
	options, err := e.settings.Ollama.Options()
	if err != nil {
		return nil, err
	}

	messages := make([]api.Message, 0, len(history))
	for _, msg := range history {
		messages = append(messages, api.Message{
			Role:    toOllamaRole(msg.Role),
			Content: msg.Content,
		})
	}

	// chunks are always requested as a stream; the final chunk only carries metrics
	stream := true
	req := &api.ChatRequest{
		Model:    e.settings.Chat.EngineName(),
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	log.Trace().Str("model", req.Model).Int("messages", len(messages)).Msg("sending ollama chat request")

	var sb strings.Builder
	err = e.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Done {
			return nil
		}
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "ollama chat with model %s failed", req.Model)
	}

	msg := conversation.NewAssistantMessage(sb.String(),
		conversation.WithMetadata(map[string]interface{}{
			"model": req.Model,
		}))
	return &msg, nil
}

func toOllamaRole(role conversation.Role) string {
	switch role {
	case conversation.RoleHuman:
		return "user"
	default:
		return string(role)
	}
}
