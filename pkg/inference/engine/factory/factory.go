package factory

import (
	"strings"

	"github.com/go-go-golems/forkchat/pkg/inference/engine"
	"github.com/go-go-golems/forkchat/pkg/steps/ai/ollama"
	"github.com/go-go-golems/forkchat/pkg/steps/ai/openai"
	"github.com/go-go-golems/forkchat/pkg/steps/ai/settings"
	"github.com/go-go-golems/forkchat/pkg/steps/ai/types"
	"github.com/pkg/errors"
)

// EngineFactory creates inference engines from step settings, so that callers never
// need to know which provider is behind the engine they use.
type EngineFactory interface {
	CreateEngine(settings *settings.StepSettings) (engine.Engine, error)
	SupportedProviders() []string
	DefaultProvider() string
}

// StandardEngineFactory builds ollama, openai and echo engines. Every engine it returns
// is wrapped with logging, the configured client timeout and, when enabled, prompt
// template flattening.
type StandardEngineFactory struct {
	// Middlewares are applied outside of the standard ones.
	Middlewares []engine.Middleware
}

func NewStandardEngineFactory(middlewares ...engine.Middleware) *StandardEngineFactory {
	return &StandardEngineFactory{
		Middlewares: middlewares,
	}
}

func (f *StandardEngineFactory) CreateEngine(settings *settings.StepSettings) (engine.Engine, error) {
	if settings == nil {
		return nil, errors.New("settings cannot be nil")
	}
	if settings.Chat == nil {
		return nil, errors.New("chat settings cannot be nil")
	}

	provider := strings.ToLower(string(settings.Chat.Provider()))

	var e engine.Engine
	switch types.ApiType(provider) {
	case types.ApiTypeOllama:
		client, err := ollama.NewClient(settings.Client.GetBaseURL())
		if err != nil {
			return nil, err
		}
		e = ollama.NewEngine(client, settings)

	case types.ApiTypeOpenAI:
		if settings.Client.GetAPIKey() == "" {
			return nil, errors.Errorf("missing API key for provider %s", provider)
		}
		e = openai.NewEngine(openai.MakeClient(settings.Client), settings)

	case types.ApiTypeEcho:
		e = engine.NewEchoEngine()

	default:
		supported := strings.Join(f.SupportedProviders(), ", ")
		return nil, errors.Errorf("unsupported provider %s. Supported providers: %s", provider, supported)
	}

	middlewares := append([]engine.Middleware{}, f.Middlewares...)
	middlewares = append(middlewares,
		engine.WithLogging(provider+"/"+settings.Chat.EngineName()),
		engine.WithTimeout(settings.Client.GetTimeout()),
	)
	if settings.Chat.UsePromptTemplate {
		middlewares = append(middlewares, engine.WithPromptTemplate(settings.Chat.PromptTemplate))
	}

	return engine.Chain(e, middlewares...), nil
}

func (f *StandardEngineFactory) SupportedProviders() []string {
	return []string{
		string(types.ApiTypeOllama),
		string(types.ApiTypeOpenAI),
		string(types.ApiTypeEcho),
	}
}

func (f *StandardEngineFactory) DefaultProvider() string {
	return string(settings.DefaultApiType)
}
