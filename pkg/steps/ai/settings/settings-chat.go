package settings

import (
	"github.com/go-go-golems/forkchat/pkg/helpers"
	"github.com/go-go-golems/forkchat/pkg/steps/ai/types"
	"github.com/huandu/go-clone"
)

const (
	DefaultEngine  = "mistral"
	DefaultApiType = types.ApiTypeOllama
)

type ChatSettings struct {
	Engine            *string        `yaml:"engine,omitempty"`
	ApiType           *types.ApiType `yaml:"api_type,omitempty"`
	MaxResponseTokens *int           `yaml:"max_response_tokens,omitempty"`
	Temperature       *float64       `yaml:"temperature,omitempty"`
	Stream            bool           `yaml:"stream,omitempty"`

	// UsePromptTemplate flattens the history into a single human turn rendered
	// through PromptTemplate (conversation.DefaultPromptTemplate when empty).
	UsePromptTemplate bool   `yaml:"use_prompt_template,omitempty"`
	PromptTemplate    string `yaml:"prompt_template,omitempty"`
}

func NewChatSettings() *ChatSettings {
	return &ChatSettings{
		Engine:  helpers.ToPtr(DefaultEngine),
		ApiType: helpers.ToPtr(DefaultApiType),
		Stream:  true,
	}
}

func (s *ChatSettings) Clone() *ChatSettings {
	return clone.Clone(s).(*ChatSettings)
}

// EngineName returns the configured model, falling back to DefaultEngine.
func (s *ChatSettings) EngineName() string {
	if s == nil || s.Engine == nil || *s.Engine == "" {
		return DefaultEngine
	}
	return *s.Engine
}

func (s *ChatSettings) Provider() types.ApiType {
	if s == nil || s.ApiType == nil || *s.ApiType == "" {
		return DefaultApiType
	}
	return *s.ApiType
}
