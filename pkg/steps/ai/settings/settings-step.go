package settings

import (
	"io"

	"github.com/go-go-golems/forkchat/pkg/helpers"
	"github.com/go-go-golems/forkchat/pkg/steps/ai/settings/ollama"
	"github.com/go-go-golems/forkchat/pkg/steps/ai/settings/openai"
	"github.com/go-go-golems/forkchat/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type factoryConfigFileWrapper struct {
	Factories *StepSettings
}

type StepSettings struct {
	Chat   *ChatSettings    `yaml:"chat,omitempty"`
	Client *ClientSettings  `yaml:"client,omitempty"`
	Ollama *ollama.Settings `yaml:"ollama,omitempty"`
	OpenAI *openai.Settings `yaml:"openai,omitempty"`
}

func NewStepSettings() *StepSettings {
	return &StepSettings{
		Chat:   NewChatSettings(),
		Client: NewClientSettings(),
		Ollama: ollama.NewSettings(),
		OpenAI: openai.NewSettings(),
	}
}

func NewStepSettingsFromYAML(s io.Reader) (*StepSettings, error) {
	settings_ := factoryConfigFileWrapper{
		Factories: NewStepSettings(),
	}
	if err := yaml.NewDecoder(s).Decode(&settings_); err != nil {
		return nil, err
	}

	return settings_.Factories, nil
}

// NewStepSettingsFromViper starts from the defaults and overrides every key that was
// set through a flag, the environment or the config file.
func NewStepSettingsFromViper(v *viper.Viper) (*StepSettings, error) {
	s := NewStepSettings()

	if v.IsSet("api-type") {
		apiType := types.ApiType(v.GetString("api-type"))
		if !apiType.IsValid() {
			return nil, errors.Errorf("unknown api type %q", apiType)
		}
		s.Chat.ApiType = &apiType
	}
	if v.IsSet("engine") {
		s.Chat.Engine = helpers.ToPtr(v.GetString("engine"))
	}
	if v.IsSet("max-response-tokens") {
		s.Chat.MaxResponseTokens = helpers.ToPtr(v.GetInt("max-response-tokens"))
	}
	if v.IsSet("temperature") {
		s.Chat.Temperature = helpers.ToPtr(v.GetFloat64("temperature"))
	}
	if v.IsSet("stream") {
		s.Chat.Stream = v.GetBool("stream")
	}
	if v.IsSet("use-prompt-template") {
		s.Chat.UsePromptTemplate = v.GetBool("use-prompt-template")
	}
	if v.IsSet("prompt-template") {
		s.Chat.PromptTemplate = v.GetString("prompt-template")
	}

	if v.IsSet("base-url") {
		s.Client.BaseURL = helpers.ToPtr(v.GetString("base-url"))
	}
	if v.IsSet("api-key") {
		s.Client.APIKey = helpers.ToPtr(v.GetString("api-key"))
	}
	if v.IsSet("timeout") {
		s.Client.Timeout = helpers.ToPtr(v.GetDuration("timeout"))
	}

	if v.IsSet("ollama-temperature") {
		s.Ollama.Temperature = helpers.ToPtr(v.GetFloat64("ollama-temperature"))
	}
	if v.IsSet("ollama-num-ctx") {
		s.Ollama.NumCtx = helpers.ToPtr(v.GetInt("ollama-num-ctx"))
	}
	if v.IsSet("ollama-top-k") {
		s.Ollama.TopK = helpers.ToPtr(v.GetInt("ollama-top-k"))
	}
	if v.IsSet("ollama-top-p") {
		s.Ollama.TopP = helpers.ToPtr(v.GetFloat64("ollama-top-p"))
	}
	if v.IsSet("ollama-seed") {
		s.Ollama.Seed = helpers.ToPtr(v.GetInt("ollama-seed"))
	}

	if v.IsSet("openai-presence-penalty") {
		s.OpenAI.PresencePenalty = helpers.ToPtr(v.GetFloat64("openai-presence-penalty"))
	}
	if v.IsSet("openai-frequency-penalty") {
		s.OpenAI.FrequencyPenalty = helpers.ToPtr(v.GetFloat64("openai-frequency-penalty"))
	}
	if v.IsSet("openai-top-p") {
		s.OpenAI.TopP = helpers.ToPtr(v.GetFloat64("openai-top-p"))
	}
	if v.IsSet("openai-stop") {
		s.OpenAI.Stop = v.GetStringSlice("openai-stop")
	}

	return s, nil
}

func (ss *StepSettings) GetMetadata() map[string]interface{} {
	metadata := make(map[string]interface{})

	if ss.Chat != nil {
		metadata["ai-api-type"] = string(ss.Chat.Provider())
		metadata["ai-engine"] = ss.Chat.EngineName()
		if ss.Chat.MaxResponseTokens != nil {
			metadata["ai-max-response-tokens"] = *ss.Chat.MaxResponseTokens
		}
		if ss.Chat.Temperature != nil {
			metadata["ai-temperature"] = *ss.Chat.Temperature
		}
		metadata["ai-stream"] = ss.Chat.Stream
		metadata["ai-use-prompt-template"] = ss.Chat.UsePromptTemplate
	}

	if ss.Client != nil {
		if ss.Client.Timeout != nil {
			metadata["timeout"] = ss.Client.Timeout.String()
		}
		if ss.Client.BaseURL != nil {
			metadata["base-url"] = *ss.Client.BaseURL
		}
		// the api key is never part of the metadata
	}

	if ss.Ollama != nil {
		if ss.Ollama.Temperature != nil && *ss.Ollama.Temperature != 0 {
			metadata["ollama-temperature"] = *ss.Ollama.Temperature
		}
		if ss.Ollama.Seed != nil && *ss.Ollama.Seed != 0 {
			metadata["ollama-seed"] = *ss.Ollama.Seed
		}
		if ss.Ollama.TopK != nil && *ss.Ollama.TopK != 40 {
			metadata["ollama-top-k"] = *ss.Ollama.TopK
		}
		if ss.Ollama.TopP != nil && *ss.Ollama.TopP != 0.9 {
			metadata["ollama-top-p"] = *ss.Ollama.TopP
		}
		if ss.Ollama.NumCtx != nil {
			metadata["ollama-num-ctx"] = *ss.Ollama.NumCtx
		}
	}

	if ss.OpenAI != nil {
		if ss.OpenAI.PresencePenalty != nil {
			metadata["openai-presence-penalty"] = *ss.OpenAI.PresencePenalty
		}
		if ss.OpenAI.FrequencyPenalty != nil {
			metadata["openai-frequency-penalty"] = *ss.OpenAI.FrequencyPenalty
		}
		if ss.OpenAI.TopP != nil {
			metadata["openai-top-p"] = *ss.OpenAI.TopP
		}
		if len(ss.OpenAI.Stop) > 0 {
			metadata["openai-stop"] = ss.OpenAI.Stop
		}
	}

	return metadata
}

func (s *StepSettings) Clone() *StepSettings {
	return &StepSettings{
		Chat:   s.Chat.Clone(),
		Client: s.Client.Clone(),
		Ollama: s.Ollama.Clone(),
		OpenAI: s.OpenAI.Clone(),
	}
}
