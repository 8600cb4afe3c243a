package settings

import (
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/forkchat/pkg/steps/ai/types"
	"github.com/spf13/viper"
)

func TestNewStepSettingsDefaults(t *testing.T) {
	s := NewStepSettings()
	if s.Chat.Provider() != types.ApiTypeOllama {
		t.Fatalf("expected ollama provider, got %q", s.Chat.Provider())
	}
	if s.Chat.EngineName() != "mistral" {
		t.Fatalf("expected mistral engine, got %q", s.Chat.EngineName())
	}
	if s.Client.GetBaseURL() != "" {
		t.Fatalf("expected no base url, got %q", s.Client.GetBaseURL())
	}
	if s.Client.GetTimeout() != DefaultTimeout {
		t.Fatalf("expected default timeout, got %s", s.Client.GetTimeout())
	}
}

func TestNewStepSettingsFromViper(t *testing.T) {
	v := viper.New()
	v.Set("api-type", "openai")
	v.Set("engine", "gpt-4o-mini")
	v.Set("api-key", "sk-test")
	v.Set("timeout", "15s")
	v.Set("use-prompt-template", true)
	v.Set("ollama-num-ctx", 4096)
	v.Set("openai-presence-penalty", 0.5)
	v.Set("openai-stop", []string{"Human:"})

	s, err := NewStepSettingsFromViper(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Chat.Provider() != types.ApiTypeOpenAI {
		t.Fatalf("expected openai provider, got %q", s.Chat.Provider())
	}
	if s.Chat.EngineName() != "gpt-4o-mini" {
		t.Fatalf("unexpected engine %q", s.Chat.EngineName())
	}
	if s.Client.GetAPIKey() != "sk-test" {
		t.Fatalf("unexpected api key %q", s.Client.GetAPIKey())
	}
	if s.Client.GetTimeout() != 15*time.Second {
		t.Fatalf("unexpected timeout %s", s.Client.GetTimeout())
	}
	if !s.Chat.UsePromptTemplate {
		t.Fatalf("expected prompt template mode")
	}
	if s.Ollama.NumCtx == nil || *s.Ollama.NumCtx != 4096 {
		t.Fatalf("expected num ctx 4096, got %v", s.Ollama.NumCtx)
	}
	if s.OpenAI.PresencePenalty == nil || *s.OpenAI.PresencePenalty != 0.5 {
		t.Fatalf("expected presence penalty 0.5, got %v", s.OpenAI.PresencePenalty)
	}
	if len(s.OpenAI.Stop) != 1 || s.OpenAI.Stop[0] != "Human:" {
		t.Fatalf("unexpected stop sequences %v", s.OpenAI.Stop)
	}
	if s.OpenAI.FrequencyPenalty != nil {
		t.Fatalf("frequency penalty should stay unset")
	}
}

func TestNewStepSettingsFromViperRejectsUnknownApiType(t *testing.T) {
	v := viper.New()
	v.Set("api-type", "carrier-pigeon")
	if _, err := NewStepSettingsFromViper(v); err == nil {
		t.Fatalf("expected error for unknown api type")
	}
}

func TestNewStepSettingsFromYAMLTimeoutSeconds(t *testing.T) {
	in := `
factories:
  chat:
    engine: llama3
  client:
    timeout: 30
`
	s, err := NewStepSettingsFromYAML(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Chat.EngineName() != "llama3" {
		t.Fatalf("unexpected engine %q", s.Chat.EngineName())
	}
	if s.Client.GetTimeout() != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", s.Client.GetTimeout())
	}
}

func TestStepSettingsCloneIsDeep(t *testing.T) {
	s := NewStepSettings()
	c := s.Clone()
	*c.Chat.Engine = "changed"
	if s.Chat.EngineName() != "mistral" {
		t.Fatalf("clone shares engine pointer")
	}
}

func TestGetMetadataOmitsAPIKey(t *testing.T) {
	s := NewStepSettings()
	key := "secret"
	s.Client.APIKey = &key
	for k, v := range s.GetMetadata() {
		if v == "secret" {
			t.Fatalf("api key leaked under %q", k)
		}
	}
}
