package openai

import (
	"github.com/huandu/go-clone"
	go_openai "github.com/sashabaranov/go-openai"
)

// Settings are the sampling options specific to OpenAI compatible chat completions.
type Settings struct {
	PresencePenalty  *float64 `yaml:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `yaml:"frequency_penalty,omitempty"`
	TopP             *float64 `yaml:"top_p,omitempty"`
	Stop             []string `yaml:"stop,omitempty"`
}

func NewSettings() *Settings {
	return &Settings{}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// Apply copies the options that are set onto req.
func (s *Settings) Apply(req *go_openai.ChatCompletionRequest) {
	if s == nil {
		return
	}
	if s.PresencePenalty != nil {
		req.PresencePenalty = float32(*s.PresencePenalty)
	}
	if s.FrequencyPenalty != nil {
		req.FrequencyPenalty = float32(*s.FrequencyPenalty)
	}
	if s.TopP != nil {
		req.TopP = float32(*s.TopP)
	}
	if len(s.Stop) > 0 {
		req.Stop = append([]string(nil), s.Stop...)
	}
}
