package ollama

import (
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Settings are the model options forwarded to the ollama chat endpoint.
// The yaml names are the option names ollama expects.
type Settings struct {
	Mirostat      *int     `yaml:"mirostat,omitempty"`
	NumCtx        *int     `yaml:"num_ctx,omitempty"`
	NumPredict    *int     `yaml:"num_predict,omitempty"`
	RepeatPenalty *float64 `yaml:"repeat_penalty,omitempty"`
	Temperature   *float64 `yaml:"temperature,omitempty"`
	Seed          *int     `yaml:"seed,omitempty"`
	TopK          *int     `yaml:"top_k,omitempty"`
	TopP          *float64 `yaml:"top_p,omitempty"`
}

func NewSettings() *Settings {
	return &Settings{}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// Options converts the settings to the free-form options map of an ollama request.
// Unset fields are left out so the model's own defaults apply.
func (s *Settings) Options() (map[string]interface{}, error) {
	if s == nil {
		return map[string]interface{}{}, nil
	}
	b, err := yaml.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal ollama settings")
	}
	ret := map[string]interface{}{}
	if err := yaml.Unmarshal(b, &ret); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal ollama settings")
	}
	return ret, nil
}
