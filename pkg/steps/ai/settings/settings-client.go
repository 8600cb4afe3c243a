package settings

import (
	"net/http"
	"time"

	"github.com/go-go-golems/forkchat/pkg/helpers"
	"github.com/huandu/go-clone"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL is where ollama listens when no base URL is configured.
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 2 * time.Minute
)

type ClientSettings struct {
	Timeout        *time.Duration `yaml:"-"`
	TimeoutSeconds *int           `yaml:"timeout,omitempty"`
	BaseURL        *string        `yaml:"base_url,omitempty"`
	APIKey         *string        `yaml:"api_key,omitempty"`
	HTTPClient     *http.Client   `yaml:"-" json:"-"`
}

func NewClientSettings() *ClientSettings {
	return &ClientSettings{
		Timeout: helpers.ToPtr(DefaultTimeout),
	}
}

// UnmarshalYAML reads the timeout as a number of seconds.
func (cs *ClientSettings) UnmarshalYAML(value *yaml.Node) error {
	type Alias ClientSettings
	aux := Alias(*cs)
	if err := value.Decode(&aux); err != nil {
		return err
	}
	*cs = ClientSettings(aux)
	if cs.TimeoutSeconds != nil {
		t := time.Duration(*cs.TimeoutSeconds) * time.Second
		cs.Timeout = &t
	}
	return nil
}

func (cs *ClientSettings) Clone() *ClientSettings {
	return clone.Clone(cs).(*ClientSettings)
}

// GetTimeout returns the per-call model timeout; zero means no bound.
func (cs *ClientSettings) GetTimeout() time.Duration {
	if cs == nil || cs.Timeout == nil {
		return 0
	}
	return *cs.Timeout
}

// GetBaseURL returns the configured base URL, or "" to let the backend use its default.
func (cs *ClientSettings) GetBaseURL() string {
	if cs == nil || cs.BaseURL == nil {
		return ""
	}
	return *cs.BaseURL
}

func (cs *ClientSettings) GetAPIKey() string {
	if cs == nil || cs.APIKey == nil {
		return ""
	}
	return *cs.APIKey
}
