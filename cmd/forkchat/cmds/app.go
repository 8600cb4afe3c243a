package cmds

import (
	"context"

	"github.com/go-go-golems/forkchat/pkg/branches"
	"github.com/go-go-golems/forkchat/pkg/events"
	"github.com/go-go-golems/forkchat/pkg/inference/engine/factory"
	"github.com/go-go-golems/forkchat/pkg/steps/ai/settings"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AddInferenceFlags declares the flags read by settings.NewStepSettingsFromViper.
func AddInferenceFlags(fs *pflag.FlagSet) {
	fs.String("api-type", string(settings.DefaultApiType), "Model backend (ollama, openai, echo)")
	fs.String("engine", settings.DefaultEngine, "Model name")
	fs.String("base-url", "", "Base URL of the model API (ollama default: "+settings.DefaultBaseURL+")")
	fs.String("api-key", "", "API key for the model API")
	fs.Duration("timeout", settings.DefaultTimeout, "Timeout of a single model call (0 for none)")
	fs.Int("max-response-tokens", 0, "Maximum number of tokens in a reply")
	fs.Float64("temperature", 0, "Sampling temperature")
	fs.Bool("stream", true, "Stream replies from the model API")
	fs.Bool("use-prompt-template", false, "Flatten the history into a single prompt before calling the model")
	fs.String("prompt-template", "", "Go template used with --use-prompt-template")
	fs.Float64("ollama-temperature", 0, "Ollama temperature option")
	fs.Int("ollama-num-ctx", 0, "Ollama context window size")
	fs.Int("ollama-top-k", 0, "Ollama top_k option")
	fs.Float64("ollama-top-p", 0, "Ollama top_p option")
	fs.Int("ollama-seed", 0, "Ollama seed option")

	fs.Float64("openai-presence-penalty", 0, "OpenAI presence penalty")
	fs.Float64("openai-frequency-penalty", 0, "OpenAI frequency penalty")
	fs.Float64("openai-top-p", 0, "OpenAI top_p")
	fs.StringSlice("openai-stop", nil, "OpenAI stop sequences")
}

// App holds the pieces shared by every command: a branch manager backed by the
// configured engine, and an event router feeding logs and metrics.
type App struct {
	Settings *settings.StepSettings
	Manager  *branches.Manager
	Router   *events.EventRouter
	Metrics  *events.Metrics
	Registry *prometheus.Registry
}

func NewApp(v *viper.Viper) (*App, error) {
	stepSettings, err := settings.NewStepSettingsFromViper(v)
	if err != nil {
		return nil, err
	}

	e, err := factory.NewStandardEngineFactory().CreateEngine(stepSettings)
	if err != nil {
		return nil, errors.Wrap(err, "could not create engine")
	}

	router, err := events.NewEventRouter(events.WithVerbose(v.GetBool("verbose")))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := events.NewMetrics(reg)

	router.AddHandler("log", events.NewLoggingHandler(log.Logger))
	router.AddHandler("metrics", metrics.Handle)

	manager, err := branches.NewManager(e, branches.WithEventSink(router.Sink()))
	if err != nil {
		return nil, err
	}

	log.Debug().Fields(stepSettings.GetMetadata()).Msg("Created branch manager")

	return &App{
		Settings: stepSettings,
		Manager:  manager,
		Router:   router,
		Metrics:  metrics,
		Registry: reg,
	}, nil
}

// RunRouter runs the event router until ctx is done and closes it afterwards.
func (a *App) RunRouter(ctx context.Context) error {
	defer func() {
		if err := a.Router.Close(); err != nil {
			log.Warn().Err(err).Msg("could not close event router")
		}
	}()
	return a.Router.Run(ctx)
}
