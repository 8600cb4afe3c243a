package engine

import (
	"context"
	"time"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Middleware wraps an Engine with additional behaviour.
// Chain(e, m1, m2, m3) results in m1(m2(m3(e))).
type Middleware func(Engine) Engine

func Chain(e Engine, middlewares ...Middleware) Engine {
	for i := len(middlewares) - 1; i >= 0; i-- {
		e = middlewares[i](e)
	}
	return e
}

// WithTimeout bounds every call to the wrapped engine. A zero or negative duration
// leaves calls unbounded.
func WithTimeout(d time.Duration) Middleware {
	return func(next Engine) Engine {
		if d <= 0 {
			return next
		}
		return EngineFunc(func(ctx context.Context, history conversation.Conversation) (*conversation.Message, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			msg, err := next.RunInference(ctx, history)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, errors.Wrapf(err, "inference timed out after %s", d)
			}
			return msg, err
		})
	}
}

// WithLogging logs every call at debug level and failures at warn level.
func WithLogging(name string) Middleware {
	return func(next Engine) Engine {
		return EngineFunc(func(ctx context.Context, history conversation.Conversation) (*conversation.Message, error) {
			start := time.Now()
			log.Debug().Str("engine", name).Int("messages", len(history)).Msg("inference started")

			msg, err := next.RunInference(ctx, history)
			if err != nil {
				log.Warn().Err(err).Str("engine", name).Dur("duration", time.Since(start)).Msg("inference failed")
				return nil, err
			}

			log.Debug().Str("engine", name).Dur("duration", time.Since(start)).Msg("inference completed")
			return msg, nil
		})
	}
}

// WithPromptTemplate flattens the history into a single human turn rendered through
// tmpl before handing it to the wrapped engine. The reply is returned unchanged.
func WithPromptTemplate(tmpl string) Middleware {
	if tmpl == "" {
		tmpl = conversation.DefaultPromptTemplate
	}
	return func(next Engine) Engine {
		return EngineFunc(func(ctx context.Context, history conversation.Conversation) (*conversation.Message, error) {
			if len(history) == 0 {
				return nil, ErrEmptyHistory
			}
			prompt, err := conversation.RenderPrompt(tmpl, history)
			if err != nil {
				return nil, err
			}
			return next.RunInference(ctx, conversation.Conversation{
				conversation.NewHumanMessage(prompt),
			})
		})
	}
}
