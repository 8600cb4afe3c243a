package engine

import (
	"context"
	"time"

	"github.com/go-go-golems/forkchat/pkg/conversation"
)

// EchoEngine answers every human turn by repeating it. It needs no model server, which
// makes it useful for demos and for exercising the HTTP surface.
type EchoEngine struct {
	Prefix string
	Delay  time.Duration
}

type EchoOption func(*EchoEngine)

func WithEchoPrefix(prefix string) EchoOption {
	return func(e *EchoEngine) {
		e.Prefix = prefix
	}
}

func WithEchoDelay(d time.Duration) EchoOption {
	return func(e *EchoEngine) {
		e.Delay = d
	}
}

func NewEchoEngine(options ...EchoOption) *EchoEngine {
	e := &EchoEngine{Prefix: "echo: "}
	for _, option := range options {
		option(e)
	}
	return e
}

func (e *EchoEngine) RunInference(ctx context.Context, history conversation.Conversation) (*conversation.Message, error) {
	last, ok := history.Last()
	if !ok {
		return nil, ErrEmptyHistory
	}

	if e.Delay > 0 {
		t := time.NewTimer(e.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	msg := conversation.NewAssistantMessage(e.Prefix+last.Content,
		conversation.WithMetadata(map[string]interface{}{
			"turns": len(history),
		}))
	return &msg, nil
}
