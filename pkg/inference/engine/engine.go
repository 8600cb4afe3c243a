package engine

import (
	"context"

	"github.com/go-go-golems/forkchat/pkg/conversation"
)

// Engine produces the next assistant reply for a conversation.
//
// The history passed in is an ordered, already-copied snapshot whose last message is the
// human turn being answered. Implementations must not retain or mutate it. Engines may
// be called concurrently for different branches.
type Engine interface {
	RunInference(ctx context.Context, history conversation.Conversation) (*conversation.Message, error)
}

// EngineFunc adapts a plain function to the Engine interface.
type EngineFunc func(ctx context.Context, history conversation.Conversation) (*conversation.Message, error)

func (f EngineFunc) RunInference(ctx context.Context, history conversation.Conversation) (*conversation.Message, error) {
	return f(ctx, history)
}

// Reply returns the content of the message returned by e for the given history.
func Reply(ctx context.Context, e Engine, history conversation.Conversation) (string, error) {
	msg, err := e.RunInference(ctx, history)
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", ErrEmptyResponse
	}
	return msg.Content, nil
}
