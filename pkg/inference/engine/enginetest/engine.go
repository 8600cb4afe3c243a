// Package enginetest provides a scriptable Engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/huandu/go-clone"
)

// Engine records every history it is called with and answers through Respond.
// When Gate is set, each call blocks until a value is received from it or the context
// is done. Started receives one value per call before the engine blocks.
type Engine struct {
	Respond func(history conversation.Conversation) (string, error)
	Gate    chan struct{}
	Started chan struct{}

	mu    sync.Mutex
	calls []conversation.Conversation
}

type Option func(*Engine)

func WithResponder(f func(history conversation.Conversation) (string, error)) Option {
	return func(e *Engine) {
		e.Respond = f
	}
}

// WithGate makes every call block until the returned test releases it.
func WithGate() Option {
	return func(e *Engine) {
		e.Gate = make(chan struct{})
		e.Started = make(chan struct{}, 64)
	}
}

// FailWith makes every call fail with err.
func FailWith(err error) Option {
	return WithResponder(func(conversation.Conversation) (string, error) {
		return "", err
	})
}

// New returns an engine that, by default, answers "reply N to: <content>" where N is the
// number of human turns in the history.
func New(options ...Option) *Engine {
	e := &Engine{
		Respond: func(history conversation.Conversation) (string, error) {
			last, _ := history.Last()
			return fmt.Sprintf("reply %d to: %s", history.CountRole(conversation.RoleHuman), last.Content), nil
		},
	}
	for _, option := range options {
		option(e)
	}
	return e
}

func (e *Engine) RunInference(ctx context.Context, history conversation.Conversation) (*conversation.Message, error) {
	e.mu.Lock()
	e.calls = append(e.calls, clone.Clone(history).(conversation.Conversation))
	e.mu.Unlock()

	if e.Gate != nil {
		if e.Started != nil {
			e.Started <- struct{}{}
		}
		select {
		case <-e.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	content, err := e.Respond(history)
	if err != nil {
		return nil, err
	}
	msg := conversation.NewAssistantMessage(content)
	return &msg, nil
}

// Release unblocks one gated call.
func (e *Engine) Release() {
	e.Gate <- struct{}{}
}

// Calls returns copies of the histories the engine was called with, in call order.
func (e *Engine) Calls() []conversation.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone.Clone(e.calls).([]conversation.Conversation)
}

func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}
