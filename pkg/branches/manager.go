package branches

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/events"
	"github.com/go-go-golems/forkchat/pkg/inference/engine"
	"github.com/mb0/glob"
	"github.com/pkg/errors"
)

// Manager is the single entry point for creating branches, sending messages to them and
// reading their histories. It owns the registry and hands the engine a fresh copy of a
// branch's history on every send.
type Manager struct {
	registry *Registry
	engine   engine.Engine
	sink     events.Sink
	now      func() time.Time
}

type ManagerOption func(*Manager)

func WithRegistry(r *Registry) ManagerOption {
	return func(m *Manager) {
		m.registry = r
	}
}

// WithEventSink sets where branch events are published. Publishing errors are ignored.
func WithEventSink(sink events.Sink) ManagerOption {
	return func(m *Manager) {
		m.sink = sink
	}
}

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(e engine.Engine, options ...ManagerOption) (*Manager, error) {
	if e == nil {
		return nil, errors.New("engine cannot be nil")
	}
	m := &Manager{
		engine: e,
		sink:   events.NewNullSink(),
		now:    time.Now,
	}
	for _, option := range options {
		option(m)
	}
	if m.registry == nil {
		m.registry = NewRegistry(WithClock(m.now))
	}
	return m, nil
}

type CreateBranchResult struct {
	BranchID string `json:"branchId"`
}

// CreateBranch registers branchID. When parentBranchID is not empty the new branch starts
// with a copy of the parent's history, taken once any in-flight send on the parent has
// completed.
func (m *Manager) CreateBranch(ctx context.Context, branchID string, parentBranchID string) (*CreateBranchResult, error) {
	d, err := m.registry.Create(ctx, branchID, parentBranchID)
	if err != nil {
		return nil, err
	}
	m.publish(events.NewBranchCreated(d.ID, d.ParentID))
	return &CreateBranchResult{BranchID: d.ID}, nil
}

// SendMessage appends content as a human turn, asks the engine for a reply given the full
// history and appends the reply. Sends on the same branch are served one at a time, in
// arrival order.
//
// If the engine fails, the human turn stays in the history and a *ModelInvocationError is
// returned. Once the human turn has been appended, cancelling ctx no longer aborts the
// exchange.
func (m *Manager) SendMessage(ctx context.Context, branchID string, content string) (string, error) {
	b, err := m.registry.Get(branchID)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(content) == "" {
		return "", &InvalidInputError{Field: "message", Reason: "must not be empty"}
	}

	if err := b.lock.Lock(ctx); err != nil {
		return "", errors.Wrapf(err, "waiting for branch %q", branchID)
	}
	defer b.lock.Unlock()

	human := b.history.Append(conversation.NewHumanMessage(content, conversation.WithTime(m.now())))
	m.publish(events.NewMessageAppended(branchID, human))

	start := m.now()
	reply, err := engine.Reply(context.WithoutCancel(ctx), m.engine, b.history.Snapshot())
	elapsed := m.now().Sub(start)
	if err != nil {
		m.publish(events.NewInferenceFailed(branchID, elapsed, err))
		return "", &ModelInvocationError{BranchID: branchID, Err: err}
	}
	m.publish(events.NewInferenceCompleted(branchID, elapsed))

	assistant := b.history.Append(conversation.NewAssistantMessage(reply, conversation.WithTime(m.now())))
	m.publish(events.NewMessageAppended(branchID, assistant))

	return assistant.Content, nil
}

// GetHistory returns a copy of the branch's history. It does not wait for in-flight
// sends, so it may observe a human turn whose reply is still pending.
func (m *Manager) GetHistory(ctx context.Context, branchID string) (conversation.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := m.registry.Get(branchID)
	if err != nil {
		return nil, err
	}
	return b.History(), nil
}

// GetSettledHistory is GetHistory without a pending exchange: it waits behind any
// in-flight sends on the branch, in arrival order, and returns the history once they
// are done.
func (m *Manager) GetSettledHistory(ctx context.Context, branchID string) (conversation.Conversation, error) {
	b, err := m.registry.Get(branchID)
	if err != nil {
		return nil, err
	}
	if err := b.lock.Lock(ctx); err != nil {
		return nil, errors.Wrapf(err, "waiting for branch %q", branchID)
	}
	defer b.lock.Unlock()
	return b.History(), nil
}

func (m *Manager) GetBranch(branchID string) (Descriptor, error) {
	b, err := m.registry.Get(branchID)
	if err != nil {
		return Descriptor{}, err
	}
	return b.Descriptor(), nil
}

// ListBranches returns the branches whose id matches the glob pattern, ordered by id.
// An empty pattern matches every branch.
func (m *Manager) ListBranches(pattern string) ([]Descriptor, error) {
	ret := []Descriptor{}
	for d := range m.registry.List() {
		if pattern != "" {
			ok, err := glob.Match(pattern, d.ID)
			if err != nil {
				return nil, &InvalidInputError{Field: "match", Reason: err.Error()}
			}
			if !ok {
				continue
			}
		}
		ret = append(ret, d)
	}
	return ret, nil
}

func (m *Manager) publish(e events.Event) {
	_ = m.sink.PublishEvent(e)
}
