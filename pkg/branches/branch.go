package branches

import (
	"context"
	"time"

	"github.com/go-go-golems/forkchat/pkg/conversation"
)

type State string

const (
	// StateCreated is a branch holding only its empty or inherited history.
	StateCreated State = "created"
	// StateActive is a branch that received at least one human turn of its own.
	StateActive State = "active"
)

// Descriptor is a read-only view of a branch, safe to hand out to any caller.
type Descriptor struct {
	ID           string    `json:"branchId"`
	ParentID     string    `json:"parentBranchId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	MessageCount int       `json:"messageCount"`
	State        State     `json:"state"`
}

// Branch owns one history. The lock serializes every operation that must observe or
// extend the history as a unit (send, fork).
type Branch struct {
	ID        string
	ParentID  string
	CreatedAt time.Time

	history   *conversation.HistoryStore
	inherited int
	lock      *fifoLock
}

func newBranch(id, parentID string, history *conversation.HistoryStore, now time.Time) *Branch {
	return &Branch{
		ID:        id,
		ParentID:  parentID,
		CreatedAt: now,
		history:   history,
		inherited: history.Len(),
		lock:      newFIFOLock(),
	}
}

func (b *Branch) History() conversation.Conversation {
	return b.history.Snapshot()
}

func (b *Branch) State() State {
	if b.history.Len() > b.inherited {
		return StateActive
	}
	return StateCreated
}

func (b *Branch) Descriptor() Descriptor {
	return Descriptor{
		ID:           b.ID,
		ParentID:     b.ParentID,
		CreatedAt:    b.CreatedAt,
		MessageCount: b.history.Len(),
		State:        b.State(),
	}
}

// fifoLock is a mutex that hands ownership to waiters in arrival order.
// Blocked senders on a channel are queued and served first-in first-out, and a
// receive from a full buffer moves the oldest waiting sender's value in directly.
type fifoLock struct {
	ch chan struct{}
}

func newFIFOLock() *fifoLock {
	return &fifoLock{ch: make(chan struct{}, 1)}
}

// Lock blocks until the lock is acquired or ctx is done.
func (l *fifoLock) Lock(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	default:
	}
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *fifoLock) Unlock() {
	<-l.ch
}
