package conversation

import (
	"sync"
	"time"

	"github.com/huandu/go-clone"
)

// HistoryStore is the ordered, append-only message log of a single branch.
//
// The store assigns sequence numbers on Append; entries are never removed or reordered.
// Every value leaving the store is a deep copy, so no caller can reach into the log.
// A HistoryStore is safe for concurrent use.
type HistoryStore struct {
	mu       sync.RWMutex
	messages []Message
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

// NewHistoryStoreFrom returns a new store whose contents are an independent deep copy of
// other's current snapshot. A nil other yields an empty store.
func NewHistoryStoreFrom(other *HistoryStore) *HistoryStore {
	h := NewHistoryStore()
	h.CopyFrom(other)
	return h
}

// CopyFrom replaces the (expected empty) contents of h with a deep copy of other's
// current snapshot. Sequence numbers are preserved, so appends to h continue after
// other's last sequence.
func (h *HistoryStore) CopyFrom(other *HistoryStore) {
	if other == nil || other == h {
		return
	}
	snapshot := other.Snapshot()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = snapshot
}

// Append adds msg to the end of the log, assigning the next sequence number, and
// returns a copy of the stored message. A zero ID or Time is filled in.
func (h *HistoryStore) Append(msg Message) Message {
	stored := cloneMessage(msg)
	if stored.ID == NullNode {
		stored.ID = NewNodeID()
	}
	if stored.Time.IsZero() {
		stored.Time = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	stored.Sequence = h.nextSequence()
	h.messages = append(h.messages, stored)

	return cloneMessage(stored)
}

func (h *HistoryStore) nextSequence() int {
	if len(h.messages) == 0 {
		return 1
	}
	return h.messages[len(h.messages)-1].Sequence + 1
}

// Snapshot returns the full ordered history as a deep copy.
func (h *HistoryStore) Snapshot() Conversation {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.messages) == 0 {
		return Conversation{}
	}
	return clone.Clone(Conversation(h.messages)).(Conversation)
}

func (h *HistoryStore) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Last returns a copy of the most recently appended message.
func (h *HistoryStore) Last() (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return cloneMessage(h.messages[len(h.messages)-1]), true
}

func cloneMessage(m Message) Message {
	if m.Metadata == nil {
		return m
	}
	m.Metadata = clone.Clone(m.Metadata).(map[string]interface{})
	return m
}
