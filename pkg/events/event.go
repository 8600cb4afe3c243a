package events

import (
	"encoding/json"
	"time"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/pkg/errors"
)

type EventType string

const (
	EventTypeBranchCreated      EventType = "branch.created"
	EventTypeMessageAppended    EventType = "message.appended"
	EventTypeInferenceCompleted EventType = "inference.completed"
	EventTypeInferenceFailed    EventType = "inference.failed"
)

// Event describes something that happened to a branch. Events are published after the
// fact and nothing in the branch manager depends on them being delivered.
type Event struct {
	Type     EventType         `json:"type"`
	BranchID string            `json:"branchId"`
	ParentID string            `json:"parentBranchId,omitempty"`
	Role     conversation.Role `json:"role,omitempty"`
	Sequence int               `json:"sequence,omitempty"`
	Duration time.Duration     `json:"duration,omitempty"`
	Error    string            `json:"error,omitempty"`
	Time     time.Time         `json:"time"`
}

func NewBranchCreated(branchID, parentID string) Event {
	return Event{Type: EventTypeBranchCreated, BranchID: branchID, ParentID: parentID, Time: time.Now()}
}

func NewMessageAppended(branchID string, msg conversation.Message) Event {
	return Event{
		Type:     EventTypeMessageAppended,
		BranchID: branchID,
		Role:     msg.Role,
		Sequence: msg.Sequence,
		Time:     time.Now(),
	}
}

func NewInferenceCompleted(branchID string, d time.Duration) Event {
	return Event{Type: EventTypeInferenceCompleted, BranchID: branchID, Duration: d, Time: time.Now()}
}

func NewInferenceFailed(branchID string, d time.Duration, err error) Event {
	e := Event{Type: EventTypeInferenceFailed, BranchID: branchID, Duration: d, Time: time.Now()}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

func NewEventFromJson(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, errors.Wrap(err, "could not parse event")
	}
	if e.Type == "" {
		return Event{}, errors.New("event has no type")
	}
	return e, nil
}
