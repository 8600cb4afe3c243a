package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type NodeID uuid.UUID

func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id))
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	var uuid uuid.UUID
	if err := json.Unmarshal(data, &uuid); err != nil {
		return err
	}
	*id = NodeID(uuid)
	return nil
}

func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

var NullNode NodeID = NodeID(uuid.Nil)

type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

func (r Role) IsValid() bool {
	return r == RoleHuman || r == RoleAssistant
}

// Message is a single turn of a branch history.
//
// Messages are values: a HistoryStore hands out copies, and a Message obtained from a
// snapshot can be modified freely without affecting the store it came from.
// Sequence is assigned by the store on append and starts at 1.
type Message struct {
	ID       NodeID    `json:"id"`
	Role     Role      `json:"role"`
	Content  string    `json:"content"`
	Sequence int       `json:"sequence"`
	Time     time.Time `json:"time"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type MessageOption func(*Message)

func WithMetadata(metadata map[string]interface{}) MessageOption {
	return func(message *Message) {
		message.Metadata = metadata
	}
}

func WithTime(time time.Time) MessageOption {
	return func(message *Message) {
		message.Time = time
	}
}

func WithID(id NodeID) MessageOption {
	return func(message *Message) {
		message.ID = id
	}
}

func NewMessage(role Role, content string, options ...MessageOption) Message {
	ret := Message{
		ID:      NewNodeID(),
		Role:    role,
		Content: content,
		Time:    time.Now(),
	}

	for _, option := range options {
		option(&ret)
	}

	return ret
}

func NewHumanMessage(content string, options ...MessageOption) Message {
	return NewMessage(RoleHuman, content, options...)
}

func NewAssistantMessage(content string, options ...MessageOption) Message {
	return NewMessage(RoleAssistant, content, options...)
}

func (m Message) String() string {
	return fmt.Sprintf("[%s #%d]: %s", m.Role, m.Sequence, strings.TrimRight(m.Content, "\n"))
}

type Conversation []Message

// Last returns the last message of the conversation, if any.
func (c Conversation) Last() (Message, bool) {
	if len(c) == 0 {
		return Message{}, false
	}
	return c[len(c)-1], true
}

// CountRole returns how many messages in the conversation have the given role.
func (c Conversation) CountRole(role Role) int {
	n := 0
	for _, m := range c {
		if m.Role == role {
			n++
		}
	}
	return n
}

// GetSinglePrompt concatenates all the messages together, one "[role]: content" line each.
func (c Conversation) GetSinglePrompt() string {
	if len(c) == 0 {
		return ""
	}
	if len(c) == 1 {
		return c[0].Content
	}

	var sb strings.Builder
	for _, m := range c {
		_, _ = fmt.Fprintf(&sb, "[%s]: %s\n", m.Role, m.Content)
	}
	return sb.String()
}
