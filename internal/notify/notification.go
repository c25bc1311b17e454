package notify

import (
	"context"
	"strings"
)

// Action keys understood by the dispatcher
const (
	KeyMenu              = "menu"
	KeyDeleteMessage     = "delete"
	KeyExtraditionStart  = "ext.profiles"
	KeyExtraditionNext   = "ext.next"
	KeyExtraditionDone   = "ext.done"
	KeyExtraditionCancel = "ext.cancel"
	KeyMoveStart         = "move.profiles"
	KeyMoveNext          = "move.next"
	KeyMoveDone          = "move.done"
	KeyMoveCancel        = "move.cancel"
)

// PayloadSeparator joins an action key and its payload in callback data
const PayloadSeparator = "|"

// Action is one button under a notification
type Action struct {
	Label   string `json:"label"`
	Key     string `json:"key"`
	Payload string `json:"payload,omitempty"`
}

// CallbackData encodes the action for the chat transport
func (a Action) CallbackData() string {
	if a.Payload == "" {
		return a.Key
	}
	return a.Key + PayloadSeparator + a.Payload
}

// ParseCallbackData splits "key|payload"
func ParseCallbackData(data string) (key, payload string) {
	key, payload, _ = strings.Cut(data, PayloadSeparator)
	return strings.TrimSpace(key), strings.TrimSpace(payload)
}

// DefaultColumns is the number of buttons per keyboard row
const DefaultColumns = 2

// Notification is one outbound message. Delete lists message ids the transport removes first.
type Notification struct {
	ChatID  int64    `json:"chat_id"`
	Text    string   `json:"text"`
	Actions []Action `json:"actions,omitempty"`
	Columns int      `json:"columns,omitempty"` // buttons per row, DefaultColumns when zero
	Delete  []int    `json:"delete,omitempty"`
}

// Empty reports whether there is nothing to send
func (n Notification) Empty() bool {
	return n.Text == "" && len(n.Delete) == 0
}

// Rows splits the actions into keyboard rows
func (n Notification) Rows() [][]Action {
	columns := n.Columns
	if columns <= 0 {
		columns = DefaultColumns
	}

	var rows [][]Action
	for start := 0; start < len(n.Actions); start += columns {
		end := start + columns
		if end > len(n.Actions) {
			end = len(n.Actions)
		}
		rows = append(rows, n.Actions[start:end])
	}
	return rows
}

// Notifier delivers notifications to operators
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
