package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"cruscotto/internal/core"
)

// TransactionsChangedMessage announces that the records behind the
// dashboard changed. From and To (YYYY-MM-DD) bound the affected dates
// when known; an empty range means "anything may have changed".
type TransactionsChangedMessage struct {
	Source    string    `json:"source"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTransactionsChangedMessage creates a message for the given source.
// A zero window leaves the range open.
func NewTransactionsChangedMessage(source string, w core.Window, count int) *TransactionsChangedMessage {
	msg := &TransactionsChangedMessage{
		Source:    source,
		Count:     count,
		Timestamp: time.Now().UTC(),
	}
	if !w.From.IsZero() && !w.To.IsZero() {
		msg.From = core.FormatDate(w.From)
		msg.To = core.FormatDate(w.To)
	}
	return msg
}

// Window returns the affected range, or false when the message does not
// carry one.
func (m *TransactionsChangedMessage) Window() (core.Window, bool) {
	if m.From == "" || m.To == "" {
		return core.Window{}, false
	}
	w, err := core.ParseWindow(m.From, m.To)
	if err != nil {
		return core.Window{}, false
	}
	return w, true
}

// ToJSON converts the message to JSON bytes
func (m *TransactionsChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionsChangedMessageFromJSON decodes and validates a message.
func TransactionsChangedMessageFromJSON(data []byte) (*TransactionsChangedMessage, error) {
	var msg TransactionsChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Source == "" {
		return nil, fmt.Errorf("message without source")
	}
	if (msg.From == "") != (msg.To == "") {
		return nil, fmt.Errorf("message range needs both from and to")
	}
	return &msg, nil
}
