package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// LedgerChangedMessage announces a committed ledger mutation. It carries
// ids only; consumers read current state from the store.
type LedgerChangedMessage struct {
	Operation  string    `json:"operation"`
	UserID     string    `json:"userId"`
	AccountIDs []string  `json:"accountIds"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewLedgerChangedMessage(operation, userID string, accountIDs []string, at time.Time) *LedgerChangedMessage {
	if at.IsZero() {
		at = time.Now()
	}
	ids := make([]string, len(accountIDs))
	copy(ids, accountIDs)
	return &LedgerChangedMessage{
		Operation:  operation,
		UserID:     userID,
		AccountIDs: ids,
		Timestamp:  at.UTC(),
	}
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes a message and rejects one without a
// user, since nothing downstream could act on it.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, fmt.Errorf("ledger changed message without user id")
	}
	return &msg, nil
}
