package amqp

import (
	"encoding/json"
	"time"
)

// IntentRepairMessage asks the worker to finish a write intent whose vault
// write succeeded but whose metadata insert did not. It carries everything
// the repair needs so the worker does not depend on the API server.
type IntentRepairMessage struct {
	IntentID   int64     `json:"intentId"`
	OwnerID    string    `json:"ownerId"`
	ExternalID string    `json:"externalId"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewIntentRepairMessage(intentID int64, ownerID, externalID string) *IntentRepairMessage {
	return &IntentRepairMessage{
		IntentID:   intentID,
		OwnerID:    ownerID,
		ExternalID: externalID,
		Timestamp:  time.Now(),
	}
}

func (m *IntentRepairMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func IntentRepairMessageFromJSON(data []byte) (*IntentRepairMessage, error) {
	var msg IntentRepairMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
