package amqp

import (
	"encoding/json"
	"time"
)

// BudgetAlertMessage carries everything the mail worker needs to send
// one threshold notification without a database round trip.
type BudgetAlertMessage struct {
	UserID         string    `json:"userId"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	SpentCents     int64     `json:"spentCents"`
	ThresholdCents int64     `json:"thresholdCents"`
	MonthKey       string    `json:"monthKey"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m *BudgetAlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BudgetAlertMessageFromJSON creates a message from JSON bytes
func BudgetAlertMessageFromJSON(data []byte) (*BudgetAlertMessage, error) {
	var msg BudgetAlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
