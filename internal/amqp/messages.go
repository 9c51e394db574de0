package amqp

import (
	"encoding/json"
	"time"
)

// EventType names a ledger change.
type EventType string

const (
	EventLedgerCreated      EventType = "ledger.created"
	EventLedgerUpdated      EventType = "ledger.updated"
	EventLedgerDeleted      EventType = "ledger.deleted"
	EventInstallmentUpdated EventType = "installment.updated"
	EventInstallmentOverdue EventType = "installment.overdue"
)

// LedgerEvent is a lightweight notification that a ledger changed.
// Consumers reload the current state from the store; the event carries ids only.
type LedgerEvent struct {
	Type          EventType `json:"type"`
	LedgerID      string    `json:"ledger_id"`
	EnrollmentID  string    `json:"enrollment_id"`
	InstallmentID string    `json:"installment_id,omitempty"`
	Version       int64     `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time.
func NewLedgerEvent(eventType EventType, ledgerID, enrollmentID string, version int64) *LedgerEvent {
	return &LedgerEvent{
		Type:         eventType,
		LedgerID:     ledgerID,
		EnrollmentID: enrollmentID,
		Version:      version,
		Timestamp:    time.Now(),
	}
}

// WithInstallment sets the installment the event refers to.
func (e *LedgerEvent) WithInstallment(id string) *LedgerEvent {
	e.InstallmentID = id
	return e
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event from JSON bytes
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
