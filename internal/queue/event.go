// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the audit consumer.
package queue

import (
    "time"

    "github.com/google/uuid"
)

// Event types published after a committed dispenser mutation.
const (
    EventDispenserRegistered       = "dispenser.registered"
    EventDispenserRenamed          = "dispenser.renamed"
    EventDispenserDeleted          = "dispenser.deleted"
    EventContainerPillUpdated      = "container.pill_updated"
    EventContainerScheduleReplaced = "container.schedule_replaced"
)

// DispenserEvent describes one change to a user's dispenser tree.  It carries
// enough context for downstream consumers to log or notify without querying
// the primary database.
type DispenserEvent struct {
    ID            string `json:"id"`                       // unique event id
    Type          string `json:"type"`                     // one of the Event* constants
    OwnerID       uint64 `json:"owner_id"`                 // dispenser owner
    DispenserID   uint64 `json:"dispenser_id"`             // affected dispenser
    DispenserName string `json:"dispenser_name"`           // name after the change
    PreviousName  string `json:"previous_name,omitempty"`  // set on rename
    SerialID      string `json:"serial_id,omitempty"`      // set on register
    SlotNumber    int    `json:"slot_number,omitempty"`    // set on container events
    PillName      string `json:"pill_name,omitempty"`      // set on container events
    ScheduleCount int    `json:"schedule_count,omitempty"` // set on schedule replace
    OccurredAt    string `json:"occurred_at"`              // RFC3339 UTC
}

// NewDispenserEvent stamps a fresh id and timestamp on an event of type typ.
func NewDispenserEvent(typ string, ownerID, dispenserID uint64, dispenserName string) DispenserEvent {
    return DispenserEvent{
        ID:            uuid.NewString(),
        Type:          typ,
        OwnerID:       ownerID,
        DispenserID:   dispenserID,
        DispenserName: dispenserName,
        OccurredAt:    time.Now().UTC().Format(time.RFC3339),
    }
}
