// Package events provides event management functionality.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	// Report runs
	RunStarted   EventType = "RUN_STARTED"
	RunStage     EventType = "RUN_STAGE"
	RunCompleted EventType = "RUN_COMPLETED"
	RunFailed    EventType = "RUN_FAILED"

	// Data imports
	LedgerImported  EventType = "LEDGER_IMPORTED"
	HistoryImported EventType = "HISTORY_IMPORTED"

	ReportPublished EventType = "REPORT_PUBLISHED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// AllEventTypes lists every type a stream subscriber can receive
func AllEventTypes() []EventType {
	return []EventType{
		RunStarted, RunStage, RunCompleted, RunFailed,
		LedgerImported, HistoryImported,
		ReportPublished, ErrorOccurred,
	}
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
