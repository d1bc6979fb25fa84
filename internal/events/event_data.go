package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunStartedData contains data for RunStarted events
type RunStartedData struct {
	RunID     string `json:"run_id"`
	Portfolio string `json:"portfolio"`
}

// EventType returns the event type for RunStartedData
func (d *RunStartedData) EventType() EventType {
	return RunStarted
}

// RunStageData reports progress through the analysis pipeline
type RunStageData struct {
	RunID     string `json:"run_id"`
	Portfolio string `json:"portfolio"`
	Stage     string `json:"stage"`
}

// EventType returns the event type for RunStageData
func (d *RunStageData) EventType() EventType {
	return RunStage
}

// RunCompletedData contains data for RunCompleted events
type RunCompletedData struct {
	RunID     string `json:"run_id"`
	Portfolio string `json:"portfolio"`
	Warnings  int    `json:"warnings"`
	Elapsed   string `json:"elapsed"`
}

// EventType returns the event type for RunCompletedData
func (d *RunCompletedData) EventType() EventType {
	return RunCompleted
}

// RunFailedData contains data for RunFailed events
type RunFailedData struct {
	RunID     string `json:"run_id"`
	Portfolio string `json:"portfolio"`
	Error     string `json:"error"`
}

// EventType returns the event type for RunFailedData
func (d *RunFailedData) EventType() EventType {
	return RunFailed
}

// LedgerImportedData contains data for LedgerImported events
type LedgerImportedData struct {
	Portfolio string `json:"portfolio"`
	Records   int    `json:"records"`
}

// EventType returns the event type for LedgerImportedData
func (d *LedgerImportedData) EventType() EventType {
	return LedgerImported
}

// HistoryImportedData contains data for HistoryImported events
type HistoryImportedData struct {
	Series string `json:"series"`
	Kind   string `json:"kind"` // price or rate
	Points int    `json:"points"`
}

// EventType returns the event type for HistoryImportedData
func (d *HistoryImportedData) EventType() EventType {
	return HistoryImported
}

// ReportPublishedData contains data for ReportPublished events
type ReportPublishedData struct {
	RunID     string `json:"run_id"`
	Portfolio string `json:"portfolio"`
	Key       string `json:"key"`
}

// EventType returns the event type for ReportPublishedData
func (d *ReportPublishedData) EventType() EventType {
	return ReportPublished
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// GetTypedData converts the payload map back to its typed form, or nil.
func (e *Event) GetTypedData() EventData {
	if e.Data == nil {
		return nil
	}

	var data EventData
	switch e.Type {
	case RunStarted:
		data = &RunStartedData{}
	case RunStage:
		data = &RunStageData{}
	case RunCompleted:
		data = &RunCompletedData{}
	case RunFailed:
		data = &RunFailedData{}
	case LedgerImported:
		data = &LedgerImportedData{}
	case HistoryImported:
		data = &HistoryImportedData{}
	case ReportPublished:
		data = &ReportPublishedData{}
	case ErrorOccurred:
		data = &ErrorEventData{}
	default:
		return nil
	}
	if err := convertMapToStruct(e.Data, data); err != nil {
		return nil
	}
	return data
}
