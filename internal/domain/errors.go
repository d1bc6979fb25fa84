package domain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidRecord marks a ledger row rejected at the ingestion boundary.
	ErrInvalidRecord = errors.New("invalid transaction record")
	// ErrLedgerInconsistency marks a sell exceeding the held quantity.
	ErrLedgerInconsistency = errors.New("ledger inconsistency")
	// ErrDataGap marks a missing or too short price/rate series.
	ErrDataGap = errors.New("data gap")
	// ErrDegenerateBenchmark marks a benchmark with zero return variance.
	ErrDegenerateBenchmark = errors.New("degenerate benchmark")
	// ErrSimulationUnavailable marks a frontier that cannot be simulated.
	ErrSimulationUnavailable = errors.New("simulation unavailable")
	// ErrEmptyLedger aborts a portfolio run with no transactions.
	ErrEmptyLedger = errors.New("empty ledger")
)

// WarningKind classifies data-quality notes attached to a report.
type WarningKind string

const (
	WarningLedgerInconsistency   WarningKind = "ledger_inconsistency"
	WarningDataGap               WarningKind = "data_gap"
	WarningForwardFill           WarningKind = "forward_fill"
	WarningZeroVariance          WarningKind = "zero_variance"
	WarningDegenerateBenchmark   WarningKind = "degenerate_benchmark"
	WarningSimulationUnavailable WarningKind = "simulation_unavailable"
	WarningSimulationCapped      WarningKind = "simulation_capped"
	WarningCurrencyFallback      WarningKind = "currency_fallback"
	WarningWindowNarrowed        WarningKind = "window_narrowed"
)

// Warning is a structured data-quality note.
type Warning struct {
	Kind     WarningKind `json:"kind"`
	Security string      `json:"security,omitempty"`
	Message  string      `json:"message"`
}

func (w Warning) String() string {
	if w.Security == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", w.Kind, w.Security, w.Message)
}

// Warnings collects notes for one report run. Safe for concurrent use.
type Warnings struct {
	mu    sync.Mutex
	items []Warning
	log   zerolog.Logger
}

// NewWarnings returns a collector that also logs each note at warn level.
func NewWarnings(log zerolog.Logger) *Warnings {
	return &Warnings{log: log}
}

// Add records a note
func (w *Warnings) Add(kind WarningKind, security, format string, args ...interface{}) {
	item := Warning{Kind: kind, Security: security, Message: fmt.Sprintf(format, args...)}

	w.mu.Lock()
	w.items = append(w.items, item)
	w.mu.Unlock()

	w.log.Warn().
		Str("kind", string(kind)).
		Str("security", security).
		Msg(item.Message)
}

// AddError records err under kind; the security is taken from err when it is a SecurityError.
func (w *Warnings) AddError(kind WarningKind, err error) {
	var secErr *SecurityError
	if errors.As(err, &secErr) {
		w.Add(kind, secErr.Security, "%s", secErr.Err.Error())
		return
	}
	w.Add(kind, "", "%s", err.Error())
}

// Items returns a copy of the recorded notes in insertion order.
func (w *Warnings) Items() []Warning {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Warning, len(w.items))
	copy(out, w.items)
	return out
}

// Count returns the number of notes of the given kind.
func (w *Warnings) Count(kind WarningKind) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, item := range w.items {
		if item.Kind == kind {
			n++
		}
	}
	return n
}

// SecurityError scopes an error to a single security.
type SecurityError struct {
	Security string
	Err      error
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Security, e.Err)
}

func (e *SecurityError) Unwrap() error { return e.Err }

// NewSecurityError wraps a sentinel with security context and a detail message.
func NewSecurityError(security string, sentinel error, format string, args ...interface{}) error {
	return &SecurityError{
		Security: security,
		Err:      fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}
