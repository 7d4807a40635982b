package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity grades a reconciliation result
type Severity string

const (
	SeveritySuccess     Severity = "SUCCESS"
	SeverityWarning     Severity = "WARNING"
	SeverityError       Severity = "ERROR"
	SeverityInformation Severity = "INFORMATION"
)

// ParseSeverity accepts any casing of a severity name
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToUpper(strings.TrimSpace(s))); sev {
	case SeveritySuccess, SeverityWarning, SeverityError, SeverityInformation:
		return sev, nil
	}
	return "", fmt.Errorf("unknown severity %q: %w", s, ErrInvalidArgument)
}

// SyncResult is one entry of a reconciliation log
type SyncResult struct {
	DataSourceID int64    `json:"data_source_id" yaml:"data_source_id"`
	Severity     Severity `json:"severity" yaml:"severity"`
	Title        string   `json:"title" yaml:"title"`
	Message      string   `json:"message" yaml:"message"`
}

func (r SyncResult) String() string {
	return fmt.Sprintf("[%s] %s: %s", r.Severity, r.Title, r.Message)
}

// Results is an append-only log of SyncResult bound to one configuration
type Results struct {
	dsID  int64
	items []SyncResult
}

// NewResults creates a log whose entries carry the given configuration id
func NewResults(dataSourceID int64) *Results {
	return &Results{dsID: dataSourceID}
}

// Add appends an entry
func (r *Results) Add(sev Severity, title, message string) {
	r.items = append(r.items, SyncResult{
		DataSourceID: r.dsID,
		Severity:     sev,
		Title:        title,
		Message:      message,
	})
}

func (r *Results) Success(title, format string, args ...any) {
	r.Add(SeveritySuccess, title, fmt.Sprintf(format, args...))
}

func (r *Results) Warning(title, format string, args ...any) {
	r.Add(SeverityWarning, title, fmt.Sprintf(format, args...))
}

func (r *Results) Error(title, format string, args ...any) {
	r.Add(SeverityError, title, fmt.Sprintf(format, args...))
}

func (r *Results) Info(title, format string, args ...any) {
	r.Add(SeverityInformation, title, fmt.Sprintf(format, args...))
}

// List returns a copy of the entries
func (r *Results) List() []SyncResult {
	out := make([]SyncResult, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the number of entries
func (r *Results) Len() int {
	return len(r.items)
}

// CountSeverity counts results of one severity
func CountSeverity(results []SyncResult, sev Severity) int {
	n := 0
	for _, r := range results {
		if r.Severity == sev {
			n++
		}
	}
	return n
}

// ActionType is the kind of change a finding proposes, or the operator
// decision in a SyncAction
type ActionType string

const (
	ActionApply ActionType = "APPLY"
	ActionSkip  ActionType = "SKIP"
)

// SyncFinding is a proposed change awaiting operator approval
type SyncFinding struct {
	DataSourceID int64           `json:"data_source_id" yaml:"data_source_id"`
	Severity     Severity        `json:"severity" yaml:"severity"`
	Title        string          `json:"title" yaml:"title"`
	Message      string          `json:"message" yaml:"message"`
	Action       ActionType      `json:"action" yaml:"action"`
	Extra        json.RawMessage `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// SyncAction is an operator decision on a finding
type SyncAction struct {
	Type    ActionType  `json:"type" yaml:"type"`
	Finding SyncFinding `json:"finding" yaml:"finding"`
}

// Approve turns findings into APPLY actions
func Approve(findings []SyncFinding) []SyncAction {
	actions := make([]SyncAction, 0, len(findings))
	for _, f := range findings {
		actions = append(actions, SyncAction{Type: ActionApply, Finding: f})
	}
	return actions
}
