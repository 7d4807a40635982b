// Package codec reads and writes synchronization reports. A report holds
// the results of an automated run or the findings of a supervised one;
// supervised reports are edited by operators and read back for finalize.
package codec

import (
	"fmt"
	"io"
	"sort"
	"time"

	"toposync/internal/domain"
)

// Report is the exported outcome of a run
type Report struct {
	JobID       string               `json:"job_id,omitempty"`
	Mode        string               `json:"mode"`
	Provider    string               `json:"provider,omitempty"`
	GeneratedAt time.Time            `json:"generated_at"`
	Summary     Summary              `json:"summary"`
	Results     []domain.SyncResult  `json:"results,omitempty"`
	Findings    []domain.SyncFinding `json:"findings,omitempty"`
}

// Summary counts entries per severity
type Summary map[domain.Severity]int

// NewReport builds a report and its summary
func NewReport(mode string, results []domain.SyncResult, findings []domain.SyncFinding) *Report {
	r := &Report{
		Mode:        mode,
		GeneratedAt: time.Now().UTC(),
		Results:     results,
		Findings:    findings,
	}
	r.Summary = Summarize(results, findings)
	return r
}

// Summarize counts results and findings by severity
func Summarize(results []domain.SyncResult, findings []domain.SyncFinding) Summary {
	s := make(Summary)
	for _, r := range results {
		s[r.Severity]++
	}
	for _, f := range findings {
		s[f.Severity]++
	}
	return s
}

// Severities lists the severities present, in a stable order
func (s Summary) Severities() []domain.Severity {
	out := make([]domain.Severity, 0, len(s))
	for sev := range s {
		out = append(out, sev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Actions turns the findings of a reviewed report into actions. Findings
// marked SKIP stay skipped; everything else is applied.
func (r *Report) Actions() []domain.SyncAction {
	actions := make([]domain.SyncAction, 0, len(r.Findings))
	for _, f := range r.Findings {
		t := domain.ActionApply
		if f.Action == domain.ActionSkip {
			t = domain.ActionSkip
		}
		actions = append(actions, domain.SyncAction{Type: t, Finding: f})
	}
	return actions
}

// Importer reads reports
type Importer interface {
	Parse(r io.Reader) (*Report, error)
	Format() string
}

// Exporter writes reports
type Exporter interface {
	Export(report *Report, w io.Writer) error
	Format() string
}

// ExporterFor returns the exporter of a format name
func ExporterFor(format string) (Exporter, error) {
	switch format {
	case "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	case "table", "":
		return NewTableCodec(), nil
	}
	return nil, fmt.Errorf("unknown report format %q: %w", format, domain.ErrInvalidArgument)
}

// ImporterFor returns the importer of a format name
func ImporterFor(format string) (Importer, error) {
	switch format {
	case "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	}
	return nil, fmt.Errorf("cannot import %q reports: %w", format, domain.ErrInvalidArgument)
}
