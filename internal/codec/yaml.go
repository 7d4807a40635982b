package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"toposync/internal/domain"
)

// YAMLCodec handles YAML import/export. Finding extras are written as
// nested YAML rather than raw JSON so operators can read them.
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

type yamlReport struct {
	JobID       string              `yaml:"job_id,omitempty"`
	Mode        string              `yaml:"mode"`
	Provider    string              `yaml:"provider,omitempty"`
	GeneratedAt time.Time           `yaml:"generated_at"`
	Summary     map[string]int      `yaml:"summary,omitempty"`
	Results     []domain.SyncResult `yaml:"results,omitempty"`
	Findings    []yamlFinding       `yaml:"findings,omitempty"`
}

type yamlFinding struct {
	DataSourceID int64             `yaml:"data_source_id"`
	Severity     domain.Severity   `yaml:"severity"`
	Title        string            `yaml:"title"`
	Message      string            `yaml:"message"`
	Action       domain.ActionType `yaml:"action"`
	Extra        map[string]any    `yaml:"extra,omitempty"`
}

// Parse imports a report from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*Report, error) {
	var yr yamlReport
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&yr); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	report := &Report{
		JobID:       yr.JobID,
		Mode:        yr.Mode,
		Provider:    yr.Provider,
		GeneratedAt: yr.GeneratedAt,
		Results:     yr.Results,
	}
	for i, yf := range yr.Findings {
		f := domain.SyncFinding{
			DataSourceID: yf.DataSourceID,
			Severity:     yf.Severity,
			Title:        yf.Title,
			Message:      yf.Message,
			Action:       yf.Action,
		}
		if len(yf.Extra) > 0 {
			raw, err := json.Marshal(yf.Extra)
			if err != nil {
				return nil, fmt.Errorf("finding %d: encode extra: %w", i, err)
			}
			f.Extra = raw
		}
		report.Findings = append(report.Findings, f)
	}
	report.Summary = Summarize(report.Results, report.Findings)
	return report, nil
}

// Export writes a report as YAML
func (c *YAMLCodec) Export(report *Report, w io.Writer) error {
	yr := yamlReport{
		JobID:       report.JobID,
		Mode:        report.Mode,
		Provider:    report.Provider,
		GeneratedAt: report.GeneratedAt,
		Results:     report.Results,
	}
	if len(report.Summary) > 0 {
		yr.Summary = make(map[string]int, len(report.Summary))
		for sev, n := range report.Summary {
			yr.Summary[string(sev)] = n
		}
	}
	for i, f := range report.Findings {
		yf := yamlFinding{
			DataSourceID: f.DataSourceID,
			Severity:     f.Severity,
			Title:        f.Title,
			Message:      f.Message,
			Action:       f.Action,
		}
		if len(f.Extra) > 0 {
			if err := json.Unmarshal(f.Extra, &yf.Extra); err != nil {
				return fmt.Errorf("finding %d: decode extra: %w", i, err)
			}
		}
		yr.Findings = append(yr.Findings, yf)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(yr); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}
