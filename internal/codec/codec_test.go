package codec

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toposync/internal/domain"
)

func sampleReport() *Report {
	r := NewReport("supervised", []domain.SyncResult{
		{DataSourceID: 4, Severity: domain.SeverityError, Title: "Severe error while processing data source configuration edge-1", Message: "timeout"},
	}, []domain.SyncFinding{
		{DataSourceID: 7, Severity: domain.SeverityInformation, Title: "Relate IP address", Message: "10.0.0.1 to ge-0/0/0",
			Action: domain.ActionApply, Extra: json.RawMessage(`{"address":"10.0.0.1","portId":"p-1"}`)},
		{DataSourceID: 7, Severity: domain.SeverityInformation, Title: "Relate IP address", Message: "10.0.0.9 to ge-0/0/9",
			Action: domain.ActionSkip},
	})
	r.JobID = "job-1"
	r.Provider = "ip"
	return r
}

func TestSummarize(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, 1, r.Summary[domain.SeverityError])
	assert.Equal(t, 2, r.Summary[domain.SeverityInformation])
	assert.Equal(t, []domain.Severity{domain.SeverityError, domain.SeverityInformation}, r.Summary.Severities())
}

func TestReportActions(t *testing.T) {
	actions := sampleReport().Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, domain.ActionApply, actions[0].Type)
	assert.Equal(t, domain.ActionSkip, actions[1].Type)
	assert.Equal(t, "10.0.0.9 to ge-0/0/9", actions[1].Finding.Message)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		codec interface {
			Importer
			Exporter
		}
	}{
		{"json", NewJSONCodec()},
		{"yaml", NewYAMLCodec()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sampleReport()
			var buf bytes.Buffer
			require.NoError(t, tt.codec.Export(in, &buf))

			out, err := tt.codec.Parse(&buf)
			require.NoError(t, err)

			assert.Equal(t, in.JobID, out.JobID)
			assert.Equal(t, in.Results, out.Results)
			require.Len(t, out.Findings, 2)
			assert.JSONEq(t, string(in.Findings[0].Extra), string(out.Findings[0].Extra))
			assert.Empty(t, out.Findings[1].Extra)
			assert.Equal(t, in.Summary, out.Summary)
			assert.True(t, in.GeneratedAt.Equal(out.GeneratedAt))
		})
	}
}

func TestYAMLExtraIsReadable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewYAMLCodec().Export(sampleReport(), &buf))

	assert.Contains(t, buf.String(), "address: 10.0.0.1")
	assert.Contains(t, buf.String(), "ERROR: 1")
}

func TestParseOperatorEditedPlan(t *testing.T) {
	plan := `
mode: supervised
provider: ip
findings:
  - data_source_id: 3
    severity: INFORMATION
    title: Relate IP address
    message: 10.0.0.1 to ge-0/0/0
    action: SKIP
    extra:
      address: 10.0.0.1
`
	r, err := NewYAMLCodec().Parse(strings.NewReader(plan))
	require.NoError(t, err)

	actions := r.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionSkip, actions[0].Type)
	assert.JSONEq(t, `{"address":"10.0.0.1"}`, string(actions[0].Finding.Extra))
}

func TestTableExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTableCodec().Export(sampleReport(), &buf))

	out := buf.String()
	assert.Contains(t, out, "Results")
	assert.Contains(t, out, "Findings")
	assert.Contains(t, out, "Relate IP address")
	assert.Contains(t, out, "TOTAL")
}

func TestFormatLookup(t *testing.T) {
	for _, f := range []string{"json", "yaml", "yml", "table", ""} {
		_, err := ExporterFor(f)
		assert.NoError(t, err, f)
	}
	_, err := ExporterFor("csv")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = ImporterFor("table")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
