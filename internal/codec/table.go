package codec

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"toposync/internal/domain"
)

// TableCodec renders reports for terminals. It cannot parse.
type TableCodec struct {
	Style table.Style
}

// NewTableCodec creates a table codec with rounded borders
func NewTableCodec() *TableCodec {
	return &TableCodec{Style: table.StyleRounded}
}

// Format returns the codec format identifier
func (c *TableCodec) Format() string {
	return "table"
}

// Export renders results, findings and a severity summary
func (c *TableCodec) Export(report *Report, w io.Writer) error {
	if len(report.Results) > 0 {
		t := c.newTable(w)
		t.SetTitle("Results")
		t.AppendHeader(table.Row{"#", "Source", "Severity", "Title", "Message"})
		for i, r := range report.Results {
			t.AppendRow(table.Row{i + 1, source(r.DataSourceID), colour(r.Severity), r.Title, r.Message})
		}
		t.Render()
	}

	if len(report.Findings) > 0 {
		t := c.newTable(w)
		t.SetTitle("Findings")
		t.AppendHeader(table.Row{"#", "Source", "Severity", "Action", "Title", "Message"})
		for i, f := range report.Findings {
			t.AppendRow(table.Row{i + 1, source(f.DataSourceID), colour(f.Severity), f.Action, f.Title, f.Message})
		}
		t.Render()
	}

	t := c.newTable(w)
	t.AppendHeader(table.Row{"Severity", "Count"})
	for _, sev := range report.Summary.Severities() {
		t.AppendRow(table.Row{colour(sev), report.Summary[sev]})
	}
	t.AppendFooter(table.Row{"Total", len(report.Results) + len(report.Findings)})
	t.Render()
	return nil
}

func (c *TableCodec) newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(c.Style)
	t.SetColumnConfigs([]table.ColumnConfig{{Name: "Message", WidthMax: 80}})
	return t
}

func source(id int64) string {
	if id == domain.AdHocGroupID {
		return "-"
	}
	return fmt.Sprint(id)
}

func colour(sev domain.Severity) string {
	switch sev {
	case domain.SeverityError:
		return text.FgRed.Sprint(sev)
	case domain.SeverityWarning:
		return text.FgYellow.Sprint(sev)
	case domain.SeveritySuccess:
		return text.FgGreen.Sprint(sev)
	}
	return string(sev)
}
