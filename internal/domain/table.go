package domain

import (
	"fmt"
	"sort"
)

// InstanceColumn holds the OID index suffix of every collected row
const InstanceColumn = "instance"

// TableData is a named, column-addressed table with row-aligned columns
type TableData struct {
	Name    string              `json:"name"`
	Columns map[string][]string `json:"columns"`
}

// NewTableData creates an empty table
func NewTableData(name string) TableData {
	return TableData{Name: name, Columns: make(map[string][]string)}
}

// Column returns the values of a column, nil when it does not exist
func (t TableData) Column(name string) []string {
	return t.Columns[name]
}

// Rows returns the number of records, using the longest column
func (t TableData) Rows() int {
	n := 0
	for _, col := range t.Columns {
		if len(col) > n {
			n = len(col)
		}
	}
	return n
}

// Cell returns row i of a column, or "" when out of range
func (t TableData) Cell(column string, i int) string {
	col := t.Columns[column]
	if i < 0 || i >= len(col) {
		return ""
	}
	return col[i]
}

// Validate checks that every column has the same number of rows
func (t TableData) Validate() error {
	want := -1
	for _, name := range t.ColumnNames() {
		n := len(t.Columns[name])
		if want == -1 {
			want = n
			continue
		}
		if n != want {
			return fmt.Errorf("table %s column %s has %d rows, want %d: %w",
				t.Name, name, n, want, ErrMalformedTable)
		}
	}
	return nil
}

// ColumnNames returns the column names in sorted order
func (t TableData) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindTable returns the table with the given name
func FindTable(tables []TableData, name string) (TableData, bool) {
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableData{}, false
}
