package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableDataValidate(t *testing.T) {
	tests := []struct {
		name    string
		columns map[string][]string
		wantErr bool
	}{
		{
			name:    "empty table",
			columns: map[string][]string{},
		},
		{
			name: "aligned columns",
			columns: map[string][]string{
				"bgpPeerRemoteAddr": {"10.0.0.1", "10.0.0.2"},
				"bgpPeerRemoteAs":   {"65001", "65002"},
			},
		},
		{
			name: "short column",
			columns: map[string][]string{
				"bgpPeerRemoteAddr": {"10.0.0.1", "10.0.0.2"},
				"bgpPeerRemoteAs":   {"65001"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := TableData{Name: "bgpTable", Columns: tt.columns}
			err := table.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedTable))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTableDataCell(t *testing.T) {
	table := NewTableData("bgpLocalTable")
	table.Columns["bgpLocalAs"] = []string{"65000"}

	assert.Equal(t, 1, table.Rows())
	assert.Equal(t, "65000", table.Cell("bgpLocalAs", 0))
	assert.Equal(t, "", table.Cell("bgpLocalAs", 1))
	assert.Equal(t, "", table.Cell("missing", 0))
	assert.Nil(t, table.Column("missing"))
}

func TestFindTable(t *testing.T) {
	tables := []TableData{NewTableData("bgpTable"), NewTableData("bgpLocalTable")}

	got, ok := FindTable(tables, "bgpLocalTable")
	require.True(t, ok)
	assert.Equal(t, "bgpLocalTable", got.Name)

	_, ok = FindTable(tables, "ifMibTable")
	assert.False(t, ok)
}
