// Package collector fetches SNMP tables from network devices and turns them
// into row aligned domain.TableData.
package collector

import (
	"strings"

	"toposync/internal/domain"
)

// Column maps a table column to the OID of its MIB object
type Column struct {
	Name string
	OID  string
}

// TableDef describes a logical table as a set of columns walked together.
// Rows are keyed by the OID index that follows each column's OID.
type TableDef struct {
	Name    string
	Columns []Column
}

// ColumnNames returns the column names in definition order
func (d TableDef) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Table names and columns of the BGP4-MIB
const (
	TableBGPPeer  = "bgpTable"
	TableBGPLocal = "bgpLocalTable"

	ColBGPPeerIdentifier = "bgpPeerIdentifier"
	ColBGPPeerLocalAddr  = "bgpPeerLocalAddr"
	ColBGPPeerRemoteAddr = "bgpPeerRemoteAddr"
	ColBGPPeerRemotePort = "bgpPeerRemotePort"
	ColBGPPeerRemoteAs   = "bgpPeerRemoteAs"
	ColBGPLocalAs        = "bgpLocalAs"
)

// Table names and columns of the IP-MIB and IF-MIB
const (
	TableIPAddr = "ipAddrTable"
	TableIfMIB  = "ifMibTable"

	ColIPAdEntAddr    = "ipAdEntAddr"
	ColIPAdEntIfIndex = "ipAdEntIfIndex"
	ColIPAdEntNetMask = "ipAdEntNetMask"
	ColIfName         = "ifName"
	ColIfAlias        = "ifAlias"
)

// BGPPeerTable is bgpPeerTable (1.3.6.1.2.1.15.3), indexed by remote address
var BGPPeerTable = TableDef{
	Name: TableBGPPeer,
	Columns: []Column{
		{ColBGPPeerIdentifier, "1.3.6.1.2.1.15.3.1.1"},
		{ColBGPPeerLocalAddr, "1.3.6.1.2.1.15.3.1.5"},
		{ColBGPPeerRemoteAddr, "1.3.6.1.2.1.15.3.1.7"},
		{ColBGPPeerRemotePort, "1.3.6.1.2.1.15.3.1.8"},
		{ColBGPPeerRemoteAs, "1.3.6.1.2.1.15.3.1.9"},
	},
}

// BGPLocalTable holds the scalar bgpLocalAs
var BGPLocalTable = TableDef{
	Name:    TableBGPLocal,
	Columns: []Column{{ColBGPLocalAs, "1.3.6.1.2.1.15.2"}},
}

// IPAddrTable is ipAddrTable (1.3.6.1.2.1.4.20), indexed by address
var IPAddrTable = TableDef{
	Name: TableIPAddr,
	Columns: []Column{
		{ColIPAdEntAddr, "1.3.6.1.2.1.4.20.1.1"},
		{ColIPAdEntIfIndex, "1.3.6.1.2.1.4.20.1.2"},
		{ColIPAdEntNetMask, "1.3.6.1.2.1.4.20.1.3"},
	},
}

// IfMIBTable is ifXTable (1.3.6.1.2.1.31.1.1), indexed by ifIndex
var IfMIBTable = TableDef{
	Name: TableIfMIB,
	Columns: []Column{
		{ColIfName, "1.3.6.1.2.1.31.1.1.1.1"},
		{ColIfAlias, "1.3.6.1.2.1.31.1.1.1.18"},
	},
}

// Variable is one walked value, already rendered as a string
type Variable struct {
	OID   string
	Value string
}

// Assemble builds rows from the walk of each column. Row i is
// [instance, column 0, column 1, ...]; instances appear in the order they
// are first seen and cells missing from a column are left empty.
func Assemble(def TableDef, walks [][]Variable) [][]string {
	index := make(map[string]int)
	var rows [][]string

	for ci, col := range def.Columns {
		if ci >= len(walks) {
			break
		}
		prefix := "." + strings.Trim(col.OID, ".") + "."
		for _, v := range walks[ci] {
			name := "." + strings.TrimPrefix(v.OID, ".")
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			instance := strings.TrimPrefix(name, prefix)
			i, ok := index[instance]
			if !ok {
				i = len(rows)
				index[instance] = i
				row := make([]string, len(def.Columns)+1)
				row[0] = instance
				rows = append(rows, row)
			}
			rows[i][ci+1] = v.Value
		}
	}
	return rows
}

// ToTableData converts collected rows to a table with an instance column.
// Short rows are padded so every column keeps the same length.
func ToTableData(def TableDef, rows [][]string) domain.TableData {
	t := domain.NewTableData(def.Name)
	t.Columns[domain.InstanceColumn] = make([]string, 0, len(rows))
	for _, c := range def.Columns {
		t.Columns[c.Name] = make([]string, 0, len(rows))
	}
	for _, row := range rows {
		t.Columns[domain.InstanceColumn] = append(t.Columns[domain.InstanceColumn], cell(row, 0))
		for i, c := range def.Columns {
			t.Columns[c.Name] = append(t.Columns[c.Name], cell(row, i+1))
		}
	}
	return t
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
