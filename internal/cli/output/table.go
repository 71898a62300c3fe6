package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is a result that can be shown as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// Table is a TableRenderer built row by row.
type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

func (t *Table) AddRow(cells ...string) { t.rows = append(t.rows, cells) }

func (t *Table) Headers() []string { return t.headers }

func (t *Table) Rows() [][]string { return t.rows }

func newWriter(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

// PrintTable writes data as a borderless table with upper-case headers.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := newWriter(w)
	table.SetHeader(data.Headers())
	table.SetAutoFormatHeaders(true)
	table.SetColumnSeparator("")
	table.AppendBulk(data.Rows())
	table.Render()
	return nil
}

// PrintPairs writes "key: value" lines aligned on the colon.
func PrintPairs(w io.Writer, pairs [][2]string) error {
	table := newWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetColumnSeparator(":")
	for _, p := range pairs {
		table.Append([]string{p[0], p[1]})
	}
	table.Render()
	return nil
}
