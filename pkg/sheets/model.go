package sheets

import (
	"context"
	"strconv"
	"strings"
)

// Backend is the remote, row/column addressed table store. Rows and columns
// are 1-based and row 1 of every table is its header.
type Backend interface {
	ListTables(ctx context.Context) ([]string, error)
	ReadAll(ctx context.Context, table string) ([][]string, error)
	ReadRow(ctx context.Context, table string, row int) ([]string, error)
	// RowCount is the number of rows in use, header included.
	RowCount(ctx context.Context, table string) (int, error)
	WriteCell(ctx context.Context, table string, row, col int, value string) error
	AppendRow(ctx context.Context, table string, values []string) error
	OverwriteRange(ctx context.Context, table, rng string, values [][]string) error
}

// ColumnLetter converts a 1-based column number to its A1 letters.
func ColumnLetter(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// RowRange is the A1 range covering columns 1..cols of one row.
func RowRange(row, cols int) string {
	if cols < 1 {
		cols = 1
	}
	r := strconv.Itoa(row)
	return "A" + r + ":" + ColumnLetter(cols) + r
}

// a1 qualifies a range with the quoted sheet name.
func a1(table, rng string) string {
	return "'" + strings.ReplaceAll(table, "'", "''") + "'!" + rng
}
