package records

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"branchdesk/pkg/schema"
)

// TimestampLayout is the dd/mm/yyyy HH:MM:SS layout of the submitted-at column.
const TimestampLayout = "02/01/2006 15:04:05"

// RoleAdmin sees every row of every table.
const RoleAdmin = "admin"

// headerRows is the number of rows above the first record; sheet rows are
// 1-based so logical index 0 lives on physical row 2.
const headerRows = 1

var ErrIndexOutOfRange = errors.New("record index out of range")

// PhysicalRow maps a 0-based logical index to the sheet row that holds it.
func PhysicalRow(index int) int {
	return index + headerRows + 1
}

// LogicalIndex is the inverse of PhysicalRow.
func LogicalIndex(physical int) int {
	return physical - headerRows - 1
}

// CheckIndex fails when index does not address one of count data rows.
func CheckIndex(index, count int) error {
	if index < 0 || index >= count {
		return fmt.Errorf("%w: %d (table has %d records)", ErrIndexOutOfRange, index, count)
	}
	return nil
}

type Record struct {
	Columns     []string
	Values      map[string]string
	Submitter   string
	SubmittedAt string
}

// Get returns the value of a clean column name, "" when absent.
func (r Record) Get(column string) string {
	return r.Values[column]
}

// Indexed pairs a record with its logical index in the full table so an edit
// can be routed back to the right sheet row.
type Indexed struct {
	Index  int
	Record Record
}

// Row returns the physical sheet row of the record.
func (i Indexed) Row() int {
	return PhysicalRow(i.Index)
}

// FromRow builds a record from a raw row using the table's header. Short rows
// are padded with empty values.
func FromRow(header, row []string) Record {
	rec := Record{Values: make(map[string]string, len(header))}
	for i, cell := range header {
		name, _ := schema.CleanName(cell)
		value := ""
		if i < len(row) {
			value = row[i]
		}
		switch name {
		case schema.ColumnSubmitter:
			rec.Submitter = value
		case schema.ColumnSubmittedAt:
			rec.SubmittedAt = value
		default:
			rec.Columns = append(rec.Columns, name)
			rec.Values[name] = value
		}
	}
	return rec
}

// FromRows converts every data row, keeping the logical index of each.
func FromRows(header []string, rows [][]string) []Indexed {
	out := make([]Indexed, len(rows))
	for i, row := range rows {
		out[i] = Indexed{Index: i, Record: FromRow(header, row)}
	}
	return out
}

// Identity is the requesting user.
type Identity struct {
	Username string
	Role     string
}

// IsAdmin matches the role exactly; "Admin" is an ordinary role.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// Filter narrows a visible record set. Zero values disable a criterion.
type Filter struct {
	From     time.Time // inclusive, date part only
	To       time.Time // inclusive, date part only
	Keyword  string
	Field    string // restrict the keyword to one column; "" searches all
	Location *time.Location
}

func (f Filter) hasRange() bool {
	return !f.From.IsZero() || !f.To.IsZero()
}

// Visible returns the records identity may see, in physical row order.
func Visible(all []Indexed, id Identity, f Filter) []Indexed {
	out := make([]Indexed, 0, len(all))
	for _, rec := range all {
		if !id.IsAdmin() && rec.Record.Submitter != id.Username {
			continue
		}
		if f.hasRange() && !f.inRange(rec.Record.SubmittedAt) {
			continue
		}
		if f.Keyword != "" && !f.matches(rec.Record) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (f Filter) inRange(stamp string) bool {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(stamp), loc)
	if err != nil {
		return false
	}
	day := truncateDay(t, loc)
	if !f.From.IsZero() && day.Before(truncateDay(f.From, loc)) {
		return false
	}
	if !f.To.IsZero() && day.After(truncateDay(f.To, loc)) {
		return false
	}
	return true
}

func truncateDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func (f Filter) matches(rec Record) bool {
	needle := strings.ToLower(f.Keyword)
	if f.Field != "" {
		return strings.Contains(strings.ToLower(fieldValue(rec, f.Field)), needle)
	}
	for _, c := range rec.Columns {
		if strings.Contains(strings.ToLower(rec.Values[c]), needle) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(rec.Submitter), needle) ||
		strings.Contains(strings.ToLower(rec.SubmittedAt), needle)
}

func fieldValue(rec Record, field string) string {
	switch field {
	case schema.ColumnSubmitter:
		return rec.Submitter
	case schema.ColumnSubmittedAt:
		return rec.SubmittedAt
	}
	return rec.Values[field]
}

// Ordered lays out the values for the user columns of header, dropping the
// reserved trailing columns.
func Ordered(header []string, values map[string]string) []string {
	var out []string
	for _, cell := range header {
		name, _ := schema.CleanName(cell)
		if schema.IsReserved(name) {
			continue
		}
		out = append(out, values[name])
	}
	return out
}
