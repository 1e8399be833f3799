package schema

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RequiredMarker is the trailing character of a header cell that marks the
// column as mandatory on write.
const RequiredMarker = "*"

// Reserved trailing columns. They are stamped by the gateway on every write
// and never shown as input fields.
const (
	ColumnSubmitter   = "Submitter"
	ColumnSubmittedAt = "Submitted At"
)

// DateLayout is the dd/mm/yyyy layout used for date cells.
const DateLayout = "02/01/2006"

type Format string

const (
	FormatText   Format = "text"
	FormatNumber Format = "number"
	FormatDate   Format = "date"
)

type Column struct {
	Name     string // header with the required marker stripped
	Header   string // header cell as written in the sheet
	Required bool
	Format   Format
	Position int
}

var datePattern = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// Inspect derives a column descriptor for every header cell from one sample
// data row. Sample cells missing from a short row count as empty.
func Inspect(header, sample []string) []Column {
	columns := make([]Column, 0, len(header))
	for i, cell := range header {
		value := ""
		if i < len(sample) {
			value = sample[i]
		}
		name, required := CleanName(cell)
		columns = append(columns, Column{
			Name:     name,
			Header:   cell,
			Required: required,
			Format:   InferFormat(value),
			Position: i,
		})
	}
	return columns
}

// CleanName strips the required marker from a header cell.
func CleanName(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if strings.HasSuffix(header, RequiredMarker) {
		return strings.TrimSpace(strings.TrimSuffix(header, RequiredMarker)), true
	}
	return header, false
}

// InferFormat classifies a single sample cell.
func InferFormat(value string) Format {
	value = strings.TrimSpace(value)
	if value == "" {
		return FormatText
	}
	if IsDate(value) {
		return FormatDate
	}
	if hasLeadingZero(value) {
		// phone numbers, national IDs and account numbers keep their zeros
		return FormatText
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return FormatNumber
	}
	return FormatText
}

// IsDate reports whether value is exactly a valid dd/mm/yyyy date.
func IsDate(value string) bool {
	if !datePattern.MatchString(value) {
		return false
	}
	_, err := time.Parse(DateLayout, value)
	return err == nil
}

func hasLeadingZero(value string) bool {
	return len(value) > 1 && value[0] == '0' && value[1] >= '0' && value[1] <= '9'
}

// IsReserved reports whether the clean column name is system managed.
func IsReserved(name string) bool {
	return name == ColumnSubmitter || name == ColumnSubmittedAt
}

// UserColumns drops the reserved trailing columns.
func UserColumns(columns []Column) []Column {
	out := make([]Column, 0, len(columns))
	for _, c := range columns {
		if IsReserved(c.Name) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Split partitions the user-facing columns into required and optional lists,
// preserving header order.
func Split(columns []Column) (required, optional []Column) {
	for _, c := range UserColumns(columns) {
		if c.Required {
			required = append(required, c)
		} else {
			optional = append(optional, c)
		}
	}
	return required, optional
}

// Names returns the clean names of the columns in order.
func Names(columns []Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}
