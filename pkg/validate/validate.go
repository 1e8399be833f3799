package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"branchdesk/pkg/schema"
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

// Accepted input layouts for date fields, in the order tried. Browsers submit
// ISO dates from <input type="date">.
var dateInputLayouts = []string{
	schema.DateLayout,
	"2006-01-02",
	"2/1/2006",
}

type FieldError struct {
	Column  string
	Message string
}

func (e FieldError) Error() string {
	return e.Column + ": " + e.Message
}

// Error aggregates every field failure found in one pass.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "invalid record: " + strings.Join(msgs, "; ")
}

// Stripped records the control characters removed from one text value.
type Stripped struct {
	Column string
	Chars  []rune
}

type Result struct {
	Values   map[string]string
	Stripped []Stripped
}

// Record checks the proposed values against the user-facing columns and
// coerces them. Either the result or an *Error is returned, never both.
// Columns absent from proposed are treated as empty; keys that name no
// column are ignored.
func Record(columns []schema.Column, proposed map[string]string) (*Result, error) {
	res := &Result{Values: make(map[string]string)}
	var failures []FieldError

	for _, col := range schema.UserColumns(columns) {
		raw := proposed[col.Name]
		value, stripped, msg := coerce(col, raw)
		if msg != "" {
			failures = append(failures, FieldError{Column: col.Name, Message: msg})
			continue
		}
		if len(stripped) > 0 {
			res.Stripped = append(res.Stripped, Stripped{Column: col.Name, Chars: stripped})
		}
		res.Values[col.Name] = value
	}

	if len(failures) > 0 {
		return nil, &Error{Fields: failures}
	}
	return res, nil
}

func coerce(col schema.Column, raw string) (string, []rune, string) {
	empty := strings.TrimSpace(raw) == ""
	if empty {
		if col.Required {
			return "", nil, "is required"
		}
		return "", nil, ""
	}

	switch col.Format {
	case schema.FormatNumber:
		v := strings.TrimSpace(raw)
		if !digitsOnly.MatchString(v) {
			return "", nil, fmt.Sprintf("%q is not a whole number", v)
		}
		return v, nil, ""
	case schema.FormatDate:
		v, ok := NormalizeDate(raw)
		if !ok {
			return "", nil, fmt.Sprintf("%q is not a date (dd/mm/yyyy)", strings.TrimSpace(raw))
		}
		return v, nil, ""
	default:
		v, stripped := StripControl(raw)
		if col.Required && strings.TrimSpace(v) == "" {
			return "", nil, "is required"
		}
		return v, stripped, ""
	}
}

// NormalizeDate parses any accepted date input and renders it as dd/mm/yyyy.
func NormalizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateInputLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(schema.DateLayout), true
		}
	}
	return "", false
}

// StripControl removes code points <= 31 and reports what was removed.
func StripControl(s string) (string, []rune) {
	var b strings.Builder
	var stripped []rune
	for _, r := range s {
		if r <= 31 {
			stripped = append(stripped, r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), stripped
}
