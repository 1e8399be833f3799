package validate

import (
	"errors"
	"testing"

	"branchdesk/pkg/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testColumns() []schema.Column {
	return schema.Inspect(
		[]string{"Customer*", "ID Number*", "Amount*", "Opened*", "Note", "Count", "Due", schema.ColumnSubmitter, schema.ColumnSubmittedAt},
		[]string{"Tran Thi B", "0123", "500", "01/02/2024", "", "3", "05/05/2024", "alice", "01/02/2024 09:00:00"},
	)
}

func TestRecordValid(t *testing.T) {
	res, err := Record(testColumns(), map[string]string{
		"Customer":  "Le Van C",
		"ID Number": "0123",
		"Amount":    " 750 ",
		"Opened":    "2024-03-09",
		"Ignored":   "x",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"Customer":  "Le Van C",
		"ID Number": "0123",
		"Amount":    "750",
		"Opened":    "09/03/2024",
		"Note":      "",
		"Count":     "",
		"Due":       "",
	}, res.Values)
	assert.Empty(t, res.Stripped)
}

func TestRecordReportsEveryMissingField(t *testing.T) {
	res, err := Record(testColumns(), map[string]string{"Note": "hello"})
	assert.Nil(t, res)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 4)
	var cols []string
	for _, f := range verr.Fields {
		cols = append(cols, f.Column)
	}
	assert.Equal(t, []string{"Customer", "ID Number", "Amount", "Opened"}, cols)
}

func TestRecordInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]string
		wantBad []string
	}{
		{
			name:    "whitespace only required text",
			input:   map[string]string{"Customer": "  \t ", "ID Number": "1", "Amount": "1", "Opened": "01/01/2024"},
			wantBad: []string{"Customer"},
		},
		{
			name:    "signed and decimal numbers",
			input:   map[string]string{"Customer": "a", "ID Number": "1", "Amount": "-5", "Opened": "01/01/2024", "Count": "1.5"},
			wantBad: []string{"Amount", "Count"},
		},
		{
			name:    "unparsable dates",
			input:   map[string]string{"Customer": "a", "ID Number": "1", "Amount": "5", "Opened": "tomorrow", "Due": "32/01/2024"},
			wantBad: []string{"Opened", "Due"},
		},
		{
			name:    "control characters only",
			input:   map[string]string{"Customer": "\x01\x02", "ID Number": "1", "Amount": "5", "Opened": "01/01/2024"},
			wantBad: []string{"Customer"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Record(testColumns(), tt.input)
			var verr *Error
			require.True(t, errors.As(err, &verr))
			var got []string
			for _, f := range verr.Fields {
				got = append(got, f.Column)
			}
			assert.Equal(t, tt.wantBad, got)
		})
	}
}

func TestLeadingZeroPassesAsText(t *testing.T) {
	cols := schema.Inspect([]string{"Phone*"}, []string{"0123"})
	res, err := Record(cols, map[string]string{"Phone": "0123"})
	require.NoError(t, err)
	assert.Equal(t, "0123", res.Values["Phone"])
}

func TestRecordStripsControlCharacters(t *testing.T) {
	cols := schema.Inspect([]string{"Customer*", "Note"}, []string{"x", "y"})
	res, err := Record(cols, map[string]string{"Customer": "Ng\x00uyen\n", "Note": "a\tb"})
	require.NoError(t, err)

	assert.Equal(t, "Nguyen", res.Values["Customer"])
	assert.Equal(t, "ab", res.Values["Note"])
	assert.Equal(t, []Stripped{
		{Column: "Customer", Chars: []rune{0, '\n'}},
		{Column: "Note", Chars: []rune{'\t'}},
	}, res.Stripped)
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"15/03/2024", "15/03/2024", true},
		{"2024-03-15", "15/03/2024", true},
		{"5/3/2024", "05/03/2024", true},
		{"", "", false},
		{"03-15-2024", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeDate(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeDate(%q) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestErrorMessageListsAllFields(t *testing.T) {
	err := &Error{Fields: []FieldError{{"A", "is required"}, {"B", "is required"}}}
	assert.Equal(t, "invalid record: A: is required; B: is required", err.Error())
}
