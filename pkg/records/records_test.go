package records

import (
	"errors"
	"testing"
	"time"

	"branchdesk/pkg/schema"

	"github.com/stretchr/testify/assert"
)

var header = []string{"Customer*", "Phone", schema.ColumnSubmitter, schema.ColumnSubmittedAt}

func sampleRows() [][]string {
	return [][]string{
		{"Tran Thi B", "0912", "alice", "01/03/2024 08:15:00"},
		{"Le Van C", "0913", "bob", "02/03/2024 10:00:00"},
		{"Pham D", "", "alice", "05/03/2024 17:30:00"},
		{"Hoang E", "0914", "alice", "not a time"},
		{"Short"},
	}
}

func indexes(recs []Indexed) []int {
	out := make([]int, len(recs))
	for i, r := range recs {
		out[i] = r.Index
	}
	return out
}

func TestPhysicalRow(t *testing.T) {
	assert.Equal(t, 2, PhysicalRow(0))
	assert.Equal(t, 11, PhysicalRow(9))
	assert.Equal(t, 0, LogicalIndex(2))
	for i := 0; i < 5; i++ {
		assert.Equal(t, i, LogicalIndex(PhysicalRow(i)))
	}
}

func TestCheckIndex(t *testing.T) {
	assert.NoError(t, CheckIndex(0, 1))
	assert.True(t, errors.Is(CheckIndex(1, 1), ErrIndexOutOfRange))
	assert.True(t, errors.Is(CheckIndex(-1, 3), ErrIndexOutOfRange))
}

func TestFromRow(t *testing.T) {
	rec := FromRow(header, []string{"Tran Thi B", "0912", "alice", "01/03/2024 08:15:00"})
	assert.Equal(t, []string{"Customer", "Phone"}, rec.Columns)
	assert.Equal(t, "Tran Thi B", rec.Get("Customer"))
	assert.Equal(t, "alice", rec.Submitter)
	assert.Equal(t, "01/03/2024 08:15:00", rec.SubmittedAt)

	short := FromRow(header, []string{"Short"})
	assert.Equal(t, "", short.Get("Phone"))
	assert.Equal(t, "", short.Submitter)
}

func TestVisibleByRole(t *testing.T) {
	all := FromRows(header, sampleRows())

	admin := Visible(all, Identity{Username: "root", Role: "admin"}, Filter{})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, indexes(admin))

	alice := Visible(all, Identity{Username: "alice", Role: "staff"}, Filter{})
	assert.Equal(t, []int{0, 2, 3}, indexes(alice))
	assert.Equal(t, 4, alice[1].Row())

	for _, role := range []string{"Admin", "ADMIN", " admin"} {
		got := Visible(all, Identity{Username: "root", Role: role}, Filter{})
		assert.Empty(t, got, "role %q is not admin", role)
	}

	nobody := Visible(all, Identity{Username: "carol", Role: "staff"}, Filter{})
	assert.NotNil(t, nobody)
	assert.Empty(t, nobody)
}

func TestVisibleDateRange(t *testing.T) {
	all := FromRows(header, sampleRows())
	loc := time.UTC
	f := Filter{
		From:     time.Date(2024, 3, 2, 0, 0, 0, 0, loc),
		To:       time.Date(2024, 3, 5, 0, 0, 0, 0, loc),
		Location: loc,
	}
	got := Visible(all, Identity{Username: "root", Role: "admin"}, f)
	assert.Equal(t, []int{1, 2}, indexes(got), "inclusive on both ends, unparsable stamps dropped")

	onlyFrom := Visible(all, Identity{Username: "alice"}, Filter{From: f.From, Location: loc})
	assert.Equal(t, []int{2}, indexes(onlyFrom))
}

func TestVisibleKeyword(t *testing.T) {
	all := FromRows(header, sampleRows())
	admin := Identity{Username: "root", Role: "admin"}

	got := Visible(all, admin, Filter{Keyword: "VAN"})
	assert.Equal(t, []int{1}, indexes(got))

	got = Visible(all, admin, Filter{Keyword: "091", Field: "Phone"})
	assert.Equal(t, []int{0, 1, 3}, indexes(got))

	got = Visible(all, admin, Filter{Keyword: "tran", Field: "Phone"})
	assert.Empty(t, got)

	got = Visible(all, admin, Filter{Keyword: "bob"})
	assert.Equal(t, []int{1}, indexes(got))
}

func TestOrdered(t *testing.T) {
	got := Ordered(header, map[string]string{"Phone": "0912", "Customer": "B", "Extra": "x"})
	assert.Equal(t, []string{"B", "0912"}, got)
}
