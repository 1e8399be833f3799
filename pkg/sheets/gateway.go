package sheets

import (
	"context"
	"time"

	"branchdesk/pkg/records"
	"branchdesk/pkg/schema"

	log "github.com/sirupsen/logrus"
)

// Invalidator drops cached reads of a table after it has been written.
type Invalidator interface {
	Invalidate(table string)
}

// Gateway is the retrying read/write interface over a Backend. Writes stamp
// the reserved submitter and timestamp columns and invalidate cached reads
// of the table once they succeed. Adding missing reserved columns to a
// header is a separate write; it stays in place and invalidates the table
// even when the row write that needed it fails. Concurrent updates to the same row are not
// detected: the last write wins.
type Gateway struct {
	backend      Backend
	retry        RetryPolicy
	invalidators []Invalidator
	now          func() time.Time
	location     *time.Location
}

type Option func(*Gateway)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(g *Gateway) { g.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithLocation sets the timezone submission timestamps are written in.
func WithLocation(loc *time.Location) Option {
	return func(g *Gateway) { g.location = loc }
}

func WithInvalidator(inv Invalidator) Option {
	return func(g *Gateway) { g.invalidators = append(g.invalidators, inv) }
}

func NewGateway(backend Backend, opts ...Option) *Gateway {
	g := &Gateway{
		backend:  backend,
		retry:    DefaultRetryPolicy(),
		now:      time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddInvalidator registers a cache to be cleared on successful writes.
func (g *Gateway) AddInvalidator(inv Invalidator) {
	g.invalidators = append(g.invalidators, inv)
}

// Timestamp is the current time in the submitted-at layout.
func (g *Gateway) Timestamp() string {
	return g.now().In(g.location).Format(records.TimestampLayout)
}

func (g *Gateway) ListTables(ctx context.Context) ([]string, error) {
	var names []string
	err := g.retry.Do(ctx, "list tables", "", func() error {
		var err error
		names, err = g.backend.ListTables(ctx)
		return err
	})
	return names, err
}

// ReadAll returns the header row and every data row of table.
func (g *Gateway) ReadAll(ctx context.Context, table string) ([]string, [][]string, error) {
	var rows [][]string
	err := g.retry.Do(ctx, "read", table, func() error {
		var err error
		rows, err = g.backend.ReadAll(ctx, table)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	return rows[0], rows[1:], nil
}

// Sample returns the header row and the first data row, the input of the
// schema inspector. A table without data yields an empty sample.
func (g *Gateway) Sample(ctx context.Context, table string) ([]string, []string, error) {
	var header, sample []string
	err := g.retry.Do(ctx, "read sample", table, func() error {
		var err error
		if header, err = g.backend.ReadRow(ctx, table, 1); err != nil {
			return err
		}
		sample, err = g.backend.ReadRow(ctx, table, records.PhysicalRow(0))
		return err
	})
	return header, sample, err
}

// RowCount is the number of data rows, header excluded.
func (g *Gateway) RowCount(ctx context.Context, table string) (int, error) {
	var n int
	err := g.retry.Do(ctx, "count rows", table, func() error {
		var err error
		n, err = g.backend.RowCount(ctx, table)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		n--
	}
	return n, nil
}

// AppendRow adds a record. values are ordered like the user columns of the
// header; the reserved columns are filled with submitter and the current time.
func (g *Gateway) AppendRow(ctx context.Context, table, submitter string, values []string) error {
	header, extended, err := g.ensureHeader(ctx, table)
	if err != nil {
		return err
	}
	row := g.stamp(header, submitter, values)
	err = g.retry.Do(ctx, "append", table, func() error {
		return g.backend.AppendRow(ctx, table, row)
	})
	if err != nil {
		g.headerOnly(table, extended)
		return err
	}
	log.WithFields(log.Fields{"table": table, "submitter": submitter}).Info("row appended")
	g.invalidate(table)
	return nil
}

// UpdateRow rewrites the whole row holding the record at the logical index,
// re-stamping it with submitter and the current time.
func (g *Gateway) UpdateRow(ctx context.Context, table string, index int, submitter string, values []string) error {
	header, extended, err := g.ensureHeader(ctx, table)
	if err != nil {
		return err
	}
	row := g.stamp(header, submitter, values)
	physical := records.PhysicalRow(index)
	err = g.retry.Do(ctx, "update", table, func() error {
		return g.backend.OverwriteRange(ctx, table, RowRange(physical, len(row)), [][]string{row})
	})
	if err != nil {
		g.headerOnly(table, extended)
		return err
	}
	log.WithFields(log.Fields{"table": table, "row": physical, "submitter": submitter}).Info("row updated")
	g.invalidate(table)
	return nil
}

// WriteCell overwrites one cell addressed by physical row and column.
func (g *Gateway) WriteCell(ctx context.Context, table string, row, col int, value string) error {
	err := g.retry.Do(ctx, "write cell", table, func() error {
		return g.backend.WriteCell(ctx, table, row, col, value)
	})
	if err != nil {
		return err
	}
	g.invalidate(table)
	return nil
}

// ensureHeader reads the header and appends the reserved columns when the
// table does not have them yet. extended reports that the header was
// rewritten: that write is committed on its own, before the row write.
func (g *Gateway) ensureHeader(ctx context.Context, table string) (header []string, extended bool, err error) {
	err = g.retry.Do(ctx, "read header", table, func() error {
		var err error
		header, err = g.backend.ReadRow(ctx, table, 1)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	var missing []string
	for _, name := range []string{schema.ColumnSubmitter, schema.ColumnSubmittedAt} {
		if indexOf(header, name) < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return header, false, nil
	}

	header = append(append([]string{}, header...), missing...)
	err = g.retry.Do(ctx, "extend header", table, func() error {
		return g.backend.OverwriteRange(ctx, table, RowRange(1, len(header)), [][]string{header})
	})
	if err != nil {
		return nil, false, err
	}
	log.WithFields(log.Fields{"table": table, "columns": missing}).Info("added reserved columns to header")
	return header, true, nil
}

// headerOnly handles a row write that failed after the header was extended:
// the table did change, so cached reads of it are dropped.
func (g *Gateway) headerOnly(table string, extended bool) {
	if !extended {
		return
	}
	log.WithField("table", table).Warn("row write failed after the header was extended")
	g.invalidate(table)
}

func (g *Gateway) stamp(header []string, submitter string, values []string) []string {
	row := make([]string, len(header))
	next := 0
	stamp := g.Timestamp()
	for i, cell := range header {
		name, _ := schema.CleanName(cell)
		switch name {
		case schema.ColumnSubmitter:
			row[i] = submitter
		case schema.ColumnSubmittedAt:
			row[i] = stamp
		default:
			if next < len(values) {
				row[i] = values[next]
			}
			next++
		}
	}
	return row
}

func (g *Gateway) invalidate(table string) {
	for _, inv := range g.invalidators {
		inv.Invalidate(table)
	}
}

func indexOf(header []string, name string) int {
	for i, cell := range header {
		if clean, _ := schema.CleanName(cell); clean == name {
			return i
		}
	}
	return -1
}
