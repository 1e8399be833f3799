package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"branchdesk/pkg/cache"
	"branchdesk/pkg/records"
	"branchdesk/pkg/schema"
	"branchdesk/pkg/sheets"
	"branchdesk/pkg/validate"

	log "github.com/sirupsen/logrus"
)

var (
	ErrNotLoggedIn = errors.New("not logged in")
	ErrForbidden   = errors.New("record belongs to another user")
	ErrNoColumns   = errors.New("table has no input columns")
)

// Result is one cached query: the header it was read with and the visible
// records, each carrying its logical index for later edits.
type Result struct {
	Header  []string
	Records []records.Indexed
}

type Query struct {
	From    time.Time
	To      time.Time
	Keyword string
	Field   string
}

type Store struct {
	gateway      *sheets.Gateway
	results      *cache.Cache[Result]
	capabilities *cache.Cache[Capabilities]
	configTable  string
	location     *time.Location
}

type Options struct {
	TTL         time.Duration
	ConfigTable string
	Location    *time.Location
}

// New builds a store over gateway and registers its caches for
// invalidation on every successful write.
func New(gateway *sheets.Gateway, opts Options) *Store {
	if opts.ConfigTable == "" {
		opts.ConfigTable = DefaultConfigTable
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	s := &Store{
		gateway:      gateway,
		results:      cache.New[Result](opts.TTL),
		capabilities: cache.New[Capabilities](opts.TTL),
		configTable:  opts.ConfigTable,
		location:     opts.Location,
	}
	gateway.AddInvalidator(s.results)
	gateway.AddInvalidator(s.capabilities)
	return s
}

// WithClock replaces the time source of the caches, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.results.WithClock(now)
	s.capabilities.WithClock(now)
	return s
}

func (s *Store) CacheMetrics() cache.Metrics {
	return s.results.Metrics()
}

// Describe inspects the header and first data row of table. On failure the
// column list is empty, never nil, so callers can render no fields.
func (s *Store) Describe(ctx context.Context, table string) ([]schema.Column, error) {
	header, sample, err := s.gateway.Sample(ctx, table)
	if err != nil {
		log.WithFields(log.Fields{"table": table, "error": err}).Warn("unable to read table shape")
		return []schema.Column{}, err
	}
	return schema.Inspect(header, sample), nil
}

// Query returns the records of table visible to id, narrowed by q.
func (s *Store) Query(ctx context.Context, id records.Identity, table string, q Query) (Result, error) {
	if id.Username == "" {
		return Result{}, ErrNotLoggedIn
	}
	key := cache.Key{
		Table:    table,
		Username: id.Username,
		Role:     id.Role,
		From:     formatDate(q.From),
		To:       formatDate(q.To),
		Keyword:  q.Keyword,
		Field:    q.Field,
	}
	produce := func() (Result, error) {
		header, rows, err := s.gateway.ReadAll(ctx, table)
		if err != nil {
			return Result{}, err
		}
		filter := records.Filter{
			From:     q.From,
			To:       q.To,
			Keyword:  q.Keyword,
			Field:    q.Field,
			Location: s.location,
		}
		return Result{
			Header:  header,
			Records: records.Visible(records.FromRows(header, rows), id, filter),
		}, nil
	}
	probe := func() (int, error) {
		return s.gateway.RowCount(ctx, table)
	}
	return s.results.Get(key, produce, probe)
}

// Submit validates proposed and appends it to table stamped with id.
func (s *Store) Submit(ctx context.Context, id records.Identity, table string, proposed map[string]string) (*validate.Result, error) {
	if id.Username == "" {
		return nil, ErrNotLoggedIn
	}
	header, sample, err := s.gateway.Sample(ctx, table)
	if err != nil {
		return nil, err
	}
	res, err := s.check(table, header, sample, proposed)
	if err != nil {
		return nil, err
	}
	if err := s.gateway.AppendRow(ctx, table, id.Username, records.Ordered(header, res.Values)); err != nil {
		return nil, err
	}
	return res, nil
}

// Edit validates proposed and rewrites the record at the logical index.
// Non-admins may only edit their own records. There is no version check:
// whichever edit of a row lands last wins.
func (s *Store) Edit(ctx context.Context, id records.Identity, table string, index int, proposed map[string]string) (*validate.Result, error) {
	if id.Username == "" {
		return nil, ErrNotLoggedIn
	}
	header, rows, err := s.gateway.ReadAll(ctx, table)
	if err != nil {
		return nil, err
	}
	if err := records.CheckIndex(index, len(rows)); err != nil {
		return nil, err
	}
	current := records.FromRow(header, rows[index])
	if !id.IsAdmin() && current.Submitter != id.Username {
		return nil, fmt.Errorf("%w: row %d of %s", ErrForbidden, records.PhysicalRow(index), table)
	}
	res, err := s.check(table, header, rows[0], proposed)
	if err != nil {
		return nil, err
	}
	if err := s.gateway.UpdateRow(ctx, table, index, id.Username, records.Ordered(header, res.Values)); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) check(table string, header, sample []string, proposed map[string]string) (*validate.Result, error) {
	columns := schema.Inspect(header, sample)
	if len(schema.UserColumns(columns)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoColumns, table)
	}
	res, err := validate.Record(columns, proposed)
	if err != nil {
		return nil, err
	}
	for _, st := range res.Stripped {
		log.WithFields(log.Fields{
			"table":  table,
			"column": st.Column,
			"chars":  fmt.Sprintf("%q", string(st.Chars)),
		}).Debug("stripped control characters")
	}
	return res, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(schema.DateLayout)
}
