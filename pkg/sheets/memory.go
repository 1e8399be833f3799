package sheets

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
)

// MemoryBackend is an in-process Backend for local runs and tests.
type MemoryBackend struct {
	mu     sync.Mutex
	tables map[string][][]string
	order  []string

	// FailFunc, when set, is consulted before every call; a non-nil error
	// is returned instead of performing the operation.
	FailFunc func(op, table string) error
	calls    map[string]int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		tables: make(map[string][][]string),
		calls:  make(map[string]int),
	}
}

// SetTable replaces the rows of table, header first.
func (m *MemoryBackend) SetTable(table string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		m.order = append(m.order, table)
	}
	m.tables[table] = copyRows(rows)
}

// Table returns a copy of the rows of table.
func (m *MemoryBackend) Table(table string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRows(m.tables[table])
}

// CallCount is how many times op was invoked, failed calls included.
func (m *MemoryBackend) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls counts every operation invoked so far.
func (m *MemoryBackend) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *MemoryBackend) call(op, table string) error {
	m.calls[op]++
	if m.FailFunc != nil {
		if err := m.FailFunc(op, table); err != nil {
			return err
		}
	}
	if table == "" {
		return nil
	}
	if _, ok := m.tables[table]; !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return nil
}

func (m *MemoryBackend) ListTables(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("list", ""); err != nil {
		return nil, err
	}
	return append([]string{}, m.order...), nil
}

func (m *MemoryBackend) ReadAll(ctx context.Context, table string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("read_all", table); err != nil {
		return nil, err
	}
	return copyRows(m.tables[table]), nil
}

func (m *MemoryBackend) ReadRow(ctx context.Context, table string, row int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("read_row", table); err != nil {
		return nil, err
	}
	rows := m.tables[table]
	if row < 1 || row > len(rows) {
		return nil, nil
	}
	return append([]string{}, rows[row-1]...), nil
}

func (m *MemoryBackend) RowCount(ctx context.Context, table string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("row_count", table); err != nil {
		return 0, err
	}
	return len(m.tables[table]), nil
}

func (m *MemoryBackend) WriteCell(ctx context.Context, table string, row, col int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("write_cell", table); err != nil {
		return err
	}
	m.set(table, row, col, value)
	return nil
}

func (m *MemoryBackend) AppendRow(ctx context.Context, table string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("append", table); err != nil {
		return err
	}
	m.tables[table] = append(m.tables[table], append([]string{}, values...))
	return nil
}

var rowRangePattern = regexp.MustCompile(`^([A-Z]+)(\d+):[A-Z]+\d+$`)

// OverwriteRange supports the single-anchor ranges the gateway produces,
// e.g. "A5:F5".
func (m *MemoryBackend) OverwriteRange(ctx context.Context, table, rng string, values [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("overwrite", table); err != nil {
		return err
	}
	match := rowRangePattern.FindStringSubmatch(rng)
	if match == nil {
		return fmt.Errorf("unsupported range %q", rng)
	}
	startCol := columnNumber(match[1])
	startRow, _ := strconv.Atoi(match[2])
	for i, row := range values {
		for j, v := range row {
			m.set(table, startRow+i, startCol+j, v)
		}
	}
	return nil
}

func (m *MemoryBackend) set(table string, row, col int, value string) {
	rows := m.tables[table]
	for len(rows) < row {
		rows = append(rows, nil)
	}
	cells := rows[row-1]
	for len(cells) < col {
		cells = append(cells, "")
	}
	cells[col-1] = value
	rows[row-1] = cells
	m.tables[table] = rows
}

func columnNumber(letters string) int {
	n := 0
	for _, r := range letters {
		n = n*26 + int(r-'A'+1)
	}
	return n
}

func copyRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string{}, row...)
	}
	return out
}
