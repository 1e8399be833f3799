package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Google Sheets allows 60 requests per minute per user by default.
const DefaultRequestsPerMinute = 60

// SheetClient is the Backend over one Google spreadsheet.
type SheetClient struct {
	service       *sheets.Service
	spreadsheetID string
	limiter       *rate.Limiter
}

// NewSheetClient authenticates with a service account JSON blob. A positive
// requestsPerMinute throttles calls client side.
func NewSheetClient(ctx context.Context, credentialsJSON []byte, spreadsheetID string, requestsPerMinute int) (*SheetClient, error) {
	return newSheetClient(ctx, spreadsheetID, requestsPerMinute,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
}

func newSheetClient(ctx context.Context, spreadsheetID string, requestsPerMinute int, opts ...option.ClientOption) (*SheetClient, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets client: %w", err)
	}
	s := &SheetClient{
		service:       srv,
		spreadsheetID: spreadsheetID,
	}
	if requestsPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute/6+1)
	}
	return s, nil
}

func (s *SheetClient) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func (s *SheetClient) ListTables(ctx context.Context) ([]string, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	ss, err := s.service.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	names := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			names = append(names, sh.Properties.Title)
		}
	}
	return names, nil
}

func (s *SheetClient) ReadAll(ctx context.Context, table string) ([][]string, error) {
	return s.get(ctx, a1(table, "A:ZZ"))
}

func (s *SheetClient) ReadRow(ctx context.Context, table string, row int) ([]string, error) {
	rows, err := s.get(ctx, a1(table, fmt.Sprintf("%d:%d", row, row)))
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// countRange spans every column a table can use, so a row counts as soon as
// any of its cells is filled.
const countRange = "A:ZZ"

// RowCount is the index of the last non-empty row, header included.
func (s *SheetClient) RowCount(ctx context.Context, table string) (int, error) {
	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, a1(table, countRange)).
		MajorDimension("ROWS").Context(ctx).Do()
	if err != nil {
		return 0, classify(err)
	}
	return len(resp.Values), nil
}

func (s *SheetClient) WriteCell(ctx context.Context, table string, row, col int, value string) error {
	rng := a1(table, fmt.Sprintf("%s%d", ColumnLetter(col), row))
	return s.update(ctx, rng, [][]string{{value}})
}

func (s *SheetClient) AppendRow(ctx context.Context, table string, values []string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	_, err := s.service.Spreadsheets.Values.Append(
		s.spreadsheetID,
		a1(table, "A:A"),
		&sheets.ValueRange{Values: toInterfaces([][]string{values})},
	).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return classify(err)
}

func (s *SheetClient) OverwriteRange(ctx context.Context, table, rng string, values [][]string) error {
	return s.update(ctx, a1(table, rng), values)
}

func (s *SheetClient) get(ctx context.Context, rng string) ([][]string, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	return toStrings(resp.Values), nil
}

// update writes RAW so numerals such as "0123" keep their leading zeros.
func (s *SheetClient) update(ctx context.Context, rng string, values [][]string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	_, err := s.service.Spreadsheets.Values.Update(
		s.spreadsheetID,
		rng,
		&sheets.ValueRange{Values: toInterfaces(values)},
	).ValueInputOption("RAW").Context(ctx).Do()
	return classify(err)
}

// classify maps a missing sheet to ErrTableNotFound; other errors, rate
// limits included, are returned unchanged for the retry policy to inspect.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && (gErr.Code == http.StatusNotFound ||
		(gErr.Code == http.StatusBadRequest && containsRangeError(gErr))) {
		return fmt.Errorf("%w: %v", ErrTableNotFound, err)
	}
	return err
}

// A range naming a missing sheet is rejected as unparsable.
func containsRangeError(gErr *googleapi.Error) bool {
	return strings.Contains(gErr.Message, "Unable to parse range")
}

func toStrings(values [][]interface{}) [][]string {
	rows := make([][]string, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = fmt.Sprint(cell)
		}
		rows[i] = cells
	}
	return rows
}

func toInterfaces(values [][]string) [][]interface{} {
	rows := make([][]interface{}, len(values))
	for i, row := range values {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		rows[i] = cells
	}
	return rows
}
