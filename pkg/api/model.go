package api

import (
	"context"

	"branchdesk/pkg/records"
	"branchdesk/pkg/schema"
	"branchdesk/pkg/store"
	"branchdesk/pkg/validate"
)

type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
}

type RecordStore interface {
	Capabilities(ctx context.Context) (store.Capabilities, error)
	Describe(ctx context.Context, table string) ([]schema.Column, error)
	Query(ctx context.Context, id records.Identity, table string, q store.Query) (store.Result, error)
	Submit(ctx context.Context, id records.Identity, table string, proposed map[string]string) (*validate.Result, error)
	Edit(ctx context.Context, id records.Identity, table string, index int, proposed map[string]string) (*validate.Result, error)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Session  string `json:"session"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type passwordRequest struct {
	Old     string `json:"old"`
	New     string `json:"new"`
	Confirm string `json:"confirm"`
}

type recordRequest struct {
	Values map[string]string `json:"values"`
}

type columnResponse struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Format   string `json:"format"`
}

type schemaResponse struct {
	Table    string           `json:"table"`
	Required []columnResponse `json:"required"`
	Optional []columnResponse `json:"optional"`
	Warning  string           `json:"warning,omitempty"`
}

type recordResponse struct {
	Index       int               `json:"index"`
	Row         int               `json:"row"`
	Values      map[string]string `json:"values"`
	Submitter   string            `json:"submitter"`
	SubmittedAt string            `json:"submitted_at"`
}

type recordsResponse struct {
	Table   string           `json:"table"`
	Columns []string         `json:"columns"`
	Records []recordResponse `json:"records"`
}

type submitResponse struct {
	Table    string            `json:"table"`
	Values   map[string]string `json:"values"`
	Stripped []strippedChars   `json:"stripped,omitempty"`
}

type strippedChars struct {
	Column string `json:"column"`
	Count  int    `json:"count"`
}

type errorResponse struct {
	Error  string       `json:"error"`
	Fields []fieldError `json:"fields,omitempty"`
}

type fieldError struct {
	Column  string `json:"column"`
	Message string `json:"message"`
}

func toColumns(cols []schema.Column) []columnResponse {
	out := make([]columnResponse, 0, len(cols))
	for _, c := range cols {
		out = append(out, columnResponse{Name: c.Name, Required: c.Required, Format: string(c.Format)})
	}
	return out
}

func toSchema(table string, cols []schema.Column) schemaResponse {
	required, optional := schema.Split(cols)
	return schemaResponse{
		Table:    table,
		Required: toColumns(required),
		Optional: toColumns(optional),
	}
}

func toRecords(table string, res store.Result) recordsResponse {
	out := recordsResponse{
		Table:   table,
		Columns: schema.Names(schema.UserColumns(schema.Inspect(res.Header, nil))),
		Records: make([]recordResponse, 0, len(res.Records)),
	}
	for _, r := range res.Records {
		out.Records = append(out.Records, recordResponse{
			Index:       r.Index,
			Row:         r.Row(),
			Values:      r.Record.Values,
			Submitter:   r.Record.Submitter,
			SubmittedAt: r.Record.SubmittedAt,
		})
	}
	return out
}

func toSubmit(table string, res *validate.Result) submitResponse {
	out := submitResponse{Table: table, Values: res.Values}
	for _, s := range res.Stripped {
		out.Stripped = append(out.Stripped, strippedChars{Column: s.Column, Count: len(s.Chars)})
	}
	return out
}
