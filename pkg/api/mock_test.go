package api

import (
	"context"

	"branchdesk/pkg/records"
	"branchdesk/pkg/schema"
	"branchdesk/pkg/store"
	"branchdesk/pkg/validate"
)

type mockStore struct {
	Caps        store.Capabilities
	CapsErr     error
	Columns     []schema.Column
	DescribeErr error
	QueryFunc   func(id records.Identity, table string, q store.Query) (store.Result, error)
	SubmitFunc  func(id records.Identity, table string, proposed map[string]string) (*validate.Result, error)
	EditFunc    func(id records.Identity, table string, index int, proposed map[string]string) (*validate.Result, error)
}

func (m *mockStore) Capabilities(ctx context.Context) (store.Capabilities, error) {
	return m.Caps, m.CapsErr
}

func (m *mockStore) Describe(ctx context.Context, table string) ([]schema.Column, error) {
	return m.Columns, m.DescribeErr
}

func (m *mockStore) Query(ctx context.Context, id records.Identity, table string, q store.Query) (store.Result, error) {
	return m.QueryFunc(id, table, q)
}

func (m *mockStore) Submit(ctx context.Context, id records.Identity, table string, proposed map[string]string) (*validate.Result, error) {
	return m.SubmitFunc(id, table, proposed)
}

func (m *mockStore) Edit(ctx context.Context, id records.Identity, table string, index int, proposed map[string]string) (*validate.Result, error) {
	return m.EditFunc(id, table, index, proposed)
}
