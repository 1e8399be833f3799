package app

import (
	"context"
	"path/filepath"
	"testing"

	"branchdesk/pkg/config"
	"branchdesk/pkg/records"
	"branchdesk/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoWorkbook(t *testing.T) {
	cfg, err := config.New(filepath.Join(t.TempDir(), "branchdesk.toml"))
	require.NoError(t, err)

	backend, err := Backend(context.Background(), cfg, "", true)
	require.NoError(t, err)
	a := New(cfg, backend)
	ctx := context.Background()

	n, err := a.Auth.MigratePasswords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	role, err := a.Auth.Login(ctx, "staff", "staff")
	require.NoError(t, err)
	assert.Equal(t, "staff", role)

	caps, err := a.Store.Capabilities(ctx)
	require.NoError(t, err)
	assert.True(t, caps.Allows("Loans", store.Enterable))

	res, err := a.Store.Query(ctx, records.Identity{Username: "staff", Role: role}, "Loans", store.Query{})
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
}
