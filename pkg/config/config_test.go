package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "branchdesk.toml")

	c, err := New(path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	assert.Equal(t, ":8080", c.Store.Server.ListenAddress)
	assert.Equal(t, 60*time.Second, c.CacheTTL())
	assert.Equal(t, 2*time.Second, c.InitialBackoff())
	assert.Equal(t, 10*time.Second, c.MaxBackoff())
	assert.Equal(t, 5*time.Minute, c.LockoutDuration())
	assert.Equal(t, 3, c.Store.Retry.MaxAttempts)
	assert.Equal(t, "Asia/Ho_Chi_Minh", c.Location().String())

	again, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, c.Store, again.Store)
}

func TestNewKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "branchdesk.toml")
	require.NoError(t, os.WriteFile(path, []byte("[Cache]\nTTL = \"30s\"\n"), 0644))

	c, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, c.CacheTTL())
	assert.Equal(t, "User", c.Store.Sheet.UserTable)
}

func TestNewRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "branchdesk.toml")
	require.NoError(t, os.WriteFile(path, []byte("[Retry]\nMaxBackoff = \"soon\"\n"), 0644))
	_, err := New(path)
	assert.ErrorContains(t, err, "max backoff")

	require.NoError(t, os.WriteFile(path, []byte("[Sheet]\nTimezone = \"Mars/Base\"\n"), 0644))
	_, err = New(path)
	assert.ErrorContains(t, err, "timezone")
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv(EnvCredentials, "")
	t.Setenv(EnvSheetID, "")

	_, err := LoadCredentials("")
	assert.ErrorIs(t, err, ErrMissingCredentials)

	t.Setenv(EnvCredentials, `{"type":"service_account"}`)
	_, err = LoadCredentials(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, ErrMissingCredentials, "sheet id is still missing")

	t.Setenv(EnvSheetID, "abc123")
	creds, err := LoadCredentials("")
	require.NoError(t, err)
	assert.Equal(t, "abc123", creds.SheetID)
	assert.JSONEq(t, `{"type":"service_account"}`, string(creds.JSON))
}

func TestLoadCredentialsFromEnvFile(t *testing.T) {
	t.Setenv(EnvCredentials, "")
	t.Setenv(EnvSheetID, "")
	os.Unsetenv(EnvCredentials)
	os.Unsetenv(EnvSheetID)

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GOOGLE_CREDENTIALS_JSON='{\"a\":1}'\nSHEET_ID=sheet-1\n"), 0644))

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "sheet-1", creds.SheetID)
	assert.Equal(t, `{"a":1}`, string(creds.JSON))
}
