package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"branchdesk/pkg/sheets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *sheets.MemoryBackend) {
	t.Helper()
	backend := sheets.NewMemoryBackend()
	backend.SetTable("User", [][]string{
		{"Username", "Password", "Role"},
		{"alice", "secret", "staff"},
		{"root", strings.ToUpper(HashPassword("hunter2")), "admin"},
	})
	return NewService(sheets.NewGateway(backend), "User"), backend
}

func TestHashPassword(t *testing.T) {
	assert.Equal(t, "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b", HashPassword("secret"))
	assert.True(t, IsHashed(HashPassword("x")))
	assert.True(t, IsHashed(strings.ToUpper(HashPassword("x"))))
	assert.False(t, IsHashed("secret"))
	assert.False(t, IsHashed(strings.Repeat("g", 64)))
}

func TestUsersMigratesPlaintext(t *testing.T) {
	svc, backend := newTestService(t)

	users, err := svc.Users(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	rows := backend.Table("User")
	assert.Equal(t, HashPassword("secret"), rows[1][1])
	assert.Equal(t, strings.ToUpper(HashPassword("hunter2")), rows[2][1], "digests are left alone")
	assert.Equal(t, 1, backend.CallCount("write_cell"))

	n, err := svc.MigratePasswords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, backend.CallCount("write_cell"))
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	role, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "staff", role)

	role, err = svc.Login(ctx, "root", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "mallory", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, svc.Lockouts().Failures("alice"))
	assert.Equal(t, 1, svc.Lockouts().Failures("mallory"))
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	svc, backend := newTestService(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.WithLockouts(NewLockouts(5, 5*time.Minute).WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, "alice", "nope")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	reads := backend.CallCount("read_all")

	now = now.Add(4 * time.Minute)
	_, err := svc.Login(ctx, "alice", "secret")
	var locked *LockedError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, time.Minute, locked.Remaining)
	assert.Equal(t, reads, backend.CallCount("read_all"), "locked login must not touch the sheet")

	role, err := svc.Login(ctx, "root", "hunter2")
	require.NoError(t, err, "other users are not locked out")
	assert.Equal(t, "admin", role)

	now = now.Add(time.Minute)
	role, err = svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "staff", role)
	assert.Equal(t, 0, svc.Lockouts().Failures("alice"))
}

func TestSuccessResetsFailureCount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, _ = svc.Login(ctx, "alice", "nope")
	}
	_, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	_, _ = svc.Login(ctx, "alice", "nope")
	assert.NoError(t, svc.Lockouts().Check("alice"))
	assert.Equal(t, 1, svc.Lockouts().Failures("alice"))
}

func TestLockoutsPrune(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewLockouts(2, 5*time.Minute).WithClock(func() time.Time { return now })

	l.Fail("alice")
	l.Fail("bob")
	l.Fail("bob")
	require.Error(t, l.Check("bob"))

	now = now.Add(4 * time.Minute)
	assert.Equal(t, 0, l.Prune(), "recent failures are kept")

	now = now.Add(time.Minute)
	assert.Equal(t, 2, l.Prune())
	assert.Equal(t, 0, l.Len())
}

func TestLockoutsStayBounded(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewLockouts(2, 5*time.Minute).WithClock(func() time.Time { return now }).WithMaxTracked(2)

	l.Fail("alice")
	l.Fail("alice")
	require.Error(t, l.Check("alice"))

	now = now.Add(time.Second)
	l.Fail("bob")
	now = now.Add(time.Second)
	l.Fail("carol")

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 0, l.Failures("bob"), "oldest unlocked entry makes room")
	assert.Equal(t, 1, l.Failures("carol"))
	assert.Error(t, l.Check("alice"), "a locked user is never evicted")
}

func TestChangePassword(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.ChangePassword(ctx, "alice", "wrong", "new"), ErrInvalidCredentials)
	assert.ErrorIs(t, svc.ChangePassword(ctx, "alice", "secret", ""), ErrEmptyPassword)

	require.NoError(t, svc.ChangePassword(ctx, "alice", "secret", "n3w"))
	assert.Equal(t, HashPassword("n3w"), backend.Table("User")[1][1])

	_, err := svc.Login(ctx, "alice", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "alice", "n3w")
	assert.NoError(t, err)
}

func TestMalformedUserTable(t *testing.T) {
	backend := sheets.NewMemoryBackend()
	backend.SetTable("User", [][]string{{"Name", "Password"}})
	svc := NewService(sheets.NewGateway(backend), "")

	_, err := svc.Users(context.Background())
	assert.ErrorIs(t, err, ErrMalformedUserTable)
}
