package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"branchdesk/pkg/records"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultUserTable = "User"

	columnUsername = "Username"
	columnPassword = "Password"
	columnRole     = "Role"
)

var (
	// ErrInvalidCredentials does not say which of username or password was wrong.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrEmptyPassword      = errors.New("password must not be empty")
	ErrMalformedUserTable = errors.New("user table is missing a Username, Password or Role column")
)

var hexDigest = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Table is the part of the gateway the user store needs.
type Table interface {
	ReadAll(ctx context.Context, table string) ([]string, [][]string, error)
	WriteCell(ctx context.Context, table string, row, col int, value string) error
}

type User struct {
	Username string
	Hash     string
	Role     string
	Index    int // logical row index in the user table
}

type Service struct {
	table     Table
	userTable string
	lockouts  *Lockouts
}

func NewService(table Table, userTable string) *Service {
	if userTable == "" {
		userTable = DefaultUserTable
	}
	return &Service{
		table:     table,
		userTable: userTable,
		lockouts:  NewLockouts(DefaultMaxFailures, DefaultLockoutDuration),
	}
}

// WithLockouts replaces the failed login registry.
func (s *Service) WithLockouts(l *Lockouts) *Service {
	s.lockouts = l
	return s
}

func (s *Service) Lockouts() *Lockouts {
	return s.lockouts
}

// HashPassword is the lowercase hex SHA-256 digest stored in the user table.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// IsHashed reports whether a stored password is already a digest.
func IsHashed(stored string) bool {
	return hexDigest.MatchString(stored)
}

func matches(stored, password string) bool {
	want := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(stored)), []byte(want)) == 1
}

type layout struct {
	username, password, role int
}

func userLayout(header []string) (layout, error) {
	l := layout{-1, -1, -1}
	for i, cell := range header {
		switch strings.TrimSpace(cell) {
		case columnUsername:
			l.username = i
		case columnPassword:
			l.password = i
		case columnRole:
			l.role = i
		}
	}
	if l.username < 0 || l.password < 0 || l.role < 0 {
		return l, ErrMalformedUserTable
	}
	return l, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// Users reads the user table, replacing any plaintext password with its
// digest in place first.
func (s *Service) Users(ctx context.Context) ([]User, error) {
	users, _, err := s.load(ctx)
	return users, err
}

func (s *Service) load(ctx context.Context) ([]User, layout, error) {
	header, rows, err := s.table.ReadAll(ctx, s.userTable)
	if err != nil {
		return nil, layout{}, err
	}
	l, err := userLayout(header)
	if err != nil {
		return nil, l, err
	}

	users := make([]User, 0, len(rows))
	migrated := 0
	for i, row := range rows {
		u := User{
			Username: cell(row, l.username),
			Hash:     cell(row, l.password),
			Role:     cell(row, l.role),
			Index:    i,
		}
		if u.Username == "" {
			continue
		}
		if !IsHashed(u.Hash) {
			u.Hash = HashPassword(u.Hash)
			if err := s.table.WriteCell(ctx, s.userTable, records.PhysicalRow(i), l.password+1, u.Hash); err != nil {
				return nil, l, fmt.Errorf("hash password of %s: %w", u.Username, err)
			}
			migrated++
		}
		users = append(users, u)
	}
	if migrated > 0 {
		log.WithField("users", migrated).Info("hashed plaintext passwords")
	}
	return users, l, nil
}

// MigratePasswords hashes every plaintext password and reports how many users
// the table holds.
func (s *Service) MigratePasswords(ctx context.Context) (int, error) {
	users, err := s.Users(ctx)
	return len(users), err
}

// Login returns the role of the user. Failures are counted per username;
// while that username is locked out the user table is not read at all.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if err := s.lockouts.Check(username); err != nil {
		log.WithField("user", username).Warn("login refused, locked out")
		return "", err
	}
	users, err := s.Users(ctx)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if u.Username == username && matches(u.Hash, password) {
			s.lockouts.Reset(username)
			log.WithFields(log.Fields{"user": username, "role": u.Role}).Info("login succeeded")
			return u.Role, nil
		}
	}
	s.lockouts.Fail(username)
	log.WithField("user", username).Warn("login failed")
	return "", ErrInvalidCredentials
}

// ChangePassword replaces the password of username when oldPassword matches.
func (s *Service) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if newPassword == "" {
		return ErrEmptyPassword
	}
	users, l, err := s.load(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.Username == username && matches(u.Hash, oldPassword) {
			err := s.table.WriteCell(ctx, s.userTable, records.PhysicalRow(u.Index), l.password+1, HashPassword(newPassword))
			if err != nil {
				return err
			}
			log.WithField("user", username).Info("password changed")
			return nil
		}
	}
	return ErrInvalidCredentials
}
