package auth

import (
	"fmt"
	"sync"
	"time"
)

const (
	DefaultMaxFailures     = 5
	DefaultLockoutDuration = 5 * time.Minute

	// DefaultMaxTracked bounds how many usernames carry a failure count.
	DefaultMaxTracked = 10000
)

// LockedError is returned while too many consecutive failures keep login
// closed.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("too many failed login attempts, try again in %s", e.Remaining.Round(time.Second))
}

// Lockout counts consecutive failed logins and closes login for a while once
// the threshold is reached.
type Lockout struct {
	mu          sync.Mutex
	maxFailures int
	duration    time.Duration
	now         func() time.Time

	failures int
	until    time.Time
	last     time.Time
}

func NewLockout(maxFailures int, duration time.Duration) *Lockout {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return &Lockout{maxFailures: maxFailures, duration: duration, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (l *Lockout) WithClock(now func() time.Time) *Lockout {
	l.now = now
	return l
}

// Check returns a *LockedError while the lockout is in force. An expired
// lockout clears the failure count.
func (l *Lockout) Check() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.until.IsZero() {
		return nil
	}
	if remaining := l.until.Sub(l.now()); remaining > 0 {
		return &LockedError{Remaining: remaining}
	}
	l.until = time.Time{}
	l.failures = 0
	return nil
}

func (l *Lockout) Fail() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures++
	l.last = l.now()
	if l.failures >= l.maxFailures {
		l.until = l.last.Add(l.duration)
	}
}

func (l *Lockout) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = 0
	l.until = time.Time{}
}

func (l *Lockout) Failures() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

// idle reports whether the lockout is not in force and saw no failure for a
// full lockout duration, and when it last failed.
func (l *Lockout) idle(now time.Time) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	locked := !l.until.IsZero() && now.Before(l.until)
	return !locked && now.Sub(l.last) >= l.duration, l.last
}

func (l *Lockout) locked(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.until.IsZero() && now.Before(l.until)
}

// Lockouts keeps one Lockout per username, whatever client or session the
// attempts come from.
type Lockouts struct {
	mu          sync.Mutex
	byUser      map[string]*Lockout
	maxFailures int
	duration    time.Duration
	maxTracked  int
	now         func() time.Time
}

func NewLockouts(maxFailures int, duration time.Duration) *Lockouts {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return &Lockouts{
		byUser:      make(map[string]*Lockout),
		maxFailures: maxFailures,
		duration:    duration,
		maxTracked:  DefaultMaxTracked,
		now:         time.Now,
	}
}

// WithClock replaces the time source of the registry and of every lockout it
// creates, for tests.
func (l *Lockouts) WithClock(now func() time.Time) *Lockouts {
	l.now = now
	return l
}

// WithMaxTracked changes how many usernames are tracked at once.
func (l *Lockouts) WithMaxTracked(n int) *Lockouts {
	if n > 0 {
		l.maxTracked = n
	}
	return l
}

// Check returns a *LockedError while username is locked out.
func (l *Lockouts) Check(username string) error {
	l.mu.Lock()
	lock, ok := l.byUser[username]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	return lock.Check()
}

// Fail records a failed attempt for username.
func (l *Lockouts) Fail(username string) {
	l.mu.Lock()
	lock, ok := l.byUser[username]
	if !ok {
		if len(l.byUser) >= l.maxTracked {
			l.pruneLocked()
			l.evictLocked()
		}
		lock = NewLockout(l.maxFailures, l.duration).WithClock(l.now)
		l.byUser[username] = lock
	}
	l.mu.Unlock()
	lock.Fail()
}

// Reset forgets the failures of username.
func (l *Lockouts) Reset(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byUser, username)
}

// Failures is the consecutive failure count of username.
func (l *Lockouts) Failures(username string) int {
	l.mu.Lock()
	lock, ok := l.byUser[username]
	l.mu.Unlock()
	if !ok {
		return 0
	}
	return lock.Failures()
}

// Prune drops usernames that are not locked out and have not failed for a
// full lockout duration.
func (l *Lockouts) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked()
}

func (l *Lockouts) pruneLocked() int {
	now := l.now()
	n := 0
	for user, lock := range l.byUser {
		if idle, _ := lock.idle(now); idle {
			delete(l.byUser, user)
			n++
		}
	}
	return n
}

// evictLocked makes room when pruning was not enough, dropping the unlocked
// entry whose last failure is oldest. Locked entries are never evicted.
func (l *Lockouts) evictLocked() {
	if len(l.byUser) < l.maxTracked {
		return
	}
	now := l.now()
	victim := ""
	var oldest time.Time
	for user, lock := range l.byUser {
		if lock.locked(now) {
			continue
		}
		_, last := lock.idle(now)
		if victim == "" || last.Before(oldest) {
			victim, oldest = user, last
		}
	}
	if victim != "" {
		delete(l.byUser, victim)
	}
}

func (l *Lockouts) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byUser)
}
