// Package clock abstracts the current time so that cache expiry and default
// query times can be tested deterministically.
package clock

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// RealClock uses the system time.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// MockClock is a controllable, thread-safe clock for tests.
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

// Set changes the current time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}

// Advance moves the clock by d, which may be negative.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

// EnvironmentClock reads the current time from an environment variable on
// every call and falls back to the system time when it is unset or invalid.
// It lets the CLI replay queries against a fixed "now".
type EnvironmentClock struct {
	envVar   string
	location *time.Location
}

// NewEnvironmentClock creates an EnvironmentClock. location is used for
// values without an explicit offset; nil means time.Local.
func NewEnvironmentClock(envVar string, location *time.Location) *EnvironmentClock {
	if location == nil {
		location = time.Local
	}
	return &EnvironmentClock{envVar: envVar, location: location}
}

func (e *EnvironmentClock) Now() time.Time {
	value := strings.TrimSpace(os.Getenv(e.envVar))
	if value == "" {
		return time.Now()
	}
	t, err := ParseTime(value, e.location)
	if err != nil {
		slog.Warn("ignoring invalid clock override",
			slog.String("env_var", e.envVar), slog.String("value", value))
		return time.Now()
	}
	return t
}

// ParseTime accepts RFC 3339 or a local "YYYY-MM-DDTHH:MM[:SS]" / "YYYY-MM-DD HH:MM[:SS]" form.
func ParseTime(s string, location *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if location == nil {
		location = time.Local
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	} {
		if t, err := time.ParseInLocation(layout, s, location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time %q", s)
}
