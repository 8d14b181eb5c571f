package agreement

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a rent agreement. Values are persisted.
type Status uint8

const (
	StatusUninitialized Status = iota
	StatusCreated
	StatusSecurityDeposited
	StatusActive
	StatusCompleted
	StatusTerminated
)

var statusNames = map[Status]string{
	StatusUninitialized:     "uninitialized",
	StatusCreated:           "created",
	StatusSecurityDeposited: "security_deposited",
	StatusActive:            "active",
	StatusCompleted:         "completed",
	StatusTerminated:        "terminated",
}

// successors lists the states reachable in one step, excluding self loops.
var successors = map[Status][]Status{
	StatusUninitialized:     {StatusCreated},
	StatusCreated:           {StatusSecurityDeposited, StatusTerminated},
	StatusSecurityDeposited: {StatusActive, StatusCompleted, StatusTerminated},
	StatusActive:            {StatusCompleted, StatusTerminated},
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsTerminal reports whether no further mutation is accepted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusTerminated
}

// CanAdvanceTo reports whether next is s itself (for non-terminal s) or a direct successor.
func (s Status) CanAdvanceTo(next Status) bool {
	if s.IsTerminal() || !next.Valid() {
		return false
	}
	if next == s {
		return s != StatusUninitialized
	}
	for _, candidate := range successors[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("agreement: unknown status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	value := strings.ToLower(strings.TrimSpace(string(text)))
	for status, name := range statusNames {
		if name == value {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("agreement: unknown status %q", value)
}
