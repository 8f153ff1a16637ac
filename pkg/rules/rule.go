package rules

import (
	"fmt"
	"strings"
)

// Kind tells whether a rule names a single host or refers to a host-list file.
type Kind int

const (
	Host Kind = iota
	File
)

func (k Kind) String() string {
	switch k {
	case Host:
		return "host"
	case File:
		return "file"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses "host" or "file". The empty string infers the kind from
// the location, see KindOf.
func ParseKind(s, location string) (Kind, error) {
	switch strings.ToLower(s) {
	case "":
		return KindOf(location), nil
	case "host":
		return Host, nil
	case "file":
		return File, nil
	default:
		return Host, fmt.Errorf("invalid rule kind %q", s)
	}
}

// KindOf returns File for locations that contain a path separator and Host for
// everything else.
func KindOf(location string) Kind {
	if strings.Contains(location, "/") {
		return File
	}
	return Host
}

// State is the effect a rule has on the blocked set.
type State int

const (
	Deny State = iota
	Allow
	Ignore
)

func (s State) String() string {
	switch s {
	case Deny:
		return "deny"
	case Allow:
		return "allow"
	case Ignore:
		return "ignore"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ParseState parses "deny", "allow", or "ignore".
func ParseState(s string) (State, error) {
	switch strings.ToLower(s) {
	case "deny":
		return Deny, nil
	case "allow":
		return Allow, nil
	case "ignore":
		return Ignore, nil
	default:
		return Ignore, fmt.Errorf("invalid rule state %q", s)
	}
}

// A Rule either adds to or removes from the set of blocked hosts.
type Rule struct {
	Location string
	Kind     Kind
	State    State
}

func (r Rule) String() string {
	return fmt.Sprintf("%s %s %s", r.State, r.Kind, r.Location)
}
