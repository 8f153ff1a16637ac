package errcat

import (
	"errors"
	"fmt"
)

// The Category is used for categorizing errors so that the engine can tell a
// packet that should just be dropped from a fault that must tear down the current
// connection attempt.
type Category int

type categorized struct {
	error
	category Category
}

const (
	OK        = Category(iota)
	Malformed // A packet or message that cannot be parsed. Silently discarded
	Upstream  // A single upstream query failed. The query is dropped
	Network   // Fatal for the current connection attempt. Triggers a reconnect
	Config    // Errors in config.yml or in referenced rule files
	Unknown   // Something else. Consult the logs
)

func (c Category) String() string {
	switch c {
	case OK:
		return "ok"
	case Malformed:
		return "malformed"
	case Upstream:
		return "upstream"
	case Network:
		return "network"
	case Config:
		return "config"
	default:
		return "unknown"
	}
}

// New creates a new categorized error based in its argument. The argument
// can be an error or a string. If it isn't, it will be converted to a string
// using its '%v' formatter.
func (c Category) New(untypedErr any) error {
	var err error
	switch untypedErr := untypedErr.(type) {
	case nil:
		return nil
	case error:
		err = untypedErr
	case string:
		err = errors.New(untypedErr)
	default:
		err = fmt.Errorf("%v", untypedErr)
	}
	return &categorized{error: err, category: c}
}

// Newf creates a new categorized error based on a format string with arguments. The
// error is created using fmt.Errorf() so using '%w' is relevant for error arguments.
func (c Category) Newf(format string, a ...any) error {
	return &categorized{error: fmt.Errorf(format, a...), category: c}
}

// Unwrap this categorized error.
func (ce *categorized) Unwrap() error {
	return ce.error
}

// GetCategory returns the error category for a categorized error, OK for nil, and
// Unknown for other errors.
func GetCategory(err error) Category {
	if err == nil {
		return OK
	}
	// Keep unwrapping until a category is found (or not)
	for {
		if ce, ok := err.(*categorized); ok {
			return ce.category
		}
		if err = errors.Unwrap(err); err == nil {
			return Unknown
		}
	}
}

// Is returns true when the category of err equals c.
func (c Category) Is(err error) bool {
	return GetCategory(err) == c
}
