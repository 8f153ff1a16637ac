// Package rules compiles an ordered list of allow and deny rules into the set of
// hosts that the DNS filter blocks.
package rules

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/telepresenceio/dnsfilter/pkg/hosts"
)

// An Opener resolves a file rule location to its contents.
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// OpenerFunc adapts an ordinary function to the Opener interface.
type OpenerFunc func(ctx context.Context, location string) (io.ReadCloser, error)

func (f OpenerFunc) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	return f(ctx, location)
}

// FileOpener opens rule locations as files. Relative locations are resolved
// against Dir.
type FileOpener struct {
	Dir string
}

func (o FileOpener) Open(_ context.Context, location string) (io.ReadCloser, error) {
	location = strings.TrimPrefix(location, "file://")
	if !filepath.IsAbs(location) && o.Dir != "" {
		location = filepath.Join(o.Dir, location)
	}
	return os.Open(location)
}

// Compile folds the rules, in order, into a new HostSet. Later rules override
// the effect of earlier rules on the same host.
//
// The context is checked before each rule. If it is cancelled, Compile returns
// nil and the context's error; a partial set is never returned. A file that
// cannot be opened causes its rule to be skipped.
func Compile(ctx context.Context, rules []Rule, opener Opener) (HostSet, error) {
	set := make(HostSet)
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if rule.State == Ignore {
			continue
		}
		if rule.Kind == Host {
			host := strings.ToLower(rule.Location)
			if rule.State == Deny {
				set.add(host)
			} else {
				set.remove(host)
			}
			continue
		}

		rc, err := opener.Open(ctx, rule.Location)
		if err != nil {
			dlog.Warnf(ctx, "skipping rule %q: %v", rule, err)
			continue
		}
		fileHosts := hosts.Parse(rc)
		_ = rc.Close()
		if rule.State == Deny {
			for h := range fileHosts {
				set.add(h)
			}
		} else {
			for h := range fileHosts {
				set.remove(h)
			}
		}
		dlog.Debugf(ctx, "rule %q matched %d hosts, set size is now %d", rule, len(fileHosts), len(set))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return set, nil
}
