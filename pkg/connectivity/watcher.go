// Package connectivity watches the network interfaces of the host and reports when
// their state changes in a way that may invalidate the current tunnel setup.
package connectivity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/datawire/dlib/dlog"
)

const DefaultDebounce = time.Second

// Change is a state change of one interface.
type Change struct {
	Name    string
	Deleted bool
	Flags   uint32
}

// Watcher calls OnChange once a burst of interface changes has settled for Debounce.
// Changes to interfaces for which Ignore returns true are disregarded.
type Watcher struct {
	Debounce time.Duration
	Ignore   func(name string) bool
	OnChange func(ctx context.Context)
}

// IgnorePattern returns a function that matches the names that a kernel interface
// name pattern such as "dnsf%d" can produce.
func IgnorePattern(pattern string) func(string) bool {
	prefix := pattern
	if i := strings.IndexByte(pattern, '%'); i >= 0 {
		prefix = pattern[:i]
		return func(name string) bool { return strings.HasPrefix(name, prefix) }
	}
	return func(name string) bool { return name == prefix }
}

// Run subscribes to netlink link updates and watches them until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	updates := make(chan netlink.LinkUpdate)
	done := make(chan struct{})
	defer close(done)
	if err := netlink.LinkSubscribe(updates, done); err != nil {
		return err
	}

	changes := make(chan Change)
	go func() {
		defer close(changes)
		for u := range updates {
			c := Change{
				Name:    u.Attrs().Name,
				Deleted: u.Header.Type == unix.RTM_DELLINK,
				Flags:   u.IfInfomsg.Change,
			}
			select {
			case changes <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return w.watch(ctx, changes)
}

const relevantFlags = unix.IFF_UP | unix.IFF_RUNNING | unix.IFF_LOWER_UP

func (w *Watcher) relevant(c Change) bool {
	if w.Ignore != nil && w.Ignore(c.Name) {
		return false
	}
	return c.Deleted || c.Flags&relevantFlags != 0
}

func (w *Watcher) watch(ctx context.Context, changes <-chan Change) error {
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	armed := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("link subscription closed")
			}
			if !w.relevant(c) {
				continue
			}
			dlog.Debugf(ctx, "interface %s changed (deleted=%t, flags=%#x)", c.Name, c.Deleted, c.Flags)
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(debounce)
			armed = true
		case <-timer.C:
			armed = false
			dlog.Info(ctx, "network connectivity changed")
			w.OnChange(ctx)
		}
	}
}
