// Package engine contains the forwarding loop that moves packets between the tunnel
// and the upstream resolvers, and the controller that runs it with retries.
package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/dlib/dtime"

	"github.com/telepresenceio/dnsfilter/pkg/pending"
	"github.com/telepresenceio/dnsfilter/pkg/poll"
	"github.com/telepresenceio/dnsfilter/pkg/rules"
	"github.com/telepresenceio/dnsfilter/pkg/translate"
	"github.com/telepresenceio/dnsfilter/pkg/upstream"
)

// Device is the provisioned tunnel. Fd must be pollable, and Read and Write transfer
// one IPv4 packet per call.
type Device interface {
	io.ReadWriteCloser
	Fd() int
}

// A Provisioner acquires the tunnel for one connection attempt. Closing the returned
// Device releases everything that was acquired.
type Provisioner interface {
	Provision(ctx context.Context) (Device, error)
}

// ProvisionerFunc adapts an ordinary function to the Provisioner interface.
type ProvisionerFunc func(ctx context.Context) (Device, error)

func (f ProvisionerFunc) Provision(ctx context.Context) (Device, error) {
	return f(ctx)
}

// A RuleSource provides the current rule list.
type RuleSource interface {
	Rules(ctx context.Context) ([]rules.Rule, error)
}

// RuleSourceFunc adapts an ordinary function to the RuleSource interface.
type RuleSourceFunc func(ctx context.Context) ([]rules.Rule, error)

func (f RuleSourceFunc) Rules(ctx context.Context) ([]rules.Rule, error) {
	return f(ctx)
}

type Options struct {
	Provisioner Provisioner
	RuleSource  RuleSource
	RuleOpener  rules.Opener
	Upstream    upstream.Opener

	// Observer, if set, is told about every status change.
	Observer Observer

	MinRetryDelay time.Duration
	MaxRetryDelay time.Duration

	PendingCapacity int
	PendingTimeout  time.Duration
}

// Controller runs at most one forwarding worker at a time.
type Controller struct {
	opts   Options
	status statusCell
	sleep  func(ctx context.Context, d time.Duration)

	// mu serializes Start and Stop
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	intrMu sync.Mutex
	intr   *poll.Interrupter
}

func NewController(opts Options) *Controller {
	if opts.RuleSource == nil {
		opts.RuleSource = RuleSourceFunc(func(context.Context) ([]rules.Rule, error) { return nil, nil })
	}
	if opts.RuleOpener == nil {
		opts.RuleOpener = rules.FileOpener{}
	}
	if opts.Upstream == nil {
		opts.Upstream = upstream.Dialer{Protector: upstream.NoProtection{}}
	}
	return &Controller{opts: opts, sleep: dtime.SleepWithContext}
}

// Status returns the current status.
func (c *Controller) Status() Status {
	return c.status.load()
}

// Done returns a channel that is closed when the current worker exits. The returned
// channel is closed already when no worker has been started.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return c.done
}

// Start stops the current worker, if any, waits for it to exit, and then starts a new
// worker with a fresh Backoff. The worker ends when Stop is called or when ctx is
// cancelled.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	go c.run(ctx, NewBackoff(c.opts.MinRetryDelay, c.opts.MaxRetryDelay), done)
}

// Restart is the same as Start.
func (c *Controller) Restart(ctx context.Context) {
	c.Start(ctx)
}

// Stop interrupts the current worker and waits for it to exit.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.done == nil {
		return
	}
	c.cancel()
	c.intrMu.Lock()
	if c.intr != nil {
		c.intr.Interrupt()
	}
	c.intrMu.Unlock()
	<-c.done
	c.cancel = nil
	c.done = nil
}

func (c *Controller) setInterrupter(intr *poll.Interrupter) {
	c.intrMu.Lock()
	c.intr = intr
	c.intrMu.Unlock()
}

func (c *Controller) announce(ctx context.Context, s Status) {
	c.status.store(s)
	if c.opts.Observer != nil {
		c.opts.Observer.StatusChanged(ctx, s)
	}
}

func (c *Controller) run(ctx context.Context, backoff *Backoff, done chan struct{}) {
	defer close(done)
	defer c.announce(ctx, Stopped)
	defer c.announce(ctx, Stopping)

	c.announce(ctx, Starting)
	ruleList, err := c.opts.RuleSource.Rules(ctx)
	if err != nil {
		dlog.Errorf(ctx, "unable to read rule list, no hosts will be blocked: %v", err)
		ruleList = nil
	}
	blocked, err := rules.Compile(ctx, ruleList, c.opts.RuleOpener)
	if err != nil {
		dlog.Infof(ctx, "start aborted: %v", err)
		return
	}
	dlog.Infof(ctx, "blocking %d hosts", len(blocked))

	for {
		err := c.attempt(ctx, blocked)
		if err == nil || ctx.Err() != nil {
			return
		}
		dlog.Errorf(ctx, "connection attempt failed: %v", err)
		c.announce(ctx, ReconnectingAfterNetworkError)
		delay := backoff.Next()
		dlog.Infof(ctx, "reconnecting in %s", delay)
		c.sleep(ctx, delay)
		if ctx.Err() != nil {
			return
		}
	}
}

// attempt provisions the tunnel and runs the forwarding loop until it is interrupted
// or fails. Everything acquired is released before it returns. A nil error means that
// the worker must stop.
func (c *Controller) attempt(ctx context.Context, blocked rules.HostSet) error {
	intr, err := poll.NewInterrupter()
	if err != nil {
		return err
	}
	defer intr.Close()
	c.setInterrupter(intr)
	defer c.setInterrupter(nil)
	if ctx.Err() != nil {
		return nil
	}
	stopInterrupt := context.AfterFunc(ctx, intr.Interrupt)
	defer stopInterrupt()

	dev, err := c.opts.Provisioner.Provision(ctx)
	if err != nil {
		return fmt.Errorf("provision tunnel: %w", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			dlog.Errorf(ctx, "release tunnel: %v", err)
		}
	}()

	table := pending.NewTable(c.opts.PendingCapacity, c.opts.PendingTimeout)
	defer table.CloseAll()
	tr := translate.New(blocked, table, c.opts.Upstream)
	defer func() {
		dlog.Infof(ctx, "connection attempt ended: %s", tr.Stats())
	}()

	c.announce(ctx, Running)
	return forward(ctx, dev, intr, tr)
}
