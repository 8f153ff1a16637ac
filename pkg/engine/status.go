package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/datawire/dlib/dlog"
)

// Status is the lifecycle state of a Controller.
type Status int32

const (
	Stopped Status = iota
	Starting
	Running
	ReconnectingAfterNetworkError
	Stopping
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case ReconnectingAfterNetworkError:
		return "reconnecting after network error"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// An Observer is told about every status change. StatusChanged is called on the
// goroutine that changes the status and must not block.
type Observer interface {
	StatusChanged(ctx context.Context, status Status)
}

// ObserverFunc adapts an ordinary function to the Observer interface.
type ObserverFunc func(ctx context.Context, status Status)

func (f ObserverFunc) StatusChanged(ctx context.Context, status Status) {
	f(ctx, status)
}

// LogObserver logs every status change at info level.
type LogObserver struct{}

func (LogObserver) StatusChanged(ctx context.Context, status Status) {
	dlog.Infof(ctx, "status: %s", status)
}

// Observers notifies each of its elements in order.
type Observers []Observer

func (obs Observers) StatusChanged(ctx context.Context, status Status) {
	for _, o := range obs {
		o.StatusChanged(ctx, status)
	}
}

// statusCell holds the current status. Reads and writes are atomic, and the last
// write wins.
type statusCell struct {
	v atomic.Int32
}

func (c *statusCell) load() Status {
	return Status(c.v.Load())
}

func (c *statusCell) store(s Status) {
	c.v.Store(int32(s))
}
