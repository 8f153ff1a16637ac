package poll

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Interrupter is a pipe whose read end is included in every Group. Closing the write
// end wakes up a blocked Wait.
type Interrupter struct {
	r, w int

	mu          sync.Mutex
	interrupted bool
	closed      bool
}

func NewInterrupter() (*Interrupter, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("create interrupt pipe: %w", err)
	}
	return &Interrupter{r: p[0], w: p[1]}, nil
}

// Fd returns the descriptor to wait on.
func (i *Interrupter) Fd() int {
	return i.r
}

// Interrupt closes the write end of the pipe. It is safe to call more than once and
// from any goroutine.
func (i *Interrupter) Interrupt() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.interrupted {
		i.interrupted = true
		_ = unix.Close(i.w)
	}
}

// Interrupted reports whether Interrupt has been called.
func (i *Interrupter) Interrupted() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.interrupted
}

// Close releases both ends of the pipe.
func (i *Interrupter) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	if !i.interrupted {
		i.interrupted = true
		_ = unix.Close(i.w)
	}
	return unix.Close(i.r)
}
