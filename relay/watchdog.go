package relay

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

// watchdog cancels an upstream exchange that stays silent for longer than
// its timeout: no response headers, or no body bytes between reads.
type watchdog struct {
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newWatchdog(timeout time.Duration, cancel context.CancelFunc) *watchdog {
	w := &watchdog{timeout: timeout}
	w.timer = time.AfterFunc(timeout, func() {
		w.expired.Store(true)
		cancel()
	})
	return w
}

// Kick restarts the countdown.
func (w *watchdog) Kick() {
	if !w.expired.Load() {
		w.timer.Reset(w.timeout)
	}
}

func (w *watchdog) Stop() {
	w.timer.Stop()
}

// Expired reports whether the watchdog canceled the exchange.
func (w *watchdog) Expired() bool {
	return w.expired.Load()
}

// Reader wraps r so every successful read kicks the watchdog.
func (w *watchdog) Reader(r io.Reader) io.Reader {
	return &kickReader{r: r, w: w}
}

type kickReader struct {
	r io.Reader
	w *watchdog
}

func (k *kickReader) Read(p []byte) (int, error) {
	n, err := k.r.Read(p)
	if n > 0 {
		k.w.Kick()
	}
	return n, err
}

// cancelOnClose is the body stream handed to fasthttp. fasthttp closes it
// once the response is finished or the client connection failed; either way
// the upstream exchange is no longer needed.
type cancelOnClose struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	c.cancel()
	return c.PipeReader.Close()
}
