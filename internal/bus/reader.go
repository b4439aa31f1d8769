package bus

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/correlate/internal/ir"
)

// maxLineSize bounds a single JSON-lines record.
const maxLineSize = 1 << 20

// Reader is a Source that reads newline-delimited JSON events from an
// io.Reader, such as a file or stdin. Blank lines are skipped; lines that
// fail to decode or validate are logged and dropped.
//
// A Reader supports a single subscription.
type Reader struct {
	r      io.Reader
	logger *slog.Logger

	subscribed atomic.Bool
	done       chan struct{}
	err        error
	dropped    atomic.Int64
}

// NewReader creates a JSON-lines source. A nil logger means slog.Default().
func NewReader(r io.Reader, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{r: r, logger: logger, done: make(chan struct{})}
}

// Subscribe starts reading in a new goroutine.
func (s *Reader) Subscribe(h Handler) (Subscription, error) {
	if !s.subscribed.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("reader source already subscribed")
	}

	d := &delivery{h: h}
	go s.read(d)

	return SubscriptionFunc(d.stop), nil
}

// delivery serializes handler calls against Dispose, so that no call
// starts or is still running once Dispose returns. The scanner may stay
// blocked on input; it exits at the next line.
type delivery struct {
	mu      sync.Mutex
	h       Handler
	stopped bool
}

func (d *delivery) deliver(ev ir.Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	d.h(ev)
	return true
}

func (d *delivery) isStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

func (d *delivery) stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

// Done is closed once the input is exhausted or fails.
func (s *Reader) Done() <-chan struct{} {
	return s.done
}

// Err returns the read error, if any, after Done is closed.
func (s *Reader) Err() error {
	<-s.done
	return s.err
}

// Dropped returns the number of invalid lines skipped so far.
func (s *Reader) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Reader) read(d *delivery) {
	defer close(s.done)

	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		if d.isStopped() {
			return
		}
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			s.dropped.Add(1)
			s.logger.Warn("skipping invalid event", "line", line, "error", err)
			continue
		}
		if !d.deliver(ev) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.err = fmt.Errorf("read events: %w", err)
		s.logger.Error("event input failed", "line", line, "error", err)
	}
}
