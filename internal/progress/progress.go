// Package progress reports how many windows of a run have been processed.
// The downloader publishes events to a Sink; rendering is up to the sink.
package progress

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Event is a progress notification: Completed of Total windows are done
type Event struct {
	Completed int
	Total     int
}

// Fraction returns the completed share in [0, 1]. An empty run is complete.
func (e Event) Fraction() float64 {
	if e.Total <= 0 {
		return 1
	}
	f := float64(e.Completed) / float64(e.Total)
	if f > 1 {
		return 1
	}
	return f
}

// Sink receives progress events. Update is called once with Completed = 0
// before the first window and once after every window; Done is called when
// the run stops, successful or not.
type Sink interface {
	Update(Event)
	Done()
}

// Bar renders a single-line text progress bar:
//
//	\rProgress: |█████-----| 50.0% Complete
type Bar struct {
	w        io.Writer
	prefix   string
	suffix   string
	length   int
	decimals int
	fill     string
	empty    string

	mu       sync.Mutex
	rendered bool
}

// BarOption configures a Bar
type BarOption func(*Bar)

// WithLabels sets the text printed before and after the bar
func WithLabels(prefix, suffix string) BarOption {
	return func(b *Bar) {
		b.prefix = prefix
		b.suffix = suffix
	}
}

// WithLength sets the bar width in glyphs
func WithLength(length int) BarOption {
	return func(b *Bar) {
		if length > 0 {
			b.length = length
		}
	}
}

// WithDecimals sets the number of decimals of the percentage
func WithDecimals(decimals int) BarOption {
	return func(b *Bar) {
		if decimals >= 0 {
			b.decimals = decimals
		}
	}
}

// NewBar creates a bar writing to w
func NewBar(w io.Writer, opts ...BarOption) *Bar {
	b := &Bar{
		w:        w,
		prefix:   "Progress:",
		suffix:   "Complete",
		length:   50,
		decimals: 1,
		fill:     "█",
		empty:    "-",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Update redraws the bar in place
func (b *Bar) Update(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fmt.Fprint(b.w, b.render(e))
	b.rendered = true
}

// Done terminates the bar line
func (b *Bar) Done() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rendered {
		fmt.Fprintln(b.w)
		b.rendered = false
	}
}

func (b *Bar) render(e Event) string {
	fraction := e.Fraction()
	filled := int(float64(b.length) * fraction)
	if filled > b.length {
		filled = b.length
	}

	bar := strings.Repeat(b.fill, filled) + strings.Repeat(b.empty, b.length-filled)
	percent := strconv.FormatFloat(100*fraction, 'f', b.decimals, 64)
	return fmt.Sprintf("\r%s |%s| %s%% %s", b.prefix, bar, percent, b.suffix)
}

// Func adapts a function to a Sink. Done is a no-op.
type Func func(Event)

func (f Func) Update(e Event) { f(e) }

func (f Func) Done() {}

// Nop discards every event
type Nop struct{}

func (Nop) Update(Event) {}

func (Nop) Done() {}

// Channel publishes events on a channel. Update blocks until the event is
// received or the buffer has room; Done closes the channel.
type Channel struct {
	ch   chan Event
	once sync.Once
}

// NewChannel creates a channel sink with the given buffer size
func NewChannel(buffer int) *Channel {
	if buffer < 0 {
		buffer = 0
	}
	return &Channel{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the sink
func (c *Channel) Events() <-chan Event {
	return c.ch
}

func (c *Channel) Update(e Event) {
	c.ch <- e
}

func (c *Channel) Done() {
	c.once.Do(func() { close(c.ch) })
}

// Multi fans events out to several sinks
type Multi []Sink

func (m Multi) Update(e Event) {
	for _, s := range m {
		s.Update(e)
	}
}

func (m Multi) Done() {
	for _, s := range m {
		s.Done()
	}
}
