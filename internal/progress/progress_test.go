package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarRender(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		expected string
	}{
		{
			name:     "initial render",
			event:    Event{Completed: 0, Total: 4},
			expected: "\rProgress: |" + strings.Repeat("-", 50) + "| 0.0% Complete",
		},
		{
			name:     "half way",
			event:    Event{Completed: 2, Total: 4},
			expected: "\rProgress: |" + strings.Repeat("█", 25) + strings.Repeat("-", 25) + "| 50.0% Complete",
		},
		{
			name:     "one third rounds the bar down",
			event:    Event{Completed: 1, Total: 3},
			expected: "\rProgress: |" + strings.Repeat("█", 16) + strings.Repeat("-", 34) + "| 33.3% Complete",
		},
		{
			name:     "complete",
			event:    Event{Completed: 3, Total: 3},
			expected: "\rProgress: |" + strings.Repeat("█", 50) + "| 100.0% Complete",
		},
		{
			name:     "empty run is complete",
			event:    Event{Completed: 0, Total: 0},
			expected: "\rProgress: |" + strings.Repeat("█", 50) + "| 100.0% Complete",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewBar(&buf).Update(tt.event)
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}

func TestBarOptions(t *testing.T) {
	var buf bytes.Buffer
	bar := NewBar(&buf, WithLabels("Downloading", "windows"), WithLength(10), WithDecimals(0))

	bar.Update(Event{Completed: 1, Total: 2})
	assert.Equal(t, "\rDownloading |█████-----| 50% windows", buf.String())
}

func TestBarDoneWritesNewline(t *testing.T) {
	var buf bytes.Buffer
	bar := NewBar(&buf, WithLength(4))

	bar.Done()
	assert.Empty(t, buf.String())

	bar.Update(Event{Completed: 0, Total: 1})
	bar.Update(Event{Completed: 1, Total: 1})
	bar.Done()
	bar.Done()

	assert.True(t, strings.HasSuffix(buf.String(), "100.0% Complete\n"))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Equal(t, 2, strings.Count(buf.String(), "\r"))
}

func TestFuncSink(t *testing.T) {
	var events []Event
	var sink Sink = Func(func(e Event) { events = append(events, e) })

	sink.Update(Event{Completed: 0, Total: 2})
	sink.Update(Event{Completed: 1, Total: 2})
	sink.Done()

	assert.Equal(t, []Event{{0, 2}, {1, 2}}, events)
}

func TestChannelSink(t *testing.T) {
	sink := NewChannel(4)

	sink.Update(Event{Completed: 0, Total: 2})
	sink.Update(Event{Completed: 1, Total: 2})
	sink.Update(Event{Completed: 2, Total: 2})
	sink.Done()
	sink.Done()

	var got []Event
	for e := range sink.Events() {
		got = append(got, e)
	}
	assert.Equal(t, []Event{{0, 2}, {1, 2}, {2, 2}}, got)
}

func TestChannelSinkWithReader(t *testing.T) {
	sink := NewChannel(0)
	received := make(chan []Event)

	go func() {
		var got []Event
		for e := range sink.Events() {
			got = append(got, e)
		}
		received <- got
	}()

	for i := 0; i <= 3; i++ {
		sink.Update(Event{Completed: i, Total: 3})
	}
	sink.Done()

	got := <-received
	require.Len(t, got, 4)
	assert.Equal(t, 1.0, got[3].Fraction())
}

func TestMultiAndNop(t *testing.T) {
	var buf bytes.Buffer
	count := 0
	sink := Multi{NewBar(&buf, WithLength(2)), Func(func(Event) { count++ }), Nop{}}

	sink.Update(Event{Completed: 1, Total: 1})
	sink.Done()

	assert.Equal(t, 1, count)
	assert.Equal(t, "\rProgress: |██| 100.0% Complete\n", buf.String())
}
