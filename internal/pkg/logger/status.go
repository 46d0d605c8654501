package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// StatusEntry is one retained status event (device failure, cycle overrun,
// session start/stop) for display to the user.
type StatusEntry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   string // Formatted key=value pairs
}

// StatusBuffer is a ring buffer of status entries.
type StatusBuffer struct {
	entries []StatusEntry
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// NewStatusBuffer creates a new ring buffer with the given capacity
func NewStatusBuffer(capacity int) *StatusBuffer {
	return &StatusBuffer{
		entries: make([]StatusEntry, capacity),
		size:    capacity,
	}
}

// Add adds a status entry to the buffer
func (b *StatusBuffer) Add(entry StatusEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
}

// All returns all entries in chronological order (oldest first)
func (b *StatusBuffer) All() []StatusEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]StatusEntry, b.count)
	if b.count == 0 {
		return result
	}

	start := 0
	if b.count == b.size {
		start = b.head // head points to oldest when full
	}

	for i := 0; i < b.count; i++ {
		idx := (start + i) % b.size
		result[i] = b.entries[idx]
	}

	return result
}

// Recent returns the N most recent entries (newest first for display)
func (b *StatusBuffer) Recent(n int) []StatusEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.count {
		n = b.count
	}
	if n == 0 {
		return nil
	}

	result := make([]StatusEntry, n)
	// Head points to next write position, so head-1 is most recent
	for i := 0; i < n; i++ {
		idx := (b.head - 1 - i + b.size) % b.size
		result[i] = b.entries[idx]
	}

	return result
}

// Clear empties the buffer
func (b *StatusBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}

// Count returns the number of entries in the buffer
func (b *StatusBuffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// StatusHandler is a slog handler that captures records into a StatusBuffer
type StatusHandler struct {
	buffer *StatusBuffer
	level  slog.Level
	attrs  []slog.Attr
	group  string
}

// NewStatusHandler creates a handler that captures logs to the buffer
func NewStatusHandler(buffer *StatusBuffer, level slog.Level) *StatusHandler {
	return &StatusHandler{
		buffer: buffer,
		level:  level,
	}
}

// Enabled reports whether the handler handles records at the given level
func (h *StatusHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle handles the log record
func (h *StatusHandler) Handle(_ context.Context, r slog.Record) error {
	var attrs string
	r.Attrs(func(a slog.Attr) bool {
		if attrs != "" {
			attrs += " "
		}
		attrs += fmt.Sprintf("%s=%v", a.Key, a.Value.Any())
		return true
	})

	for _, a := range h.attrs {
		if attrs != "" {
			attrs += " "
		}
		attrs += fmt.Sprintf("%s=%v", a.Key, a.Value.Any())
	}

	h.buffer.Add(StatusEntry{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
	})
	return nil
}

// WithAttrs returns a new handler with the given attributes
func (h *StatusHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &StatusHandler{
		buffer: h.buffer,
		level:  h.level,
		attrs:  make([]slog.Attr, len(h.attrs)+len(attrs)),
		group:  h.group,
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

// WithGroup returns a new handler with the given group name
func (h *StatusHandler) WithGroup(name string) slog.Handler {
	return &StatusHandler{
		buffer: h.buffer,
		level:  h.level,
		attrs:  h.attrs,
		group:  name,
	}
}
