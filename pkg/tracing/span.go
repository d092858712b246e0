// Package tracing provides lightweight request tracing logged through slog.
// Spans form a tree inside one process; there is no wire propagation.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type spanKey struct{}

// Span is one timed operation. Child spans attach to the span found in the
// context, so a finished root span can log the whole tree at once.
type Span struct {
	Name    string
	TraceID string

	mu       sync.Mutex
	start    time.Time
	duration time.Duration
	attrs    []slog.Attr
	children []*Span
}

// StartSpan begins a root span and stores it in the returned context.
// traceID ties the span tree to a request id; it may be empty.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	s := &Span{
		Name:    name,
		TraceID: traceID,
		start:   time.Now(),
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

// StartChildSpan begins a span under the one in ctx. Without a parent in
// ctx it degrades to a root span.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent, ok := ctx.Value(spanKey{}).(*Span)
	if !ok {
		return StartSpan(ctx, name, "")
	}

	child := &Span{
		Name:    name,
		TraceID: parent.TraceID,
		start:   time.Now(),
	}
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, child), child
}

// End freezes the span's duration. Safe to call once per span.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duration = time.Since(s.start)
}

// SetAttr attaches a key/value pair that is emitted when the span logs.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs = append(s.attrs, slog.Any(key, value))
}

// Log emits the span and its descendants as debug records.
func (s *Span) Log() {
	s.log(0)
}

func (s *Span) log(depth int) {
	s.mu.Lock()
	attrs := []slog.Attr{
		slog.String("span", s.Name),
		slog.String("trace_id", s.TraceID),
		slog.Duration("duration", s.duration),
		slog.Int("depth", depth),
	}
	attrs = append(attrs, s.attrs...)
	children := s.children
	s.mu.Unlock()

	slog.LogAttrs(context.Background(), slog.LevelDebug, "span completed", attrs...)
	for _, child := range children {
		child.log(depth + 1)
	}
}
