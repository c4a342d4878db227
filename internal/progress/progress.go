// Package progress carries job progress from the processing goroutine to
// whatever is displaying it.
package progress

import (
	"math"
	"sync"
)

// Event is a single progress update. Percent is in [0,100].
type Event struct {
	Message string
	Percent float64
}

// Func receives progress updates synchronously on the worker goroutine.
type Func func(Event)

// Report calls fn when it is non-nil.
func (fn Func) Report(message string, percent float64) {
	if fn == nil {
		return
	}
	fn(Event{Message: message, Percent: Clamp(percent)})
}

// Clamp bounds percent to [0,100].
func Clamp(percent float64) float64 {
	switch {
	case percent < 0 || math.IsNaN(percent):
		return 0
	case percent > 100:
		return 100
	}
	return percent
}

// BatchScaler maps per-file progress onto overall batch progress:
//
//	overall = completed/total*100 + pct/100*(100/total)
//
// The result is clamped to [0,100] and never decreases.
type BatchScaler struct {
	mu    sync.Mutex
	total int
	last  float64
	out   Func
}

// NewBatchScaler returns a scaler for total files forwarding to out.
func NewBatchScaler(total int, out Func) *BatchScaler {
	return &BatchScaler{total: total, out: out}
}

// Overall computes the weighted overall percent for file index completed
// (0-based count of finished files) at per-file percent pct.
func (s *BatchScaler) Overall(completed int, pct float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total <= 0 {
		return s.last
	}
	value := float64(completed)/float64(s.total)*100 + Clamp(pct)/100*(100/float64(s.total))
	value = Clamp(value)
	if value < s.last {
		value = s.last
	}
	s.last = value
	return value
}

// ForFile returns a Func that scales per-file events for file index completed.
func (s *BatchScaler) ForFile(completed int, name string) Func {
	return func(evt Event) {
		overall := s.Overall(completed, evt.Percent)
		msg := evt.Message
		if name != "" {
			msg = name + ": " + msg
		}
		s.out.Report(msg, overall)
	}
}

// Last returns the most recent overall percent.
func (s *BatchScaler) Last() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
