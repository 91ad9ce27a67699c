package report

import "time"

// An Interval is a named duration, in seconds.
type Interval struct {
	Name    string  `yaml:"name"`
	Seconds float64 `yaml:"seconds"`
}

// A Stopwatch measures the successive phases of a run.
type Stopwatch struct {
	now       func() time.Time
	start     time.Time
	last      time.Time
	intervals []Interval
}

// NewStopwatch returns a stopwatch started now.
func NewStopwatch() *Stopwatch {
	return newStopwatch(time.Now)
}

func newStopwatch(now func() time.Time) *Stopwatch {
	start := now()
	return &Stopwatch{now: now, start: start, last: start}
}

// Record ends the current phase, names it, and starts the next one.
func (s *Stopwatch) Record(name string) time.Duration {
	now := s.now()
	d := now.Sub(s.last)
	s.last = now
	s.intervals = append(s.intervals, Interval{Name: name, Seconds: d.Seconds()})
	return d
}

// Total records the time elapsed since the stopwatch started.
func (s *Stopwatch) Total(name string) time.Duration {
	d := s.now().Sub(s.start)
	s.intervals = append(s.intervals, Interval{Name: name, Seconds: d.Seconds()})
	return d
}

// Intervals returns the recorded intervals, in recording order.
func (s *Stopwatch) Intervals() []Interval {
	return append([]Interval(nil), s.intervals...)
}
