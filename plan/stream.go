package plan

import (
	"context"
	"io"
	"sync"

	"github.com/tensororder/tensororder/jointree"
)

// A Source yields candidate join trees, usually better and better ones.
// Next returns io.EOF once no more trees will come.
// A Next call abandoned because ctx is done must not lose the next tree.
type Source interface {
	Next(ctx context.Context) (jointree.Parsed, error)
}

type item struct {
	parsed jointree.Parsed
	err    error
}

// A Stream is a Source reading join trees from a planner's output.
// The stream is parsed in its own goroutine, so a slow planner never blocks past the caller's deadline.
type Stream struct {
	items     chan item
	stop      chan struct{}
	done      chan struct{} // Closed once the reading goroutine returned
	closeOnce sync.Once
	last      item // Sticky final result, once the parser failed or reached EOF
	ended     bool
}

// NewStream starts reading join trees from r.
func NewStream(r io.Reader) *Stream {
	s := &Stream{items: make(chan item), stop: make(chan struct{}), done: make(chan struct{})}
	go s.read(jointree.NewParser(r))
	return s
}

func (s *Stream) read(p *jointree.Parser) {
	defer close(s.done)
	defer close(s.items)
	for {
		parsed, err := p.Next()
		select {
		case s.items <- item{parsed: parsed, err: err}:
		case <-s.stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// Next returns the next join tree of the stream.
// If ctx is done first, Next returns its error and the tree stays available to the next call.
func (s *Stream) Next(ctx context.Context) (jointree.Parsed, error) {
	if s.ended {
		return s.last.parsed, s.last.err
	}
	select {
	case it, ok := <-s.items:
		if !ok {
			s.ended = true
			s.last = item{err: io.EOF}
			return s.last.parsed, s.last.err
		}
		if it.err != nil {
			s.ended = true
			s.last = item{parsed: jointree.Parsed{PID: it.parsed.PID}, err: it.err}
		}
		return it.parsed, it.err
	case <-ctx.Done():
		return jointree.Parsed{}, ctx.Err()
	}
}

// Done returns a channel closed once the stream stopped reading from its reader.
// After Close, this happens as soon as the pending read on the reader returns.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close stops the reading goroutine. It does not close the underlying reader.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.stop) })
}
