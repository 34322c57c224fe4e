package llm

import (
	"errors"
	"io"
	"strings"
)

var ErrStreamClosed = errors.New("stream closed")

// Stream is a lazy, finite sequence of text fragments. It cannot be
// restarted and is not safe for use by more than one goroutine.
type Stream struct {
	next   func() (chunk string, done bool, err error)
	closer io.Closer
	done   bool
	closed bool
}

// NewStream wraps a pull function and the resource that backs it.
// closer may be nil.
func NewStream(next func() (string, bool, error), closer io.Closer) *Stream {
	return &Stream{next: next, closer: closer}
}

// TextStream yields the given fragments in order.
func TextStream(parts ...string) *Stream {
	i := 0
	return NewStream(func() (string, bool, error) {
		if i >= len(parts) {
			return "", true, nil
		}
		i++
		return parts[i-1], false, nil
	}, nil)
}

// Next returns the following fragment. Once done is reported every later
// call reports done again. Calling Next after Close without having reached
// the end returns ErrStreamClosed.
func (s *Stream) Next() (chunk string, done bool, err error) {
	if s.done {
		return "", true, nil
	}
	if s.closed {
		return "", true, ErrStreamClosed
	}

	chunk, done, err = s.next()
	if done || err != nil {
		s.done = true
		_ = s.release()
	}
	return chunk, done, err
}

// Close releases the underlying connection. It is safe to call twice.
func (s *Stream) Close() error {
	s.closed = true
	return s.release()
}

func (s *Stream) release() error {
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}

// Collect drains the stream and returns the concatenated text.
func (s *Stream) Collect() (string, error) {
	defer s.Close()

	var sb strings.Builder
	for {
		chunk, done, err := s.Next()
		sb.WriteString(chunk)
		if err != nil {
			return sb.String(), err
		}
		if done {
			return sb.String(), nil
		}
	}
}
