package core

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Event is one server-sent event.
type Event struct {
	ID   string
	Type string
	Data string
}

// EventReader yields events until io.EOF.
type EventReader interface {
	Next() (Event, error)
}

// Decoder turns one event into at most one chunk. done ends the stream after
// the returned chunk, if any, has been delivered.
type Decoder func(ev Event) (chunk *MessageChunk, done bool, err error)

// Stream is a single-pass sequence of chunks. It ends on a decoder done
// signal, on EOF, on the first error or when its context is cancelled, and
// yields nothing afterwards. Close releases the connection and may be called
// more than once; to abort from another goroutine, cancel the context.
type Stream struct {
	ctx    context.Context
	src    EventReader
	body   io.Closer
	decode Decoder

	cur      MessageChunk
	err      error
	ended    bool
	lastSent bool

	closeOnce sync.Once
	closeErr  error
	stop      func() bool
}

// NewStream reads events from src and closes body when the stream ends,
// when Close is called or when ctx is cancelled.
func NewStream(ctx context.Context, src EventReader, body io.Closer, decode Decoder) *Stream {
	s := &Stream{ctx: ctx, src: src, body: body, decode: decode}
	s.stop = context.AfterFunc(ctx, func() { s.closeBody() })
	return s
}

// Next advances to the next chunk.
func (s *Stream) Next() bool {
	if s.ended {
		return false
	}
	if s.lastSent {
		s.finish(nil)
		return false
	}
	for {
		if err := s.ctx.Err(); err != nil {
			s.finish(err)
			return false
		}
		ev, err := s.src.Next()
		if errors.Is(err, io.EOF) {
			s.finish(nil)
			return false
		}
		if err != nil {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			s.finish(err)
			return false
		}
		chunk, done, err := s.decode(ev)
		if err != nil {
			s.finish(err)
			return false
		}
		if chunk != nil {
			s.cur = *chunk
			s.lastSent = done
			return true
		}
		if done {
			s.finish(nil)
			return false
		}
	}
}

// Chunk returns the chunk read by the last successful Next.
func (s *Stream) Chunk() MessageChunk { return s.cur }

// Err returns the terminal error, if any. A clean end reports nil.
func (s *Stream) Err() error { return s.err }

// Close stops the stream and releases the underlying connection.
func (s *Stream) Close() error {
	if !s.ended {
		s.ended = true
		s.cur = MessageChunk{}
	}
	return s.closeBody()
}

func (s *Stream) finish(err error) {
	s.ended = true
	s.err = err
	s.cur = MessageChunk{}
	s.closeBody()
}

func (s *Stream) closeBody() error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		if s.body != nil {
			s.closeErr = s.body.Close()
		}
	})
	return s.closeErr
}

// Collect drains s and returns every chunk. The stream is closed on return.
func Collect(s *Stream) ([]MessageChunk, error) {
	defer s.Close()
	var out []MessageChunk
	for s.Next() {
		out = append(out, s.Chunk())
	}
	return out, s.Err()
}
