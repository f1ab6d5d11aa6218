package llmbridge

import (
	"sync"

	"github.com/lizzyg/llmbridge/internal/core"
)

// Stream yields chunks of a streaming reply in vendor order.
//
//	s, err := r.StreamText(ctx, "sonnet", msgs, params)
//	if err != nil { ... }
//	defer s.Close()
//	for s.Next() {
//		acc.Add(s.Chunk())
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	inner *core.Stream
	usage *TokenUsage
	once  sync.Once
	done  func(*TokenUsage, error)
}

// Next advances to the next chunk. It returns false at the end of the reply,
// on error and after Close.
func (s *Stream) Next() bool {
	if !s.inner.Next() {
		s.finish()
		return false
	}
	if u := s.inner.Chunk().Usage; u != nil {
		merged := *u
		if s.usage != nil {
			merged = s.usage.Merge(*u)
		}
		s.usage = &merged
	}
	return true
}

// Chunk returns the chunk read by the last successful Next.
func (s *Stream) Chunk() MessageChunk { return s.inner.Chunk() }

// Err returns the terminal error, if any.
func (s *Stream) Err() error { return s.inner.Err() }

// Usage returns the token usage reported so far.
func (s *Stream) Usage() *TokenUsage { return s.usage }

// Close releases the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	err := s.inner.Close()
	s.finish()
	return err
}

func (s *Stream) finish() {
	s.once.Do(func() {
		if s.done != nil {
			s.done(s.usage, s.inner.Err())
		}
	})
}
