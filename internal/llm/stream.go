package llm

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// chunkStream adapts a provider iterator to ChunkStream. next returns
// io.EOF when the provider is done. closeFn must unblock a pending next,
// normally by cancelling ctx.
type chunkStream struct {
	ctx      context.Context
	provider Provider
	next     func() (string, error)
	closeFn  func() error

	recvMu sync.Mutex
	err    error

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

func newChunkStream(ctx context.Context, p Provider, next func() (string, error), closeFn func() error) *chunkStream {
	return &chunkStream{ctx: ctx, provider: p, next: next, closeFn: closeFn}
}

// Recv returns the next non-empty chunk.
func (s *chunkStream) Recv() (string, error) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if s.err != nil {
		return "", s.err
	}

	for {
		if s.closed.Load() {
			s.err = ErrStreamClosed
			return "", s.err
		}
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return "", err
		}

		chunk, err := s.next()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.err = io.EOF
			case s.closed.Load():
				s.err = ErrStreamClosed
			case s.ctx.Err() != nil:
				s.err = s.ctx.Err()
			default:
				s.err = wrapError(s.provider, "stream failed", err)
			}
			return "", s.err
		}
		if chunk != "" {
			return chunk, nil
		}
	}
}

// Close releases the stream. It is safe to call more than once and
// concurrently with Recv.
func (s *chunkStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.closeFn != nil {
			s.closeErr = s.closeFn()
		}
	})
	return s.closeErr
}
