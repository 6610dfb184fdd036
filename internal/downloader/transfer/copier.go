// Package transfer copies a remote stream into a local writer chunk by chunk,
// reopening the stream at the current offset after timeouts and dropped
// connections.
package transfer

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"assetsync/internal/bufpool"
	apperrors "assetsync/internal/errors"
	"assetsync/internal/logger"
)

const module = "downloader.transfer"

// Opener opens the source positioned at offset. Implementations return
// non-recoverable AppErrors (for example an HTTP status error) for failures
// that must not be retried.
type Opener func(ctx context.Context, offset int64) (io.ReadCloser, error)

// Options tunes a Copier.
type Options struct {
	// MaxChunk bounds a single read from the source.
	MaxChunk int
	// MaxRetries is how many times a stalled or failed stream is reopened.
	MaxRetries int
	// ReadTimeout bounds opening the stream and every individual chunk read.
	ReadTimeout time.Duration
	// RetryDelay is multiplied by the retry number before reopening.
	RetryDelay time.Duration
	// Resume starts at the destination's current end when it is seekable.
	Resume bool
}

// DefaultOptions returns 64 KiB chunks, 5 retries, a 10s read timeout and a 1s base delay.
func DefaultOptions() Options {
	return Options{
		MaxChunk:    64 << 10,
		MaxRetries:  5,
		ReadTimeout: 10 * time.Second,
		RetryDelay:  time.Second,
	}
}

// State describes an in-flight or finished copy.
type State struct {
	SourceOffset int64
	RetriesUsed  int
	MaxRetries   int
	// Deadline is when the chunk read in progress times out.
	Deadline time.Time
}

// RetryHook observes every retry before the stream is reopened.
type RetryHook func(st State, cause error)

// Copier performs resumable copies. It is safe for concurrent use.
type Copier struct {
	opts    Options
	log     logger.Logger
	pool    *bufpool.Pool
	onRetry RetryHook
}

// Option customises a Copier.
type Option func(*Copier)

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(log logger.Logger) Option {
	return func(c *Copier) { c.log = log }
}

// WithRetryHook registers a callback invoked on each retry.
func WithRetryHook(hook RetryHook) Option {
	return func(c *Copier) { c.onRetry = hook }
}

// NewCopier builds a Copier. Zero option fields fall back to DefaultOptions.
func NewCopier(opts Options, options ...Option) *Copier {
	def := DefaultOptions()
	if opts.MaxChunk <= 0 {
		opts.MaxChunk = def.MaxChunk
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = def.ReadTimeout
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}

	c := &Copier{
		opts: opts,
		pool: bufpool.New(opts.MaxChunk),
	}
	for _, o := range options {
		o(c)
	}
	if c.log == nil {
		c.log = logger.NewStandardLogger(logger.WithOutput(io.Discard))
	}
	return c
}

// Options returns the effective options.
func (c *Copier) Options() Options {
	return c.opts
}

// Copy streams from open into dest until the source reports EOF. onWritten,
// when non-nil, receives the length of every chunk written. Cancelling ctx
// aborts the chunk in flight without writing it and returns ctx.Err().
func (c *Copier) Copy(ctx context.Context, open Opener, dest io.Writer, onWritten func(int64)) (State, error) {
	st := State{MaxRetries: c.opts.MaxRetries}

	if c.opts.Resume {
		if seeker, ok := dest.(io.Seeker); ok {
			end, err := seeker.Seek(0, io.SeekEnd)
			if err != nil {
				return st, apperrors.IOError(apperrors.CodeIOGeneric, "failed to seek destination", err).
					WithModule(module).WithOperation("Copy")
			}
			st.SourceOffset = end
		}
	}

	buf := c.pool.Get()
	defer c.pool.Put(buf)

	var s *stream
	defer func() {
		if s != nil {
			s.close()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		if s == nil {
			var err error
			s, err = c.open(ctx, open, &st)
			if err != nil {
				if ctx.Err() != nil {
					return st, ctx.Err()
				}
				if !recoverable(err) {
					return st, err
				}
				if err := c.backoff(ctx, &st, err); err != nil {
					return st, err
				}
				continue
			}
		}

		st.Deadline = time.Now().Add(c.opts.ReadTimeout)
		n, timedOut, readErr := s.read(buf, c.opts.ReadTimeout)

		if ctx.Err() != nil {
			return st, ctx.Err()
		}

		if n > 0 {
			if err := writeFull(dest, buf[:n]); err != nil {
				return st, apperrors.IOError(apperrors.CodeIOGeneric, "failed to write destination", err).
					WithModule(module).WithOperation("Copy").WithField("offset", st.SourceOffset)
			}
			st.SourceOffset += int64(n)
			if onWritten != nil {
				onWritten(int64(n))
			}
		}

		if !timedOut {
			if readErr == nil {
				continue
			}
			if readErr == io.EOF {
				return st, nil
			}
		}

		var cause error
		if timedOut {
			cause = apperrors.TransferError(apperrors.CodeTransferTimeout, "chunk read timed out", readErr).
				WithField("timeout", c.opts.ReadTimeout.String())
		} else {
			cause = apperrors.TransferError(apperrors.CodeTransferConnectionFailed, "stream read failed", readErr)
		}
		s.close()
		s = nil
		if err := c.backoff(ctx, &st, cause); err != nil {
			return st, err
		}
	}
}

func (c *Copier) open(ctx context.Context, open Opener, st *State) (*stream, error) {
	sctx, cancel := context.WithCancel(ctx)
	var timedOut atomic.Bool
	timer := time.AfterFunc(c.opts.ReadTimeout, func() {
		timedOut.Store(true)
		cancel()
	})

	body, err := open(sctx, st.SourceOffset)
	timer.Stop()
	if err != nil {
		cancel()
		if timedOut.Load() && ctx.Err() == nil {
			return nil, apperrors.TransferError(apperrors.CodeTransferTimeout, "opening stream timed out", err)
		}
		if _, ok := apperrors.As(err); !ok {
			err = apperrors.TransferError(apperrors.CodeTransferConnectionFailed, "failed to open stream", err)
		}
		return nil, err
	}
	if timedOut.Load() {
		body.Close()
		cancel()
		return nil, apperrors.TransferError(apperrors.CodeTransferTimeout, "opening stream timed out", nil)
	}
	return &stream{body: body, cancel: cancel}, nil
}

// backoff consumes one retry for cause, or reports that none are left.
func (c *Copier) backoff(ctx context.Context, st *State, cause error) error {
	if st.RetriesUsed >= st.MaxRetries {
		return apperrors.TransferError(apperrors.CodeTransferRetriesExhausted, "retries exhausted", cause).
			WithModule(module).
			WithOperation("Copy").
			WithFields(apperrors.Metadata{
				"offset":  st.SourceOffset,
				"retries": st.RetriesUsed,
			})
	}

	st.RetriesUsed++
	c.log.Warn("transfer retry %d/%d at offset %d: %v", st.RetriesUsed, st.MaxRetries, st.SourceOffset, cause)
	if c.onRetry != nil {
		c.onRetry(*st, cause)
	}

	delay := c.opts.RetryDelay * time.Duration(st.RetriesUsed)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func recoverable(err error) bool {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.Recoverable
	}
	return true
}

// stream is an open source body whose reads are individually time-boxed.
type stream struct {
	body      io.ReadCloser
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// read performs one Read bounded by timeout. When the timer fires the body
// is closed and the stream context cancelled, unblocking the read.
func (s *stream) read(buf []byte, timeout time.Duration) (n int, timedOut bool, err error) {
	var fired atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		fired.Store(true)
		s.close()
	})
	n, err = s.body.Read(buf)
	timer.Stop()
	return n, fired.Load(), err
}

func (s *stream) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.body.Close()
	})
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
