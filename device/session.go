package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type SessionOptions struct {
	ConnectTimeout time.Duration
	// OperationTimeout bounds each read, clear or write on the session.
	// Zero leaves them bounded only by the context.
	OperationTimeout  time.Duration
	DisconnectTimeout time.Duration
	// OnCloseError receives disconnect failures. The caller's result is
	// never replaced by a close error.
	OnCloseError func(error)
}

// Session is an open connection to a terminal. Every device operation on
// a Session gives up when the context passed to Open is done or the
// operation timeout passes. Close is idempotent.
type Session struct {
	Client
	Device Descriptor

	ctx       context.Context
	opTimeout time.Duration

	once    sync.Once
	closeFn func() error
	err     error
}

// Open dials the descriptor and returns a connected session. A false
// connect result and a connect error both yield ErrConnectRefused.
func Open(ctx context.Context, dialer Dialer, d Descriptor, opts SessionOptions) (*Session, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	client, err := dialer.NewClient(d)
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w: %w", d.Address(), ErrConnectRefused, err)
	}

	cctx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	ok, err := bounded(ctx, opts.ConnectTimeout, "connect", func() (bool, error) {
		return client.Connect(cctx, d.IP, d.PortOrDefault())
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w: %w", d.Address(), ErrConnectRefused, err)
	}
	if !ok {
		return nil, fmt.Errorf("connect %s: %w", d.Address(), ErrConnectRefused)
	}

	s := &Session{Client: client, Device: d, ctx: ctx, opTimeout: opts.OperationTimeout}
	s.closeFn = func() error { return disconnect(client, opts.DisconnectTimeout) }
	return s, nil
}

func (s *Session) Close() error {
	s.once.Do(func() {
		s.err = s.closeFn()
	})
	return s.err
}

func (s *Session) DeviceName() (string, error) {
	return bounded(s.ctx, s.opTimeout, "read device name", s.Client.DeviceName)
}

func (s *Session) SerialNumber() (string, error) {
	return bounded(s.ctx, s.opTimeout, "read serial number", s.Client.SerialNumber)
}

func (s *Session) GetTime() (string, error) {
	return bounded(s.ctx, s.opTimeout, "read device time", s.Client.GetTime)
}

func (s *Session) GetUsers() ([]UserRecord, error) {
	return bounded(s.ctx, s.opTimeout, "read users", s.Client.GetUsers)
}

func (s *Session) GetAttendance() ([]AttendanceRecord, error) {
	return bounded(s.ctx, s.opTimeout, "read attendance", s.Client.GetAttendance)
}

func (s *Session) ClearAttendance() (bool, error) {
	return bounded(s.ctx, s.opTimeout, "clear attendance", s.Client.ClearAttendance)
}

func (s *Session) ClearUsers() (bool, error) {
	return bounded(s.ctx, s.opTimeout, "clear users", s.Client.ClearUsers)
}

func (s *Session) SetUser(u UserRecord) (bool, error) {
	return bounded(s.ctx, s.opTimeout, "set user", func() (bool, error) {
		return s.Client.SetUser(u)
	})
}

// WithSession runs fn inside a connected session. The session is closed
// exactly once on every exit path, panics in fn included.
func WithSession(ctx context.Context, dialer Dialer, d Descriptor, opts SessionOptions, fn func(s *Session) error) (err error) {
	s, err := Open(ctx, dialer, d, opts)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device %s: panic: %v", d.ID, r)
		}
		if cerr := s.Close(); cerr != nil && opts.OnCloseError != nil {
			opts.OnCloseError(cerr)
		}
	}()

	return fn(s)
}

type outcome[T any] struct {
	v        T
	err      error
	panicked bool
	p        any
}

// bounded runs fn and stops waiting for it once ctx is done or timeout
// passes. An abandoned call keeps running until the client returns; the
// caller must not use the client again except to disconnect. Panics in fn
// are re-raised on the calling goroutine.
func bounded[T any](ctx context.Context, timeout time.Duration, op string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%s: %w", op, err)
	}

	wctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{panicked: true, p: r}
			}
		}()
		v, err := fn()
		done <- outcome[T]{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.panicked {
			panic(r.p)
		}
		return r.v, r.err
	case <-wctx.Done():
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", op, err)
		}
		return zero, fmt.Errorf("%s: %w after %s", op, ErrTimeout, timeout)
	}
}

// disconnect bounds a hanging Disconnect so a dead terminal can not stall
// the run.
func disconnect(c Client, timeout time.Duration) error {
	if timeout <= 0 {
		return c.Disconnect()
	}

	done := make(chan error, 1)
	go func() { done <- c.Disconnect() }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("disconnect timed out after %s", timeout)
	}
}
