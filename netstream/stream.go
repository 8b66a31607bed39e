// Package netstream implements the byte transport used by protocol clients.
//
// A Stream wraps a net.Conn with per-operation read and write timeouts and
// context cancellation. Streams are sequential: they can't be seeked.
package netstream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Infinite disables a timeout.
const Infinite time.Duration = -1

// ErrNotSupported is returned by operations a network stream can't perform.
var ErrNotSupported = errors.New("netstream: operation not supported")

// An Upgrader upgrades a connection, e.g. to TLS.
type Upgrader func(conn net.Conn) (net.Conn, error)

// Stream is a network stream.
//
// Read and Write may be called concurrently with each other, but not with
// Upgrade.
type Stream struct {
	conn net.Conn

	mutex        sync.Mutex
	readTimeout  time.Duration
	writeTimeout time.Duration
	err          error // set once a watched context is done
}

// New creates a stream on top of conn. Both timeouts are Infinite.
func New(conn net.Conn) *Stream {
	return &Stream{
		conn:         conn,
		readTimeout:  Infinite,
		writeTimeout: Infinite,
	}
}

func checkTimeout(d time.Duration) error {
	if d <= 0 && d != Infinite {
		return fmt.Errorf("netstream: invalid timeout %v", d)
	}
	return nil
}

// ReadTimeout returns the timeout applied to each Read call.
func (s *Stream) ReadTimeout() time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.readTimeout
}

// SetReadTimeout sets the timeout applied to each Read call. d must be
// positive or Infinite.
func (s *Stream) SetReadTimeout(d time.Duration) error {
	if err := checkTimeout(d); err != nil {
		return err
	}
	s.mutex.Lock()
	s.readTimeout = d
	s.mutex.Unlock()
	return nil
}

// WriteTimeout returns the timeout applied to each Write call.
func (s *Stream) WriteTimeout() time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.writeTimeout
}

// SetWriteTimeout sets the timeout applied to each Write call. d must be
// positive or Infinite.
func (s *Stream) SetWriteTimeout(d time.Duration) error {
	if err := checkTimeout(d); err != nil {
		return err
	}
	s.mutex.Lock()
	s.writeTimeout = d
	s.mutex.Unlock()
	return nil
}

func deadline(d time.Duration) time.Time {
	if d == Infinite {
		return time.Time{}
	}
	return time.Now().Add(d)
}

func (s *Stream) Read(b []byte) (int, error) {
	s.mutex.Lock()
	err := s.err
	if err == nil {
		err = s.conn.SetReadDeadline(deadline(s.readTimeout))
	}
	s.mutex.Unlock()
	if err != nil {
		return 0, err
	}
	return s.conn.Read(b)
}

func (s *Stream) Write(b []byte) (int, error) {
	s.mutex.Lock()
	err := s.err
	if err == nil {
		err = s.conn.SetWriteDeadline(deadline(s.writeTimeout))
	}
	s.mutex.Unlock()
	if err != nil {
		return 0, err
	}
	return s.conn.Write(b)
}

// Seek always fails with ErrNotSupported.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	return 0, ErrNotSupported
}

// Length always fails with ErrNotSupported: a connection has no length.
func (s *Stream) Length() (int64, error) {
	return 0, ErrNotSupported
}

// SetLength always fails with ErrNotSupported.
func (s *Stream) SetLength(n int64) error {
	return ErrNotSupported
}

// Position always fails with ErrNotSupported.
func (s *Stream) Position() (int64, error) {
	return 0, ErrNotSupported
}

// SetPosition always fails with ErrNotSupported.
func (s *Stream) SetPosition(pos int64) error {
	return ErrNotSupported
}

// Close closes the underlying connection.
func (s *Stream) Close() error {
	return s.conn.Close()
}

// Conn returns the underlying connection.
func (s *Stream) Conn() net.Conn {
	return s.conn
}

// LocalAddr returns the local network address.
func (s *Stream) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (s *Stream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// WatchContext interrupts pending and future Read and Write calls once ctx is
// done. The returned function stops watching; it reports false if ctx was
// done first, in which case the stream is unusable and all later calls fail
// with the context error.
func (s *Stream) WatchContext(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		s.err = fmt.Errorf("netstream: %w", context.Cause(ctx))
		// a deadline in the past unblocks Read and Write
		s.conn.SetDeadline(time.Unix(1, 0))
	})
}

// Upgrade replaces the underlying connection with the one returned by
// upgrader.
//
// Data already read from the connection into br is replayed to the upgraded
// connection. br may be nil. The caller must reset br afterwards.
func (s *Stream) Upgrade(br *bufio.Reader, upgrader Upgrader) error {
	conn := s.conn
	if br != nil && br.Buffered() > 0 {
		var buf bytes.Buffer
		if _, err := io.CopyN(&buf, br, int64(br.Buffered())); err != nil {
			panic(err) // unreachable
		}
		conn = &prefixConn{conn, io.MultiReader(&buf, conn)}
	}

	upgraded, err := upgrader(conn)
	if err != nil {
		return err
	}
	s.mutex.Lock()
	s.conn = upgraded
	s.mutex.Unlock()
	return nil
}

// prefixConn replays buffered data before reading from the connection.
type prefixConn struct {
	net.Conn
	r io.Reader
}

func (conn *prefixConn) Read(b []byte) (int, error) {
	return conn.r.Read(b)
}
