//go:build linux

// SPDX-License-Identifier: Apache-2.0

package vsock

import (
	"errors"
	"io"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

var (
	ReadErr  = errors.New("unable to read from vsock socket")
	WriteErr = errors.New("unable to write to vsock socket")
	CloseErr = errors.New("unable to close vsock socket")
)

// socket wraps a raw AF_VSOCK file descriptor. A zero-byte read or write
// is reported as io.EOF because the peer has shut the stream down.
type socket struct {
	closed atomic.Bool
	fd     int
}

func newSocket(fd int) *socket {
	return &socket{fd: fd}
}

func (s *socket) Read(b []byte) (int, error) {
	n, err := unix.Read(s.fd, b)
	if err != nil {
		return n, errors.Join(ReadErr, err)
	}
	if n == 0 {
		return 0, errors.Join(ReadErr, io.EOF)
	}
	return n, nil
}

func (s *socket) Write(b []byte) (int, error) {
	n, err := unix.Write(s.fd, b)
	if err != nil {
		return n, errors.Join(WriteErr, err)
	}
	if n == 0 {
		return 0, errors.Join(WriteErr, io.EOF)
	}
	return n, nil
}

func (s *socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := unix.Shutdown(s.fd, unix.SHUT_RDWR)
	if _err := unix.Close(s.fd); _err != nil {
		err = errors.Join(err, _err)
	}
	if err != nil {
		return errors.Join(CloseErr, err)
	}
	return nil
}
