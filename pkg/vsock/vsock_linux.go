//go:build linux

// SPDX-License-Identifier: Apache-2.0

// Package vsock dials an analytic engine listening on a virtio socket, for
// setups where the engine runs inside a VM guest. The returned connection
// plugs directly into a transport DialFunc.
package vsock

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

var (
	SocketErr  = errors.New("unable to create vsock socket")
	ConnectErr = errors.New("unable to connect to vsock endpoint")
)

// Dial opens a stream socket to the given context ID and port.
func Dial(cid uint32, port uint32) (io.ReadWriteCloser, error) {
	fd, err := unix.Socket(unix.AF_VSOCK, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Join(SocketErr, err)
	}
	if err = unix.Connect(fd, &unix.SockaddrVM{
		CID:  cid,
		Port: port,
	}); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Join(ConnectErr, err)
	}
	return newSocket(fd), nil
}

// Dialer binds an address to a dial function suitable for a transport
// connection's Dial option.
func Dialer(cid uint32, port uint32) func() (io.ReadWriteCloser, error) {
	return func() (io.ReadWriteCloser, error) {
		return Dial(cid, port)
	}
}
