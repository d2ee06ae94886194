//go:build !linux

// SPDX-License-Identifier: Apache-2.0

package vsock

import (
	"errors"
	"io"
)

var UnsupportedErr = errors.New("vsock is not supported on this platform")

func Dial(uint32, uint32) (io.ReadWriteCloser, error) {
	return nil, UnsupportedErr
}

func Dialer(cid uint32, port uint32) func() (io.ReadWriteCloser, error) {
	return func() (io.ReadWriteCloser, error) {
		return Dial(cid, port)
	}
}
