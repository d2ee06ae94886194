// SPDX-License-Identifier: Apache-2.0

// Package transport provides concrete bindings for the engine's byte
// channel: a network/socket binding over any io.ReadWriteCloser and an
// in-process loopback bridge. Every binding delivers inbound chunks to a
// Receiver in arrival order, without re-ordering or duplication.
package transport

import (
	"errors"
)

var (
	OptionsErr = errors.New("invalid options")
	DialErr    = errors.New("unable to create connection")
	ClosedErr  = errors.New("transport closed")
)

// Receiver consumes inbound chunks. The chunk is only valid for the
// duration of the call; receivers that keep data must copy it. A non-nil
// return marks the session as dead; the binding stops delivering and tears
// the link down.
type Receiver interface {
	OnBytesReceived([]byte) error
}
