// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/loopholelabs/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func pipeDial(conn io.ReadWriteCloser) DialFunc {
	return func() (io.ReadWriteCloser, error) {
		return conn, nil
	}
}

func TestConnRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	local, remote := net.Pipe()
	conn, err := NewConn(&ConnOptions{
		Dial:   pipeDial(local),
		Logger: logging.Test(t, logging.Zerolog, t.Name()),
	})
	require.NoError(t, err)

	recv := newCollector()
	conn.Attach(recv)

	go func() {
		_, _ = remote.Write([]byte("inbound"))
	}()
	assert.Equal(t, []byte("inbound"), recv.next(t))

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := remote.Read(buf)
		readDone <- buf[:n]
	}()
	require.NoError(t, conn.Send([]byte("outbound")))
	assert.Equal(t, []byte("outbound"), <-readDone)

	require.NoError(t, conn.Close())
	_ = remote.Close()
	assert.ErrorIs(t, conn.Send([]byte("late")), ClosedErr)
}

func TestConnDialBackoff(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("EventualSuccess", func(t *testing.T) {
		local, remote := net.Pipe()
		attempts := 0
		conn, err := NewConn(&ConnOptions{
			Dial: func() (io.ReadWriteCloser, error) {
				attempts++
				if attempts < 3 {
					return nil, errors.New("refused")
				}
				return local, nil
			},
			Logger: logging.Test(t, logging.Zerolog, t.Name()),
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		require.NoError(t, conn.Close())
		_ = remote.Close()
	})

	t.Run("GivesUp", func(t *testing.T) {
		attempts := 0
		_, err := NewConn(&ConnOptions{
			Dial: func() (io.ReadWriteCloser, error) {
				attempts++
				return nil, errors.New("refused")
			},
			Logger: logging.Test(t, logging.Zerolog, t.Name()),
		})
		require.ErrorIs(t, err, DialErr)
		assert.Equal(t, maxDialAttempts, attempts)
	})
}

func TestConnReceiverFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	local, remote := net.Pipe()
	failures := make(chan error, 1)
	conn, err := NewConn(&ConnOptions{
		Dial:   pipeDial(local),
		Logger: logging.Test(t, logging.Zerolog, t.Name()),
		OnError: func(err error) {
			failures <- err
		},
	})
	require.NoError(t, err)

	terminal := errors.New("stream integrity lost")
	recv := newCollector()
	recv.err = terminal
	conn.Attach(recv)

	go func() {
		_, _ = remote.Write([]byte("poison"))
	}()

	select {
	case err := <-failures:
		require.ErrorIs(t, err, terminal)
	case <-time.After(time.Second):
		t.Fatal("terminal error was not surfaced")
	}
	require.NoError(t, conn.Close())
	_ = remote.Close()
}

func TestConnPeerClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	local, remote := net.Pipe()
	failures := make(chan error, 1)
	conn, err := NewConn(&ConnOptions{
		Dial:   pipeDial(local),
		Logger: logging.Test(t, logging.Zerolog, t.Name()),
		OnError: func(err error) {
			failures <- err
		},
	})
	require.NoError(t, err)
	conn.Attach(newCollector())

	require.NoError(t, remote.Close())
	select {
	case err := <-failures:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("link loss was not surfaced")
	}
	require.NoError(t, conn.Close())
}
