// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	logging "github.com/loopholelabs/logging/types"
)

type DialFunc func() (io.ReadWriteCloser, error)

const (
	maxBackoff      = time.Second
	minBackoff      = time.Millisecond * 5
	maxDialAttempts = 5
	readBufferSize  = 64 * 1024
)

type ConnOptions struct {
	Dial   DialFunc
	Logger logging.Logger
	// OnError is invoked once when the link breaks or the receiver reports
	// a terminal error. Optional. Reconnecting is the caller's policy; a
	// broken link is terminal for the bound session.
	OnError func(error)
}

func validConnOptions(options *ConnOptions) bool {
	return options != nil && options.Dial != nil && options.Logger != nil
}

// Conn binds a session to a stream connection. Send hands encoded
// envelopes to the connection in call order; a background goroutine feeds
// received chunks to the attached Receiver.
type Conn struct {
	conn    io.ReadWriteCloser
	logger  logging.Logger
	onError func(error)

	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewConn dials with exponential backoff and returns the bound connection.
// The read loop starts when a Receiver is attached.
func NewConn(options *ConnOptions) (*Conn, error) {
	if !validConnOptions(options) {
		return nil, OptionsErr
	}
	c := &Conn{
		logger:  options.Logger.SubLogger("transport"),
		onError: options.OnError,
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	var err error
	var backoff time.Duration
	for attempt := 1; ; attempt++ {
		c.conn, err = options.Dial()
		if err == nil {
			break
		}
		if attempt == maxDialAttempts {
			c.cancel()
			return nil, errors.Join(DialErr, err)
		}
		c.logger.Error().Err(err).Int("attempt", attempt).Msg("unable to create connection")
		if backoff == 0 {
			backoff = minBackoff
		} else if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
		time.Sleep(backoff)
	}
	return c, nil
}

// Attach sets the inbound sink and starts the read loop. It must be called
// exactly once, before any inbound data is expected.
func (c *Conn) Attach(recv Receiver) {
	c.wg.Add(1)
	go c.read(recv)
}

// Send writes one encoded envelope. Concurrent senders are serialized so
// envelopes never interleave on the stream.
func (c *Conn) Send(b []byte) error {
	select {
	case <-c.ctx.Done():
		return ClosedErr
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(b)
	return err
}

func (c *Conn) Close() error {
	c.cancel()
	err := c.conn.Close()
	c.wg.Wait()
	return err
}

func (c *Conn) read(recv Receiver) {
	buf := make([]byte, readBufferSize)
	var err error
	var n int
	for {
		n, err = c.conn.Read(buf)
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				c.logger.Error().Err(err).Msg("unable to read from connection")
				c.fail(err)
			}
			goto OUT
		}
		if err = recv.OnBytesReceived(buf[:n]); err != nil {
			c.logger.Error().Err(err).Msg("receiver reported terminal error")
			c.fail(err)
			_ = c.conn.Close()
			goto OUT
		}
	}
OUT:
	c.logger.Info().Msg("shutting down read loop")
	c.cancel()
	c.wg.Done()
}

func (c *Conn) fail(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}
