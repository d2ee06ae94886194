// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"

	logging "github.com/loopholelabs/logging/types"
)

const loopbackQueueSize = 1024

// Loopback is the in-process bridge: two ends connected by ordered delivery
// queues, one per direction. Bytes sent on one end reach the other end's
// Receiver asynchronously, in send order. Typical use binds an Engine to
// one end and a server.Session to the other.
type Loopback struct {
	client *LoopbackEnd
	server *LoopbackEnd
}

func NewLoopback(logger logging.Logger) *Loopback {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loopback{
		client: newLoopbackEnd(ctx, cancel, logger.SubLogger("loopback-client")),
		server: newLoopbackEnd(ctx, cancel, logger.SubLogger("loopback-server")),
	}
	l.client.peer = l.server
	l.server.peer = l.client
	return l
}

func (l *Loopback) Client() *LoopbackEnd {
	return l.client
}

func (l *Loopback) Server() *LoopbackEnd {
	return l.server
}

// Close stops both directions and waits for in-flight deliveries to drain.
func (l *Loopback) Close() error {
	l.client.cancel()
	l.client.wg.Wait()
	l.server.wg.Wait()
	return nil
}

// LoopbackEnd is one side of the bridge. It implements the engine's
// Transport interface on the send side and delivers to an attached
// Receiver on the inbound side.
type LoopbackEnd struct {
	peer    *LoopbackEnd
	inbound chan []byte
	logger  logging.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newLoopbackEnd(ctx context.Context, cancel context.CancelFunc, logger logging.Logger) *LoopbackEnd {
	return &LoopbackEnd{
		inbound: make(chan []byte, loopbackQueueSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Send queues b for delivery to the other end. Never delivers from within
// the call itself.
func (e *LoopbackEnd) Send(b []byte) error {
	select {
	case <-e.ctx.Done():
		return ClosedErr
	default:
	}
	select {
	case <-e.ctx.Done():
		return ClosedErr
	case e.peer.inbound <- b:
		return nil
	}
}

// Attach sets the inbound sink and starts this end's delivery loop.
func (e *LoopbackEnd) Attach(recv Receiver) {
	e.wg.Add(1)
	go e.deliver(recv)
}

func (e *LoopbackEnd) deliver(recv Receiver) {
	for {
		select {
		case <-e.ctx.Done():
			goto OUT
		case chunk := <-e.inbound:
			if err := recv.OnBytesReceived(chunk); err != nil {
				e.logger.Error().Err(err).Msg("receiver reported terminal error")
				e.cancel()
				goto OUT
			}
		}
	}
OUT:
	e.logger.Info().Msg("shutting down delivery loop")
	e.wg.Done()
}
