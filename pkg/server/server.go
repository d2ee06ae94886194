// SPDX-License-Identifier: Apache-2.0

// Package server hosts a protocol peer behind a unix socket: a backend
// implementation (HandleFunc) served to any number of clients, one session
// per connection. It exists for integration tests and for running an
// in-process analytic backend; production clients usually talk to a remote
// engine instead.
package server

import (
	"context"
	"errors"
	"net"
	"sync"

	logging "github.com/loopholelabs/logging/types"

	"github.com/traceworks/tracebridge/internal/listener"
)

var (
	OptionsErr = errors.New("invalid options")
	CreateErr  = errors.New("unable to create server")
	CloseErr   = errors.New("unable to close server")
)

const readBufferSize = 64 * 1024

type Server struct {
	handle   HandleFunc
	listener *listener.Listener
	logger   logging.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(options *Options) (*Server, error) {
	if !validOptions(options) {
		return nil, OptionsErr
	}
	lis, err := listener.New(options.listener())
	if err != nil {
		return nil, errors.Join(CreateErr, err)
	}
	s := &Server{
		handle:   options.Handle,
		listener: lis,
		logger:   options.Logger.SubLogger("server"),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.accept()
	return s, nil
}

func (s *Server) Close() error {
	s.cancel()
	err := s.listener.Close()
	s.wg.Wait()
	if err != nil {
		return errors.Join(CloseErr, err)
	}
	return nil
}

func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			goto OUT
		}
		s.wg.Add(1)
		go s.serve(conn)
	}
OUT:
	s.wg.Done()
}

// serve runs one session over conn: a single read loop feeding the
// session, responses written back inline.
func (s *Server) serve(conn *net.UnixConn) {
	defer s.wg.Done()
	session, err := NewSession(&SessionOptions{
		Handle: s.handle,
		Sender: &connSender{conn: conn},
		Logger: s.logger,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("unable to create session")
		_ = conn.Close()
		return
	}
	s.logger.Info().Str("id", session.ID().String()).Msg("session started")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			select {
			case <-s.ctx.Done():
			default:
				s.logger.Info().Str("id", session.ID().String()).Err(err).Msg("connection closed")
			}
			break
		}
		if err = session.OnBytesReceived(buf[:n]); err != nil {
			s.logger.Error().Str("id", session.ID().String()).Err(err).Msg("session failed")
			break
		}
	}
	_ = conn.Close()
	s.logger.Info().Str("id", session.ID().String()).Msg("session ended")
}

// connSender serializes writes so responses never interleave.
type connSender struct {
	mu   sync.Mutex
	conn *net.UnixConn
}

func (c *connSender) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write(b)
	return err
}
