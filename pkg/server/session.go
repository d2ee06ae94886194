// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	logging "github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/polyglot/v2"

	"github.com/traceworks/tracebridge/pkg/frame"
	"github.com/traceworks/tracebridge/pkg/wire"
)

var (
	SessionOptionsErr = errors.New("invalid session options")
	IntegrityErr      = errors.New("request stream integrity lost")
)

// Sender is the outbound half of a session's byte channel.
type Sender interface {
	Send([]byte) error
}

// HandleFunc serves one decoded request. It fills res.Body with the
// kind-specific result (or res.Fatal to end the session); Seq and Kind are
// managed by the session.
type HandleFunc func(req *wire.Request, res *wire.Response)

type SessionOptions struct {
	Handle HandleFunc
	Sender Sender
	Logger logging.Logger
}

func validSessionOptions(options *SessionOptions) bool {
	return options != nil && options.Handle != nil && options.Sender != nil && options.Logger != nil
}

// Session is one protocol conversation with a single client. Requests are
// handled strictly in arrival order and each response is written before
// the next request is decoded, which preserves the per-kind FIFO the
// client's correlation depends on.
type Session struct {
	handle HandleFunc
	sender Sender
	logger logging.Logger
	id     uuid.UUID

	mu     sync.Mutex
	framer *frame.Framer
	txSeq  uint64
	rxSeq  uint64
	failed error
}

func NewSession(options *SessionOptions) (*Session, error) {
	if !validSessionOptions(options) {
		return nil, SessionOptionsErr
	}
	return &Session{
		handle: options.Handle,
		sender: options.Sender,
		logger: options.Logger.SubLogger("session"),
		id:     uuid.New(),
		framer: frame.New(),
	}, nil
}

// ID identifies this session in logs.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// OnBytesReceived consumes one inbound chunk. A non-nil return means the
// session is dead and the transport should tear the link down.
func (s *Session) OnBytesReceived(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed != nil {
		return s.failed
	}
	s.framer.Append(chunk)
	for {
		msg, err := s.framer.Next()
		if err != nil {
			s.failed = errors.Join(IntegrityErr, err)
			return s.failed
		}
		if msg == nil {
			return nil
		}
		if err = s.processLocked(msg); err != nil {
			s.failed = err
			return s.failed
		}
	}
}

func (s *Session) processLocked(msg []byte) error {
	var req wire.Request
	if err := req.Decode(msg); err != nil {
		return errors.Join(IntegrityErr, err)
	}
	if s.rxSeq != 0 && req.Seq != 0 && req.Seq != s.rxSeq+1 {
		return errors.Join(IntegrityErr,
			fmt.Errorf("received %d, expected %d", req.Seq, s.rxSeq+1))
	}
	s.rxSeq = req.Seq
	if !req.Kind.Known() {
		s.logger.Warn().Str("id", s.id.String()).Uint32("kind", uint32(req.Kind)).Msg("dropping request of unrecognized kind")
		return nil
	}
	res := wire.Response{
		Kind: req.Kind,
	}
	s.handle(&req, &res)
	res.Seq = s.txSeq
	s.txSeq++
	buf := polyglot.GetBuffer()
	res.Encode(buf)
	envelope := frame.AppendEnvelope(nil, buf.Bytes())
	polyglot.PutBuffer(buf)
	if err := s.sender.Send(envelope); err != nil {
		return errors.Join(IntegrityErr, err)
	}
	if res.Fatal != "" {
		return errors.Join(IntegrityErr, errors.New(res.Fatal))
	}
	return nil
}
