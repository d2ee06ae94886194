// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"fmt"

	"github.com/traceworks/tracebridge/pkg/wire"
)

// OnBytesReceived is the single inbound entry point. The transport invokes
// it for every chunk of received data, in arrival order, with no
// re-ordering or duplication. Chunks may split or batch envelopes
// arbitrarily. A non-nil return means the session is no longer usable; the
// same error is sticky and every outstanding call has been rejected with
// it.
func (e *Engine) OnBytesReceived(chunk []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failure != nil {
		return e.failure
	}
	e.framer.Append(chunk)
	for {
		msg, err := e.framer.Next()
		if err != nil {
			return e.failLocked(errors.Join(StreamIntegrityErr, err))
		}
		if msg == nil {
			return nil
		}
		if err = e.processLocked(msg); err != nil {
			return e.failLocked(err)
		}
	}
}

// processLocked handles one complete inbound message. A returned error is
// terminal for the session.
func (e *Engine) processLocked(msg []byte) error {
	var res wire.Response
	if err := res.Decode(msg); err != nil {
		return errors.Join(StreamIntegrityErr, err)
	}
	e.tracker.EndLoading()
	if res.Fatal != "" {
		return errors.Join(StreamIntegrityErr, SessionFatalErr, errors.New(res.Fatal))
	}
	// Continuity: each inbound sequence must follow the last validated one.
	// A zero on either side marks a stream restart and skips the check.
	if e.rxSeq != 0 && res.Seq != 0 && res.Seq != e.rxSeq+1 {
		return errors.Join(StreamIntegrityErr, OutOfSequenceErr,
			fmt.Errorf("received %d, expected %d", res.Seq, e.rxSeq+1))
	}
	e.rxSeq = res.Seq
	if !res.Kind.Known() {
		e.logger.Warn().Str("id", e.id.String()).Uint32("kind", uint32(res.Kind)).Msg("dropping message of unrecognized kind")
		return nil
	}
	queue := e.pending[res.Kind]
	if len(queue) == 0 {
		return errors.Join(StreamIntegrityErr, UnderflowErr,
			fmt.Errorf("kind %s", res.Kind))
	}
	call := queue[0]
	e.pending[res.Kind] = queue[1:]
	call.settle(&res)
	return nil
}

// failLocked records the terminal failure and rejects every outstanding
// call with it. There is no partial recovery; callers must treat this
// engine instance as dead.
func (e *Engine) failLocked(err error) error {
	e.failure = err
	e.logger.Error().Err(err).Str("id", e.id.String()).Msg("session failed")
	for kind, queue := range e.pending {
		for _, call := range queue {
			call.fail(err)
		}
		delete(e.pending, kind)
	}
	return err
}
