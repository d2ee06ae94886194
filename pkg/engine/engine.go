// SPDX-License-Identifier: Apache-2.0

// Package engine implements the client side of the trace-analytic RPC
// protocol: outbound sequence tagging, envelope marshalling, and inbound
// demultiplexing onto outstanding calls. Correlation is strict FIFO per
// method kind; the wire carries no per-call identifier, so the engine
// depends on the transport delivering responses of a kind in the order
// their requests were sent.
package engine

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	logging "github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/polyglot/v2"

	"github.com/traceworks/tracebridge/pkg/frame"
	"github.com/traceworks/tracebridge/pkg/future"
	"github.com/traceworks/tracebridge/pkg/wire"
)

// Transport is the one-directional send primitive the engine is bound to.
// Send hands off one fully-encoded envelope; the transport must deliver the
// bytes in order, exactly once, and must not invoke the engine's
// OnBytesReceived from within Send.
type Transport interface {
	Send([]byte) error
}

// LoadingTracker is told when a round trip begins and ends. It is a
// notification sink only; implementations must be fast, must not panic and
// must not call back into the engine.
type LoadingTracker interface {
	BeginLoading()
	EndLoading()
}

// NopTracker ignores all notifications.
type NopTracker struct{}

func (NopTracker) BeginLoading() {}
func (NopTracker) EndLoading() {}

type Options struct {
	Transport Transport
	Tracker   LoadingTracker
	Logger    logging.Logger
}

func validOptions(options *Options) bool {
	return options != nil && options.Transport != nil && options.Logger != nil
}

// pendingCall is one outstanding request awaiting its response. settle
// consumes the matched response, fail rejects the call; exactly one of the
// two runs, exactly once.
type pendingCall struct {
	settle func(*wire.Response)
	fail   func(error)
}

// Engine owns exactly one transport binding. Sequence counters and pending
// queues are per-instance; sharing one binding across engines is
// unsupported. All mutation happens under mu, from the call-issuing path or
// the inbound path, so each runs to completion without interleaving.
type Engine struct {
	transport Transport
	tracker   LoadingTracker
	logger    logging.Logger
	id        uuid.UUID

	mu      sync.Mutex
	framer  *frame.Framer
	txSeq   uint64
	rxSeq   uint64
	pending map[wire.Kind][]*pendingCall
	failure error

	cpus    []uint32
	hasCPUs bool
	numGPUs int
	hasGPUs bool
}

func New(options *Options) (*Engine, error) {
	if !validOptions(options) {
		return nil, OptionsErr
	}
	tracker := options.Tracker
	if tracker == nil {
		tracker = NopTracker{}
	}
	return &Engine{
		transport: options.Transport,
		tracker:   tracker,
		logger:    options.Logger.SubLogger("engine"),
		id:        uuid.New(),
		framer:    frame.New(),
		pending:   make(map[wire.Kind][]*pendingCall),
	}, nil
}

// ID identifies this engine instance in logs. It never appears on the wire.
func (e *Engine) ID() uuid.UUID {
	return e.id
}

// Err returns the sticky terminal failure, or nil while the session is
// usable.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failure
}

type bodyEncoder interface {
	Encode(*polyglot.Buffer)
}

func encodeBody(body bodyEncoder) []byte {
	buf := polyglot.GetBuffer()
	body.Encode(buf)
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	polyglot.PutBuffer(buf)
	return out
}

// issue sends one request and registers its pending call. The returned
// future settles when the correlated response arrives; it is already
// rejected if the session has failed or the transport refuses the bytes.
func issue[T any](e *Engine, kind wire.Kind, body []byte, settle func(*wire.Response, *future.Future[T])) *future.Future[T] {
	f := future.New[T]()
	e.mu.Lock()
	if e.failure != nil {
		err := e.failure
		e.mu.Unlock()
		f.Reject(err)
		return f
	}
	req := wire.Request{
		Seq:  e.txSeq,
		Kind: kind,
		Body: body,
	}
	e.txSeq++
	buf := polyglot.GetBuffer()
	req.Encode(buf)
	envelope := frame.AppendEnvelope(nil, buf.Bytes())
	polyglot.PutBuffer(buf)
	e.tracker.BeginLoading()
	if err := e.transport.Send(envelope); err != nil {
		e.tracker.EndLoading()
		e.mu.Unlock()
		e.logger.Error().Err(err).Str("id", e.id.String()).Str("kind", kind.String()).Msg("unable to send request")
		f.Reject(errors.Join(SendErr, err))
		return f
	}
	e.pending[kind] = append(e.pending[kind], &pendingCall{
		settle: func(res *wire.Response) {
			settle(res, f)
		},
		fail: f.Reject,
	})
	e.mu.Unlock()
	return f
}

// SubmitTraceChunk appends one chunk of raw trace data. Chunks are
// processed in submission order; the engine does not enforce that a caller
// waits for chunk N before submitting chunk N+1.
func (e *Engine) SubmitTraceChunk(data []byte) *future.Future[struct{}] {
	body := encodeBody(&wire.AppendArgs{Data: data})
	return issue(e, wire.KindAppendTraceData, body, settleStatus)
}

// NotifyEndOfTrace signals that no further trace chunks will follow.
func (e *Engine) NotifyEndOfTrace() *future.Future[struct{}] {
	return issue(e, wire.KindFinalizeTraceData, nil, settleStatus)
}

// ResetDerivedState drops any mutable state the remote engine accumulated
// beyond the immutable loaded trace.
func (e *Engine) ResetDerivedState() *future.Future[struct{}] {
	return issue(e, wire.KindRestoreInitialTables, nil, settleStatus)
}

func settleStatus(res *wire.Response, f *future.Future[struct{}]) {
	if res.Body == nil {
		f.Resolve(struct{}{})
		return
	}
	var status wire.StatusResult
	if err := status.Decode(res.Body); err != nil {
		f.Reject(err)
		return
	}
	if status.Error != "" {
		f.Reject(errors.Join(RemoteErr, errors.New(status.Error)))
		return
	}
	f.Resolve(struct{}{})
}

// ComputeMetric runs the named metrics on the loaded trace. A soft failure
// rejects the handle with MetricErr carrying the remote message.
func (e *Engine) ComputeMetric(names []string) *future.Future[*wire.MetricResult] {
	body := encodeBody(&wire.MetricArgs{
		Names:  names,
		Format: wire.DefaultMetricFormat,
	})
	return issue(e, wire.KindComputeMetric, body, func(res *wire.Response, f *future.Future[*wire.MetricResult]) {
		result := new(wire.MetricResult)
		if err := result.Decode(res.Body); err != nil {
			f.Reject(err)
			return
		}
		if result.Error != "" {
			f.Reject(errors.Join(MetricErr, errors.New(result.Error)))
			return
		}
		f.Resolve(result)
	})
}

// Query runs sql on the remote engine. A soft failure rejects the handle
// with a *QueryError embedding the original statement.
func (e *Engine) Query(sql string) *future.Future[*wire.QueryResult] {
	body := encodeBody(&wire.QueryArgs{SQL: sql})
	return issue(e, wire.KindQuery, body, func(res *wire.Response, f *future.Future[*wire.QueryResult]) {
		result := new(wire.QueryResult)
		if err := result.Decode(res.Body); err != nil {
			f.Reject(err)
			return
		}
		if result.Error != "" {
			f.Reject(&QueryError{SQL: sql, Message: result.Error})
			return
		}
		f.Resolve(result)
	})
}

// QueryUnchecked is Query without the soft-error rejection: the handle
// resolves even when the result carries an error, leaving inspection to the
// caller. Meant for user-supplied SQL where failure is an expected outcome.
func (e *Engine) QueryUnchecked(sql string) *future.Future[*wire.QueryResult] {
	body := encodeBody(&wire.QueryArgs{SQL: sql})
	return issue(e, wire.KindQuery, body, func(res *wire.Response, f *future.Future[*wire.QueryResult]) {
		result := new(wire.QueryResult)
		if err := result.Decode(res.Body); err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(result)
	})
}
