// SPDX-License-Identifier: Apache-2.0

// Package wire defines the binary schema exchanged with a remote
// trace-analytic engine: a stream of length-prefixed envelopes, each
// carrying exactly one sequence-tagged message.
package wire

import (
	"errors"
)

var (
	DecodeErr = errors.New("unable to decode buffer")
)

// Kind selects the method a message belongs to. Correlation between a
// request and its response is strict FIFO per kind; there is no per-call
// identifier on the wire.
type Kind uint32

const (
	KindAppendTraceData Kind = iota
	KindFinalizeTraceData
	KindRestoreInitialTables
	KindComputeMetric
	KindQuery
	// KindQueryStreaming is reserved by newer protocol revisions. Engines
	// that do not implement it must drop such messages without failing the
	// session.
	KindQueryStreaming
)

func (k Kind) String() string {
	switch k {
	case KindAppendTraceData:
		return "append_trace_data"
	case KindFinalizeTraceData:
		return "finalize_trace_data"
	case KindRestoreInitialTables:
		return "restore_initial_tables"
	case KindComputeMetric:
		return "compute_metric"
	case KindQuery:
		return "query"
	case KindQueryStreaming:
		return "query_streaming"
	}
	return "unknown"
}

// Known reports whether k is a method selector this implementation
// understands. Unknown kinds are skipped by receivers.
func (k Kind) Known() bool {
	return k <= KindQueryStreaming
}
