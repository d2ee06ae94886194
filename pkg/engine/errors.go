// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"fmt"
)

var (
	OptionsErr = errors.New("invalid options")
	SendErr    = errors.New("unable to send request")

	// StreamIntegrityErr marks every terminal session failure. Callers can
	// pattern-match it with errors.Is to distinguish "this engine is dead"
	// from an ordinary per-call failure.
	StreamIntegrityErr = errors.New("stream integrity lost")
	SessionFatalErr    = errors.New("fatal error from peer")
	OutOfSequenceErr   = errors.New("sequence discontinuity")
	UnderflowErr       = errors.New("response without outstanding call")

	RemoteErr = errors.New("remote operation failed")
	MetricErr = errors.New("metric computation failed")

	EmptyResultErr = errors.New("query returned no rows")
	ColumnTypeErr  = errors.New("column is not an integer")
)

// QueryError reports a soft query failure: the statement was rejected by
// the remote engine while the session itself stayed healthy. It carries the
// original SQL alongside the remote message.
type QueryError struct {
	SQL     string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %s (sql: %q)", e.Message, e.SQL)
}
