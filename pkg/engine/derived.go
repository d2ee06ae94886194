// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/traceworks/tracebridge/pkg/wire"
)

// TimeSpan is a trace time interval in seconds. An unbounded side is the
// corresponding infinity.
type TimeSpan struct {
	Start float64
	End   float64
}

const nanosPerSecond = 1e9

// QueryOneRow runs sql and returns the first row as integers. Every column
// of the result must be an integer; anything else is caller misuse and
// fails the call loudly instead of being coerced.
func (e *Engine) QueryOneRow(ctx context.Context, sql string) ([]int64, error) {
	result, err := e.Query(sql).Wait(ctx)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, errors.Join(EmptyResultErr, fmt.Errorf("sql: %q", sql))
	}
	row := result.Rows[0]
	out := make([]int64, len(row))
	for i, cell := range row {
		if cell.Type != wire.ValueInt {
			return nil, errors.Join(ColumnTypeErr,
				fmt.Errorf("column %q is %s (sql: %q)", result.Columns[i], cell.Type, sql))
		}
		out[i] = cell.Int
	}
	return out, nil
}

// CPUs returns the distinct cpu ids seen in the scheduling data. The value
// is computed once per engine instance and cached; it cannot change while a
// trace stays loaded. A reloaded trace means a fresh engine.
func (e *Engine) CPUs(ctx context.Context) ([]uint32, error) {
	e.mu.Lock()
	if e.hasCPUs {
		cpus := e.cpus
		e.mu.Unlock()
		return cpus, nil
	}
	e.mu.Unlock()
	result, err := e.Query("select distinct(cpu) from sched order by cpu;").Wait(ctx)
	if err != nil {
		return nil, err
	}
	cpus := make([]uint32, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 || row[0].Type != wire.ValueInt {
			return nil, errors.Join(ColumnTypeErr, errors.New("cpu column is not an integer"))
		}
		cpus = append(cpus, uint32(row[0].Int))
	}
	e.mu.Lock()
	if !e.hasCPUs {
		e.cpus = cpus
		e.hasCPUs = true
	}
	cpus = e.cpus
	e.mu.Unlock()
	return cpus, nil
}

// NumGPUs returns the number of distinct gpus with counter data, cached the
// same way as CPUs.
func (e *Engine) NumGPUs(ctx context.Context) (int, error) {
	e.mu.Lock()
	if e.hasGPUs {
		n := e.numGPUs
		e.mu.Unlock()
		return n, nil
	}
	e.mu.Unlock()
	row, err := e.QueryOneRow(ctx, "select count(distinct(gpu_id)) as gpuCount from gpu_counter_track;")
	if err != nil {
		return 0, err
	}
	n := int(row[0])
	e.mu.Lock()
	if !e.hasGPUs {
		e.numGPUs = n
		e.hasGPUs = true
	}
	n = e.numGPUs
	e.mu.Unlock()
	return n, nil
}

// NumProcesses returns the number of processes in the loaded trace. Not
// cached: trace ingestion can still be appending processes.
func (e *Engine) NumProcesses(ctx context.Context) (int, error) {
	row, err := e.QueryOneRow(ctx, "select count(*) from process;")
	if err != nil {
		return 0, err
	}
	return int(row[0]), nil
}

// TraceTimeBounds returns the trace span recorded in trace_bounds,
// converted from nanoseconds to seconds.
func (e *Engine) TraceTimeBounds(ctx context.Context) (TimeSpan, error) {
	row, err := e.QueryOneRow(ctx, "select start_ts, end_ts from trace_bounds;")
	if err != nil {
		return TimeSpan{}, err
	}
	return TimeSpan{
		Start: float64(row[0]) / nanosPerSecond,
		End:   float64(row[1]) / nanosPerSecond,
	}, nil
}

// TracingMetadataTimeBounds derives a span from tracing session metadata:
// the start is the maximum of all *_started_ns values, the end the minimum
// of all tracing_disabled_ns values. Rows with a null value are skipped; a
// side with no rows at all stays unbounded (infinite).
func (e *Engine) TracingMetadataTimeBounds(ctx context.Context) (TimeSpan, error) {
	result, err := e.Query("select name, int_value from metadata " +
		"where name = 'tracing_started_ns' or name = 'tracing_disabled_ns' " +
		"or name = 'all_data_source_started_ns'").Wait(ctx)
	if err != nil {
		return TimeSpan{}, err
	}
	span := TimeSpan{
		Start: math.Inf(-1),
		End:   math.Inf(1),
	}
	for _, row := range result.Rows {
		if len(row) < 2 || row[0].Type != wire.ValueString || row[1].Type != wire.ValueInt {
			continue
		}
		seconds := float64(row[1].Int) / nanosPerSecond
		if strings.HasSuffix(row[0].Str, "_started_ns") {
			span.Start = math.Max(span.Start, seconds)
		} else {
			span.End = math.Min(span.End, seconds)
		}
	}
	return span, nil
}
