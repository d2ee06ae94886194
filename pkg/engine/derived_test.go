// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/polyglot/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceworks/tracebridge/pkg/server"
	"github.com/traceworks/tracebridge/pkg/transport"
	"github.com/traceworks/tracebridge/pkg/wire"
)

const (
	cpusSQL      = "select distinct(cpu) from sched order by cpu;"
	gpusSQL      = "select count(distinct(gpu_id)) as gpuCount from gpu_counter_track;"
	processesSQL = "select count(*) from process;"
	boundsSQL    = "select start_ts, end_ts from trace_bounds;"
	metadataSQL  = "select name, int_value from metadata " +
		"where name = 'tracing_started_ns' or name = 'tracing_disabled_ns' " +
		"or name = 'all_data_source_started_ns'"
)

// fakeDB answers queries from a canned result table, standing in for the
// remote analytic engine.
type fakeDB struct {
	mu      sync.Mutex
	results map[string]*wire.QueryResult
	served  []string
}

func (db *fakeDB) handle(req *wire.Request, res *wire.Response) {
	if req.Kind != wire.KindQuery {
		return
	}
	var args wire.QueryArgs
	if err := args.Decode(req.Body); err != nil {
		res.Fatal = err.Error()
		return
	}
	db.mu.Lock()
	db.served = append(db.served, args.SQL)
	result, ok := db.results[args.SQL]
	db.mu.Unlock()
	if !ok {
		result = &wire.QueryResult{Error: "no such table"}
	}
	buf := polyglot.GetBuffer()
	result.Encode(buf)
	res.Body = make([]byte, buf.Len())
	copy(res.Body, buf.Bytes())
	polyglot.PutBuffer(buf)
}

func (db *fakeDB) servedCount(sql string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, s := range db.served {
		if s == sql {
			n++
		}
	}
	return n
}

func newLoopbackEngine(t *testing.T, db *fakeDB) *Engine {
	logger := logging.Test(t, logging.Zerolog, t.Name())
	bridge := transport.NewLoopback(logger)
	session, err := server.NewSession(&server.SessionOptions{
		Handle: db.handle,
		Sender: bridge.Server(),
		Logger: logger,
	})
	require.NoError(t, err)
	e, err := New(&Options{
		Transport: bridge.Client(),
		Logger:    logger,
	})
	require.NoError(t, err)
	bridge.Client().Attach(e)
	bridge.Server().Attach(session)
	t.Cleanup(func() {
		require.NoError(t, bridge.Close())
	})
	return e
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestTraceTimeBounds(t *testing.T) {
	db := &fakeDB{results: map[string]*wire.QueryResult{
		boundsSQL: {
			Columns: []string{"start_ts", "end_ts"},
			Rows:    [][]wire.Value{{wire.Int(1_000_000_000), wire.Int(2_000_000_000)}},
		},
	}}
	e := newLoopbackEngine(t, db)

	span, err := e.TraceTimeBounds(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, 1.0, span.Start)
	assert.Equal(t, 2.0, span.End)
}

func TestTracingMetadataTimeBounds(t *testing.T) {
	t.Run("Folding", func(t *testing.T) {
		db := &fakeDB{results: map[string]*wire.QueryResult{
			metadataSQL: {
				Columns: []string{"name", "int_value"},
				Rows: [][]wire.Value{
					{wire.String("tracing_started_ns"), wire.Int(5_000_000_000)},
					{wire.String("all_data_source_started_ns"), wire.Int(7_000_000_000)},
					{wire.String("tracing_disabled_ns"), wire.Int(20_000_000_000)},
				},
			},
		}}
		e := newLoopbackEngine(t, db)

		span, err := e.TracingMetadataTimeBounds(testContext(t))
		require.NoError(t, err)
		// start is the max of the start-like values, end the min of the
		// disabled values
		assert.Equal(t, 7.0, span.Start)
		assert.Equal(t, 20.0, span.End)
	})

	t.Run("NullRowsSkipped", func(t *testing.T) {
		db := &fakeDB{results: map[string]*wire.QueryResult{
			metadataSQL: {
				Columns: []string{"name", "int_value"},
				Rows: [][]wire.Value{
					{wire.String("tracing_started_ns"), wire.Int(5_000_000_000)},
					{wire.String("all_data_source_started_ns"), wire.Null()},
					{wire.String("tracing_disabled_ns"), wire.Int(20_000_000_000)},
				},
			},
		}}
		e := newLoopbackEngine(t, db)

		span, err := e.TracingMetadataTimeBounds(testContext(t))
		require.NoError(t, err)
		assert.Equal(t, 5.0, span.Start)
		assert.Equal(t, 20.0, span.End)
	})

	t.Run("AbsentCategoriesUnbounded", func(t *testing.T) {
		db := &fakeDB{results: map[string]*wire.QueryResult{
			metadataSQL: {
				Columns: []string{"name", "int_value"},
			},
		}}
		e := newLoopbackEngine(t, db)

		span, err := e.TracingMetadataTimeBounds(testContext(t))
		require.NoError(t, err)
		assert.True(t, math.IsInf(span.Start, -1))
		assert.True(t, math.IsInf(span.End, 1))
	})
}

func TestCPUsMemoized(t *testing.T) {
	db := &fakeDB{results: map[string]*wire.QueryResult{
		cpusSQL: {
			Columns: []string{"cpu"},
			Rows:    [][]wire.Value{{wire.Int(0)}, {wire.Int(1)}, {wire.Int(4)}},
		},
	}}
	e := newLoopbackEngine(t, db)
	ctx := testContext(t)

	cpus, err := e.CPUs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 4}, cpus)

	// second read hits the cache and issues no request
	cpus, err = e.CPUs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 4}, cpus)
	assert.Equal(t, 1, db.servedCount(cpusSQL))
}

func TestNumGPUsMemoized(t *testing.T) {
	db := &fakeDB{results: map[string]*wire.QueryResult{
		gpusSQL: {
			Columns: []string{"gpuCount"},
			Rows:    [][]wire.Value{{wire.Int(2)}},
		},
	}}
	e := newLoopbackEngine(t, db)
	ctx := testContext(t)

	n, err := e.NumGPUs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.NumGPUs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, db.servedCount(gpusSQL))
}

func TestNumProcessesNotMemoized(t *testing.T) {
	db := &fakeDB{results: map[string]*wire.QueryResult{
		processesSQL: {
			Columns: []string{"count(*)"},
			Rows:    [][]wire.Value{{wire.Int(42)}},
		},
	}}
	e := newLoopbackEngine(t, db)
	ctx := testContext(t)

	n, err := e.NumProcesses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = e.NumProcesses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, db.servedCount(processesSQL))
}

func TestQueryOneRow(t *testing.T) {
	db := &fakeDB{results: map[string]*wire.QueryResult{
		"select a, b from pair;": {
			Columns: []string{"a", "b"},
			Rows:    [][]wire.Value{{wire.Int(3), wire.Int(9)}},
		},
		"select name from process;": {
			Columns: []string{"name"},
			Rows:    [][]wire.Value{{wire.String("init")}},
		},
		"select x from empty;": {
			Columns: []string{"x"},
		},
	}}
	e := newLoopbackEngine(t, db)
	ctx := testContext(t)

	t.Run("Integers", func(t *testing.T) {
		row, err := e.QueryOneRow(ctx, "select a, b from pair;")
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 9}, row)
	})

	t.Run("NonIntegerColumn", func(t *testing.T) {
		_, err := e.QueryOneRow(ctx, "select name from process;")
		require.ErrorIs(t, err, ColumnTypeErr)
		assert.Contains(t, err.Error(), "name")
	})

	t.Run("NoRows", func(t *testing.T) {
		_, err := e.QueryOneRow(ctx, "select x from empty;")
		require.ErrorIs(t, err, EmptyResultErr)
	})

	t.Run("SoftError", func(t *testing.T) {
		_, err := e.QueryOneRow(ctx, "select 1 from nowhere;")
		var queryErr *QueryError
		require.ErrorAs(t, err, &queryErr)
		assert.Equal(t, "select 1 from nowhere;", queryErr.SQL)
	})
}
