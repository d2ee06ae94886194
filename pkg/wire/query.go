// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"

	"github.com/loopholelabs/polyglot/v2"
)

// ValueType tags a query result cell.
type ValueType uint8

const (
	ValueNull ValueType = iota
	ValueInt
	ValueFloat
	ValueString
	ValueBlob
)

func (t ValueType) String() string {
	switch t {
	case ValueNull:
		return "null"
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	case ValueString:
		return "string"
	case ValueBlob:
		return "blob"
	}
	return "unknown"
}

// Value is one query result cell. Only the field selected by Type is
// meaningful.
type Value struct {
	Type  ValueType
	Int   int64
	Float float64
	Str   string
	Blob  []byte
}

func Null() Value           { return Value{Type: ValueNull} }
func Int(v int64) Value     { return Value{Type: ValueInt, Int: v} }
func Float(v float64) Value { return Value{Type: ValueFloat, Float: v} }
func String(v string) Value { return Value{Type: ValueString, Str: v} }
func Blob(v []byte) Value   { return Value{Type: ValueBlob, Blob: v} }

func (v *Value) encode(buf *polyglot.Buffer) {
	e := polyglot.Encoder(buf).Uint8(uint8(v.Type))
	switch v.Type {
	case ValueInt:
		e.Int64(v.Int)
	case ValueFloat:
		e.Float64(v.Float)
	case ValueString:
		e.String(v.Str)
	case ValueBlob:
		e.Bytes(v.Blob)
	}
}

// QueryResult is the body of a raw-query response. Error is a soft failure
// (e.g. malformed SQL); Columns and Rows are empty when it is set.
type QueryResult struct {
	Columns []string
	Rows    [][]Value
	Error   string
}

func (q *QueryResult) Encode(buf *polyglot.Buffer) {
	if q.Error == "" {
		polyglot.Encoder(buf).Nil()
	} else {
		polyglot.Encoder(buf).String(q.Error)
	}
	e := polyglot.Encoder(buf).Uint32(uint32(len(q.Columns)))
	for _, col := range q.Columns {
		e.String(col)
	}
	polyglot.Encoder(buf).Uint32(uint32(len(q.Rows)))
	for _, row := range q.Rows {
		for i := range row {
			row[i].encode(buf)
		}
	}
}

func (q *QueryResult) Decode(buf []byte) error {
	d := polyglot.Decoder(buf)
	var err error
	if d.Nil() {
		q.Error = ""
	} else {
		q.Error, err = d.String()
		if err != nil {
			return errors.Join(DecodeErr, err)
		}
	}
	var cols uint32
	cols, err = d.Uint32()
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	q.Columns = make([]string, cols)
	for i := range q.Columns {
		q.Columns[i], err = d.String()
		if err != nil {
			return errors.Join(DecodeErr, err)
		}
	}
	var rows uint32
	rows, err = d.Uint32()
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	q.Rows = make([][]Value, rows)
	for i := range q.Rows {
		q.Rows[i] = make([]Value, cols)
		for j := range q.Rows[i] {
			if err = decodeValue(d, &q.Rows[i][j]); err != nil {
				return err
			}
		}
	}
	return nil
}

// valueDecoder is the slice of the polyglot decoder surface value cells
// need; it keeps decodeValue usable mid-stream.
type valueDecoder interface {
	Uint8() (uint8, error)
	Int64() (int64, error)
	Float64() (float64, error)
	String() (string, error)
	Bytes([]byte) ([]byte, error)
}

func decodeValue(d valueDecoder, v *Value) error {
	t, err := d.Uint8()
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	v.Type = ValueType(t)
	switch v.Type {
	case ValueNull:
	case ValueInt:
		v.Int, err = d.Int64()
	case ValueFloat:
		v.Float, err = d.Float64()
	case ValueString:
		v.Str, err = d.String()
	case ValueBlob:
		v.Blob, err = d.Bytes(v.Blob)
	default:
		return errors.Join(DecodeErr, fmt.Errorf("unknown value type %d", t))
	}
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	return nil
}
