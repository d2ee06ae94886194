// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"

	"github.com/loopholelabs/polyglot/v2"
)

// MetricFormat selects the representation of computed metric payloads.
type MetricFormat uint8

const (
	MetricFormatTextProto MetricFormat = iota
	MetricFormatJSON
)

// DefaultMetricFormat is the fixed selector requested by the engine.
const DefaultMetricFormat = MetricFormatTextProto

// StatusResult is the body of append-trace-data, finalize-trace-data and
// restore-initial-tables responses. Error is a soft failure of the
// operation; the session remains usable.
type StatusResult struct {
	Error string
}

func (s *StatusResult) Encode(buf *polyglot.Buffer) {
	if s.Error == "" {
		polyglot.Encoder(buf).Nil()
	} else {
		polyglot.Encoder(buf).String(s.Error)
	}
}

func (s *StatusResult) Decode(buf []byte) error {
	d := polyglot.Decoder(buf)
	if d.Nil() {
		s.Error = ""
		return nil
	}
	var err error
	s.Error, err = d.String()
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	return nil
}

// AppendArgs is the body of an append-trace-data request.
type AppendArgs struct {
	Data []byte
}

func (a *AppendArgs) Encode(buf *polyglot.Buffer) {
	if a.Data == nil {
		polyglot.Encoder(buf).Nil()
	} else {
		polyglot.Encoder(buf).Bytes(a.Data)
	}
}

func (a *AppendArgs) Decode(buf []byte) error {
	d := polyglot.Decoder(buf)
	if d.Nil() {
		a.Data = nil
		return nil
	}
	var err error
	a.Data, err = d.Bytes(a.Data)
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	return nil
}

// MetricArgs is the body of a compute-metric request.
type MetricArgs struct {
	Names  []string
	Format MetricFormat
}

func (m *MetricArgs) Encode(buf *polyglot.Buffer) {
	e := polyglot.Encoder(buf).Uint8(uint8(m.Format)).Uint32(uint32(len(m.Names)))
	for _, name := range m.Names {
		e.String(name)
	}
}

func (m *MetricArgs) Decode(buf []byte) error {
	d := polyglot.Decoder(buf)
	format, err := d.Uint8()
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	m.Format = MetricFormat(format)
	var count uint32
	count, err = d.Uint32()
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	m.Names = make([]string, count)
	for i := range m.Names {
		m.Names[i], err = d.String()
		if err != nil {
			return errors.Join(DecodeErr, err)
		}
	}
	return nil
}

// MetricResult is the body of a compute-metric response. Data holds the
// metric payload in the requested format.
type MetricResult struct {
	Data  []byte
	Error string
}

func (m *MetricResult) Encode(buf *polyglot.Buffer) {
	if m.Error == "" {
		polyglot.Encoder(buf).Nil()
	} else {
		polyglot.Encoder(buf).String(m.Error)
	}
	if m.Data == nil {
		polyglot.Encoder(buf).Nil()
	} else {
		polyglot.Encoder(buf).Bytes(m.Data)
	}
}

func (m *MetricResult) Decode(buf []byte) error {
	d := polyglot.Decoder(buf)
	var err error
	if d.Nil() {
		m.Error = ""
	} else {
		m.Error, err = d.String()
		if err != nil {
			return errors.Join(DecodeErr, err)
		}
	}
	if d.Nil() {
		m.Data = nil
		return nil
	}
	m.Data, err = d.Bytes(m.Data)
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	return nil
}

// QueryArgs is the body of a raw-query request.
type QueryArgs struct {
	SQL string
}

func (q *QueryArgs) Encode(buf *polyglot.Buffer) {
	polyglot.Encoder(buf).String(q.SQL)
}

func (q *QueryArgs) Decode(buf []byte) error {
	var err error
	q.SQL, err = polyglot.Decoder(buf).String()
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	return nil
}
