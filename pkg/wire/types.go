// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"

	"github.com/loopholelabs/polyglot/v2"
)

// Request is a client-to-engine message. Body carries the kind-specific
// encoded arguments, or nil for kinds that take none.
type Request struct {
	Seq  uint64
	Kind Kind
	Body []byte
}

func (r *Request) Encode(buf *polyglot.Buffer) {
	e := polyglot.Encoder(buf).Uint64(r.Seq).Uint32(uint32(r.Kind))
	if r.Body == nil {
		e.Nil()
	} else {
		e.Bytes(r.Body)
	}
}

func (r *Request) Decode(buf []byte) error {
	d := polyglot.Decoder(buf)
	var err error
	r.Seq, err = d.Uint64()
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	var kind uint32
	kind, err = d.Uint32()
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	r.Kind = Kind(kind)
	if d.Nil() {
		r.Body = nil
		return nil
	}
	r.Body, err = d.Bytes(r.Body)
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	return nil
}

// Response is an engine-to-client message. Fatal is a session-ending error
// reported by the peer and is mutually exclusive with Body.
type Response struct {
	Seq   uint64
	Kind  Kind
	Fatal string
	Body  []byte
}

func (r *Response) Encode(buf *polyglot.Buffer) {
	e := polyglot.Encoder(buf).Uint64(r.Seq).Uint32(uint32(r.Kind))
	if r.Fatal == "" {
		e.Nil()
	} else {
		e.String(r.Fatal)
	}
	if r.Body == nil {
		e.Nil()
	} else {
		e.Bytes(r.Body)
	}
}

func (r *Response) Decode(buf []byte) error {
	d := polyglot.Decoder(buf)
	var err error
	r.Seq, err = d.Uint64()
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	var kind uint32
	kind, err = d.Uint32()
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	r.Kind = Kind(kind)
	if d.Nil() {
		r.Fatal = ""
	} else {
		r.Fatal, err = d.String()
		if err != nil {
			return errors.Join(DecodeErr, err)
		}
	}
	if d.Nil() {
		r.Body = nil
		return nil
	}
	r.Body, err = d.Bytes(r.Body)
	if err != nil {
		return errors.Join(DecodeErr, err)
	}
	return nil
}
