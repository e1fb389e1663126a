// Package wire is the flat JSON codec spoken with the decision service.
//
// The request schema is fixed and the reply schema is flat, so instead of a
// general parser the encoder writes fields in a caller-chosen order and the
// decoder scans for individual keys.
package wire

import (
	"math"
	"strconv"
)

// Encoder builds a single-line JSON object with keys in insertion order.
type Encoder struct {
	buf    []byte
	fields int
}

func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 256)}
}

func (e *Encoder) String(key, value string) *Encoder {
	e.key(key)
	e.buf = appendQuoted(e.buf, value)
	return e
}

func (e *Encoder) Int(key string, value int64) *Encoder {
	e.key(key)
	e.buf = strconv.AppendInt(e.buf, value, 10)
	return e
}

// Float writes the shortest decimal text that parses back to the same
// float64. NaN and infinities have no JSON form and are written as 0.
func (e *Encoder) Float(key string, value float64) *Encoder {
	e.key(key)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		e.buf = append(e.buf, '0')
		return e
	}
	e.buf = strconv.AppendFloat(e.buf, value, 'f', -1, 64)
	return e
}

// Bytes closes the object and returns it. The encoder must not be reused.
func (e *Encoder) Bytes() []byte {
	if e.fields == 0 {
		e.buf = append(e.buf, '{')
	}
	return append(e.buf, '}')
}

func (e *Encoder) key(key string) {
	if e.fields == 0 {
		e.buf = append(e.buf, '{')
	} else {
		e.buf = append(e.buf, ',')
	}
	e.fields++
	e.buf = appendQuoted(e.buf, key)
	e.buf = append(e.buf, ':')
}

// appendQuoted escapes only backslash and double quote.
func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' || c == '"' {
			dst = append(dst, '\\')
		}
		dst = append(dst, c)
	}
	return append(dst, '"')
}
