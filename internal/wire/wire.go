// Package wire walks protobuf-encoded messages field by field.
//
// The Android platform schemas (statsd config and reports, batterystats
// dumps) are large and versioned with the platform. Only a handful of
// fields are needed here, so messages are read directly off the wire
// instead of through generated code.
package wire

import (
	"math"

	pkgerrors "github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field is one decoded field. Only the member matching Type is set.
type Field struct {
	Num     protowire.Number
	Type    protowire.Type
	Varint  uint64
	Fixed32 uint32
	Fixed64 uint64
	Bytes   []byte
}

// Int64 returns the field as a signed varint.
func (f Field) Int64() int64 { return int64(f.Varint) }

// Int32 returns the field as an int32 varint.
func (f Field) Int32() int32 { return int32(f.Varint) }

// Bool returns the field as a bool varint.
func (f Field) Bool() bool { return f.Varint != 0 }

// Float returns a fixed32 field as a float.
func (f Field) Float() float32 { return math.Float32frombits(f.Fixed32) }

// Double returns a fixed64 field as a double.
func (f Field) Double() float64 { return math.Float64frombits(f.Fixed64) }

// Walk calls fn for every top-level field of the message in b, in wire order.
func Walk(b []byte, fn func(Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return pkgerrors.Wrap(protowire.ParseError(n), "bad tag")
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return pkgerrors.Wrapf(protowire.ParseError(n), "field %d", num)
			}
			f.Varint = v
			b = b[n:]
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return pkgerrors.Wrapf(protowire.ParseError(n), "field %d", num)
			}
			f.Fixed32 = v
			b = b[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return pkgerrors.Wrapf(protowire.ParseError(n), "field %d", num)
			}
			f.Fixed64 = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return pkgerrors.Wrapf(protowire.ParseError(n), "field %d", num)
			}
			f.Bytes = v
			b = b[n:]
		default:
			// Groups and anything newer are skipped whole.
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return pkgerrors.Wrapf(protowire.ParseError(n), "field %d", num)
			}
			b = b[n:]
			continue
		}

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// Builder appends fields to a message buffer.
type Builder struct {
	b []byte
}

// Bytes returns the encoded message.
func (m *Builder) Bytes() []byte { return m.b }

// Int64 appends a varint field. Zero values are still written, because
// several platform fields use proto2 presence.
func (m *Builder) Int64(num protowire.Number, v int64) *Builder {
	m.b = protowire.AppendTag(m.b, num, protowire.VarintType)
	m.b = protowire.AppendVarint(m.b, uint64(v))
	return m
}

// Int32 appends an int32 varint field. Negative values are sign extended.
func (m *Builder) Int32(num protowire.Number, v int32) *Builder {
	return m.Int64(num, int64(v))
}

// Bool appends a bool field.
func (m *Builder) Bool(num protowire.Number, v bool) *Builder {
	m.b = protowire.AppendTag(m.b, num, protowire.VarintType)
	m.b = protowire.AppendVarint(m.b, protowire.EncodeBool(v))
	return m
}

// Float appends a float field.
func (m *Builder) Float(num protowire.Number, v float32) *Builder {
	m.b = protowire.AppendTag(m.b, num, protowire.Fixed32Type)
	m.b = protowire.AppendFixed32(m.b, math.Float32bits(v))
	return m
}

// Double appends a double field.
func (m *Builder) Double(num protowire.Number, v float64) *Builder {
	m.b = protowire.AppendTag(m.b, num, protowire.Fixed64Type)
	m.b = protowire.AppendFixed64(m.b, math.Float64bits(v))
	return m
}

// String appends a string field.
func (m *Builder) String(num protowire.Number, v string) *Builder {
	m.b = protowire.AppendTag(m.b, num, protowire.BytesType)
	m.b = protowire.AppendString(m.b, v)
	return m
}

// Message appends an embedded message field.
func (m *Builder) Message(num protowire.Number, sub *Builder) *Builder {
	m.b = protowire.AppendTag(m.b, num, protowire.BytesType)
	m.b = protowire.AppendBytes(m.b, sub.Bytes())
	return m
}
