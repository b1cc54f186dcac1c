package record

import "math"

// ValueKind discriminates the Go-level value a record column holds.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindInt
	KindFloat
	KindText
	KindBlob
)

// Value is an in-memory SQLite value, used when encoding a new record
// (the decode path stays zero-copy and never materializes this type).
type Value struct {
	Kind ValueKind
	Int  int64
	Flt  float64
	Text string
	Blob []byte
}

func NullValue() Value           { return Value{Kind: KindNull} }
func IntValue(v int64) Value     { return Value{Kind: KindInt, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Flt: v} }
func TextValue(v string) Value   { return Value{Kind: KindText, Text: v} }
func BlobValue(v []byte) Value   { return Value{Kind: KindBlob, Blob: v} }

// serialTypeFor returns the serial type this value would be encoded with.
func serialTypeFor(v Value) SerialType {
	switch v.Kind {
	case KindNull:
		return TypeNull
	case KindInt:
		switch i := v.Int; {
		case i == 0:
			return TypeZero
		case i == 1:
			return TypeOne
		case i >= -1<<7 && i < 1<<7:
			return TypeInt8
		case i >= -1<<15 && i < 1<<15:
			return TypeInt16
		case i >= -1<<23 && i < 1<<23:
			return TypeInt24
		case i >= -1<<31 && i < 1<<31:
			return TypeInt32
		case i >= -1<<47 && i < 1<<47:
			return TypeInt48
		default:
			return TypeInt64
		}
	case KindFloat:
		return TypeFloat64
	case KindText:
		return SerialType(13 + 2*len(v.Text))
	case KindBlob:
		return SerialType(12 + 2*len(v.Blob))
	}
	return TypeNull
}

// EncodeRecord serializes values into a SQLite record: a varint header
// (header length, then each column's serial type) followed by the column
// bodies in order.
func EncodeRecord(values []Value) []byte {
	types := make([]SerialType, len(values))
	bodyLen := 0
	headerBody := 0
	for i, v := range values {
		t := serialTypeFor(v)
		types[i] = t
		bodyLen += t.BodyLen()
		headerBody += varintLen(uint64(t))
	}

	// The header-length varint's own size is included in header_length, so
	// solve the small fixed point: headerLen = headerBody + len(varint(headerLen)).
	headerLen := headerBody + 1
	for {
		hl := headerBody + varintLen(uint64(headerLen))
		if hl == headerLen {
			break
		}
		headerLen = hl
	}

	buf := make([]byte, varintLen(uint64(headerLen))+headerBody+bodyLen)
	off := PutVarint(buf, uint64(headerLen))
	for _, t := range types {
		off += PutVarint(buf[off:], uint64(t))
	}
	for _, v := range values {
		off += encodeBody(buf[off:], v)
	}
	return buf[:off]
}

func varintLen(v uint64) int {
	switch {
	case v <= 0x7f:
		return 1
	case v <= 0x3fff:
		return 2
	case v <= 0x1fffff:
		return 3
	case v <= 0xfffffff:
		return 4
	case v <= 0x7ffffffff:
		return 5
	case v <= 0x3ffffffffff:
		return 6
	case v <= 0x1ffffffffffff:
		return 7
	case v <= 0xffffffffffffff:
		return 8
	default:
		return 9
	}
}

func encodeBody(buf []byte, v Value) int {
	switch v.Kind {
	case KindNull:
		return 0
	case KindInt:
		n := serialTypeFor(v).BodyLen()
		if n == 0 {
			return 0
		}
		u := uint64(v.Int)
		for i := 0; i < n; i++ {
			buf[n-1-i] = byte(u)
			u >>= 8
		}
		return n
	case KindFloat:
		bits := math.Float64bits(v.Flt)
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (56 - 8*i))
		}
		return 8
	case KindText:
		return copy(buf, v.Text)
	case KindBlob:
		return copy(buf, v.Blob)
	}
	return 0
}
