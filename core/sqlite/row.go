package sqlite

import (
	serrors "github.com/revred/sharc/core/errors"
	"github.com/revred/sharc/core/sqlite/internal/record"
)

// Row is a decoded record positioned over a payload. Loading a payload
// computes per-column offsets once; every accessor after that is O(1) and
// allocation-free (text and blob columns borrow from the payload). A Row's
// scratch arrays are reused across Load calls, so one Row per cursor walks
// any number of records with at most one allocation.
type Row struct {
	payload []byte
	types   []record.SerialType
	offsets []int
	n       int
}

// Load positions the row over payload, decoding its header and precomputing
// column offsets. The serial-type body-length sum is checked against the
// payload length, so a malformed record fails here rather than in an
// accessor.
func (r *Row) Load(payload []byte) error {
	if r.types == nil {
		r.types = make([]record.SerialType, 16)
		r.offsets = make([]int, 16)
	}
	for {
		n, bodyStart, err := record.ReadHeader(payload, r.types)
		if err != nil {
			// Grow the scratch when the record has more columns than the
			// arrays hold; any other decode error is final.
			if serrors.Is(err, record.ErrShortScratch) && len(r.types) < 32768 {
				r.types = make([]record.SerialType, len(r.types)*2)
				r.offsets = make([]int, len(r.offsets)*2)
				continue
			}
			return serrors.NewCorruption(0, err.Error())
		}
		end := record.ComputeOffsets(r.types[:n], bodyStart, r.offsets)
		if end != len(payload) {
			return serrors.NewCorruption(0, "record body length disagrees with serial types")
		}
		r.payload = payload
		r.n = n
		return nil
	}
}

// ColumnCount returns the number of columns in the loaded record.
func (r *Row) ColumnCount() int { return r.n }

func (r *Row) check(i int) error {
	if i < 0 || i >= r.n {
		return serrors.NewRange("column ordinal", int64(i))
	}
	return nil
}

// Type returns column i's serial type.
func (r *Row) Type(i int) record.SerialType { return r.types[i] }

// IsNull reports whether column i is NULL.
func (r *Row) IsNull(i int) bool {
	return i >= 0 && i < r.n && r.types[i] == record.TypeNull
}

// Int64 decodes column i as a signed integer.
func (r *Row) Int64(i int) (int64, error) {
	if err := r.check(i); err != nil {
		return 0, err
	}
	return record.DecodeInt(r.payload, r.types[i], r.offsets[i])
}

// Float64 decodes column i as a double; integer columns are widened.
func (r *Row) Float64(i int) (float64, error) {
	if err := r.check(i); err != nil {
		return 0, err
	}
	if r.types[i] == record.TypeFloat64 {
		return record.DecodeFloat(r.payload, r.offsets[i])
	}
	v, err := record.DecodeInt(r.payload, r.types[i], r.offsets[i])
	return float64(v), err
}

// Bytes returns column i's text or blob bytes, borrowed from the payload —
// valid only until the cursor moves.
func (r *Row) Bytes(i int) ([]byte, error) {
	if err := r.check(i); err != nil {
		return nil, err
	}
	t := r.types[i]
	if !t.IsText() && !t.IsBlob() {
		return nil, serrors.NewRange("column serial type", int64(t))
	}
	return record.DecodeBlobOrText(r.payload, t, r.offsets[i])
}

// Text decodes column i as a string (copying out of the payload).
func (r *Row) Text(i int) (string, error) {
	b, err := r.Bytes(i)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Value materializes column i as a Value. Blob bytes are copied so the
// result outlives the cursor position.
func (r *Row) Value(i int) (Value, error) {
	if err := r.check(i); err != nil {
		return Value{}, err
	}
	t := r.types[i]
	switch {
	case t == record.TypeNull:
		return Null(), nil
	case t == record.TypeFloat64:
		f, err := record.DecodeFloat(r.payload, r.offsets[i])
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case t.IsText():
		s, err := r.Text(i)
		if err != nil {
			return Value{}, err
		}
		return Text(s), nil
	case t.IsBlob():
		b, err := record.DecodeBlobOrText(r.payload, t, r.offsets[i])
		if err != nil {
			return Value{}, err
		}
		owned := make([]byte, len(b))
		copy(owned, b)
		return Blob(owned), nil
	default:
		v, err := record.DecodeInt(r.payload, t, r.offsets[i])
		if err != nil {
			return Value{}, err
		}
		return Int(v), nil
	}
}

// EncodeRecord serializes values into the on-disk record format.
func EncodeRecord(values []Value) []byte { return record.EncodeRecord(values) }
