package bsonx

import (
	"bytes"
	"fmt"
	"math"
)

// TypeMismatchError is returned by a typed accessor called against an
// element of a different type.
type TypeMismatchError struct {
	Want, Got Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("bsonx: expected %s element, got %s", e.Want, e.Got)
}

// Reader is a forward-only, non-copying iterator over an encoded
// document. It borrows its bytes and must not outlive the image it was
// constructed from.
type Reader struct {
	data     []byte
	cur      int // offset of the next element to read
	tag      Type
	name     string
	valStart int
	valLen   int
}

// NewReader returns a Reader positioned one byte past data's outer length,
// ready for a first call to Next.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, cur: 4}
}

// First returns the type tag of the document's first element without
// advancing the reader. It does not affect subsequent Next calls.
func (r *Reader) First() (Type, error) {
	if len(r.data) <= 4 {
		return TypeEOO, ErrTruncated
	}
	return Type(r.data[4]), nil
}

// Tag returns the current element's type tag.
func (r *Reader) Tag() Type { return r.tag }

// Name returns the current element's field name.
func (r *Reader) Name() string { return r.name }

func indexZero(b []byte, from int) int {
	i := bytes.IndexByte(b[from:], 0)
	if i < 0 {
		return -1
	}
	return from + i
}

// payloadSize returns the number of payload bytes following the current
// element's NUL-terminated name, for the fixed and variable-length kinds
// described in the data model.
func payloadSize(tag Type, data []byte, valStart int) (int, error) {
	switch tag {
	case TypeDouble, TypeDate, TypeTimestamp, TypeInt64:
		return 8, nil
	case TypeString, TypeSymbol, TypeCode:
		if valStart+4 > len(data) {
			return 0, ErrTruncated
		}
		l := le32(data[valStart:])
		return 4 + int(l), nil
	case TypeDocument, TypeArray:
		if valStart+4 > len(data) {
			return 0, ErrTruncated
		}
		return int(int32(le32(data[valStart:]))), nil
	case TypeBinary:
		if valStart+4 > len(data) {
			return 0, ErrTruncated
		}
		l := le32(data[valStart:])
		return 4 + 1 + int(l), nil
	case TypeUndefined, TypeNull:
		return 0, nil
	case TypeObjectID:
		return 12, nil
	case TypeBool:
		return 1, nil
	case TypeRegex:
		p := indexZero(data, valStart)
		if p < 0 {
			return 0, ErrTruncated
		}
		o := indexZero(data, p+1)
		if o < 0 {
			return 0, ErrTruncated
		}
		return (o + 1) - valStart, nil
	case TypeDBRef:
		if valStart+4 > len(data) {
			return 0, ErrTruncated
		}
		nsLen := le32(data[valStart:])
		return 4 + int(nsLen) + 12, nil
	case TypeCodeWithScope:
		if valStart+4 > len(data) {
			return 0, ErrTruncated
		}
		return int(le32(data[valStart:])), nil
	case TypeInt32:
		return 4, nil
	case TypeEOO:
		return 0, nil
	}
	return 0, &UnknownTypeError{Tag: byte(tag)}
}

// Next advances to the next element and returns its tag. TypeEOO terminates
// iteration without advancing further; calling Next again after TypeEOO
// keeps returning TypeEOO.
func (r *Reader) Next() (Type, error) {
	if r.cur >= len(r.data) {
		return TypeEOO, ErrTruncated
	}
	tag := Type(r.data[r.cur])
	if tag == TypeEOO {
		r.tag, r.name, r.valStart, r.valLen = TypeEOO, "", r.cur, 0
		return TypeEOO, nil
	}

	nameStart := r.cur + 1
	nameEnd := indexZero(r.data, nameStart)
	if nameEnd < 0 {
		return 0, ErrTruncated
	}
	valStart := nameEnd + 1
	size, err := payloadSize(tag, r.data, valStart)
	if err != nil {
		return 0, err
	}
	if valStart+size > len(r.data) {
		return 0, ErrTruncated
	}

	r.tag = tag
	r.name = string(r.data[nameStart:nameEnd])
	r.valStart = valStart
	r.valLen = size
	r.cur = valStart + size
	return tag, nil
}

// Find performs a linear scan from the start of the document, leaving the
// reader positioned on the first element named name (return its tag), or on
// TypeEOO if no such element exists.
func (r *Reader) Find(name string) (Type, error) {
	r.cur = 4
	for {
		tag, err := r.Next()
		if err != nil {
			return 0, err
		}
		if tag == TypeEOO || r.name == name {
			return tag, nil
		}
	}
}

// currentRaw returns the current element's tag, name, and raw payload
// bytes, for Builder.AppendElementFrom.
func (r *Reader) currentRaw() (Type, string, []byte, error) {
	if r.tag == TypeEOO {
		return 0, "", nil, fmt.Errorf("bsonx: no current element")
	}
	return r.tag, r.name, r.data[r.valStart : r.valStart+r.valLen], nil
}

func (r *Reader) expect(want Type) error {
	if r.tag != want {
		return &TypeMismatchError{Want: want, Got: r.tag}
	}
	return nil
}

// Double returns the current element's value as a float64.
func (r *Reader) Double() (float64, error) {
	if err := r.expect(TypeDouble); err != nil {
		return 0, err
	}
	return math.Float64frombits(le64(r.data[r.valStart:])), nil
}

func (r *Reader) decodeLengthPrefixedString() string {
	l := le32(r.data[r.valStart:])
	if l == 0 {
		return ""
	}
	return string(r.data[r.valStart+4 : r.valStart+4+int(l)-1])
}

// StringValue returns the current String element's value.
func (r *Reader) StringValue() (string, error) {
	if err := r.expect(TypeString); err != nil {
		return "", err
	}
	return r.decodeLengthPrefixedString(), nil
}

// Symbol returns the current Symbol element's value.
func (r *Reader) Symbol() (string, error) {
	if err := r.expect(TypeSymbol); err != nil {
		return "", err
	}
	return r.decodeLengthPrefixedString(), nil
}

// Code returns the current Code element's source text.
func (r *Reader) Code() (string, error) {
	if err := r.expect(TypeCode); err != nil {
		return "", err
	}
	return r.decodeLengthPrefixedString(), nil
}

// Int32Value returns the current Int32 element's value.
func (r *Reader) Int32Value() (int32, error) {
	if err := r.expect(TypeInt32); err != nil {
		return 0, err
	}
	return int32(le32(r.data[r.valStart:])), nil //nolint:gosec // intentional bit-preserving conversion
}

// Int64Value returns the current Int64 element's value.
func (r *Reader) Int64Value() (int64, error) {
	if err := r.expect(TypeInt64); err != nil {
		return 0, err
	}
	return int64(le64(r.data[r.valStart:])), nil //nolint:gosec // intentional bit-preserving conversion
}

// BoolValue returns the current Bool element's stored bit.
func (r *Reader) BoolValue() (bool, error) {
	if err := r.expect(TypeBool); err != nil {
		return false, err
	}
	return r.data[r.valStart] != 0, nil
}

// DateMillis returns the current Date element's milliseconds since epoch.
func (r *Reader) DateMillis() (int64, error) {
	if err := r.expect(TypeDate); err != nil {
		return 0, err
	}
	return int64(le64(r.data[r.valStart:])), nil //nolint:gosec // intentional bit-preserving conversion
}

// ObjectIDValue returns the current ObjectId element's value.
func (r *Reader) ObjectIDValue() (ObjectID, error) {
	var id ObjectID
	if err := r.expect(TypeObjectID); err != nil {
		return id, err
	}
	copy(id[:], r.data[r.valStart:r.valStart+12])
	return id, nil
}

// RegexValue returns the current Regex element's pattern and options.
func (r *Reader) RegexValue() (Regex, error) {
	if err := r.expect(TypeRegex); err != nil {
		return Regex{}, err
	}
	p := indexZero(r.data, r.valStart)
	o := indexZero(r.data, p+1)
	return Regex{
		Pattern: string(r.data[r.valStart:p]),
		Options: string(r.data[p+1 : o]),
	}, nil
}

// BinaryValue returns the current Binary element. For legacy subtype 0x02
// the redundant inner length is consumed and Data holds only the real bytes.
func (r *Reader) BinaryValue() (Binary, error) {
	if err := r.expect(TypeBinary); err != nil {
		return Binary{}, err
	}
	l := le32(r.data[r.valStart:])
	subtype := r.data[r.valStart+4]
	raw := r.data[r.valStart+5 : r.valStart+5+int(l)]
	if subtype == BinaryLegacy && len(raw) >= 4 {
		inner := le32(raw)
		raw = raw[4 : 4+int(inner)]
	}
	return Binary{Subtype: subtype, Data: raw}, nil
}

// DBRefValue returns the current DBRef element's namespace and ObjectId.
func (r *Reader) DBRefValue() (string, ObjectID, error) {
	var id ObjectID
	if err := r.expect(TypeDBRef); err != nil {
		return "", id, err
	}
	nsLen := le32(r.data[r.valStart:])
	ns := string(r.data[r.valStart+4 : r.valStart+4+int(nsLen)-1])
	copy(id[:], r.data[r.valStart+4+int(nsLen):r.valStart+4+int(nsLen)+12])
	return ns, id, nil
}

// CodeWithScopeValue returns the current CodeWithScope element's source and
// scope document.
func (r *Reader) CodeWithScopeValue() (string, Document, error) {
	if err := r.expect(TypeCodeWithScope); err != nil {
		return "", nil, err
	}
	codeLen := le32(r.data[r.valStart+4:])
	code := string(r.data[r.valStart+8 : r.valStart+8+int(codeLen)-1])
	scopeStart := r.valStart + 8 + int(codeLen)
	scope := Document(r.data[scopeStart : r.valStart+r.valLen])
	return code, scope, nil
}

// TimestampValue returns the current Timestamp element's value.
func (r *Reader) TimestampValue() (Timestamp, error) {
	if err := r.expect(TypeTimestamp); err != nil {
		return Timestamp{}, err
	}
	return Timestamp{
		Increment: le32(r.data[r.valStart:]),
		Time:      le32(r.data[r.valStart+4:]),
	}, nil
}

// SubReader returns a Reader positioned inside the current embedded
// document or array, without copying.
func (r *Reader) SubReader() (*Reader, error) {
	if r.tag != TypeDocument && r.tag != TypeArray {
		return nil, &TypeMismatchError{Want: TypeDocument, Got: r.tag}
	}
	return NewReader(r.data[r.valStart : r.valStart+r.valLen]), nil
}

// AsInt32 coerces the current numeric element (Int32, Int64, Double) to an
// int32. Non-numeric elements yield zero.
func (r *Reader) AsInt32() int32 {
	switch r.tag {
	case TypeInt32:
		return int32(le32(r.data[r.valStart:])) //nolint:gosec // intentional bit-preserving conversion
	case TypeInt64:
		return int32(int64(le64(r.data[r.valStart:]))) //nolint:gosec // deliberate narrowing coercion per spec
	case TypeDouble:
		return int32(math.Float64frombits(le64(r.data[r.valStart:]))) //nolint:gosec // deliberate narrowing coercion per spec
	}
	return 0
}

// AsInt64 coerces the current numeric element (Int32, Int64, Double) to an
// int64. Non-numeric elements yield zero.
func (r *Reader) AsInt64() int64 {
	switch r.tag {
	case TypeInt32:
		return int64(int32(le32(r.data[r.valStart:]))) //nolint:gosec // intentional bit-preserving conversion
	case TypeInt64:
		return int64(le64(r.data[r.valStart:])) //nolint:gosec // intentional bit-preserving conversion
	case TypeDouble:
		return int64(math.Float64frombits(le64(r.data[r.valStart:])))
	}
	return 0
}

// AsDouble coerces the current numeric element (Int32, Int64, Double) to a
// float64. Non-numeric elements yield zero.
func (r *Reader) AsDouble() float64 {
	switch r.tag {
	case TypeInt32:
		return float64(int32(le32(r.data[r.valStart:]))) //nolint:gosec // intentional bit-preserving conversion
	case TypeInt64:
		return float64(int64(le64(r.data[r.valStart:]))) //nolint:gosec // intentional bit-preserving conversion
	case TypeDouble:
		return math.Float64frombits(le64(r.data[r.valStart:]))
	}
	return 0
}

// AsBool returns true for non-zero numerics, the stored bit for Bool, false
// for Null and EndOfDocument, and true for every other type.
func (r *Reader) AsBool() bool {
	switch r.tag {
	case TypeInt32:
		return le32(r.data[r.valStart:]) != 0
	case TypeInt64:
		return le64(r.data[r.valStart:]) != 0
	case TypeDouble:
		return math.Float64frombits(le64(r.data[r.valStart:])) != 0
	case TypeBool:
		return r.data[r.valStart] != 0
	case TypeNull, TypeEOO:
		return false
	}
	return true
}
