package bsonx

import (
	"math"
	"unicode/utf8"
)

// maxStackDepth bounds nested document/array depth; the original C driver
// used a fixed 32-entry stack and left exceeding it as undefined behavior.
// Here it is a checked error instead.
const maxStackDepth = 32

// maxSize is the largest buffer this Builder will grow to (2^31 - 1), the
// largest value representable by the document's signed 32-bit length field.
const maxSize = math.MaxInt32

// Builder incrementally assembles a document into a growable byte buffer.
// The zero value is not usable; construct one with NewBuilder.
type Builder struct {
	buf      []byte
	n        int   // write cursor; also the number of valid bytes in buf
	stack    []int // offsets of open documents/arrays, for backpatching
	finished bool
	err      ErrBits
}

// NewBuilder returns an empty Builder with 4 bytes reserved at the front for
// the outer document length, written on Finalize.
func NewBuilder() *Builder {
	b := &Builder{buf: make([]byte, 128)}
	b.n = 4
	return b
}

// Err returns the accumulated non-fatal error bits for this builder.
func (b *Builder) Err() ErrBits { return b.err }

// Len returns the number of bytes written so far, including the reserved
// outer-length prefix.
func (b *Builder) Len() int { return b.n }

// ensureSpace grows buf, if necessary, so that `need` additional bytes can
// be written starting at the current cursor. Mirrors bson_ensure_space.
func (b *Builder) ensureSpace(need int) error {
	if b.finished {
		b.err |= ErrObjectFinished
		return ErrFinished
	}
	if b.n+need <= len(b.buf) {
		return nil
	}
	if b.n+need > maxSize {
		b.err |= ErrSizeOverflow
		return ErrOverflow
	}
	newSize := int(math.Ceil(1.5 * float64(len(b.buf)+need)))
	if newSize > maxSize {
		newSize = maxSize
	}
	if newSize < b.n+need {
		newSize = b.n + need
	}
	grown := make([]byte, newSize)
	copy(grown, b.buf[:b.n])
	b.buf = grown
	return nil
}

func (b *Builder) writeByte(c byte) {
	b.buf[b.n] = c
	b.n++
}

func (b *Builder) writeBytes(data []byte) {
	copy(b.buf[b.n:], data)
	b.n += len(data)
}

func (b *Builder) writeCString(s string) {
	b.writeBytes([]byte(s))
	b.writeByte(0)
}

func (b *Builder) writeUint32LE(v uint32) {
	putLE32(b.buf[b.n:], v)
	b.n += 4
}

func (b *Builder) writeUint64LE(v uint64) {
	putLE64(b.buf[b.n:], v)
	b.n += 8
}

// checkFieldName records (but never rejects) FIELD_HAS_DOT / FIELD_INIT_DOLLAR
// surface findings. The wire client consults these bits before sending a
// write operation; the builder itself always proceeds.
func (b *Builder) checkFieldName(name string) {
	b.err |= fieldNameBits(name)
}

// elementStart writes the type tag and field name, after ensuring there is
// room for them plus the payload that the caller is about to write.
func (b *Builder) elementStart(tag Type, name string, payloadSize int) error {
	if err := b.ensureSpace(1 + len(name) + 1 + payloadSize); err != nil {
		return err
	}
	b.checkFieldName(name)
	b.writeByte(byte(tag))
	b.writeCString(name)
	return nil
}

// AppendDouble appends a Double element.
func (b *Builder) AppendDouble(name string, v float64) error {
	if err := b.elementStart(TypeDouble, name, 8); err != nil {
		return err
	}
	b.writeUint64LE(math.Float64bits(v))
	return nil
}

// AppendString appends a String element. The payload carries an explicit
// 32-bit length that includes the trailing NUL. If v is not valid UTF-8,
// ErrNotUTF8 is recorded but the value is still written verbatim.
func (b *Builder) AppendString(name, v string) error {
	if !utf8.ValidString(v) {
		b.err |= ErrNotUTF8
	}
	payload := len(v) + 1
	if err := b.elementStart(TypeString, name, 4+payload); err != nil {
		return err
	}
	b.writeUint32LE(uint32(payload)) //nolint:gosec // payload bounded by ensureSpace above
	b.writeCString(v)
	return nil
}

// AppendSymbol appends a Symbol element; on the wire it has the same shape
// as String.
func (b *Builder) AppendSymbol(name, v string) error {
	if !utf8.ValidString(v) {
		b.err |= ErrNotUTF8
	}
	payload := len(v) + 1
	if err := b.elementStart(TypeSymbol, name, 4+payload); err != nil {
		return err
	}
	b.writeUint32LE(uint32(payload)) //nolint:gosec // payload bounded by ensureSpace above
	b.writeCString(v)
	return nil
}

// AppendCode appends a Code (JavaScript source) element.
func (b *Builder) AppendCode(name, source string) error {
	payload := len(source) + 1
	if err := b.elementStart(TypeCode, name, 4+payload); err != nil {
		return err
	}
	b.writeUint32LE(uint32(payload)) //nolint:gosec // payload bounded by ensureSpace above
	b.writeCString(source)
	return nil
}

// AppendInt32 appends an Int32 element.
func (b *Builder) AppendInt32(name string, v int32) error {
	if err := b.elementStart(TypeInt32, name, 4); err != nil {
		return err
	}
	b.writeUint32LE(uint32(v)) //nolint:gosec // intentional bit-preserving conversion
	return nil
}

// AppendInt64 appends an Int64 element.
func (b *Builder) AppendInt64(name string, v int64) error {
	if err := b.elementStart(TypeInt64, name, 8); err != nil {
		return err
	}
	b.writeUint64LE(uint64(v)) //nolint:gosec // intentional bit-preserving conversion
	return nil
}

// AppendBool appends a Bool element; v is normalized to a single 0x00/0x01 byte.
func (b *Builder) AppendBool(name string, v bool) error {
	if err := b.elementStart(TypeBool, name, 1); err != nil {
		return err
	}
	if v {
		b.writeByte(1)
	} else {
		b.writeByte(0)
	}
	return nil
}

// AppendDate appends a Date element: signed milliseconds since the epoch.
func (b *Builder) AppendDate(name string, millis int64) error {
	if err := b.elementStart(TypeDate, name, 8); err != nil {
		return err
	}
	b.writeUint64LE(uint64(millis)) //nolint:gosec // intentional bit-preserving conversion
	return nil
}

// AppendTimestamp appends a replication Timestamp element.
func (b *Builder) AppendTimestamp(name string, ts Timestamp) error {
	if err := b.elementStart(TypeTimestamp, name, 8); err != nil {
		return err
	}
	b.writeUint32LE(ts.Increment)
	b.writeUint32LE(ts.Time)
	return nil
}

// AppendNull appends a Null element (empty payload).
func (b *Builder) AppendNull(name string) error {
	return b.elementStart(TypeNull, name, 0)
}

// AppendUndefined appends an Undefined element (empty payload).
func (b *Builder) AppendUndefined(name string) error {
	return b.elementStart(TypeUndefined, name, 0)
}

// AppendObjectID appends an ObjectId element.
func (b *Builder) AppendObjectID(name string, id ObjectID) error {
	if err := b.elementStart(TypeObjectID, name, 12); err != nil {
		return err
	}
	b.writeBytes(id[:])
	return nil
}

// AppendRegex appends a Regex element: pattern and options as two
// consecutive C-strings.
func (b *Builder) AppendRegex(name string, r Regex) error {
	payload := len(r.Pattern) + 1 + len(r.Options) + 1
	if err := b.elementStart(TypeRegex, name, payload); err != nil {
		return err
	}
	b.writeCString(r.Pattern)
	b.writeCString(r.Options)
	return nil
}

// AppendBinary appends a Binary element. Legacy subtype 0x02 prepends a
// redundant 32-bit inner length, inflating the outer length by 4, matching
// the wire quirk described in the data model.
func (b *Builder) AppendBinary(name string, v Binary) error {
	inner := len(v.Data)
	payload := 4 + 1 + inner
	if v.Subtype == BinaryLegacy {
		payload += 4
	}
	if err := b.elementStart(TypeBinary, name, payload); err != nil {
		return err
	}
	if v.Subtype == BinaryLegacy {
		b.writeUint32LE(uint32(inner + 4)) //nolint:gosec // payload bounded by ensureSpace above
		b.writeByte(v.Subtype)
		b.writeUint32LE(uint32(inner)) //nolint:gosec // payload bounded by ensureSpace above
	} else {
		b.writeUint32LE(uint32(inner)) //nolint:gosec // payload bounded by ensureSpace above
		b.writeByte(v.Subtype)
	}
	b.writeBytes(v.Data)
	return nil
}

// AppendDBRef appends a deprecated DBRef element.
func (b *Builder) AppendDBRef(name, ns string, id ObjectID) error {
	payload := 4 + len(ns) + 1 + 12
	if err := b.elementStart(TypeDBRef, name, payload); err != nil {
		return err
	}
	b.writeUint32LE(uint32(len(ns) + 1)) //nolint:gosec // payload bounded by ensureSpace above
	b.writeCString(ns)
	b.writeBytes(id[:])
	return nil
}

// AppendCodeWithScope appends a CodeWithScope element; scope must already be
// a finalized document.
func (b *Builder) AppendCodeWithScope(name, source string, scope Document) error {
	codeLen := len(source) + 1
	payload := 4 + 4 + codeLen + len(scope)
	if err := b.elementStart(TypeCodeWithScope, name, payload); err != nil {
		return err
	}
	b.writeUint32LE(uint32(payload))                  //nolint:gosec // payload bounded by ensureSpace above
	b.writeUint32LE(uint32(codeLen))                  //nolint:gosec // payload bounded by ensureSpace above
	b.writeCString(source)
	b.writeBytes(scope)
	return nil
}

// AppendDocument appends an already-finalized embedded document.
func (b *Builder) AppendDocument(name string, doc Document) error {
	if err := b.elementStart(TypeDocument, name, len(doc)); err != nil {
		return err
	}
	b.writeBytes(doc)
	return nil
}

// AppendArray appends an already-finalized embedded document as an array.
func (b *Builder) AppendArray(name string, arr Document) error {
	if err := b.elementStart(TypeArray, name, len(arr)); err != nil {
		return err
	}
	b.writeBytes(arr)
	return nil
}

// BeginDocument emits the tag and field name for a nested document and
// opens it for incremental writes; it must be matched by EndDocument.
func (b *Builder) BeginDocument(name string) error {
	return b.beginNested(TypeDocument, name)
}

// BeginArray emits the tag and field name for a nested array and opens it
// for incremental writes; the caller supplies decimal-string field names
// "0", "1", "2", ... for its elements. It must be matched by EndArray.
func (b *Builder) BeginArray(name string) error {
	return b.beginNested(TypeArray, name)
}

func (b *Builder) beginNested(tag Type, name string) error {
	if len(b.stack) >= maxStackDepth {
		return ErrStackDepth
	}
	if err := b.elementStart(tag, name, 4); err != nil {
		return err
	}
	b.stack = append(b.stack, b.n)
	b.writeUint32LE(0) // placeholder, backpatched on End*
	return nil
}

// EndDocument closes the most recently opened nested document, backpatching
// its length.
func (b *Builder) EndDocument() error { return b.endNested() }

// EndArray closes the most recently opened nested array, backpatching its
// length.
func (b *Builder) EndArray() error { return b.endNested() }

func (b *Builder) endNested() error {
	if len(b.stack) == 0 {
		return ErrStackUnderflow
	}
	if err := b.ensureSpace(1); err != nil {
		return err
	}
	b.writeByte(0)
	offset := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	putLE32(b.buf[offset:], uint32(b.n-offset)) //nolint:gosec // span of an in-progress document, bounded by maxSize
	return nil
}

// AppendElementFrom copies one element from a foreign Reader positioned on
// it, either preserving its field name (newName == "") or substituting a
// new one. The Reader is left unmodified.
func (b *Builder) AppendElementFrom(r *Reader, newName string) error {
	tag, name, value, err := r.currentRaw()
	if err != nil {
		return err
	}
	if newName != "" {
		name = newName
	}
	if err := b.elementStart(tag, name, len(value)); err != nil {
		return err
	}
	b.writeBytes(value)
	return nil
}

// Finalize appends the terminating zero byte, writes the total length at
// offset 0, and marks the builder finished. Subsequent appends fail with
// ErrFinished. The returned Document aliases the builder's backing array;
// the builder must not be reused afterward.
func (b *Builder) Finalize() (Document, error) {
	if b.finished {
		return Document(b.buf[:b.n]), nil
	}
	if len(b.stack) != 0 {
		return nil, ErrStackUnderflow
	}
	if err := b.ensureSpace(1); err != nil {
		return nil, err
	}
	b.writeByte(0)
	putLE32(b.buf, uint32(b.n)) //nolint:gosec // bounded by maxSize via ensureSpace
	b.finished = true
	if b.err != 0 {
		reportError("bsonx: document finalized with surface validation findings")
	}
	return Document(b.buf[:b.n]), nil
}
