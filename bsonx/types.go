// Package bsonx implements the length-prefixed, typed, little-endian binary
// document format used on the wire: a Builder for incremental assembly and a
// Reader for forward-only typed iteration.
package bsonx

// Type is the one-byte element type tag that precedes every field name in an
// encoded document.
type Type byte

// Element type tags, in wire order.
const (
	TypeEOO            Type = 0x00
	TypeDouble         Type = 0x01
	TypeString         Type = 0x02
	TypeDocument       Type = 0x03
	TypeArray          Type = 0x04
	TypeBinary         Type = 0x05
	TypeUndefined      Type = 0x06
	TypeObjectID       Type = 0x07
	TypeBool           Type = 0x08
	TypeDate           Type = 0x09
	TypeNull           Type = 0x0A
	TypeRegex          Type = 0x0B
	TypeDBRef          Type = 0x0C
	TypeCode           Type = 0x0D
	TypeSymbol         Type = 0x0E
	TypeCodeWithScope  Type = 0x0F
	TypeInt32          Type = 0x10
	TypeTimestamp      Type = 0x11
	TypeInt64          Type = 0x12
)

// Binary subtypes (only the legacy subtype needs special handling during
// iteration, since it carries a redundant inner length prefix).
const (
	BinaryGeneric byte = 0x00
	BinaryLegacy  byte = 0x02
)

func (t Type) String() string {
	switch t {
	case TypeEOO:
		return "eoo"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeDocument:
		return "document"
	case TypeArray:
		return "array"
	case TypeBinary:
		return "binary"
	case TypeUndefined:
		return "undefined"
	case TypeObjectID:
		return "objectId"
	case TypeBool:
		return "bool"
	case TypeDate:
		return "date"
	case TypeNull:
		return "null"
	case TypeRegex:
		return "regex"
	case TypeDBRef:
		return "dbref"
	case TypeCode:
		return "code"
	case TypeSymbol:
		return "symbol"
	case TypeCodeWithScope:
		return "codeWithScope"
	case TypeInt32:
		return "int32"
	case TypeTimestamp:
		return "timestamp"
	case TypeInt64:
		return "int64"
	}
	return "unknown"
}

// ObjectID is a 12-byte identifier; see package objectid for generation.
type ObjectID [12]byte

// Timestamp is a MongoDB-style replication timestamp: an increment counter
// paired with a coarse seconds-since-epoch value.
type Timestamp struct {
	Increment uint32
	Time      uint32
}

// Regex holds a regular expression pattern and its option string, each
// stored as a NUL-terminated string on the wire.
type Regex struct {
	Pattern string
	Options string
}

// Binary holds a binary blob and its subtype byte.
type Binary struct {
	Subtype byte
	Data    []byte
}

// Document is an immutable, finalized encoded document image. It may alias
// a larger buffer (a Builder's array, or a reply body in wire.ParseReply);
// a Reader never copies the image and borrows from whichever bytes it is
// given.
type Document []byte

// Len returns the document's declared total length (read from its header).
func (d Document) Len() int {
	if len(d) < 4 {
		return 0
	}
	return int(int32(le32(d)))
}
