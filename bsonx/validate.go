package bsonx

import (
	"strings"
	"unicode/utf8"
)

// fieldNameBits reports the FIELD_HAS_DOT / FIELD_INIT_DOLLAR bits a field
// name sets, shared by Builder.checkFieldName and Validate so the two never
// drift apart.
func fieldNameBits(name string) ErrBits {
	var bits ErrBits
	if strings.HasPrefix(name, "$") {
		bits |= ErrFieldInitDollar
	}
	if strings.Contains(name, ".") {
		bits |= ErrFieldHasDot
	}
	return bits
}

// Validate re-derives the surface-validation bits a Builder would have
// accumulated while constructing doc, by walking the already-encoded bytes:
// FIELD_HAS_DOT / FIELD_INIT_DOLLAR from every field name at every nesting
// level, and NOT_UTF8 from every String/Symbol payload. Finalize returns a
// bare Document with no memory of the Builder that produced it, so a write
// path holding only the encoded bytes needs this to enforce the pre-write
// check spec.md §4.5/§7 assigns the wire client.
func Validate(doc Document) ErrBits {
	var bits ErrBits
	validateReader(NewReader(doc), &bits)
	return bits
}

func validateReader(r *Reader, bits *ErrBits) {
	for {
		tag, err := r.Next()
		if err != nil || tag == TypeEOO {
			return
		}
		*bits |= fieldNameBits(r.Name())

		switch tag {
		case TypeString:
			if v, err := r.StringValue(); err == nil && !utf8.ValidString(v) {
				*bits |= ErrNotUTF8
			}
		case TypeSymbol:
			if v, err := r.Symbol(); err == nil && !utf8.ValidString(v) {
				*bits |= ErrNotUTF8
			}
		case TypeDocument, TypeArray:
			if sub, err := r.SubReader(); err == nil {
				validateReader(sub, bits)
			}
		}
	}
}
