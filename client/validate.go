package client

import (
	"fmt"

	"github.com/motoki-oss/docdb/bsonx"
)

// checkWriteDocument enforces the pre-write document check spec.md §4.5/§7
// assigns the wire client: NOT_UTF8 is fatal for every write; FIELD_HAS_DOT
// and FIELD_INIT_DOLLAR are fatal only when allowDollarOrDot is false
// (inserts), since update modifier documents legitimately start field names
// with '$'.
func checkWriteDocument(doc bsonx.Document, allowDollarOrDot bool) error {
	if doc == nil {
		return nil
	}

	bits := bsonx.Validate(doc)
	if bits.Has(bsonx.ErrNotUTF8) {
		return fmt.Errorf("client: document contains a non-UTF-8 string")
	}
	if allowDollarOrDot {
		return nil
	}
	if bits.Has(bsonx.ErrFieldInitDollar) {
		return fmt.Errorf("client: document has a field name starting with '$'")
	}
	if bits.Has(bsonx.ErrFieldHasDot) {
		return fmt.Errorf("client: document has a field name containing '.'")
	}
	return nil
}
