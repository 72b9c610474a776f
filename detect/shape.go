package detect

import (
	"strings"

	"github.com/motoki-oss/docdb/bsonx"
)

// Shape computes a structural fingerprint of a query document: field names
// and element types, in order, with values discarded. Two queries that
// differ only in their literal values produce the same shape, which is
// exactly what repeated-query (N+1) detection needs to group on.
func Shape(doc bsonx.Document) string {
	var b strings.Builder
	writeShape(&b, bsonx.NewReader(doc))
	return b.String()
}

func writeShape(b *strings.Builder, r *bsonx.Reader) {
	b.WriteByte('{')
	first := true
	for {
		tag, err := r.Next()
		if err != nil || tag == bsonx.TypeEOO {
			break
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(r.Name())
		b.WriteByte(':')
		b.WriteString(tag.String())
		if tag == bsonx.TypeDocument || tag == bsonx.TypeArray {
			if sub, err := r.SubReader(); err == nil {
				writeShape(b, sub)
			}
		}
	}
	b.WriteByte('}')
}
