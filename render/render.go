// Package render produces a compact, human-readable rendering of a
// document, in the spirit of a database shell's default print format.
// It is a debug/display helper only: rendering never round-trips back
// into bsonx and has no bearing on wire correctness.
package render

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/motoki-oss/docdb/bsonx"
)

// Document walks doc with a bsonx.Reader and renders it as a single-line,
// JSON-ish string.
func Document(doc bsonx.Document) string {
	var b strings.Builder
	r := bsonx.NewReader(doc)
	writeDocument(&b, r)
	return b.String()
}

func writeDocument(b *strings.Builder, r *bsonx.Reader) {
	b.WriteByte('{')
	first := true
	for {
		tag, err := r.Next()
		if err != nil || tag == bsonx.TypeEOO {
			break
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(r.Name())
		b.WriteString(": ")
		writeElement(b, r, tag)
	}
	b.WriteByte('}')
}

func writeArray(b *strings.Builder, r *bsonx.Reader) {
	b.WriteByte('[')
	first := true
	for {
		tag, err := r.Next()
		if err != nil || tag == bsonx.TypeEOO {
			break
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		writeElement(b, r, tag)
	}
	b.WriteByte(']')
}

func writeElement(b *strings.Builder, r *bsonx.Reader, tag bsonx.Type) {
	switch tag {
	case bsonx.TypeDouble:
		v, _ := r.Double()
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case bsonx.TypeString:
		v, _ := r.StringValue()
		fmt.Fprintf(b, "%q", v)
	case bsonx.TypeSymbol:
		v, _ := r.Symbol()
		fmt.Fprintf(b, "%q", v)
	case bsonx.TypeCode:
		v, _ := r.Code()
		fmt.Fprintf(b, "%q", v)
	case bsonx.TypeDocument:
		sub, err := r.SubReader()
		if err != nil {
			b.WriteString("{}")
			return
		}
		writeDocument(b, sub)
	case bsonx.TypeArray:
		sub, err := r.SubReader()
		if err != nil {
			b.WriteString("[]")
			return
		}
		writeArray(b, sub)
	case bsonx.TypeBinary:
		bin, err := r.BinaryValue()
		if err != nil {
			b.WriteString("BinData()")
			return
		}
		fmt.Fprintf(b, "BinData(%d, %q)", bin.Subtype, base64.StdEncoding.EncodeToString(bin.Data))
	case bsonx.TypeObjectID:
		id, _ := r.ObjectIDValue()
		fmt.Fprintf(b, "ObjectId(\"%x\")", id)
	case bsonx.TypeBool:
		v, _ := r.BoolValue()
		b.WriteString(strconv.FormatBool(v))
	case bsonx.TypeDate:
		v, _ := r.DateMillis()
		fmt.Fprintf(b, "Date(%d)", v)
	case bsonx.TypeNull:
		b.WriteString("null")
	case bsonx.TypeUndefined:
		b.WriteString("undefined")
	case bsonx.TypeRegex:
		re, _ := r.RegexValue()
		fmt.Fprintf(b, "/%s/%s", re.Pattern, re.Options)
	case bsonx.TypeInt32:
		v, _ := r.Int32Value()
		b.WriteString(strconv.FormatInt(int64(v), 10))
	case bsonx.TypeInt64:
		v, _ := r.Int64Value()
		b.WriteString(strconv.FormatInt(v, 10))
	case bsonx.TypeTimestamp:
		ts, _ := r.TimestampValue()
		fmt.Fprintf(b, "Timestamp(%d, %d)", ts.Time, ts.Increment)
	default:
		b.WriteString("?")
	}
}
