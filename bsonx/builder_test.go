package bsonx_test

import (
	"bytes"
	"testing"

	"github.com/motoki-oss/docdb/bsonx"
)

func TestBuilder_EmptyDocument(t *testing.T) {
	t.Parallel()

	b := bsonx.NewBuilder()
	doc, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	want := []byte{0x05, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(doc, want) {
		t.Fatalf("empty document = % x, want % x", []byte(doc), want)
	}
}

func TestBuilder_HelloWorld(t *testing.T) {
	t.Parallel()

	b := bsonx.NewBuilder()
	if err := b.AppendString("hello", "world"); err != nil {
		t.Fatalf("append string: %v", err)
	}
	doc, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	want := []byte{
		0x16, 0x00, 0x00, 0x00,
		0x02,
		'h', 'e', 'l', 'l', 'o', 0x00,
		0x06, 0x00, 0x00, 0x00,
		'w', 'o', 'r', 'l', 'd', 0x00,
		0x00,
	}
	if !bytes.Equal(doc, want) {
		t.Fatalf("{hello:\"world\"} = % x, want % x", []byte(doc), want)
	}
	if len(doc) != 22 {
		t.Fatalf("len = %d, want 22", len(doc))
	}
}

func TestBuilder_IntAndDouble(t *testing.T) {
	t.Parallel()

	b := bsonx.NewBuilder()
	if err := b.AppendInt32("a", 1); err != nil {
		t.Fatalf("append int32: %v", err)
	}
	if err := b.AppendDouble("b", 2.5); err != nil {
		t.Fatalf("append double: %v", err)
	}
	doc, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if len(doc) != 23 {
		t.Fatalf("len = %d, want 23", len(doc))
	}
	if doc[4] != 0x10 {
		t.Fatalf("first tag = 0x%02x, want 0x10", doc[4])
	}
	if doc[4+1+2+4] != 0x01 {
		t.Fatalf("second tag = 0x%02x, want 0x01", doc[4+1+2+4])
	}

	r := bsonx.NewReader(doc)
	tag, err := r.Next()
	if err != nil || tag != bsonx.TypeInt32 {
		t.Fatalf("first tag = %v, err=%v", tag, err)
	}
	v, err := r.Int32Value()
	if err != nil || v != 1 {
		t.Fatalf("int32 value = %d, err=%v", v, err)
	}

	tag, err = r.Next()
	if err != nil || tag != bsonx.TypeDouble {
		t.Fatalf("second tag = %v, err=%v", tag, err)
	}
	d, err := r.Double()
	if err != nil || d != 2.5 {
		t.Fatalf("double value = %v, err=%v", d, err)
	}
}

func TestBuilder_Array(t *testing.T) {
	t.Parallel()

	inner := bsonx.NewBuilder()
	if err := inner.AppendInt32("0", 10); err != nil {
		t.Fatalf("append 0: %v", err)
	}
	if err := inner.AppendInt32("1", 20); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	arr, err := inner.Finalize()
	if err != nil {
		t.Fatalf("finalize inner: %v", err)
	}

	b := bsonx.NewBuilder()
	if err := b.AppendArray("arr", arr); err != nil {
		t.Fatalf("append array: %v", err)
	}
	doc, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if len(doc) != 29 {
		t.Fatalf("len = %d, want 29", len(doc))
	}

	r := bsonx.NewReader(doc)
	tag, err := r.Next()
	if err != nil || tag != bsonx.TypeArray {
		t.Fatalf("tag = %v, err = %v", tag, err)
	}
	sub, err := r.SubReader()
	if err != nil {
		t.Fatalf("sub reader: %v", err)
	}
	names := []string{"0", "1"}
	vals := []int32{10, 20}
	for i := range names {
		st, err := sub.Next()
		if err != nil || st != bsonx.TypeInt32 {
			t.Fatalf("sub[%d] tag = %v, err=%v", i, st, err)
		}
		if sub.Name() != names[i] {
			t.Fatalf("sub[%d] name = %q, want %q", i, sub.Name(), names[i])
		}
		v, err := sub.Int32Value()
		if err != nil || v != vals[i] {
			t.Fatalf("sub[%d] value = %d, err=%v", i, v, err)
		}
	}
}

func TestBuilder_BeginEndNested(t *testing.T) {
	t.Parallel()

	b := bsonx.NewBuilder()
	if err := b.BeginDocument("inner"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := b.AppendBool("flag", true); err != nil {
		t.Fatalf("append bool: %v", err)
	}
	if err := b.EndDocument(); err != nil {
		t.Fatalf("end: %v", err)
	}
	doc, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	r := bsonx.NewReader(doc)
	tag, err := r.Next()
	if err != nil || tag != bsonx.TypeDocument {
		t.Fatalf("tag = %v, err=%v", tag, err)
	}
	sub, err := r.SubReader()
	if err != nil {
		t.Fatalf("sub reader: %v", err)
	}
	st, err := sub.Next()
	if err != nil || st != bsonx.TypeBool {
		t.Fatalf("sub tag = %v, err=%v", st, err)
	}
	v, err := sub.BoolValue()
	if err != nil || !v {
		t.Fatalf("bool = %v, err=%v", v, err)
	}
}

func TestBuilder_FinalizeIsIdempotentAndRejectsFurtherAppends(t *testing.T) {
	t.Parallel()

	b := bsonx.NewBuilder()
	first, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	second, err := b.Finalize()
	if err != nil || !bytes.Equal(first, second) {
		t.Fatalf("second finalize = % x, %v; want % x, nil", []byte(second), err, []byte(first))
	}
	if err := b.AppendInt32("x", 1); err == nil {
		t.Fatalf("expected error appending after finalize")
	}
}

func TestBuilder_FieldNameSurfaceChecks(t *testing.T) {
	t.Parallel()

	b := bsonx.NewBuilder()
	if err := b.AppendInt32("a.b", 1); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := b.AppendInt32("$set", 1); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := b.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if !b.Err().Has(bsonx.ErrFieldHasDot) {
		t.Fatalf("expected FIELD_HAS_DOT set")
	}
	if !b.Err().Has(bsonx.ErrFieldInitDollar) {
		t.Fatalf("expected FIELD_INIT_DOLLAR set")
	}
}

func TestBuilder_NotUTF8(t *testing.T) {
	t.Parallel()

	b := bsonx.NewBuilder()
	bad := string([]byte{0xff, 0xfe})
	if err := b.AppendString("s", bad); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := b.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !b.Err().Has(bsonx.ErrNotUTF8) {
		t.Fatalf("expected NOT_UTF8 set")
	}
}

// TestBuilder_LengthSelfConsistency checks invariant 1 from the spec across
// a handful of shapes.
func TestBuilder_LengthSelfConsistency(t *testing.T) {
	t.Parallel()

	build := func(fill func(b *bsonx.Builder)) bsonx.Document {
		b := bsonx.NewBuilder()
		fill(b)
		doc, err := b.Finalize()
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		return doc
	}

	docs := []bsonx.Document{
		build(func(b *bsonx.Builder) {}),
		build(func(b *bsonx.Builder) { _ = b.AppendString("hello", "world") }),
		build(func(b *bsonx.Builder) {
			_ = b.AppendInt32("a", 1)
			_ = b.AppendDouble("b", 2.5)
		}),
	}

	for i, d := range docs {
		if d.Len() != len(d) {
			t.Fatalf("doc %d: declared length %d != actual %d", i, d.Len(), len(d))
		}
		if d[len(d)-1] != 0 {
			t.Fatalf("doc %d: missing terminator", i)
		}
	}
}
