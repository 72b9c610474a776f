package docdb

import (
	"testing"

	"github.com/motoki-oss/docdb/bsonx"
	"github.com/motoki-oss/docdb/request"
)

func mustDoc(t *testing.T, fill func(b *bsonx.Builder)) bsonx.Document {
	t.Helper()
	b := bsonx.NewBuilder()
	fill(b)
	d, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return d
}

func TestParseQueryRequest(t *testing.T) {
	t.Parallel()
	q := mustDoc(t, func(b *bsonx.Builder) { _ = b.AppendInt32("_id", 1) })
	body, err := request.Query("test.coll", q, nil, 0, 1, 0)
	if err != nil {
		t.Fatalf("build query: %v", err)
	}

	ns, doc, ok := parseQueryRequest(body)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if ns != "test.coll" {
		t.Fatalf("ns = %q, want test.coll", ns)
	}
	if len(doc) != len(q) {
		t.Fatalf("doc length = %d, want %d", len(doc), len(q))
	}
}

func TestParseNamespaceOnly_Insert(t *testing.T) {
	t.Parallel()
	d := mustDoc(t, func(b *bsonx.Builder) { _ = b.AppendInt32("x", 1) })
	body, err := request.Insert("test.coll", []bsonx.Document{d})
	if err != nil {
		t.Fatalf("build insert: %v", err)
	}

	ns, ok := parseNamespaceOnly(body)
	if !ok || ns != "test.coll" {
		t.Fatalf("ns = %q, ok = %v", ns, ok)
	}
}

func TestParseUpdateRequest(t *testing.T) {
	t.Parallel()
	sel := mustDoc(t, func(b *bsonx.Builder) { _ = b.AppendInt32("_id", 1) })
	upd := mustDoc(t, func(b *bsonx.Builder) { _ = b.AppendInt32("x", 2) })
	body, err := request.Update("test.coll", sel, upd, 0)
	if err != nil {
		t.Fatalf("build update: %v", err)
	}

	ns, doc, ok := parseUpdateRequest(body)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if ns != "test.coll" {
		t.Fatalf("ns = %q, want test.coll", ns)
	}
	if len(doc) != len(sel) {
		t.Fatalf("doc length = %d, want %d", len(doc), len(sel))
	}
}

func TestReadCString_NoNulReturnsFalse(t *testing.T) {
	t.Parallel()
	if _, _, ok := readCString([]byte{'a', 'b', 'c'}); ok {
		t.Fatal("expected false for missing NUL terminator")
	}
}

func TestBsonDocLen_RejectsTruncated(t *testing.T) {
	t.Parallel()
	if _, ok := bsonDocLen([]byte{100, 0, 0, 0}); ok {
		t.Fatal("expected false when declared length exceeds buffer")
	}
}
