package wire_test

import (
	"encoding/binary"
	"testing"

	"github.com/motoki-oss/docdb/bsonx"
	"github.com/motoki-oss/docdb/wire"
)

func buildReplyBody(t *testing.T, flags wire.ReplyFlag, cursorID int64, startingFrom int32, docs []bsonx.Document) []byte {
	t.Helper()
	body := make([]byte, 20)
	binary.LittleEndian.PutUint32(body[0:4], uint32(flags))
	binary.LittleEndian.PutUint64(body[4:12], uint64(cursorID))
	binary.LittleEndian.PutUint32(body[12:16], uint32(startingFrom))
	binary.LittleEndian.PutUint32(body[16:20], uint32(len(docs)))
	for _, d := range docs {
		body = append(body, d...)
	}
	return body
}

func TestParseReply_NoDocuments(t *testing.T) {
	t.Parallel()

	body := buildReplyBody(t, 0, 0, 0, nil)
	msg := wire.Message{Header: wire.Header{OpCode: wire.OpReply}, Body: body}

	r, err := wire.ParseReply(msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(r.Documents) != 0 {
		t.Fatalf("expected 0 documents, got %d", len(r.Documents))
	}
	if r.CursorID != 0 {
		t.Fatalf("cursor id = %d", r.CursorID)
	}
}

func TestParseReply_MultipleDocuments(t *testing.T) {
	t.Parallel()

	b1 := bsonx.NewBuilder()
	_ = b1.AppendInt32("a", 1)
	d1, err := b1.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	b2 := bsonx.NewBuilder()
	_ = b2.AppendInt32("b", 2)
	d2, err := b2.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	body := buildReplyBody(t, 0, 987654321, 0, []bsonx.Document{d1, d2})
	msg := wire.Message{Header: wire.Header{OpCode: wire.OpReply}, Body: body}

	r, err := wire.ParseReply(msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(r.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(r.Documents))
	}
	if r.CursorID != 987654321 {
		t.Fatalf("cursor id = %d", r.CursorID)
	}

	rd := bsonx.NewReader(r.Documents[0])
	tag, err := rd.Next()
	if err != nil || tag != bsonx.TypeInt32 || rd.Name() != "a" {
		t.Fatalf("doc 0 = (%v, %v), err=%v", tag, rd.Name(), err)
	}
}

func TestParseReply_WrongOpcodeRejected(t *testing.T) {
	t.Parallel()

	msg := wire.Message{Header: wire.Header{OpCode: wire.OpQuery}, Body: make([]byte, 20)}
	if _, err := wire.ParseReply(msg); err == nil {
		t.Fatalf("expected error for non-reply opcode")
	}
}

func TestParseReply_DeclaredCountMismatchRejected(t *testing.T) {
	t.Parallel()

	body := make([]byte, 20)
	binary.LittleEndian.PutUint32(body[16:20], 1) // claims 1 document but body has none
	msg := wire.Message{Header: wire.Header{OpCode: wire.OpReply}, Body: body}

	if _, err := wire.ParseReply(msg); err == nil {
		t.Fatalf("expected error for document count mismatch")
	}
}
