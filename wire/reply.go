package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/motoki-oss/docdb/bsonx"
)

// ReplyFlag bits set in an OP_REPLY's responseFlags field.
type ReplyFlag int32

const (
	ReplyCursorNotFound ReplyFlag = 1 << 0
	ReplyQueryFailure   ReplyFlag = 1 << 1
	ReplyAwaitCapable   ReplyFlag = 1 << 3
)

// Reply is the decoded body of an OP_REPLY message: a fixed 20-byte field
// block followed by zero or more back-to-back BSON documents.
type Reply struct {
	Flags          ReplyFlag
	CursorID       int64
	StartingFrom   int32
	NumberReturned int32
	Documents      []bsonx.Document
}

const replyFixedFieldsLen = 20

// ParseReply decodes an OP_REPLY body. It is an error for msg.Header.OpCode
// to be anything other than OpReply.
func ParseReply(msg Message) (Reply, error) {
	if msg.Header.OpCode != OpReply {
		return Reply{}, fmt.Errorf("wire: parse reply: opcode %s is not REPLY", msg.Header.OpCode)
	}
	if len(msg.Body) < replyFixedFieldsLen {
		return Reply{}, fmt.Errorf("wire: reply body too short: %d bytes", len(msg.Body))
	}

	b := msg.Body
	r := Reply{
		Flags:          ReplyFlag(int32(binary.LittleEndian.Uint32(b[0:4]))), //nolint:gosec // truncation intentional
		CursorID:       int64(binary.LittleEndian.Uint64(b[4:12])),           //nolint:gosec // truncation intentional
		StartingFrom:   int32(binary.LittleEndian.Uint32(b[12:16])),          //nolint:gosec // truncation intentional
		NumberReturned: int32(binary.LittleEndian.Uint32(b[16:20])),          //nolint:gosec // truncation intentional
	}

	rest := b[replyFixedFieldsLen:]
	for len(rest) > 0 {
		if len(rest) < 4 {
			return Reply{}, fmt.Errorf("wire: truncated document in reply body")
		}
		docLen := int(binary.LittleEndian.Uint32(rest[0:4]))
		if docLen < 5 || docLen > len(rest) {
			return Reply{}, fmt.Errorf("wire: invalid embedded document length %d", docLen)
		}
		r.Documents = append(r.Documents, bsonx.Document(rest[:docLen]))
		rest = rest[docLen:]
	}

	if int32(len(r.Documents)) != r.NumberReturned { //nolint:gosec // document count is always small
		return Reply{}, fmt.Errorf("wire: reply declared %d documents, found %d", r.NumberReturned, len(r.Documents))
	}

	return r, nil
}
