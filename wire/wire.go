// Package wire implements the framed message protocol spoken on the TCP
// connection: a fixed 16-byte header followed by an opcode-specific body,
// all little-endian on the wire regardless of host byte order.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"sync/atomic"

	"github.com/motoki-oss/docdb/transport"
)

// Opcode identifies the shape of a message body.
type Opcode int32

const (
	OpReply       Opcode = 1
	OpUpdate      Opcode = 2001
	OpInsert      Opcode = 2002
	OpQuery       Opcode = 2004
	OpGetMore     Opcode = 2005
	OpDelete      Opcode = 2006
	OpKillCursors Opcode = 2007
)

func (op Opcode) String() string {
	switch op {
	case OpReply:
		return "REPLY"
	case OpUpdate:
		return "UPDATE"
	case OpInsert:
		return "INSERT"
	case OpQuery:
		return "QUERY"
	case OpGetMore:
		return "GET_MORE"
	case OpDelete:
		return "DELETE"
	case OpKillCursors:
		return "KILL_CURSORS"
	}
	return fmt.Sprintf("Opcode(%d)", int32(op))
}

const (
	headerLen = 16

	// minMessageLen and maxMessageLen bound an incoming message's declared
	// length: below headerLen+a reply's own fixed fields nothing is
	// possible, and above 64MiB something has gone wrong upstream.
	minMessageLen = 36
	maxMessageLen = 64 << 20
)

// Header is the 16-byte preamble on every message.
type Header struct {
	Length     int32
	RequestID  int32
	ResponseTo int32
	OpCode     Opcode
}

var requestIDCounter atomic.Int32

func init() {
	//nolint:gosec // non-cryptographic: only needs to avoid colliding with a peer's own counter
	requestIDCounter.Store(rand.Int31())
}

// NextRequestID returns a process-unique request id for a new outgoing
// message, analogous to the driver's own monotonically increasing counter.
func NextRequestID() int32 {
	return requestIDCounter.Add(1)
}

// Message is a fully framed wire message: header plus body.
type Message struct {
	Header Header
	Body   []byte
}

// Encode serializes header and body into a single little-endian buffer.
func Encode(op Opcode, requestID, responseTo int32, body []byte) []byte {
	buf := make([]byte, headerLen+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(headerLen+len(body))) //nolint:gosec // wire length is always positive and small
	binary.LittleEndian.PutUint32(buf[4:8], uint32(requestID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(responseTo))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(op))
	copy(buf[headerLen:], body)
	return buf
}

// Send writes a framed message to t.
func Send(t transport.Transport, op Opcode, requestID, responseTo int32, body []byte) error {
	buf := Encode(op, requestID, responseTo, body)
	if _, err := t.Write(buf); err != nil {
		return fmt.Errorf("wire: send %s: %w", op, err)
	}
	return nil
}

// Receive reads one framed message from t. The declared length is checked
// against [minMessageLen, maxMessageLen] before the body is read, so a
// corrupt or hostile length prefix cannot trigger an unbounded allocation.
func Receive(t transport.Transport) (Message, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(t, hdr[:]); err != nil {
		return Message{}, fmt.Errorf("wire: read header: %w", err)
	}

	length := int32(binary.LittleEndian.Uint32(hdr[0:4])) //nolint:gosec // truncation is the point: wire field is defined as int32
	if length < minMessageLen || length > maxMessageLen {
		return Message{}, fmt.Errorf("wire: message length %d out of bounds [%d, %d]", length, minMessageLen, maxMessageLen)
	}

	h := Header{
		Length:     length,
		RequestID:  int32(binary.LittleEndian.Uint32(hdr[4:8])),  //nolint:gosec // see above
		ResponseTo: int32(binary.LittleEndian.Uint32(hdr[8:12])), //nolint:gosec // see above
		OpCode:     Opcode(int32(binary.LittleEndian.Uint32(hdr[12:16]))), //nolint:gosec // see above
	}

	bodyLen := int(length) - headerLen
	if bodyLen < 0 {
		return Message{}, fmt.Errorf("wire: message length %d shorter than header", length)
	}
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(t, body); err != nil {
			return Message{}, fmt.Errorf("wire: read body: %w", err)
		}
	}

	return Message{Header: h, Body: body}, nil
}
