// Package request builds the opcode-specific message bodies the wire
// protocol sends: insert, update, delete, query, get-more, and kill-cursors.
// Each constructor computes its body length up front, exactly as the
// original driver does, rather than growing a buffer incrementally.
package request

import (
	"encoding/binary"
	"fmt"

	"github.com/motoki-oss/docdb/bsonx"
)

// UpdateFlag controls mongo_update-style update semantics.
type UpdateFlag int32

const (
	UpdateUpsert UpdateFlag = 1 << 0
	UpdateMulti  UpdateFlag = 1 << 1
)

// DeleteFlag controls delete semantics.
type DeleteFlag int32

const (
	DeleteSingleRemove DeleteFlag = 1 << 0
)

// QueryFlag controls query semantics.
type QueryFlag int32

const (
	QueryTailableCursor  QueryFlag = 1 << 1
	QuerySlaveOK         QueryFlag = 1 << 2
	QueryNoCursorTimeout QueryFlag = 1 << 4
	QueryAwaitData       QueryFlag = 1 << 5
	QueryExhaust         QueryFlag = 1 << 6
	QueryPartial         QueryFlag = 1 << 7
)

func validateNamespace(ns string) error {
	if ns == "" {
		return fmt.Errorf("request: empty namespace")
	}
	return nil
}

// checkSize asserts the writer reached exactly the precomputed size,
// per invariant #6: a mismatch means the length arithmetic above it is
// wrong, not a condition callers can recover from.
func checkSize(buf []byte, size int) error {
	if len(buf) != size {
		return fmt.Errorf("request: internal error: wrote %d bytes, computed size %d", len(buf), size)
	}
	return nil
}

func appendCString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}

func appendInt32(buf []byte, v int32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v)) //nolint:gosec // wire field is defined as int32
	return append(buf, tmp[:]...)
}

func appendInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v)) //nolint:gosec // wire field is defined as int64
	return append(buf, tmp[:]...)
}

// Insert builds the body for an OP_INSERT message inserting the given
// documents into ns ("db.collection").
func Insert(ns string, docs []bsonx.Document) ([]byte, error) {
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}
	size := 4 + len(ns) + 1
	for _, d := range docs {
		size += len(d)
	}
	buf := make([]byte, 0, size)
	buf = appendInt32(buf, 0) // reserved
	buf = appendCString(buf, ns)
	for _, d := range docs {
		buf = append(buf, d...)
	}
	if err := checkSize(buf, size); err != nil {
		return nil, err
	}
	return buf, nil
}

// Update builds the body for an OP_UPDATE message.
func Update(ns string, selector, update bsonx.Document, flags UpdateFlag) ([]byte, error) {
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}
	size := 4 + len(ns) + 1 + 4 + len(selector) + len(update)
	buf := make([]byte, 0, size)
	buf = appendInt32(buf, 0) // reserved
	buf = appendCString(buf, ns)
	buf = appendInt32(buf, int32(flags))
	buf = append(buf, selector...)
	buf = append(buf, update...)
	if err := checkSize(buf, size); err != nil {
		return nil, err
	}
	return buf, nil
}

// Delete builds the body for an OP_DELETE message.
func Delete(ns string, selector bsonx.Document, flags DeleteFlag) ([]byte, error) {
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}
	size := 4 + len(ns) + 1 + 4 + len(selector)
	buf := make([]byte, 0, size)
	buf = appendInt32(buf, 0) // reserved
	buf = appendCString(buf, ns)
	buf = appendInt32(buf, int32(flags))
	buf = append(buf, selector...)
	if err := checkSize(buf, size); err != nil {
		return nil, err
	}
	return buf, nil
}

// Query builds the body for an OP_QUERY message. fields may be nil to
// request all fields.
func Query(ns string, query, fields bsonx.Document, numToSkip, numToReturn int32, flags QueryFlag) ([]byte, error) {
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}
	size := 4 + len(ns) + 1 + 4 + 4 + len(query) + len(fields)
	buf := make([]byte, 0, size)
	buf = appendInt32(buf, int32(flags))
	buf = appendCString(buf, ns)
	buf = appendInt32(buf, numToSkip)
	buf = appendInt32(buf, numToReturn)
	buf = append(buf, query...)
	if fields != nil {
		buf = append(buf, fields...)
	}
	if err := checkSize(buf, size); err != nil {
		return nil, err
	}
	return buf, nil
}

// GetMore builds the body for an OP_GET_MORE message continuing cursorID
// on ns.
func GetMore(ns string, numToReturn int32, cursorID int64) ([]byte, error) {
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}
	size := 4 + len(ns) + 1 + 4 + 8
	buf := make([]byte, 0, size)
	buf = appendInt32(buf, 0) // reserved
	buf = appendCString(buf, ns)
	buf = appendInt32(buf, numToReturn)
	buf = appendInt64(buf, cursorID)
	if err := checkSize(buf, size); err != nil {
		return nil, err
	}
	return buf, nil
}

// KillCursors builds the body for an OP_KILL_CURSORS message.
func KillCursors(cursorIDs []int64) []byte {
	size := 4 + 4 + 8*len(cursorIDs)
	buf := make([]byte, 0, size)
	buf = appendInt32(buf, 0) // reserved
	buf = appendInt32(buf, int32(len(cursorIDs)))
	for _, id := range cursorIDs {
		buf = appendInt64(buf, id)
	}
	return buf
}
