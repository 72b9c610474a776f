// Package cursor implements the client-side cursor state machine: batches
// of documents already in hand, transparent GET_MORE continuation, and
// KILL_CURSORS cleanup on destroy.
package cursor

import (
	"errors"
	"fmt"

	"github.com/motoki-oss/docdb/bsonx"
	"github.com/motoki-oss/docdb/request"
	"github.com/motoki-oss/docdb/transport"
	"github.com/motoki-oss/docdb/wire"
)

// State is the cursor's lifecycle stage.
type State int

const (
	// StateOpen holds an unconsumed batch.
	StateOpen State = iota
	// StateExhausted has consumed its current batch but the server still
	// holds a live cursor id; calling Next triggers a GET_MORE.
	StateExhausted
	// StateDead has no live cursor id and no unconsumed documents.
	StateDead
)

var (
	// ErrExhausted is returned by Next when the server has no cursor id
	// and the current batch has been fully consumed.
	ErrExhausted = errors.New("cursor: exhausted")
	// ErrPending is returned by Next on a tailable cursor when a GET_MORE
	// round-trip returned no new documents yet.
	ErrPending = errors.New("cursor: pending (tailable, no new data)")
	// ErrInvalid is returned by Next on a cursor that has been destroyed.
	ErrInvalid = errors.New("cursor: invalid")
)

// Cursor iterates the documents returned by a query or get-more sequence,
// fetching further batches from t as needed.
type Cursor struct {
	t         transport.Transport
	ns        string
	tailable  bool
	nextReqID func() int32

	batch    []bsonx.Document
	pos      int
	cursorID int64
	current  bsonx.Document
	opened   bool
}

// Option configures a new Cursor.
type Option func(*Cursor)

// WithTailable marks the cursor as tailable: Next returns ErrPending rather
// than ErrExhausted when a get-more returns no documents but the cursor id
// is still live.
func WithTailable() Option {
	return func(c *Cursor) { c.tailable = true }
}

// New wraps the first reply of a query into a Cursor over namespace ns.
func New(t transport.Transport, ns string, nextReqID func() int32, reply wire.Reply, opts ...Option) *Cursor {
	c := &Cursor{
		t:         t,
		ns:        ns,
		nextReqID: nextReqID,
		batch:     reply.Documents,
		cursorID:  reply.CursorID,
		opened:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the cursor's current lifecycle stage.
func (c *Cursor) State() State {
	if !c.opened {
		return StateDead
	}
	if c.pos < len(c.batch) {
		return StateOpen
	}
	if c.cursorID != 0 {
		return StateExhausted
	}
	return StateDead
}

// Next advances to the next document, fetching a new batch via GET_MORE
// when the current one is exhausted and the server still holds a cursor.
func (c *Cursor) Next() (bsonx.Document, error) {
	if !c.opened {
		return nil, ErrInvalid
	}

	if c.pos >= len(c.batch) {
		if c.cursorID == 0 {
			return nil, ErrExhausted
		}
		if err := c.getMore(); err != nil {
			return nil, err
		}
		if c.pos >= len(c.batch) {
			if c.tailable && c.cursorID != 0 {
				return nil, ErrPending
			}
			return nil, ErrExhausted
		}
	}

	doc := c.batch[c.pos]
	c.pos++
	c.current = doc
	return doc, nil
}

// Current returns the document most recently returned by Next.
func (c *Cursor) Current() bsonx.Document { return c.current }

func (c *Cursor) getMore() error {
	body, err := request.GetMore(c.ns, 0, c.cursorID)
	if err != nil {
		return fmt.Errorf("cursor: get more: %w", err)
	}
	reqID := c.nextReqID()
	if err := wire.Send(c.t, wire.OpGetMore, reqID, 0, body); err != nil {
		return fmt.Errorf("cursor: get more: %w", err)
	}
	msg, err := wire.Receive(c.t)
	if err != nil {
		return fmt.Errorf("cursor: get more: %w", err)
	}
	reply, err := wire.ParseReply(msg)
	if err != nil {
		return fmt.Errorf("cursor: get more: %w", err)
	}
	c.batch = reply.Documents
	c.pos = 0
	c.cursorID = reply.CursorID
	return nil
}

// Destroy releases server-side cursor state. It sends KILL_CURSORS only if
// the cursor still holds a live cursor id; calling Destroy more than once
// is a no-op.
func (c *Cursor) Destroy() error {
	if !c.opened {
		return nil
	}
	c.opened = false
	if c.cursorID == 0 {
		return nil
	}
	body := request.KillCursors([]int64{c.cursorID})
	if err := wire.Send(c.t, wire.OpKillCursors, c.nextReqID(), 0, body); err != nil {
		return fmt.Errorf("cursor: destroy: %w", err)
	}
	c.cursorID = 0
	return nil
}
