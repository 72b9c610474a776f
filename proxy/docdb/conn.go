package docdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/motoki-oss/docdb/bsonx"
	"github.com/motoki-oss/docdb/detect"
	"github.com/motoki-oss/docdb/render"
	"github.com/motoki-oss/docdb/taplog"
	"github.com/motoki-oss/docdb/wire"
)

// conn manages bidirectional relay and protocol capture for a single
// client<->upstream connection pair.
type conn struct {
	clientConn   net.Conn
	upstreamConn net.Conn
	broker       *taplog.Broker
	detector     *detect.Detector

	mu      sync.Mutex
	pending map[int32]*pendingOp
}

type pendingOp struct {
	op        wire.Opcode
	namespace string
	query     bsonx.Document
	startedAt time.Time
}

func newConn(clientConn, upstreamConn net.Conn, broker *taplog.Broker, detector *detect.Detector) *conn {
	return &conn{
		clientConn:   clientConn,
		upstreamConn: upstreamConn,
		broker:       broker,
		detector:     detector,
		pending:      make(map[int32]*pendingOp),
	}
}

func (c *conn) relay(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- c.relayClientToUpstream(ctx) }()
	go func() { errCh <- c.relayUpstreamToClient(ctx) }()

	err := <-errCh
	_ = c.clientConn.Close()
	_ = c.upstreamConn.Close()
	<-errCh

	return err
}

func (c *conn) relayClientToUpstream(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return fmt.Errorf("docdb: client relay: %w", ctx.Err())
		}

		msg, err := wire.Receive(c.clientConn)
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			return fmt.Errorf("docdb: receive from client: %w", err)
		}

		c.captureRequest(msg)

		buf := wire.Encode(msg.Header.OpCode, msg.Header.RequestID, msg.Header.ResponseTo, msg.Body)
		if _, err := c.upstreamConn.Write(buf); err != nil {
			if isClosedErr(err) {
				return nil
			}
			return fmt.Errorf("docdb: send to upstream: %w", err)
		}
	}
}

func (c *conn) relayUpstreamToClient(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return fmt.Errorf("docdb: upstream relay: %w", ctx.Err())
		}

		msg, err := wire.Receive(c.upstreamConn)
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			return fmt.Errorf("docdb: receive from upstream: %w", err)
		}

		c.captureResponse(msg)

		buf := wire.Encode(msg.Header.OpCode, msg.Header.RequestID, msg.Header.ResponseTo, msg.Body)
		if _, err := c.clientConn.Write(buf); err != nil {
			if isClosedErr(err) {
				return nil
			}
			return fmt.Errorf("docdb: send to client: %w", err)
		}
	}
}

// captureRequest records the namespace and, where applicable, the query
// document for a client request so a later reply (or lack of one) can be
// turned into an Event.
func (c *conn) captureRequest(msg wire.Message) {
	switch msg.Header.OpCode {
	case wire.OpQuery:
		ns, query, ok := parseQueryRequest(msg.Body)
		if !ok {
			return
		}
		c.trackPending(msg.Header.RequestID, wire.OpQuery, ns, query)

	case wire.OpGetMore:
		ns, ok := parseNamespaceOnly(msg.Body)
		if !ok {
			return
		}
		c.trackPending(msg.Header.RequestID, wire.OpGetMore, ns, nil)

	case wire.OpInsert:
		ns, ok := parseNamespaceOnly(msg.Body)
		if !ok {
			return
		}
		c.emit(wire.OpInsert, ns, nil, time.Now(), "")

	case wire.OpUpdate:
		ns, selector, ok := parseUpdateRequest(msg.Body)
		if !ok {
			return
		}
		c.emit(wire.OpUpdate, ns, selector, time.Now(), "")

	case wire.OpDelete:
		ns, selector, ok := parseDeleteRequest(msg.Body)
		if !ok {
			return
		}
		c.emit(wire.OpDelete, ns, selector, time.Now(), "")
	}
}

func (c *conn) trackPending(reqID int32, op wire.Opcode, ns string, query bsonx.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[reqID] = &pendingOp{op: op, namespace: ns, query: query, startedAt: time.Now()}
}

// captureResponse finalizes and emits the Event for a reply matching an
// earlier request, using the reply's ResponseTo to find it.
func (c *conn) captureResponse(msg wire.Message) {
	if msg.Header.OpCode != wire.OpReply {
		return
	}

	c.mu.Lock()
	p, ok := c.pending[msg.Header.ResponseTo]
	if ok {
		delete(c.pending, msg.Header.ResponseTo)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	errMsg := ""
	if reply, err := wire.ParseReply(msg); err == nil && reply.Flags&wire.ReplyQueryFailure != 0 && len(reply.Documents) > 0 {
		errMsg = render.Document(reply.Documents[0])
	}
	c.emit(p.op, p.namespace, p.query, p.startedAt, errMsg)
}

func (c *conn) emit(op wire.Opcode, ns string, query bsonx.Document, started time.Time, errMsg string) {
	if c.broker == nil {
		return
	}

	ev := taplog.Event{
		Op:        op,
		Namespace: ns,
		StartedAt: started,
		Duration:  time.Since(started),
		Err:       errMsg,
	}
	if query != nil {
		ev.Rendered = render.Document(query)
		if op == wire.OpQuery && c.detector != nil && errMsg == "" {
			r := c.detector.Record(ns, query, started)
			ev.NPlus1 = r.Matched
		}
	}
	c.broker.Publish(ev)
}

// ---------------- request body parsing ----------------

func readCString(b []byte) (string, int, bool) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", 0, false
	}
	return string(b[:i]), i + 1, true
}

func bsonDocLen(b []byte) (int, bool) {
	if len(b) < 4 {
		return 0, false
	}
	n := int(binary.LittleEndian.Uint32(b))
	if n < 5 || n > len(b) {
		return 0, false
	}
	return n, true
}

// parseQueryRequest extracts the namespace and query document from an
// OP_QUERY body: flags(4) + ns(cstring) + numToSkip(4) + numToReturn(4) + query doc.
func parseQueryRequest(body []byte) (ns string, query bsonx.Document, ok bool) {
	if len(body) < 4 {
		return "", nil, false
	}
	rest := body[4:]
	ns, n, ok := readCString(rest)
	if !ok {
		return "", nil, false
	}
	rest = rest[n:]
	if len(rest) < 8 {
		return "", nil, false
	}
	rest = rest[8:]
	docLen, ok := bsonDocLen(rest)
	if !ok {
		return "", nil, false
	}
	return ns, bsonx.Document(rest[:docLen]), true
}

// parseNamespaceOnly extracts the namespace from OP_INSERT/OP_GETMORE
// bodies, both of which start with a 4-byte field followed by the ns
// cstring.
func parseNamespaceOnly(body []byte) (string, bool) {
	if len(body) < 4 {
		return "", false
	}
	ns, _, ok := readCString(body[4:])
	return ns, ok
}

// parseUpdateRequest extracts the namespace and selector document from an
// OP_UPDATE body: zero(4) + ns(cstring) + flags(4) + selector doc + update doc.
func parseUpdateRequest(body []byte) (ns string, selector bsonx.Document, ok bool) {
	if len(body) < 4 {
		return "", nil, false
	}
	rest := body[4:]
	ns, n, ok := readCString(rest)
	if !ok {
		return "", nil, false
	}
	rest = rest[n:]
	if len(rest) < 4 {
		return "", nil, false
	}
	rest = rest[4:]
	docLen, ok := bsonDocLen(rest)
	if !ok {
		return "", nil, false
	}
	return ns, bsonx.Document(rest[:docLen]), true
}

// parseDeleteRequest extracts the namespace and selector document from an
// OP_DELETE body: zero(4) + ns(cstring) + flags(4) + selector doc.
func parseDeleteRequest(body []byte) (ns string, selector bsonx.Document, ok bool) {
	return parseUpdateRequest(body)
}

func isClosedErr(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return strings.Contains(netErr.Err.Error(), "closed")
	}
	return strings.Contains(err.Error(), "closed")
}
