// Package client implements the Connection: the per-process, single
// connection handle that issues requests over the wire protocol, tracks
// its own session id, and knows how to rediscover a replica set's primary.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/motoki-oss/docdb/bsonx"
	"github.com/motoki-oss/docdb/cursor"
	"github.com/motoki-oss/docdb/request"
	"github.com/motoki-oss/docdb/transport"
	"github.com/motoki-oss/docdb/wire"
)

// Config describes how a Connection should be established and maintained.
type Config struct {
	// Addr is used for a direct, single-server connection. Mutually
	// exclusive with ReplicaSet.
	Addr string
	// ReplicaSet, if set, triggers seed-based primary discovery instead
	// of a direct connection.
	ReplicaSet *ReplicaSetConfig
	// ConnectTimeout bounds each individual dial attempt.
	ConnectTimeout time.Duration
	// SocketTimeout bounds each individual read/write on an established
	// connection. Zero means no deadline.
	SocketTimeout time.Duration
	// Dialer overrides how a Transport is established; nil uses TCP.
	Dialer transport.Dialer
	// Tap, if set, receives an Event for every request this Connection
	// issues. Nil disables tap publishing entirely.
	Tap *Tap
}

// ReplicaSetConfig names the replica set and its seed hosts for discovery.
type ReplicaSetConfig struct {
	Name  string
	Seeds []string
}

// Connection is a single, non-pooled handle to a server. It is not safe
// for concurrent use by multiple goroutines: like the driver it descends
// from, one Connection serves one caller at a time.
type Connection struct {
	cfg       Config
	t         transport.Transport
	primary   string
	sessionID string

	mu sync.Mutex
}

// Connect establishes a Connection per cfg: a direct dial if cfg.Addr is
// set, or replica-set primary discovery if cfg.ReplicaSet is set.
func Connect(ctx context.Context, cfg Config) (*Connection, error) {
	if cfg.Dialer == nil {
		cfg.Dialer = transport.TCPDialer(cfg.ConnectTimeout)
	}

	c := &Connection{cfg: cfg, sessionID: uuid.New().String()}

	switch {
	case cfg.ReplicaSet != nil:
		if err := c.connectReplicaSet(ctx); err != nil {
			return nil, err
		}
	case cfg.Addr != "":
		t, err := cfg.Dialer(ctx, cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("client: connect %s: %w", cfg.Addr, err)
		}
		c.t = t
		c.primary = cfg.Addr
	default:
		return nil, fmt.Errorf("client: config names neither Addr nor ReplicaSet")
	}

	return c, nil
}

// SessionID identifies this Connection instance across its lifetime, for
// correlating logs with no protocol meaning of its own.
func (c *Connection) SessionID() string { return c.sessionID }

// PrimaryAddr returns the address this Connection is currently talking to.
func (c *Connection) PrimaryAddr() string { return c.primary }

// Close releases the underlying transport.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t == nil {
		return nil
	}
	err := c.t.Close()
	c.t = nil
	return err
}

// Reconnect tears down the current transport and re-establishes it,
// rerunning primary discovery when configured for a replica set.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.t != nil {
		_ = c.t.Close()
		c.t = nil
	}

	if c.cfg.ReplicaSet != nil {
		return c.connectReplicaSet(ctx)
	}
	t, err := c.cfg.Dialer(ctx, c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("client: reconnect %s: %w", c.cfg.Addr, err)
	}
	c.t = t
	c.primary = c.cfg.Addr
	return nil
}

func (c *Connection) applyDeadlines() error {
	if c.cfg.SocketTimeout == 0 {
		return nil
	}
	deadline := time.Now().Add(c.cfg.SocketTimeout)
	if err := c.t.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("client: set read deadline: %w", err)
	}
	if err := c.t.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("client: set write deadline: %w", err)
	}
	return nil
}

// roundTrip sends a message expecting a reply and returns the parsed reply.
func (c *Connection) roundTrip(op wire.Opcode, body []byte) (wire.Reply, error) {
	if c.t == nil {
		return wire.Reply{}, fmt.Errorf("client: not connected")
	}
	if err := c.applyDeadlines(); err != nil {
		return wire.Reply{}, err
	}

	reqID := wire.NextRequestID()
	if err := wire.Send(c.t, op, reqID, 0, body); err != nil {
		return wire.Reply{}, fmt.Errorf("client: %w", err)
	}
	msg, err := wire.Receive(c.t)
	if err != nil {
		return wire.Reply{}, fmt.Errorf("client: %w", err)
	}
	reply, err := wire.ParseReply(msg)
	if err != nil {
		return wire.Reply{}, fmt.Errorf("client: %w", err)
	}
	return reply, nil
}

// sendOnly sends a message with no expected reply (insert/update/delete).
func (c *Connection) sendOnly(op wire.Opcode, body []byte) error {
	if c.t == nil {
		return fmt.Errorf("client: not connected")
	}
	if err := c.applyDeadlines(); err != nil {
		return err
	}
	if err := wire.Send(c.t, op, wire.NextRequestID(), 0, body); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	return nil
}

// Insert sends an OP_INSERT for docs into ns ("db.collection").
func (c *Connection) Insert(ns string, docs ...bsonx.Document) error {
	started := time.Now()
	for _, doc := range docs {
		if err := checkWriteDocument(doc, false); err != nil {
			return err
		}
	}
	body, err := request.Insert(ns, docs)
	if err != nil {
		return err
	}
	err = c.sendOnly(wire.OpInsert, body)
	var first bsonx.Document
	if len(docs) > 0 {
		first = docs[0]
	}
	c.publish(wire.OpInsert, ns, first, started, err)
	return err
}

// Update sends an OP_UPDATE.
func (c *Connection) Update(ns string, selector, update bsonx.Document, flags request.UpdateFlag) error {
	started := time.Now()
	if err := checkWriteDocument(selector, true); err != nil {
		return err
	}
	if err := checkWriteDocument(update, true); err != nil {
		return err
	}
	body, err := request.Update(ns, selector, update, flags)
	if err != nil {
		return err
	}
	err = c.sendOnly(wire.OpUpdate, body)
	c.publish(wire.OpUpdate, ns, selector, started, err)
	return err
}

// Delete sends an OP_DELETE.
func (c *Connection) Delete(ns string, selector bsonx.Document, flags request.DeleteFlag) error {
	started := time.Now()
	if err := checkWriteDocument(selector, true); err != nil {
		return err
	}
	body, err := request.Delete(ns, selector, flags)
	if err != nil {
		return err
	}
	err = c.sendOnly(wire.OpDelete, body)
	c.publish(wire.OpDelete, ns, selector, started, err)
	return err
}

// Find issues an OP_QUERY and returns a Cursor over the results. fields
// may be nil to request the whole document.
func (c *Connection) Find(ns string, query, fields bsonx.Document, numToSkip, numToReturn int32, flags request.QueryFlag) (*cursor.Cursor, error) {
	started := time.Now()
	body, err := request.Query(ns, query, fields, numToSkip, numToReturn, flags)
	if err != nil {
		return nil, err
	}
	reply, err := c.roundTrip(wire.OpQuery, body)
	c.publish(wire.OpQuery, ns, query, started, err)
	if err != nil {
		return nil, err
	}

	var opts []cursor.Option
	if flags&request.QueryTailableCursor != 0 {
		opts = append(opts, cursor.WithTailable())
	}
	return cursor.New(c.t, ns, func() int32 { return wire.NextRequestID() }, reply, opts...), nil
}

// FindOne issues an OP_QUERY limited to a single result and returns the
// first document, or nil if there was none.
func (c *Connection) FindOne(ns string, query, fields bsonx.Document) (bsonx.Document, error) {
	cur, err := c.Find(ns, query, fields, 0, 1, 0)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Destroy() }()

	doc, err := cur.Next()
	if err != nil {
		if errors.Is(err, cursor.ErrExhausted) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

// commandNamespace returns "db.$cmd", the pseudo-collection commands are
// issued against.
func commandNamespace(db string) string {
	return db + ".$cmd"
}

// RunCommand issues a database command and returns the server's response
// document.
func (c *Connection) RunCommand(db string, command bsonx.Document) (bsonx.Document, error) {
	return c.FindOne(commandNamespace(db), command, nil)
}

func commandSucceeded(doc bsonx.Document) bool {
	if doc == nil {
		return false
	}
	r := bsonx.NewReader(doc)
	tag, err := r.Find("ok")
	if err != nil || tag == bsonx.TypeEOO {
		return false
	}
	return r.AsBool()
}

// Count runs the count command for ns's collection, optionally filtered
// by query.
func (c *Connection) Count(ns string, query bsonx.Document) (int64, error) {
	db, coll, err := splitNamespace(ns)
	if err != nil {
		return 0, err
	}

	b := bsonx.NewBuilder()
	_ = b.AppendString("count", coll)
	if query != nil {
		if err := b.AppendDocument("query", query); err != nil {
			return 0, err
		}
	}
	cmd, err := b.Finalize()
	if err != nil {
		return 0, err
	}

	out, err := c.RunCommand(db, cmd)
	if err != nil {
		return 0, err
	}
	if !commandSucceeded(out) {
		return 0, fmt.Errorf("client: count command failed")
	}

	r := bsonx.NewReader(out)
	if _, err := r.Find("n"); err != nil {
		return 0, err
	}
	return r.AsInt64(), nil
}

// DropCollection drops ns's collection.
func (c *Connection) DropCollection(ns string) error {
	db, coll, err := splitNamespace(ns)
	if err != nil {
		return err
	}
	b := bsonx.NewBuilder()
	_ = b.AppendString("drop", coll)
	cmd, err := b.Finalize()
	if err != nil {
		return err
	}
	out, err := c.RunCommand(db, cmd)
	if err != nil {
		return err
	}
	if !commandSucceeded(out) {
		return fmt.Errorf("client: drop collection failed")
	}
	return nil
}

// IndexOption bit flags mirroring the original driver's index-creation
// options.
type IndexOption int

const (
	IndexUnique IndexOption = 1 << iota
	IndexDropDups
	IndexBackground
	IndexSparse
)

// CreateIndex builds an index named by its key fields on ns's collection,
// by inserting a descriptor document into "<db>.system.indexes" and then
// confirming via getLastError, matching the original driver's protocol
// (newer servers use a createIndexes command instead, out of scope here).
func (c *Connection) CreateIndex(ns string, key bsonx.Document, opts IndexOption) error {
	db, coll, err := splitNamespace(ns)
	if err != nil {
		return err
	}

	name, err := indexName(key)
	if err != nil {
		return err
	}

	b := bsonx.NewBuilder()
	if err := b.AppendDocument("key", key); err != nil {
		return err
	}
	_ = b.AppendString("ns", ns)
	_ = b.AppendString("name", name)
	if opts&IndexUnique != 0 {
		_ = b.AppendBool("unique", true)
	}
	if opts&IndexDropDups != 0 {
		_ = b.AppendBool("dropDups", true)
	}
	if opts&IndexBackground != 0 {
		_ = b.AppendBool("background", true)
	}
	if opts&IndexSparse != 0 {
		_ = b.AppendBool("sparse", true)
	}
	indexDoc, err := b.Finalize()
	if err != nil {
		return err
	}

	if err := c.Insert(db+".system.indexes", indexDoc); err != nil {
		return err
	}

	errDoc, err := c.getLastError(db)
	if err != nil {
		return err
	}
	if errDoc != nil {
		return fmt.Errorf("client: create index: %s", errDoc)
	}
	return nil
}

func (c *Connection) getLastError(db string) (bsonx.Document, error) {
	b := bsonx.NewBuilder()
	_ = b.AppendInt32("getlasterror", 1)
	cmd, err := b.Finalize()
	if err != nil {
		return nil, err
	}
	out, err := c.RunCommand(db, cmd)
	if err != nil {
		return nil, err
	}
	r := bsonx.NewReader(out)
	if tag, err := r.Find("err"); err == nil && tag != bsonx.TypeEOO && tag != bsonx.TypeNull {
		return out, nil
	}
	return nil, nil
}

func indexName(key bsonx.Document) (string, error) {
	r := bsonx.NewReader(key)
	var sb strings.Builder
	sb.WriteByte('_')
	for {
		tag, err := r.Next()
		if err != nil {
			return "", err
		}
		if tag == bsonx.TypeEOO {
			break
		}
		sb.WriteString(r.Name())
		sb.WriteByte('_')
	}
	name := sb.String()
	if len(name) > 255 {
		name = name[:255]
	}
	return name, nil
}

func splitNamespace(ns string) (db, coll string, err error) {
	i := strings.IndexByte(ns, '.')
	if i < 0 {
		return "", "", fmt.Errorf("client: namespace %q missing db.collection separator", ns)
	}
	return ns[:i], ns[i+1:], nil
}
