package docdb_test

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/motoki-oss/docdb/bsonx"
	"github.com/motoki-oss/docdb/detect"
	"github.com/motoki-oss/docdb/proxy/docdb"
	"github.com/motoki-oss/docdb/request"
	"github.com/motoki-oss/docdb/taplog"
	"github.com/motoki-oss/docdb/wire"
)

// fakeUpstream accepts one connection, reads one OP_QUERY, and replies
// with a single-document OP_REPLY carrying the same request id.
func fakeUpstream(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		msg, err := wire.Receive(conn)
		if err != nil {
			return
		}

		doc := bsonx.NewBuilder()
		_ = doc.AppendInt32("ok", 1)
		d, _ := doc.Finalize()

		body := make([]byte, 20)
		binary.LittleEndian.PutUint32(body[16:20], 1)
		body = append(body, d...)

		buf := wire.Encode(wire.OpReply, 1, msg.Header.RequestID, body)
		_, _ = conn.Write(buf)
	}()

	t.Cleanup(func() { _ = lis.Close() })
	return lis.Addr().String()
}

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()
	return addr
}

func TestProxy_RelaysQueryAndPublishesEvent(t *testing.T) {
	t.Parallel()

	upstreamAddr := fakeUpstream(t)
	listenAddr := freeAddr(t)

	broker := taplog.New(4)
	sub, unsub := broker.Subscribe()
	defer unsub()

	p := docdb.New(listenAddr, upstreamAddr, broker, detect.New(100, time.Second, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.ListenAndServe(ctx) }()

	var conn net.Conn
	var err error
	for range 50 {
		conn, err = net.Dial("tcp", listenAddr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if conn == nil {
		t.Fatalf("dial proxy: %v", err)
	}
	defer func() { _ = conn.Close() }()

	q := bsonx.NewBuilder()
	_ = q.AppendInt32("_id", 1)
	qd, _ := q.Finalize()
	body, err := request.Query("test.coll", qd, nil, 0, 1, 0)
	if err != nil {
		t.Fatalf("build query: %v", err)
	}

	buf := wire.Encode(wire.OpQuery, 42, 0, body)
	if _, err := conn.Write(buf); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := wire.Receive(conn)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply.Header.ResponseTo != 42 {
		t.Fatalf("responseTo = %d, want 42", reply.Header.ResponseTo)
	}

	select {
	case ev := <-sub:
		if ev.Namespace != "test.coll" || ev.Op != wire.OpQuery {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for captured event")
	}
}
