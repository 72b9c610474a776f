package client_test

import (
	"context"
	"testing"

	"github.com/motoki-oss/docdb/bsonx"
	"github.com/motoki-oss/docdb/client"
	"github.com/motoki-oss/docdb/transport"
)

func isMasterReplyBytes(t *testing.T, fill func(b *bsonx.Builder)) []byte {
	t.Helper()
	doc := mustDoc(t, fill)
	return replyFor(t, 0, 0, []bsonx.Document{doc})
}

// TestConnectReplicaSet_DiscoversPrimary simulates: the seed reports a
// "hosts" list; the first host is a secondary; the second host reports
// ismaster=true with a matching setName.
func TestConnectReplicaSet_DiscoversPrimary(t *testing.T) {
	t.Parallel()

	seedMock := transport.NewMock()
	seedMock.QueueResponse(isMasterReplyBytes(t, func(b *bsonx.Builder) {
		_ = b.AppendBool("ok", true)
		if err := b.BeginArray("hosts"); err != nil {
			t.Fatalf("begin array: %v", err)
		}
		_ = b.AppendString("0", "host1:27017")
		_ = b.AppendString("1", "host2:27017")
		if err := b.EndArray(); err != nil {
			t.Fatalf("end array: %v", err)
		}
	}))

	secondaryMock := transport.NewMock()
	secondaryMock.QueueResponse(isMasterReplyBytes(t, func(b *bsonx.Builder) {
		_ = b.AppendBool("ok", true)
		_ = b.AppendBool("ismaster", false)
		_ = b.AppendString("setName", "rs0")
	}))

	primaryMock := transport.NewMock()
	primaryMock.QueueResponse(isMasterReplyBytes(t, func(b *bsonx.Builder) {
		_ = b.AppendBool("ok", true)
		_ = b.AppendBool("ismaster", true)
		_ = b.AppendString("setName", "rs0")
	}))

	dialer := func(ctx context.Context, addr string) (transport.Transport, error) {
		switch addr {
		case "seed:27017":
			return seedMock, nil
		case "host1:27017":
			return secondaryMock, nil
		case "host2:27017":
			return primaryMock, nil
		}
		t.Fatalf("unexpected dial to %q", addr)
		return nil, nil
	}

	conn, err := client.Connect(context.Background(), client.Config{
		ReplicaSet: &client.ReplicaSetConfig{Name: "rs0", Seeds: []string{"seed:27017"}},
		Dialer:     dialer,
	})
	if err != nil {
		t.Fatalf("connect replica set: %v", err)
	}
	if conn.PrimaryAddr() != "host2:27017" {
		t.Fatalf("primary = %q, want host2:27017", conn.PrimaryAddr())
	}
}

// TestConnectReplicaSet_DefaultsMissingPort simulates a "hosts" entry
// reported without a port, which must be dialed against :27017.
func TestConnectReplicaSet_DefaultsMissingPort(t *testing.T) {
	t.Parallel()

	seedMock := transport.NewMock()
	seedMock.QueueResponse(isMasterReplyBytes(t, func(b *bsonx.Builder) {
		_ = b.AppendBool("ok", true)
		if err := b.BeginArray("hosts"); err != nil {
			t.Fatalf("begin array: %v", err)
		}
		_ = b.AppendString("0", "host1")
		if err := b.EndArray(); err != nil {
			t.Fatalf("end array: %v", err)
		}
	}))

	hostMock := transport.NewMock()
	hostMock.QueueResponse(isMasterReplyBytes(t, func(b *bsonx.Builder) {
		_ = b.AppendBool("ok", true)
		_ = b.AppendBool("ismaster", true)
		_ = b.AppendString("setName", "rs0")
	}))

	dialer := func(ctx context.Context, addr string) (transport.Transport, error) {
		switch addr {
		case "seed:27017":
			return seedMock, nil
		case "host1:27017":
			return hostMock, nil
		}
		t.Fatalf("unexpected dial to %q", addr)
		return nil, nil
	}

	conn, err := client.Connect(context.Background(), client.Config{
		ReplicaSet: &client.ReplicaSetConfig{Name: "rs0", Seeds: []string{"seed:27017"}},
		Dialer:     dialer,
	})
	if err != nil {
		t.Fatalf("connect replica set: %v", err)
	}
	if conn.PrimaryAddr() != "host1:27017" {
		t.Fatalf("primary = %q, want host1:27017", conn.PrimaryAddr())
	}
}

func TestConnectReplicaSet_BadSetNameRejected(t *testing.T) {
	t.Parallel()

	seedMock := transport.NewMock()
	seedMock.QueueResponse(isMasterReplyBytes(t, func(b *bsonx.Builder) {
		_ = b.AppendBool("ok", true)
		if err := b.BeginArray("hosts"); err != nil {
			t.Fatalf("begin array: %v", err)
		}
		_ = b.AppendString("0", "host1:27017")
		if err := b.EndArray(); err != nil {
			t.Fatalf("end array: %v", err)
		}
	}))

	hostMock := transport.NewMock()
	hostMock.QueueResponse(isMasterReplyBytes(t, func(b *bsonx.Builder) {
		_ = b.AppendBool("ok", true)
		_ = b.AppendBool("ismaster", true)
		_ = b.AppendString("setName", "other-set")
	}))

	dialer := func(ctx context.Context, addr string) (transport.Transport, error) {
		switch addr {
		case "seed:27017":
			return seedMock, nil
		case "host1:27017":
			return hostMock, nil
		}
		t.Fatalf("unexpected dial to %q", addr)
		return nil, nil
	}

	_, err := client.Connect(context.Background(), client.Config{
		ReplicaSet: &client.ReplicaSetConfig{Name: "rs0", Seeds: []string{"seed:27017"}},
		Dialer:     dialer,
	})
	if err == nil {
		t.Fatalf("expected bad-set-name error")
	}
}
