package taplog_test

import (
	"testing"
	"time"

	"github.com/motoki-oss/docdb/taplog"
	"github.com/motoki-oss/docdb/wire"
)

func TestBroker_PublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	b := taplog.New(4)
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	ev := taplog.Event{Op: wire.OpQuery, Namespace: "test.coll", StartedAt: time.Unix(0, 0)}
	b.Publish(ev)

	got1 := <-ch1
	got2 := <-ch2
	if got1.Namespace != "test.coll" || got2.Namespace != "test.coll" {
		t.Fatalf("event not delivered to both subscribers: %+v %+v", got1, got2)
	}
}

func TestBroker_PublishDropsOnFullChannelRatherThanBlocking(t *testing.T) {
	t.Parallel()

	b := taplog.New(1)
	ch, unsub := b.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for range 10 {
			b.Publish(taplog.Event{Namespace: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked on a full subscriber channel")
	}
	<-ch
}

func TestBroker_UnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := taplog.New(1)
	ch, unsub := b.Subscribe()
	unsub()

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
}
