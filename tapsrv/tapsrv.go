// Package tapsrv streams taplog.Event values to connected viewers, framed
// with this repository's own wire codec rather than a second serialization
// format — the tap protocol is a tiny consumer of bsonx/wire, not a new one.
package tapsrv

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/motoki-oss/docdb/bsonx"
	"github.com/motoki-oss/docdb/taplog"
	"github.com/motoki-oss/docdb/wire"
)

// OpTapEvent is the opcode tagging a framed taplog.Event on the tap
// protocol's own connections; it is never sent on a database Connection.
const OpTapEvent wire.Opcode = 9001

// Server accepts viewer connections and forwards every event published to
// its Broker to each connected viewer.
type Server struct {
	broker *taplog.Broker
}

// New creates a Server fed by b.
func New(b *taplog.Broker) *Server {
	return &Server{broker: b}
}

// ListenAndServe accepts connections on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("tapsrv: listen %s: %w", addr, err)
	}
	defer func() { _ = lis.Close() }()

	go func() {
		<-ctx.Done()
		_ = lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tapsrv: accept: %w", err)
		}
		go s.serveViewer(ctx, conn)
	}
}

func (s *Server) serveViewer(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	ch, unsub := s.broker.Subscribe()
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			doc, err := encodeEvent(ev)
			if err != nil {
				log.Printf("tapsrv: encode event: %v", err)
				continue
			}
			buf := wire.Encode(OpTapEvent, wire.NextRequestID(), 0, doc)
			if _, err := conn.Write(buf); err != nil {
				return
			}
		}
	}
}

func encodeEvent(ev taplog.Event) (bsonx.Document, error) {
	b := bsonx.NewBuilder()
	_ = b.AppendString("sessionId", ev.SessionID)
	_ = b.AppendInt32("opCode", int32(ev.Op))
	_ = b.AppendString("op", ev.Op.String())
	_ = b.AppendString("ns", ev.Namespace)
	_ = b.AppendString("rendered", ev.Rendered)
	_ = b.AppendInt64("startedAtMs", ev.StartedAt.UnixMilli())
	_ = b.AppendInt64("durationMs", ev.Duration.Milliseconds())
	_ = b.AppendString("err", ev.Err)
	_ = b.AppendBool("nplus1", ev.NPlus1)
	return b.Finalize()
}

// DecodeEvent decodes a tap event document back into a taplog.Event, for
// use by viewers after reading a framed OpTapEvent message.
func DecodeEvent(doc bsonx.Document) (taplog.Event, error) {
	r := bsonx.NewReader(doc)
	var ev taplog.Event

	for {
		tag, err := r.Next()
		if err != nil {
			return taplog.Event{}, fmt.Errorf("tapsrv: decode event: %w", err)
		}
		if tag == bsonx.TypeEOO {
			break
		}
		switch r.Name() {
		case "sessionId":
			ev.SessionID, _ = r.StringValue()
		case "opCode":
			ev.Op = wire.Opcode(r.AsInt32())
		case "ns":
			ev.Namespace, _ = r.StringValue()
		case "rendered":
			ev.Rendered, _ = r.StringValue()
		case "startedAtMs":
			ev.StartedAt = msToTime(r.AsInt64())
		case "durationMs":
			ev.Duration = msToDuration(r.AsInt64())
		case "err":
			ev.Err, _ = r.StringValue()
		case "nplus1":
			ev.NPlus1 = r.AsBool()
		}
	}
	return ev, nil
}
