// Package docdb implements a transparent wire-protocol proxy: it sits
// between a client and a real server, forwarding every message
// untouched while capturing each operation as a taplog.Event.
package docdb

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/motoki-oss/docdb/detect"
	"github.com/motoki-oss/docdb/taplog"
)

// Proxy relays a client<->server connection pair, publishing a
// taplog.Event for every captured operation.
type Proxy struct {
	Listen   string
	Upstream string
	Broker   *taplog.Broker
	Detector *detect.Detector
}

// New creates a Proxy. broker and detector may be nil to disable
// publishing or N+1 detection respectively.
func New(listen, upstream string, broker *taplog.Broker, detector *detect.Detector) *Proxy {
	return &Proxy{Listen: listen, Upstream: upstream, Broker: broker, Detector: detector}
}

// ListenAndServe accepts client connections on p.Listen and relays each
// to p.Upstream until ctx is canceled.
func (p *Proxy) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", p.Listen)
	if err != nil {
		return fmt.Errorf("docdb: listen %s: %w", p.Listen, err)
	}
	defer func() { _ = lis.Close() }()

	go func() {
		<-ctx.Done()
		_ = lis.Close()
	}()

	for {
		clientConn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("docdb: accept: %w", err)
		}

		go func() {
			if err := p.handle(ctx, clientConn); err != nil {
				log.Printf("docdb: %v", err)
			}
		}()
	}
}

func (p *Proxy) handle(ctx context.Context, clientConn net.Conn) error {
	var d net.Dialer
	upstreamConn, err := d.DialContext(ctx, "tcp", p.Upstream)
	if err != nil {
		_ = clientConn.Close()
		return fmt.Errorf("dial upstream %s: %w", p.Upstream, err)
	}

	c := newConn(clientConn, upstreamConn, p.Broker, p.Detector)
	return c.relay(ctx)
}
