package client

import (
	"time"

	"github.com/motoki-oss/docdb/bsonx"
	"github.com/motoki-oss/docdb/detect"
	"github.com/motoki-oss/docdb/render"
	"github.com/motoki-oss/docdb/taplog"
	"github.com/motoki-oss/docdb/wire"
)

// Tap, when set on Config, turns on event publishing for a Connection:
// every Insert/Update/Delete/Find becomes a taplog.Event on Broker, and
// Detector (if set) flags repeated query shapes against the same
// namespace.
type Tap struct {
	Broker   *taplog.Broker
	Detector *detect.Detector
}

func (c *Connection) publish(op wire.Opcode, ns string, doc bsonx.Document, started time.Time, err error) {
	if c.cfg.Tap == nil || c.cfg.Tap.Broker == nil {
		return
	}

	ev := taplog.Event{
		SessionID: c.sessionID,
		Op:        op,
		Namespace: ns,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if doc != nil {
		ev.Rendered = render.Document(doc)
	}
	if err != nil {
		ev.Err = err.Error()
	}
	if op == wire.OpQuery && c.cfg.Tap.Detector != nil && doc != nil && err == nil {
		r := c.cfg.Tap.Detector.Record(ns, doc, started)
		ev.NPlus1 = r.Matched
	}

	c.cfg.Tap.Broker.Publish(ev)
}
