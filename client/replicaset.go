package client

import (
	"context"
	"fmt"
	"net"

	"github.com/motoki-oss/docdb/bsonx"
)

// defaultHostsPort is the standard port assumed for a discovered host that
// isMaster's "hosts" array reports without one.
const defaultHostsPort = "27017"

// normalizeHostEntry parses a "hosts" entry as host[:port], defaulting the
// port to defaultHostsPort when absent, per spec.md §4.7 step 1.
func normalizeHostEntry(s string) string {
	if _, _, err := net.SplitHostPort(s); err == nil {
		return s
	}
	return net.JoinHostPort(s, defaultHostsPort)
}

// ErrBadSetName is returned when a host's reported replica set name does
// not match the one the caller asked to connect to.
var ErrBadSetName = fmt.Errorf("client: host belongs to a different replica set")

// ErrCannotFindPrimary is returned when no reachable host in the seed or
// discovered-host list reports itself as primary.
var ErrCannotFindPrimary = fmt.Errorf("client: could not find a primary in the replica set")

// connectReplicaSet implements the two-phase discovery the original driver
// uses: dial each seed and collect its "hosts" list from isMaster, then
// dial each discovered host until one answers isMaster true.
func (c *Connection) connectReplicaSet(ctx context.Context) error {
	rs := c.cfg.ReplicaSet

	hosts, err := c.discoverHosts(ctx, rs.Seeds)
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		return ErrCannotFindPrimary
	}

	for _, addr := range hosts {
		t, err := c.cfg.Dialer(ctx, addr)
		if err != nil {
			continue
		}
		c.t = t
		c.primary = addr

		isMaster, setName, err := c.isMasterCheck()
		if err != nil {
			_ = t.Close()
			c.t = nil
			continue
		}
		if rs.Name != "" && setName != "" && setName != rs.Name {
			_ = t.Close()
			c.t = nil
			return ErrBadSetName
		}
		if isMaster {
			return nil
		}
		_ = t.Close()
		c.t = nil
	}

	return ErrCannotFindPrimary
}

// discoverHosts dials each seed in turn, asking for the canonical host
// list from isMaster's "hosts" array, and stops at the first seed whose
// reply carries a non-empty hosts list.
func (c *Connection) discoverHosts(ctx context.Context, seeds []string) ([]string, error) {
	for _, seed := range seeds {
		t, err := c.cfg.Dialer(ctx, seed)
		if err != nil {
			continue
		}
		c.t = t

		out, err := c.isMasterDoc()
		_ = t.Close()
		c.t = nil
		if err != nil {
			continue
		}

		r := bsonx.NewReader(out)
		tag, err := r.Find("hosts")
		if err != nil || tag != bsonx.TypeArray {
			continue
		}
		sub, err := r.SubReader()
		if err != nil {
			continue
		}
		var hosts []string
		for {
			t2, err := sub.Next()
			if err != nil || t2 == bsonx.TypeEOO {
				break
			}
			s, err := sub.StringValue()
			if err != nil {
				continue
			}
			hosts = append(hosts, normalizeHostEntry(s))
		}
		if len(hosts) > 0 {
			return hosts, nil
		}
	}
	return nil, nil
}

func (c *Connection) isMasterDoc() (bsonx.Document, error) {
	b := bsonx.NewBuilder()
	_ = b.AppendInt32("ismaster", 1)
	cmd, err := b.Finalize()
	if err != nil {
		return nil, err
	}
	return c.RunCommand("admin", cmd)
}

// isMasterCheck reports whether the currently connected host is primary
// and, if present, its reported replica set name.
func (c *Connection) isMasterCheck() (isMaster bool, setName string, err error) {
	out, err := c.isMasterDoc()
	if err != nil {
		return false, "", err
	}

	r := bsonx.NewReader(out)
	if tag, err := r.Find("ismaster"); err == nil && tag != bsonx.TypeEOO {
		isMaster = r.AsBool()
	}

	r2 := bsonx.NewReader(out)
	if tag, err := r2.Find("setName"); err == nil && tag == bsonx.TypeString {
		setName, _ = r2.StringValue()
	}

	return isMaster, setName, nil
}

// IsMaster runs the isMaster command and reports the raw response.
func (c *Connection) IsMaster() (bsonx.Document, error) {
	return c.isMasterDoc()
}
