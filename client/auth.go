package client

import (
	"crypto/md5" //nolint:gosec // MD5 is this wire protocol's own challenge/response scheme, not used for security-sensitive hashing elsewhere
	"encoding/hex"
	"fmt"

	"github.com/motoki-oss/docdb/bsonx"
	"github.com/motoki-oss/docdb/request"
)

// passwordDigest computes md5(user + ":mongo:" + pass), the stored
// credential hash, hex-encoded.
func passwordDigest(user, pass string) string {
	sum := md5.Sum([]byte(user + ":mongo:" + pass)) //nolint:gosec // see package-level justification
	return hex.EncodeToString(sum[:])
}

// AddUser upserts a user document with a password digest into
// "<db>.system.users", matching the original driver's add-user protocol
// (modern servers use createUser instead; both remain valid wire-level
// operations, and this one needs no additional round trip).
func (c *Connection) AddUser(db, user, pass string) error {
	digest := passwordDigest(user, pass)

	sel := bsonx.NewBuilder()
	_ = sel.AppendString("user", user)
	selDoc, err := sel.Finalize()
	if err != nil {
		return err
	}

	upd := bsonx.NewBuilder()
	if err := upd.BeginDocument("$set"); err != nil {
		return err
	}
	_ = upd.AppendString("pwd", digest)
	if err := upd.EndDocument(); err != nil {
		return err
	}
	updDoc, err := upd.Finalize()
	if err != nil {
		return err
	}

	return c.Update(db+".system.users", selDoc, updDoc, request.UpdateUpsert)
}

// Authenticate runs the getnonce/authenticate challenge-response sequence
// against db for user/pass.
func (c *Connection) Authenticate(db, user, pass string) error {
	nonceDoc, err := c.simpleIntCommand(db, "getnonce", 1)
	if err != nil {
		return fmt.Errorf("client: authenticate: getnonce: %w", err)
	}
	r := bsonx.NewReader(nonceDoc)
	if _, err := r.Find("nonce"); err != nil {
		return fmt.Errorf("client: authenticate: no nonce in response")
	}
	nonce, err := r.StringValue()
	if err != nil {
		return fmt.Errorf("client: authenticate: nonce field is not a string: %w", err)
	}

	digest := passwordDigest(user, pass)
	key := md5Hex(nonce + user + digest)

	b := bsonx.NewBuilder()
	_ = b.AppendInt32("authenticate", 1)
	_ = b.AppendString("user", user)
	_ = b.AppendString("nonce", nonce)
	_ = b.AppendString("key", key)
	cmd, err := b.Finalize()
	if err != nil {
		return err
	}

	out, err := c.RunCommand(db, cmd)
	if err != nil {
		return fmt.Errorf("client: authenticate: %w", err)
	}
	if !commandSucceeded(out) {
		return fmt.Errorf("client: authenticate: server rejected credentials")
	}
	return nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // see package-level justification in this file
	return hex.EncodeToString(sum[:])
}

func (c *Connection) simpleIntCommand(db, cmdName string, arg int32) (bsonx.Document, error) {
	b := bsonx.NewBuilder()
	_ = b.AppendInt32(cmdName, arg)
	cmd, err := b.Finalize()
	if err != nil {
		return nil, err
	}
	out, err := c.RunCommand(db, cmd)
	if err != nil {
		return nil, err
	}
	if !commandSucceeded(out) {
		return nil, fmt.Errorf("client: command %q failed", cmdName)
	}
	return out, nil
}
