// Package dbclient is the thin client-side wire library: dial, the
// credential handshake, Query/Next, and the admin operations. In this tree
// it is used by cmd/cli and by the server's end-to-end tests, and it is
// usable as a library by anything that speaks to a d-bee server.
package dbclient

import (
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/d-bee/dbee/internal/catalog"
	"github.com/d-bee/dbee/internal/dbeeerr"
	"github.com/d-bee/dbee/internal/types"
	"github.com/d-bee/dbee/internal/wire"
)

// DialTimeout bounds how long Dial/Auth waits for the connection and the
// credential round-trip.
const DialTimeout = 5 * time.Second

// Row is one query result row, annotated with whether more rows can be
// fetched via Next.
type Row struct {
	Values   types.Row
	HasMore  bool
	handle   uuid.UUID
	gotFirst bool
}

// Client is one authenticated connection to a d-bee client or admin port.
type Client struct {
	conn net.Conn
}

// DialClient connects to addr and authenticates as database dbName using
// key.
func DialClient(addr, dbName, key string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, dbeeerr.Wrap(dbeeerr.Storage, "dial", err)
	}
	if err := authenticate(conn, wire.EncodeClientCredential(dbName, key)); err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// DialAdmin connects to addr and authenticates with the admin key.
func DialAdmin(addr, adminKey string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, dbeeerr.Wrap(dbeeerr.Storage, "dial", err)
	}
	if err := authenticate(conn, []byte(adminKey)); err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func authenticate(conn net.Conn, credential []byte) error {
	conn.SetDeadline(time.Now().Add(DialTimeout))
	defer conn.SetDeadline(time.Time{})
	if err := wire.WriteRawFrame(conn, credential); err != nil {
		return dbeeerr.Wrap(dbeeerr.Storage, "send credential", err)
	}
	status, err := wire.ReadRawFrame(conn)
	if err != nil {
		return dbeeerr.Wrap(dbeeerr.Storage, "read auth response", err)
	}
	if len(status) != 1 || status[0] != 0 {
		return dbeeerr.New(dbeeerr.AuthFailed, "authentication rejected")
	}
	return nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Query sends a SQL-like statement and returns its first row, if any.
func (c *Client) Query(text string) (Row, error) {
	if err := wire.WriteFrame(c.conn, wire.FlagQuery, []byte(text)); err != nil {
		return Row{}, dbeeerr.Wrap(dbeeerr.Storage, "send query", err)
	}
	status, payload, err := wire.ReadFrame(c.conn)
	if err != nil {
		return Row{}, dbeeerr.Wrap(dbeeerr.Storage, "read query response", err)
	}
	return decodeQueryResponse(status, payload)
}

func decodeQueryResponse(status byte, payload []byte) (Row, error) {
	switch status {
	case wire.StatusErr:
		return Row{}, dbeeerr.New(dbeeerr.InvalidInput, string(payload))
	case wire.StatusOK:
		return Row{HasMore: false}, nil
	case wire.StatusRow:
		if len(payload) < 16 {
			return Row{}, dbeeerr.New(dbeeerr.Corruption, "row response missing cursor handle")
		}
		handle, err := uuid.FromBytes(payload[:16])
		if err != nil {
			return Row{}, dbeeerr.Wrap(dbeeerr.Corruption, "parse cursor handle", err)
		}
		values, err := wire.DecodeRow(payload[16:])
		if err != nil {
			return Row{}, err
		}
		return Row{Values: values, HasMore: true, handle: handle, gotFirst: true}, nil
	default:
		return Row{}, dbeeerr.Newf(dbeeerr.Corruption, "unknown status byte %d", status)
	}
}

// Next fetches the row after r, resuming r's cursor. Returns HasMore=false
// once the scan is exhausted.
func (c *Client) Next(r Row) (Row, error) {
	if !r.gotFirst {
		return Row{}, dbeeerr.New(dbeeerr.InvalidInput, "no cursor to resume")
	}
	if err := wire.WriteFrame(c.conn, wire.FlagCursor, r.handle[:]); err != nil {
		return Row{}, dbeeerr.Wrap(dbeeerr.Storage, "send cursor request", err)
	}
	status, payload, err := wire.ReadFrame(c.conn)
	if err != nil {
		return Row{}, dbeeerr.Wrap(dbeeerr.Storage, "read cursor response", err)
	}
	switch status {
	case wire.StatusErr:
		return Row{}, dbeeerr.New(dbeeerr.InvalidInput, string(payload))
	case wire.StatusOK:
		return Row{HasMore: false}, nil
	case wire.StatusRow:
		values, err := wire.DecodeRow(payload)
		if err != nil {
			return Row{}, err
		}
		return Row{Values: values, HasMore: true, handle: r.handle, gotFirst: true}, nil
	default:
		return Row{}, dbeeerr.Newf(dbeeerr.Corruption, "unknown status byte %d", status)
	}
}

// AdminClient is an authenticated connection to the admin port.
type AdminClient struct {
	conn net.Conn
}

// DialAdminClient connects and authenticates, returning a handle focused
// on the admin operations rather than Query/Next.
func DialAdminClient(addr, adminKey string) (*AdminClient, error) {
	c, err := DialAdmin(addr, adminKey)
	if err != nil {
		return nil, err
	}
	return &AdminClient{conn: c.conn}, nil
}

func (a *AdminClient) Close() error { return a.conn.Close() }

// NewDatabase asks the server to create database name and returns its
// freshly minted key.
func (a *AdminClient) NewDatabase(name string) (string, error) {
	if err := wire.WriteFrame(a.conn, wire.FlagNewDB, []byte(name)); err != nil {
		return "", dbeeerr.Wrap(dbeeerr.Storage, "send new-db", err)
	}
	status, payload, err := wire.ReadFrame(a.conn)
	if err != nil {
		return "", dbeeerr.Wrap(dbeeerr.Storage, "read new-db response", err)
	}
	if status == wire.StatusErr {
		return "", dbeeerr.New(dbeeerr.AlreadyExists, string(payload))
	}
	if len(payload) != catalog.KeyLength {
		return "", dbeeerr.Newf(dbeeerr.Corruption, "key response has %d bytes, want %d", len(payload), catalog.KeyLength)
	}
	return string(payload), nil
}

// GetKey asks the server for name's existing key.
func (a *AdminClient) GetKey(name string) (string, bool, error) {
	if err := wire.WriteFrame(a.conn, wire.FlagGetKey, []byte(name)); err != nil {
		return "", false, dbeeerr.Wrap(dbeeerr.Storage, "send get-key", err)
	}
	status, payload, err := wire.ReadFrame(a.conn)
	if err != nil {
		return "", false, dbeeerr.Wrap(dbeeerr.Storage, "read get-key response", err)
	}
	switch status {
	case wire.StatusErr:
		return "", false, dbeeerr.New(dbeeerr.Internal, string(payload))
	case wire.StatusOK:
		return "", false, nil
	case wire.StatusRow:
		return string(payload), true, nil
	default:
		return "", false, dbeeerr.Newf(dbeeerr.Corruption, "unknown status byte %d", status)
	}
}

// DeleteDatabase asks the server to delete name.
func (a *AdminClient) DeleteDatabase(name string) error {
	if err := wire.WriteFrame(a.conn, wire.FlagDeleteDB, []byte(name)); err != nil {
		return dbeeerr.Wrap(dbeeerr.Storage, "send delete-db", err)
	}
	status, payload, err := wire.ReadFrame(a.conn)
	if err != nil {
		return dbeeerr.Wrap(dbeeerr.Storage, "read delete-db response", err)
	}
	if status == wire.StatusErr {
		return dbeeerr.New(dbeeerr.NotFound, string(payload))
	}
	return nil
}

// Terminate asks the server to shut down gracefully. No response is
// expected.
func (a *AdminClient) Terminate() error {
	return wire.WriteFrame(a.conn, wire.FlagTerminate, nil)
}
