package server

import (
	"time"

	"github.com/d-bee/dbee/internal/wire"
)

// authTimeout bounds how long the reactor will wait on a connection's
// first (credential) frame before giving up on it, so one slow or
// malicious client cannot stall the single reactor goroutine.
const authTimeout = 5 * time.Second

// authenticate reads and checks the credential frame synchronously, on
// the reactor goroutine: admins present the admin key, clients present a
// database name plus its key. A single zero byte is returned on success,
// one on failure; a failed socket is left for the caller to close.
func (s *Server) authenticate(cs *connState) bool {
	cs.conn.SetReadDeadline(time.Now().Add(authTimeout))
	body, err := wire.ReadRawFrame(cs.conn)
	cs.conn.SetReadDeadline(time.Time{})
	if err != nil {
		return false
	}

	switch cs.kind {
	case kindAdmin:
		if string(body) == s.adminKey {
			wire.WriteRawFrame(cs.conn, []byte{0})
			return true
		}
		wire.WriteRawFrame(cs.conn, []byte{1})
		return false

	case kindClient:
		dbName, key, err := wire.DecodeClientCredential(body)
		if err != nil || !s.registry.CheckKey(dbName, key) {
			wire.WriteRawFrame(cs.conn, []byte{1})
			return false
		}
		cs.dbName = dbName
		wire.WriteRawFrame(cs.conn, []byte{0})
		return true

	default:
		wire.WriteRawFrame(cs.conn, []byte{1})
		return false
	}
}
