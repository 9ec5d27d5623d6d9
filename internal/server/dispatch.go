package server

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/d-bee/dbee/internal/catalog"
	"github.com/d-bee/dbee/internal/dbeeerr"
	"github.com/d-bee/dbee/internal/executor"
	"github.com/d-bee/dbee/internal/query"
	"github.com/d-bee/dbee/internal/wire"
)

var okPayload = []byte("successful")

// handleOneRequest reads exactly one framed request from cs, dispatches
// it, and writes exactly one framed response. A non-nil error means the
// connection should be dropped (EOF, a malformed frame, or a write
// failure); errors produced by executing a well-formed request are
// instead reported to the client as a status-2 response, keeping the
// connection open.
func (s *Server) handleOneRequest(cs *connState) error {
	tag, payload, err := wire.ReadFrame(cs.conn)
	if err != nil {
		return err
	}

	switch cs.kind {
	case kindClient:
		return s.dispatchClient(cs, tag, payload)
	case kindAdmin:
		return s.dispatchAdmin(cs, tag, payload)
	default:
		return dbeeerr.New(dbeeerr.Internal, "connection has no role")
	}
}

func writeError(conn writer, err error) error {
	return wire.WriteFrame(conn, wire.StatusErr, []byte(err.Error()))
}

type writer interface {
	Write(p []byte) (int, error)
}

func (s *Server) dispatchClient(cs *connState, tag byte, payload []byte) error {
	switch tag {
	case wire.FlagQuery:
		return s.handleQuery(cs, string(payload))
	case wire.FlagCursor:
		return s.handleCursor(cs, payload)
	default:
		return writeError(cs.conn, dbeeerr.Newf(dbeeerr.InvalidInput, "unrecognized client flag 0x%02x", tag))
	}
}

func (s *Server) handleQuery(cs *connState, text string) error {
	plan, err := query.Parse(text)
	if err != nil {
		return writeError(cs.conn, err)
	}
	ex, ok := s.getExecutor(cs.dbName)
	if !ok {
		return writeError(cs.conn, dbeeerr.Newf(dbeeerr.NotFound, "database %q does not exist", cs.dbName))
	}
	result, err := ex.Run(plan)
	if err != nil {
		return writeError(cs.conn, err)
	}
	if !result.HasHandle {
		return wire.WriteFrame(cs.conn, wire.StatusOK, okPayload)
	}
	cs.cursorHandles[result.Handle] = true
	body := append(append([]byte(nil), result.Handle[:]...), wire.EncodeRow(result.Row)...)
	return wire.WriteFrame(cs.conn, wire.StatusRow, body)
}

func (s *Server) handleCursor(cs *connState, payload []byte) error {
	if len(payload) != 16 {
		return writeError(cs.conn, dbeeerr.New(dbeeerr.InvalidInput, "cursor handle must be 16 bytes"))
	}
	handle, err := uuid.FromBytes(payload)
	if err != nil {
		return writeError(cs.conn, dbeeerr.Wrap(dbeeerr.InvalidInput, "parse cursor handle", err))
	}
	ex, ok := s.getExecutor(cs.dbName)
	if !ok {
		return writeError(cs.conn, dbeeerr.Newf(dbeeerr.NotFound, "database %q does not exist", cs.dbName))
	}
	row, found, err := ex.Next(handle)
	if err != nil {
		return writeError(cs.conn, err)
	}
	if !found {
		delete(cs.cursorHandles, handle)
		return wire.WriteFrame(cs.conn, wire.StatusOK, okPayload)
	}
	return wire.WriteFrame(cs.conn, wire.StatusRow, wire.EncodeRow(row))
}

func (s *Server) dispatchAdmin(cs *connState, tag byte, payload []byte) error {
	switch tag {
	case wire.FlagNewDB:
		return s.handleNewDB(cs, string(payload))
	case wire.FlagGetKey:
		return s.handleGetKey(cs, string(payload))
	case wire.FlagDeleteDB:
		return s.handleDeleteDB(cs, string(payload))
	case wire.FlagTerminate:
		s.Shutdown()
		return nil
	default:
		return writeError(cs.conn, dbeeerr.Newf(dbeeerr.InvalidInput, "unrecognized admin flag 0x%02x", tag))
	}
}

func (s *Server) handleNewDB(cs *connState, name string) error {
	key, err := s.createDatabase(name)
	if err != nil {
		return writeError(cs.conn, err)
	}
	return wire.WriteFrame(cs.conn, wire.StatusRow, []byte(key))
}

func (s *Server) handleGetKey(cs *connState, name string) error {
	key, ok := s.registry.GetDatabaseKey(name)
	if !ok {
		return wire.WriteFrame(cs.conn, wire.StatusOK, []byte("database does not exist"))
	}
	return wire.WriteFrame(cs.conn, wire.StatusRow, []byte(key))
}

func (s *Server) handleDeleteDB(cs *connState, name string) error {
	if err := s.deleteDatabase(name); err != nil {
		return writeError(cs.conn, err)
	}
	return wire.WriteFrame(cs.conn, wire.StatusOK, okPayload)
}

// createDatabase mints a fresh key, registers the database, and opens its
// executor.
func (s *Server) createDatabase(name string) (string, error) {
	key, err := catalog.GenerateKey()
	if err != nil {
		return "", err
	}
	if err := s.registry.AddDatabase(name, key); err != nil {
		return "", err
	}
	dir := filepath.Join(s.cfg.BaseDir, name)
	ex, err := executor.Open(dir)
	if err != nil {
		return "", err
	}
	s.execMu.Lock()
	s.executors[name] = ex
	s.execMu.Unlock()
	return key, nil
}

// deleteDatabase closes and removes name's executor, deregisters it, and
// deletes its on-disk directory.
func (s *Server) deleteDatabase(name string) error {
	s.execMu.Lock()
	ex, ok := s.executors[name]
	delete(s.executors, name)
	s.execMu.Unlock()

	if err := s.registry.RemoveDatabase(name); err != nil {
		if ok {
			s.execMu.Lock()
			s.executors[name] = ex
			s.execMu.Unlock()
		}
		return err
	}
	if ok {
		ex.Close()
	}
	return os.RemoveAll(filepath.Join(s.cfg.BaseDir, name))
}
