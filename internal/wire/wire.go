// Package wire implements the length-prefixed frame envelope, the request
// flag / response status bytes, and the row encoding shared by the server
// (internal/server) and the thin client library (internal/dbclient).
// Explicit length framing means a request can never be silently truncated
// by a fixed read buffer.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/d-bee/dbee/internal/dbeeerr"
	"github.com/d-bee/dbee/internal/types"
)

// Request flags, sent as the leading byte of every frame after the
// credential frame.
const (
	FlagQuery     byte = 0x00
	FlagCursor    byte = 0x01
	FlagNewDB     byte = 0x02
	FlagGetKey    byte = 0x03
	FlagTerminate byte = 0x04
	FlagDeleteDB  byte = 0x05
)

// Response status bytes.
const (
	StatusRow byte = 0
	StatusOK  byte = 1
	StatusErr byte = 2
)

// maxFrameLen bounds a single frame's body so a malformed length prefix
// cannot force an unbounded allocation.
const maxFrameLen = 64 << 20

// ReadRawFrame reads one length-prefixed frame and returns its body
// verbatim (used for the credential exchange, which carries no leading
// flag/status byte).
func ReadRawFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, nil
	}
	if n > maxFrameLen {
		return nil, dbeeerr.Newf(dbeeerr.InvalidInput, "frame length %d exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteRawFrame writes body as one length-prefixed frame.
func WriteRawFrame(w io.Writer, body []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame reads one frame and splits its body into the leading
// flag/status byte and the remaining payload.
func ReadFrame(r io.Reader) (tag byte, payload []byte, err error) {
	body, err := ReadRawFrame(r)
	if err != nil {
		return 0, nil, err
	}
	if len(body) == 0 {
		return 0, nil, dbeeerr.New(dbeeerr.InvalidInput, "empty frame")
	}
	return body[0], body[1:], nil
}

// WriteFrame writes tag followed by payload as one length-prefixed frame.
func WriteFrame(w io.Writer, tag byte, payload []byte) error {
	body := make([]byte, 1+len(payload))
	body[0] = tag
	copy(body[1:], payload)
	return WriteRawFrame(w, body)
}

// EncodeClientCredential builds the client credential frame body: a
// length-prefixed database name followed by the raw key bytes, so a dot
// in the database name cannot misparse.
func EncodeClientCredential(dbName, key string) []byte {
	buf := make([]byte, 0, 1+len(dbName)+len(key))
	buf = append(buf, byte(len(dbName)))
	buf = append(buf, dbName...)
	buf = append(buf, key...)
	return buf
}

// DecodeClientCredential is the inverse of EncodeClientCredential.
func DecodeClientCredential(body []byte) (dbName, key string, err error) {
	if len(body) < 1 {
		return "", "", dbeeerr.New(dbeeerr.InvalidInput, "credential frame too short")
	}
	n := int(body[0])
	if len(body) < 1+n {
		return "", "", dbeeerr.New(dbeeerr.InvalidInput, "credential frame truncated")
	}
	return string(body[1 : 1+n]), string(body[1+n:]), nil
}

// EncodeRow renders a row as a sequence of
// length(u64 le) || type(u64 le) || bytes(length) column encodings.
// types.Kind's Number=0/Text=1 numbering is chosen to match the wire
// type byte exactly, so no translation is needed here.
func EncodeRow(row types.Row) []byte {
	var out []byte
	for _, v := range row {
		b := v.Bytes()
		var head [16]byte
		binary.LittleEndian.PutUint64(head[0:8], uint64(len(b)))
		binary.LittleEndian.PutUint64(head[8:16], uint64(v.Kind))
		out = append(out, head[:]...)
		out = append(out, b...)
	}
	return out
}

// DecodeRow reconstructs a row from its wire encoding. Unlike the on-disk
// row codec, no schema is needed: each column carries its own type tag.
func DecodeRow(buf []byte) (types.Row, error) {
	var row types.Row
	for len(buf) > 0 {
		if len(buf) < 16 {
			return nil, dbeeerr.New(dbeeerr.InvalidInput, "truncated row encoding")
		}
		length := binary.LittleEndian.Uint64(buf[0:8])
		kind := binary.LittleEndian.Uint64(buf[8:16])
		buf = buf[16:]
		if uint64(len(buf)) < length {
			return nil, dbeeerr.New(dbeeerr.InvalidInput, "truncated row column")
		}
		v, err := types.FromBytes(types.Kind(kind), buf[:length])
		if err != nil {
			return nil, err
		}
		row = append(row, v)
		buf = buf[length:]
	}
	return row, nil
}
