package tablestore

import (
	"encoding/binary"

	"github.com/d-bee/dbee/internal/dbeeerr"
	"github.com/d-bee/dbee/internal/types"
)

// encodeRow serializes a row as a column-offset table (offsets from row
// start to the end of each column, col_offset[-1] = k*2) followed by the
// raw column bytes. Unlike the wire codec, there is no per-value type tag
// on disk: types come from the schema.
func encodeRow(row types.Row) []byte {
	k := len(row)
	header := make([]byte, k*2)
	var data []byte
	cumulative := k * 2
	for j, v := range row {
		b := v.Bytes()
		cumulative += len(b)
		binary.LittleEndian.PutUint16(header[j*2:j*2+2], uint16(cumulative))
		data = append(data, b...)
	}
	return append(header, data...)
}

// decodeRow reconstructs a row from its on-disk bytes using schema to
// recover each column's type.
func decodeRow(buf []byte, schema types.Schema) (types.Row, error) {
	k := len(schema)
	if len(buf) < k*2 {
		return nil, dbeeerr.Newf(dbeeerr.Corruption, "row buffer of %d bytes too short for %d columns", len(buf), k)
	}
	row := make(types.Row, k)
	prev := k * 2
	for j := 0; j < k; j++ {
		end := int(binary.LittleEndian.Uint16(buf[j*2 : j*2+2]))
		if end < prev || end > len(buf) {
			return nil, dbeeerr.Newf(dbeeerr.Corruption, "column %d offset %d out of range", j, end)
		}
		v, err := types.FromBytes(schema[j].Type, buf[prev:end])
		if err != nil {
			return nil, err
		}
		row[j] = v
		prev = end
	}
	return row, nil
}
