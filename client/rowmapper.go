package client

import "github.com/brokersql/cas-go/protocol"

// RowMapper converts a row's raw wire-format column values into
// application-facing values. Its full per-type coercion table is an
// explicit Non-goal (spec.md §1); this is the named seam for a caller to
// plug one in. Grounded on mapper/response.go's ResponseMapper, minus the
// conversion table it implemented.
type RowMapper interface {
	Convert(col protocol.ColumnDescriptor, raw []byte) (interface{}, error)
}

// passthroughMapper returns every value as its raw bytes, making no
// attempt at type conversion.
type passthroughMapper struct{}

// Convert implements RowMapper by returning raw unmodified.
func (passthroughMapper) Convert(col protocol.ColumnDescriptor, raw []byte) (interface{}, error) {
	return raw, nil
}

// DefaultRowMapper is the pass-through RowMapper a Session uses unless the
// caller supplies one of its own.
var DefaultRowMapper RowMapper = passthroughMapper{}

// MapRow applies mapper to every column of row, in column order.
func MapRow(mapper RowMapper, cols []protocol.ColumnDescriptor, row protocol.Row) ([]interface{}, error) {
	out := make([]interface{}, len(cols))
	for i, col := range cols {
		var raw []byte
		if i < len(row) {
			raw = row[i]
		}
		v, err := mapper.Convert(col, raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
