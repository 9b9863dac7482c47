// Package zarr reads and writes the subset of the Zarr v2 directory
// format the pipeline produces: nested groups of little-endian float64
// and int64 arrays, zlib-compressed chunks, string attributes, and
// consolidated metadata. It is deliberately not a general Zarr
// implementation; it exists so merged stores can be written and read
// back without listing the store tree on every open.
package zarr

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	groupKey        = ".zgroup"
	attrsKey        = ".zattrs"
	arrayKey        = ".zarray"
	consolidatedKey = ".zmetadata"

	// dimensionsAttr names the array dimensions in attributes, following
	// the common labeled-array convention so downstream tools can align
	// variables without extra configuration.
	dimensionsAttr = "_ARRAY_DIMENSIONS"

	zarrFormat         = 2
	consolidatedFormat = 1

	// DtypeFloat64 and DtypeInt64 are the two element types stores carry.
	DtypeFloat64 = "<f8"
	DtypeInt64   = "<i8"
)

var (
	ErrNotStore      = errors.New("not a zarr store")
	ErrArrayNotFound = errors.New("array not found in store")
	ErrDtype         = errors.New("unsupported dtype")
)

type groupMeta struct {
	ZarrFormat int `json:"zarr_format"`
}

type compressorMeta struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

type arrayMeta struct {
	ZarrFormat int             `json:"zarr_format"`
	Shape      []int           `json:"shape"`
	Chunks     []int           `json:"chunks"`
	Dtype      string          `json:"dtype"`
	Compressor *compressorMeta `json:"compressor"`
	FillValue  any             `json:"fill_value"`
	Order      string          `json:"order"`
	Filters    any             `json:"filters"`
}

type consolidatedMeta struct {
	Metadata map[string]json.RawMessage `json:"metadata"`
	Format   int                        `json:"zarr_consolidated_format"`
}

func (m *arrayMeta) elemSize() (int, error) {
	switch m.Dtype {
	case DtypeFloat64, DtypeInt64:
		return 8, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrDtype, m.Dtype)
}

// chunkCount returns the number of chunks along each dimension.
func (m *arrayMeta) chunkCount() []int {
	counts := make([]int, len(m.Shape))
	for i, n := range m.Shape {
		c := m.Chunks[i]
		counts[i] = (n + c - 1) / c
	}
	return counts
}

// encodeAttrs renders the .zattrs document: string attributes plus the
// dimension labels for arrays.
func encodeAttrs(attrs map[string]string, dims []string) ([]byte, error) {
	doc := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		doc[k] = v
	}
	if len(dims) > 0 {
		doc[dimensionsAttr] = dims
	}
	return json.Marshal(doc)
}

// decodeAttrs parses a .zattrs document back into string attributes and
// dimension labels. Non-string attribute values are rejected: the store
// contract is text-only metadata.
func decodeAttrs(raw []byte) (map[string]string, []string, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, err
	}
	attrs := make(map[string]string, len(doc))
	var dims []string
	for k, v := range doc {
		if k == dimensionsAttr {
			list, ok := v.([]any)
			if !ok {
				return nil, nil, fmt.Errorf("malformed %s attribute", dimensionsAttr)
			}
			for _, d := range list {
				s, ok := d.(string)
				if !ok {
					return nil, nil, fmt.Errorf("malformed %s attribute", dimensionsAttr)
				}
				dims = append(dims, s)
			}
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, nil, fmt.Errorf("attribute %q is not text", k)
		}
		attrs[k] = s
	}
	return attrs, dims, nil
}
