package zarr

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path"
	"path/filepath"
	"sort"

	"github.com/deepice-data/atlmerge/internal/fsutil"
)

// Reader opens an existing store. It prefers the consolidated metadata
// index; a store without one is walked directory by directory.
type Reader struct {
	fs   fsutil.FileSystem
	root string
	meta map[string]json.RawMessage
}

// Open reads a store's metadata.
func Open(fs fsutil.FileSystem, root string) (*Reader, error) {
	r := &Reader{fs: fs, root: root, meta: make(map[string]json.RawMessage)}

	if doc, err := fs.ReadFile(filepath.Join(root, consolidatedKey)); err == nil {
		var cons consolidatedMeta
		if err := json.Unmarshal(doc, &cons); err != nil {
			return nil, fmt.Errorf("parse %s: %w", consolidatedKey, err)
		}
		r.meta = cons.Metadata
	} else if err := r.walk(""); err != nil {
		return nil, err
	}

	if _, ok := r.meta[groupKey]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotStore, root)
	}
	return r, nil
}

// walk collects metadata documents by listing the store tree. Used only
// for stores missing consolidated metadata.
func (r *Reader) walk(rel string) error {
	entries, err := r.fs.ReadDir(filepath.Join(r.root, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("list %s: %w", rel, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		child := name
		if rel != "" {
			child = path.Join(rel, name)
		}
		if entry.IsDir() {
			if err := r.walk(child); err != nil {
				return err
			}
			continue
		}
		switch name {
		case groupKey, attrsKey, arrayKey:
			doc, err := r.fs.ReadFile(filepath.Join(r.root, filepath.FromSlash(child)))
			if err != nil {
				return fmt.Errorf("read %s: %w", child, err)
			}
			r.meta[child] = json.RawMessage(doc)
		}
	}
	return nil
}

// Arrays lists array paths (group-qualified, slash-separated), sorted.
func (r *Reader) Arrays() []string {
	var out []string
	for key := range r.meta {
		if path.Base(key) == arrayKey {
			out = append(out, path.Dir(key))
		}
	}
	sort.Strings(out)
	return out
}

// Groups lists group paths, sorted; the root group is the empty string.
func (r *Reader) Groups() []string {
	var out []string
	for key := range r.meta {
		if path.Base(key) == groupKey {
			dir := path.Dir(key)
			if dir == "." {
				dir = ""
			}
			out = append(out, dir)
		}
	}
	sort.Strings(out)
	return out
}

// Attrs returns the string attributes and dimension labels of an object
// (group or array path; empty string for the root group).
func (r *Reader) Attrs(obj string) (map[string]string, []string, error) {
	key := attrsKey
	if obj != "" {
		key = path.Join(obj, attrsKey)
	}
	raw, ok := r.meta[key]
	if !ok {
		return map[string]string{}, nil, nil
	}
	return decodeAttrs(raw)
}

// Shape returns the shape and dtype of an array.
func (r *Reader) Shape(arr string) ([]int, string, error) {
	meta, err := r.arrayMeta(arr)
	if err != nil {
		return nil, "", err
	}
	return meta.Shape, meta.Dtype, nil
}

// ReadFloat64 reads a whole float64 array in row-major order.
func (r *Reader) ReadFloat64(arr string) ([]int, []float64, error) {
	meta, raw, err := r.readRaw(arr, DtypeFloat64)
	if err != nil {
		return nil, nil, err
	}
	values := make([]float64, len(raw)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return meta.Shape, values, nil
}

// ReadInt64 reads a whole int64 array in row-major order.
func (r *Reader) ReadInt64(arr string) ([]int, []int64, error) {
	meta, raw, err := r.readRaw(arr, DtypeInt64)
	if err != nil {
		return nil, nil, err
	}
	values := make([]int64, len(raw)/8)
	for i := range values {
		values[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return meta.Shape, values, nil
}

func (r *Reader) arrayMeta(arr string) (*arrayMeta, error) {
	raw, ok := r.meta[path.Join(arr, arrayKey)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArrayNotFound, arr)
	}
	var meta arrayMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata of %s: %w", arr, err)
	}
	if len(meta.Shape) < 1 || len(meta.Shape) > 2 || len(meta.Chunks) != len(meta.Shape) {
		return nil, fmt.Errorf("array %s: unsupported shape %v chunks %v", arr, meta.Shape, meta.Chunks)
	}
	if len(meta.Shape) == 2 && meta.Chunks[1] != meta.Shape[1] {
		return nil, fmt.Errorf("array %s: split trailing dimension unsupported", arr)
	}
	if meta.Compressor == nil || meta.Compressor.ID != "zlib" {
		return nil, fmt.Errorf("array %s: unsupported compressor", arr)
	}
	return &meta, nil
}

// readRaw assembles the decompressed little-endian bytes of an array,
// trimming edge-chunk padding.
func (r *Reader) readRaw(arr, wantDtype string) (*arrayMeta, []byte, error) {
	meta, err := r.arrayMeta(arr)
	if err != nil {
		return nil, nil, err
	}
	if meta.Dtype != wantDtype {
		return nil, nil, fmt.Errorf("%w: array %s is %q, want %q", ErrDtype, arr, meta.Dtype, wantDtype)
	}
	elem, err := meta.elemSize()
	if err != nil {
		return nil, nil, err
	}

	rows := meta.Shape[0]
	width := 1
	if len(meta.Shape) == 2 {
		width = meta.Shape[1]
	}
	chunkRows := meta.Chunks[0]
	nChunks := meta.chunkCount()[0]

	out := make([]byte, rows*width*elem)
	if wantDtype == DtypeFloat64 {
		// Unwritten regions decode as the NaN fill value.
		nan := make([]byte, 8)
		binary.LittleEndian.PutUint64(nan, math.Float64bits(math.NaN()))
		for off := 0; off < len(out); off += 8 {
			copy(out[off:], nan)
		}
	}
	for c := 0; c < nChunks; c++ {
		name := fmt.Sprintf("%d", c)
		if len(meta.Shape) == 2 {
			name += ".0"
		}
		compressed, err := r.fs.ReadFile(filepath.Join(r.root, filepath.FromSlash(path.Join(arr, name))))
		if err != nil {
			// A missing chunk decodes as all fill values.
			continue
		}
		raw, err := inflate(compressed)
		if err != nil {
			return nil, nil, fmt.Errorf("decompress chunk %d of %s: %w", c, arr, err)
		}
		lo := c * chunkRows
		hi := lo + chunkRows
		if hi > rows {
			hi = rows
		}
		want := (hi - lo) * width * elem
		if len(raw) < want {
			return nil, nil, fmt.Errorf("chunk %d of %s: %d bytes, want at least %d", c, arr, len(raw), want)
		}
		copy(out[lo*width*elem:], raw[:want])
	}
	return meta, out, nil
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
