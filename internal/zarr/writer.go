package zarr

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"path"
	"path/filepath"

	"github.com/deepice-data/atlmerge/internal/fsutil"
)

// DefaultChunkRows is the default chunk length along the leading
// dimension. The trailing dimension of 2-D arrays is never split.
const DefaultChunkRows = 100_000

const compressionLevel = 5

// Writer creates a store at a path, overwriting whatever was there.
// Metadata for every object written is retained so Consolidate can emit
// a single readable index of the store.
type Writer struct {
	fs   fsutil.FileSystem
	root string
	meta map[string]json.RawMessage

	// ChunkRows overrides DefaultChunkRows when positive.
	ChunkRows int
}

// Create initialises a fresh store at path in overwrite mode: any prior
// store there is removed first.
func Create(fs fsutil.FileSystem, path string, attrs map[string]string) (*Writer, error) {
	if err := fs.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("clear store %s: %w", path, err)
	}
	if err := fs.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create store %s: %w", path, err)
	}
	w := &Writer{fs: fs, root: path, meta: make(map[string]json.RawMessage)}
	if err := w.writeGroupDocs("", attrs); err != nil {
		return nil, err
	}
	return w, nil
}

// CreateGroup adds a named group (nested paths separated by '/').
func (w *Writer) CreateGroup(name string, attrs map[string]string) error {
	if err := w.fs.MkdirAll(filepath.Join(w.root, filepath.FromSlash(name)), 0o755); err != nil {
		return fmt.Errorf("create group %s: %w", name, err)
	}
	return w.writeGroupDocs(name, attrs)
}

// Array describes one array to write.
type Array struct {
	Group string   // slash-separated group path, empty for root
	Name  string
	Shape []int    // 1 or 2 dims; the trailing dim is chunked whole
	Dims  []string // dimension labels, len matches Shape
	Attrs map[string]string
}

// WriteFloat64 writes a float64 array in row-major order. NaN is the
// fill value.
func (w *Writer) WriteFloat64(a Array, values []float64) error {
	encode := func(buf []byte, i int) {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(values[i]))
	}
	fill := make([]byte, 8)
	binary.LittleEndian.PutUint64(fill, math.Float64bits(math.NaN()))
	return w.writeArray(a, DtypeFloat64, "NaN", len(values), encode, fill)
}

// WriteInt64 writes an int64 array in row-major order.
func (w *Writer) WriteInt64(a Array, values []int64) error {
	encode := func(buf []byte, i int) {
		binary.LittleEndian.PutUint64(buf, uint64(values[i]))
	}
	return w.writeArray(a, DtypeInt64, 0, len(values), encode, make([]byte, 8))
}

// Consolidate writes the single-file metadata index for the store. Call
// it once, after the last array is written.
func (w *Writer) Consolidate() error {
	doc, err := json.Marshal(consolidatedMeta{Metadata: w.meta, Format: consolidatedFormat})
	if err != nil {
		return err
	}
	return w.fs.WriteFile(filepath.Join(w.root, consolidatedKey), doc, 0o644)
}

func (w *Writer) writeGroupDocs(name string, attrs map[string]string) error {
	group, err := json.Marshal(groupMeta{ZarrFormat: zarrFormat})
	if err != nil {
		return err
	}
	if err := w.writeMetaDoc(name, groupKey, group); err != nil {
		return err
	}
	attrDoc, err := encodeAttrs(attrs, nil)
	if err != nil {
		return err
	}
	return w.writeMetaDoc(name, attrsKey, attrDoc)
}

// writeMetaDoc writes one metadata document and records it for the
// consolidated index.
func (w *Writer) writeMetaDoc(obj, key string, doc []byte) error {
	rel := key
	if obj != "" {
		rel = path.Join(obj, key)
	}
	if err := w.fs.WriteFile(filepath.Join(w.root, filepath.FromSlash(rel)), doc, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	w.meta[rel] = json.RawMessage(doc)
	return nil
}

func (w *Writer) writeArray(a Array, dtype string, fillValue any, n int, encode func([]byte, int), fillBytes []byte) error {
	if len(a.Shape) < 1 || len(a.Shape) > 2 {
		return fmt.Errorf("array %s/%s: %d dims unsupported", a.Group, a.Name, len(a.Shape))
	}
	if len(a.Dims) != len(a.Shape) {
		return fmt.Errorf("array %s/%s: %d dims for %d-D shape", a.Group, a.Name, len(a.Dims), len(a.Shape))
	}
	want := 1
	for _, s := range a.Shape {
		want *= s
	}
	if want != n {
		return fmt.Errorf("array %s/%s: %d values for shape %v", a.Group, a.Name, n, a.Shape)
	}

	chunkRows := w.ChunkRows
	if chunkRows <= 0 {
		chunkRows = DefaultChunkRows
	}
	if chunkRows > a.Shape[0] && a.Shape[0] > 0 {
		chunkRows = a.Shape[0]
	}
	if a.Shape[0] == 0 {
		chunkRows = 1
	}

	chunks := []int{chunkRows}
	width := 1
	if len(a.Shape) == 2 {
		width = a.Shape[1]
		chunks = append(chunks, width)
	}

	objPath := path.Join(a.Group, a.Name)
	dir := filepath.Join(w.root, filepath.FromSlash(objPath))
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create array %s: %w", objPath, err)
	}

	meta := arrayMeta{
		ZarrFormat: zarrFormat,
		Shape:      a.Shape,
		Chunks:     chunks,
		Dtype:      dtype,
		Compressor: &compressorMeta{ID: "zlib", Level: compressionLevel},
		FillValue:  fillValue,
		Order:      "C",
		Filters:    nil,
	}
	metaDoc, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := w.writeMetaDoc(objPath, arrayKey, metaDoc); err != nil {
		return err
	}
	attrDoc, err := encodeAttrs(a.Attrs, a.Dims)
	if err != nil {
		return err
	}
	if err := w.writeMetaDoc(objPath, attrsKey, attrDoc); err != nil {
		return err
	}

	nChunks := 0
	if a.Shape[0] > 0 {
		nChunks = (a.Shape[0] + chunkRows - 1) / chunkRows
	}
	raw := make([]byte, chunkRows*width*8)
	for c := 0; c < nChunks; c++ {
		lo := c * chunkRows
		hi := lo + chunkRows
		for row := lo; row < hi; row++ {
			for col := 0; col < width; col++ {
				off := ((row-lo)*width + col) * 8
				if row < a.Shape[0] {
					encode(raw[off:off+8], row*width+col)
				} else {
					copy(raw[off:off+8], fillBytes)
				}
			}
		}
		compressed, err := deflate(raw)
		if err != nil {
			return fmt.Errorf("compress chunk %d of %s: %w", c, objPath, err)
		}
		name := fmt.Sprintf("%d", c)
		if len(a.Shape) == 2 {
			name += ".0"
		}
		if err := w.fs.WriteFile(filepath.Join(dir, name), compressed, 0o644); err != nil {
			return fmt.Errorf("write chunk %d of %s: %w", c, objPath, err)
		}
	}
	return nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, compressionLevel)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
