package segment

import (
	"fmt"
	"io/fs"

	"github.com/deepice-data/atlmerge/internal/dataset"
)

// MemOpener serves segment files from memory. It backs tests for every
// consumer of the Opener interface.
type MemOpener struct {
	Files map[string]*MemFile
}

// Open returns the in-memory file registered under path.
func (m *MemOpener) Open(path string) (File, error) {
	f, ok := m.Files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return &memHandle{file: f}, nil
}

// MemFile holds the tables of one in-memory segment file, keyed by
// "pair/table". Errs injects read failures for specific tables.
type MemFile struct {
	Tables map[string]*dataset.Dataset
	Errs   map[string]error
}

// NewMemFile creates an empty in-memory segment file.
func NewMemFile() *MemFile {
	return &MemFile{
		Tables: make(map[string]*dataset.Dataset),
		Errs:   make(map[string]error),
	}
}

// SetTable registers a table under a laser pair.
func (f *MemFile) SetTable(pair, table string, ds *dataset.Dataset) {
	f.Tables[pair+"/"+table] = ds
}

type memHandle struct {
	file   *MemFile
	closed bool
}

func (h *memHandle) ReadTable(pair, table string) (*dataset.Dataset, error) {
	key := pair + "/" + table
	if err := h.file.Errs[key]; err != nil {
		return nil, err
	}
	ds, ok := h.file.Tables[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingGroup, key)
	}
	return copyDataset(ds), nil
}

func (h *memHandle) Close() error {
	h.closed = true
	return nil
}

// copyDataset deep-copies a dataset so callers can rename and mutate
// what they read without corrupting the fixture.
func copyDataset(ds *dataset.Dataset) *dataset.Dataset {
	index := make([]int64, len(ds.Index))
	copy(index, ds.Index)
	out := dataset.New(index)
	for k, v := range ds.Attrs {
		out.Attrs[k] = v
	}
	for _, name := range ds.VarNames() {
		v := ds.Var(name)
		values := make([]float64, len(v.Values))
		copy(values, v.Values)
		attrs := make(map[string]string, len(v.Attrs))
		for k, a := range v.Attrs {
			attrs[k] = a
		}
		if err := out.AddVar(name, &dataset.Variable{Dims: v.Dims, Values: values, Attrs: attrs}); err != nil {
			panic(err)
		}
	}
	return out
}
