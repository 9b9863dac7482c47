package segment

import (
	"fmt"
	"math"
	"path"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/scigolib/hdf5"

	"github.com/deepice-data/atlmerge/internal/dataset"
)

// indexVar is the dataset inside each table holding the shared
// per-point coordinate.
const indexVar = "ref_pt"

// fillValueAttr names the conventional fill-value attribute.
const fillValueAttr = "_FillValue"

// HDF5Opener opens segment granules with the pure-Go HDF5 reader.
type HDF5Opener struct{}

// Open opens a granule and indexes its datasets by path.
func (HDF5Opener) Open(filename string) (File, error) {
	f, err := hdf5.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	h := &hdf5File{
		file:     f,
		path:     filename,
		datasets: make(map[string]*hdf5.Dataset),
		groups:   make(map[string]bool),
	}
	f.Walk(func(objPath string, obj hdf5.Object) {
		switch v := obj.(type) {
		case *hdf5.Group:
			h.groups[normalize(objPath)] = true
		case *hdf5.Dataset:
			h.datasets[normalize(objPath)] = v
		}
	})
	return h, nil
}

type hdf5File struct {
	file     *hdf5.File
	path     string
	datasets map[string]*hdf5.Dataset
	groups   map[string]bool
}

func (h *hdf5File) Close() error { return h.file.Close() }

// ReadTable assembles one attribute table into a dataset: the ref_pt
// coordinate plus every sibling dataset as a variable, fill-masked and
// with text-decoded attributes.
func (h *hdf5File) ReadTable(pair, table string) (*dataset.Dataset, error) {
	prefix := pair + "/" + table
	if !h.groups[prefix] {
		return nil, fmt.Errorf("%w: %s in %s", ErrMissingGroup, prefix, h.path)
	}

	var names []string
	for p := range h.datasets {
		if path.Dir(p) == prefix {
			names = append(names, path.Base(p))
		}
	}
	sort.Strings(names)

	idx, ok := h.datasets[prefix+"/"+indexVar]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s in %s", ErrMissingIndex, prefix, indexVar, h.path)
	}
	index, err := readInt64(idx)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s in %s: %w", prefix, indexVar, h.path, err)
	}

	ds := dataset.New(index)
	for _, name := range names {
		if name == indexVar {
			continue
		}
		d := h.datasets[prefix+"/"+name]
		v, err := readVariable(d, len(index))
		if err != nil {
			return nil, fmt.Errorf("read %s/%s in %s: %w", prefix, name, h.path, err)
		}
		if err := ds.AddVar(name, v); err != nil {
			return nil, fmt.Errorf("table %s in %s: %w", prefix, h.path, err)
		}
	}
	return ds, nil
}

// readVariable loads one dataset as a float64 variable, masks its fill
// value and decodes its attributes.
func readVariable(d *hdf5.Dataset, npoints int) (*dataset.Variable, error) {
	values, err := readFloat64(d)
	if err != nil {
		return nil, err
	}

	dims := []string{dataset.IndexDim}
	if npoints > 0 && len(values) != npoints {
		if len(values)%npoints != 0 {
			return nil, fmt.Errorf("%d values do not align to %d points", len(values), npoints)
		}
		dims = []string{dataset.IndexDim, dataset.CycleDim}
	}

	attrs := make(map[string]string)
	var fill float64 = math.NaN()
	dsAttrs, err := d.Attributes()
	if err != nil {
		return nil, err
	}
	for _, attr := range dsAttrs {
		value, err := attr.ReadValue()
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %q: %v", ErrAttrDecode, attr.Name, err)
		}
		if attr.Name == fillValueAttr {
			if f, ok := attrNumber(value); ok {
				fill = f
			}
			continue
		}
		text, err := attrText(value)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %q: %v", ErrAttrDecode, attr.Name, err)
		}
		attrs[attr.Name] = text
	}
	dataset.MaskFill(values, fill)

	return &dataset.Variable{Dims: dims, Values: values, Attrs: attrs}, nil
}

func readFloat64(d *hdf5.Dataset) ([]float64, error) {
	raw, err := d.Read()
	if err != nil {
		return nil, err
	}
	switch v := any(raw).(type) {
	case []float64:
		return v, nil
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int8:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []uint8:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported element type %T", raw)
}

func readInt64(d *hdf5.Dataset) ([]int64, error) {
	raw, err := d.Read()
	if err != nil {
		return nil, err
	}
	switch v := any(raw).(type) {
	case []int64:
		return v, nil
	case []int32:
		out := make([]int64, len(v))
		for i, x := range v {
			out[i] = int64(x)
		}
		return out, nil
	case []uint32:
		out := make([]int64, len(v))
		for i, x := range v {
			out[i] = int64(x)
		}
		return out, nil
	case []float64:
		out := make([]int64, len(v))
		for i, x := range v {
			out[i] = int64(x)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported index element type %T", raw)
}

// attrText renders an attribute value as text. Raw byte strings must be
// valid UTF-8; anything else is a decode failure.
func attrText(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		if !utf8.Valid(v) {
			return "", fmt.Errorf("byte string is not valid UTF-8")
		}
		return string(v), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int:
		return strconv.Itoa(v), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	return "", fmt.Errorf("unsupported attribute type %T", value)
}

// attrNumber extracts a numeric attribute value, for fill values.
func attrNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case int:
		return float64(v), true
	case uint64:
		return float64(v), true
	case []float64:
		if len(v) == 1 {
			return v[0], true
		}
	case []float32:
		if len(v) == 1 {
			return float64(v[0]), true
		}
	}
	return 0, false
}

// normalize strips the leading slash hdf5 walk paths carry.
func normalize(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return p[1:]
	}
	return p
}
