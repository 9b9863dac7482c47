package merge

import (
	"fmt"
	"path"

	"github.com/deepice-data/atlmerge/internal/dataset"
	"github.com/deepice-data/atlmerge/internal/fsutil"
	"github.com/deepice-data/atlmerge/internal/zarr"
)

// ReadStore loads a merged track store back into a dataset. Variables
// come back in sorted name order.
func ReadStore(fs fsutil.FileSystem, storePath string) (*dataset.Dataset, error) {
	r, err := zarr.Open(fs, storePath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", storePath, err)
	}

	indexPath := path.Join(RootGroup, dataset.IndexDim)
	_, index, err := r.ReadInt64(indexPath)
	if err != nil {
		return nil, fmt.Errorf("read index of %s: %w", storePath, err)
	}

	ds := dataset.New(index)
	rootAttrs, _, err := r.Attrs("")
	if err != nil {
		return nil, fmt.Errorf("read attributes of %s: %w", storePath, err)
	}
	ds.Attrs = rootAttrs

	for _, arr := range r.Arrays() {
		if path.Dir(arr) != RootGroup || arr == indexPath {
			continue
		}
		_, values, err := r.ReadFloat64(arr)
		if err != nil {
			return nil, fmt.Errorf("read %s of %s: %w", arr, storePath, err)
		}
		attrs, dims, err := r.Attrs(arr)
		if err != nil {
			return nil, fmt.Errorf("read attributes of %s in %s: %w", arr, storePath, err)
		}
		if len(dims) == 0 {
			dims = []string{dataset.IndexDim}
		}
		if err := ds.AddVar(path.Base(arr), &dataset.Variable{
			Dims:   dims,
			Values: values,
			Attrs:  attrs,
		}); err != nil {
			return nil, fmt.Errorf("store %s: %w", storePath, err)
		}
	}
	return ds, nil
}
