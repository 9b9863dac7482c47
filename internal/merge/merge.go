// Package merge turns one track group's segment granules into a single
// consolidated chunked-array store.
package merge

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/deepice-data/atlmerge/internal/dataset"
	"github.com/deepice-data/atlmerge/internal/fsutil"
	"github.com/deepice-data/atlmerge/internal/segment"
	"github.com/deepice-data/atlmerge/internal/zarr"
)

// RootGroup is the fixed top-level group of every merged store.
const RootGroup = "track"

// SkipList maps a granule basename to laser pairs known to be absent
// from that specific file. Pairs on the list are skipped without error;
// any other absence is fatal for the track. This is release-specific
// configuration data, not a general fallback.
type SkipList map[string][]string

// Skips reports whether the named pair is listed for the granule.
func (s SkipList) Skips(basename, pair string) bool {
	for _, p := range s[basename] {
		if p == pair {
			return true
		}
	}
	return false
}

// Merger assembles merged track stores.
type Merger struct {
	Opener segment.Opener
	FS     fsutil.FileSystem

	// ChunkRows overrides the store's default chunk length when positive.
	ChunkRows int

	// Skip lists the per-granule laser pairs to pass over quietly.
	Skip SkipList
}

// MergeTrack reads every (segment, laser pair) combination of the track
// group in order, combines the two attribute tables of each pair, and
// writes the concatenation to a fresh store at outPath. The store is
// opened in overwrite mode; a failed merge can simply be re-run.
func (m *Merger) MergeTrack(ctx context.Context, outPath string, inputs []string) error {
	var parts []*dataset.Dataset
	var sources []string

	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := filepath.Base(input)
		segParts, err := m.readSegment(input, base)
		if err != nil {
			return err
		}
		parts = append(parts, segParts...)
		sources = append(sources, base)
	}

	merged, err := dataset.Concat(parts)
	if err != nil {
		return fmt.Errorf("concatenate track parts: %w", err)
	}
	merged.Attrs["source_granules"] = strings.Join(sources, " ")

	if err := ctx.Err(); err != nil {
		return err
	}
	return WriteStore(m.FS, outPath, merged, m.ChunkRows)
}

// readSegment loads the combined dataset of every laser pair of one
// granule, in the fixed pair order.
func (m *Merger) readSegment(input, base string) ([]*dataset.Dataset, error) {
	f, err := m.Opener.Open(input)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", base, err)
	}
	defer f.Close()

	var parts []*dataset.Dataset
	for _, pair := range segment.Pairs {
		if m.Skip.Skips(base, pair) {
			continue
		}
		combined, err := readPair(f, pair)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", base, err)
		}
		parts = append(parts, combined)
	}
	return parts, nil
}

// readPair combines the two attribute tables of one laser pair: the
// colliding quality field is renamed per table, then the tables are
// outer-joined on the shared point coordinate.
func readPair(f segment.File, pair string) (*dataset.Dataset, error) {
	tables := make([]*dataset.Dataset, len(segment.Tables))
	for i, table := range segment.Tables {
		ds, err := f.ReadTable(pair, table)
		if err != nil {
			return nil, err
		}
		if ds.Var(segment.QualityVar) != nil {
			if err := ds.Rename(segment.QualityVar, segment.QualityVar+"_"+table); err != nil {
				return nil, fmt.Errorf("pair %s table %s: %w", pair, table, err)
			}
		}
		tables[i] = ds
	}

	combined, err := dataset.MergeOuter(tables[0], tables[1])
	if err != nil {
		return nil, fmt.Errorf("combine tables of pair %s: %w", pair, err)
	}
	return combined, nil
}

// WriteStore materialises a dataset under the fixed root group with
// consolidated metadata, overwriting any store at outPath.
func WriteStore(fs fsutil.FileSystem, outPath string, ds *dataset.Dataset, chunkRows int) error {
	w, err := zarr.Create(fs, outPath, ds.Attrs)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	w.ChunkRows = chunkRows

	if err := w.CreateGroup(RootGroup, nil); err != nil {
		return fmt.Errorf("create root group: %w", err)
	}

	if err := w.WriteInt64(zarr.Array{
		Group: RootGroup,
		Name:  dataset.IndexDim,
		Shape: []int{ds.Len()},
		Dims:  []string{dataset.IndexDim},
	}, ds.Index); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	for _, name := range ds.VarNames() {
		v := ds.Var(name)
		shape := []int{ds.Len()}
		if v.IsCycled() {
			shape = append(shape, ds.Cycles)
		}
		if err := w.WriteFloat64(zarr.Array{
			Group: RootGroup,
			Name:  name,
			Shape: shape,
			Dims:  v.Dims,
			Attrs: v.Attrs,
		}, v.Values); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	if err := w.Consolidate(); err != nil {
		return fmt.Errorf("consolidate metadata: %w", err)
	}
	return nil
}
