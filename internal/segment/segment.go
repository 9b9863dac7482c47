// Package segment reads the laser-pair attribute tables of input
// segment granules. The production reader is backed by the HDF5
// library; an in-memory implementation backs tests.
package segment

import (
	"errors"

	"github.com/deepice-data/atlmerge/internal/dataset"
)

// Pairs lists the laser pair sub-groups of a segment file, in the fixed
// enumeration order the merger follows.
var Pairs = []string{"pt1", "pt2", "pt3"}

// The two attribute tables of every laser pair, in fixed order.
const (
	TableCorrectedH = "corrected_h"
	TableRefSurf    = "ref_surf"
)

// Tables lists the attribute tables in merge order.
var Tables = []string{TableCorrectedH, TableRefSurf}

// QualityVar is the field name present in both tables of a pair; it
// must be renamed per table before the tables can be combined.
const QualityVar = "quality_summary"

var (
	// ErrMissingGroup marks a laser pair or table absent from a segment
	// file without a matching skip-list entry.
	ErrMissingGroup = errors.New("expected group missing from segment file")

	// ErrMissingIndex marks a table without the shared point coordinate.
	ErrMissingIndex = errors.New("table has no index coordinate")

	// ErrAttrDecode marks attribute metadata that cannot be represented
	// as text. The output store format cannot carry binary metadata.
	ErrAttrDecode = errors.New("attribute value cannot be decoded to text")
)

// File is an open segment granule.
type File interface {
	// ReadTable loads one attribute table of a laser pair with fill
	// values masked to NaN and attribute values decoded to text.
	// A pair or table that is not present returns ErrMissingGroup.
	ReadTable(pair, table string) (*dataset.Dataset, error)

	Close() error
}

// Opener opens segment granules by path.
type Opener interface {
	Open(path string) (File, error)
}
