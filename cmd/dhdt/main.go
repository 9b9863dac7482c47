// Command dhdt computes rate-of-height-change statistics from merged
// track stores: per-point height range across cycles, then a linear
// regression of height against time for points changing fast enough to
// matter.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"

	"github.com/deepice-data/atlmerge/internal/dataset"
	"github.com/deepice-data/atlmerge/internal/fsutil"
	"github.com/deepice-data/atlmerge/internal/merge"
	"github.com/deepice-data/atlmerge/internal/region"
	"github.com/deepice-data/atlmerge/internal/trend"
	"github.com/deepice-data/atlmerge/internal/version"
)

func main() {
	var outPath string
	var regionName string
	var heightVar string
	var timeVar string
	var qualityVar string
	var minRange float64
	var minValid int
	var chunkRows int
	var showVersion bool

	flag.StringVar(&outPath, "out", "", "output store path")
	flag.StringVar(&regionName, "region", "", "clip to a named region (antarctica, kamb, siple_coast, whillans)")
	flag.StringVar(&heightVar, "height-var", "h_corr", "2-D height variable")
	flag.StringVar(&timeVar, "time-var", "delta_time", "2-D time variable (nanoseconds)")
	flag.StringVar(&qualityVar, "quality-var", "quality_summary_ref_surf", "quality flag variable; heights masked where nonzero")
	flag.Float64Var(&minRange, "min-range", trend.DefaultMinRange, "minimum height range in metres")
	flag.IntVar(&minValid, "min-valid", trend.DefaultMinValid, "minimum valid heights per point")
	flag.IntVar(&chunkRows, "chunk-rows", 0, "store chunk length (0 = default)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.String())
		return
	}

	stores := flag.Args()
	if outPath == "" || len(stores) == 0 {
		log.Fatalf("usage: dhdt -out <store> [flags] <merged store>...")
	}

	fs := fsutil.OSFileSystem{}

	parts := make([]*dataset.Dataset, 0, len(stores))
	for _, store := range stores {
		ds, err := merge.ReadStore(fs, store)
		if err != nil {
			log.Fatalf("read %s: %v", store, err)
		}
		if qualityVar != "" && ds.Var(qualityVar) != nil {
			if err := ds.MaskWhere(heightVar, qualityVar, func(q float64) bool { return q == 0 }); err != nil {
				log.Fatalf("mask %s by %s in %s: %v", heightVar, qualityVar, store, err)
			}
		}
		parts = append(parts, ds)
	}

	ds, err := dataset.Concat(parts)
	if err != nil {
		log.Fatalf("concatenate stores: %v", err)
	}
	log.Printf("loaded %d points from %d stores", ds.Len(), len(stores))

	if regionName != "" {
		r, ok := region.Lookup(regionName)
		if !ok {
			log.Fatalf("unknown region %q (known: %v)", regionName, region.Names())
		}
		ds, err = r.Subset(ds, "x", "y")
		if err != nil {
			log.Fatalf("clip to %s: %v", r.Name, err)
		}
		log.Printf("clipped to %s: %d points", r.Name, ds.Len())
	}

	out, err := trend.Analyze(ds, heightVar, timeVar, trend.Options{
		MinValid: minValid,
		MinRange: minRange,
	})
	if err != nil {
		log.Fatalf("trend analysis: %v", err)
	}
	log.Printf("retained %d points with h_range > %gm", out.Len(), minRange)

	if err := merge.WriteStore(fs, outPath, out, chunkRows); err != nil {
		log.Fatalf("write %s: %v", outPath, err)
	}

	slopes := out.Var("dhdt_slope")
	if slopes != nil && out.Len() > 0 {
		min, max := math.Inf(1), math.Inf(-1)
		for _, v := range slopes.Values {
			if math.IsNaN(v) {
				continue
			}
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		log.Printf("dhdt_slope range %.3f..%.3f m/yr", min, max)
	}
	log.Printf("wrote %s", outPath)
}
