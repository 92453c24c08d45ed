// Package prep builds the combined soil profile table from the reference
// datasets: the BRO soil map, the BOFEK2020 clustering and the Staring
// series. It runs offline; its output is read by package dutchsoils.
package prep

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dutchsoils/internal/bofek"
	"github.com/sells-group/dutchsoils/internal/fetcher"
	"github.com/sells-group/dutchsoils/internal/soilmap"
	"github.com/sells-group/dutchsoils/internal/staring"
	"github.com/sells-group/dutchsoils/pkg/dutchsoils"
)

// Inputs are the local paths of the reference datasets.
type Inputs struct {
	SoilMap       string // GeoPackage
	Bofek         string // shapefile, zip archive or directory containing one
	BofekField    string // attribute holding the cluster id
	BofekNames    string // .xlsx or .csv cluster names
	Staring       string // zip archive or directory
	StaringParams string // parameter table inside the Staring archive
	StaringNames  string // names table inside the Staring archive
	TempDir       string // extraction directory

	// Sources are recorded in the output provenance; the paths above are
	// used when empty.
	Sources []string
}

// Options tunes the build.
type Options struct {
	SampleGrid    int  // overlap sampling lattice per soil polygon
	MaxCandidates int  // BOFEK polygons considered per soil polygon
	Strict        bool // fail instead of dropping invalid profiles
	WithGeometry  bool // store map area geometries for offline lookups
	BuildID       string
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SampleGrid < 1 {
		o.SampleGrid = 8
	}
	if o.MaxCandidates < 1 {
		o.MaxCandidates = 16
	}
	if o.BuildID == "" {
		o.BuildID = uuid.New().String()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Result is the output of Build.
type Result struct {
	Records    []dutchsoils.Record
	MapAreas   []dutchsoils.MapArea
	Provenance dutchsoils.Provenance
	Dropped    []int64 // profiles left out by validation
}

// sources holds the loaded datasets.
type sources struct {
	areas        []soilmap.Area
	areaProfiles []soilmap.AreaProfile
	profiles     map[int64]soilmap.Profile
	horizons     []soilmap.Horizon
	polygons     []bofek.Polygon
	names        map[int]string
	blocks       staring.Blocks
}

// Build loads the datasets, joins them and returns the flattened table.
func Build(ctx context.Context, in Inputs, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	log := zap.L().With(zap.String("component", "prep"), zap.String("build_id", opts.BuildID))
	start := time.Now()

	src, err := load(ctx, in)
	if err != nil {
		return nil, err
	}
	log.Info("sources loaded",
		zap.Int("soil_areas", len(src.areas)),
		zap.Int("profiles", len(src.profiles)),
		zap.Int("horizons", len(src.horizons)),
		zap.Int("bofek_polygons", len(src.polygons)),
		zap.Int("bofek_names", len(src.names)),
		zap.Int("staring_blocks", len(src.blocks)),
		zap.Duration("elapsed", time.Since(start)),
	)

	res, err := assemble(ctx, src, opts)
	if err != nil {
		return nil, err
	}

	sourceList := in.Sources
	if len(sourceList) == 0 {
		sourceList = []string{in.SoilMap, in.Bofek, in.BofekNames, in.Staring}
	}
	res.Provenance = dutchsoils.Provenance{
		BuildID: opts.BuildID,
		Created: opts.Now().UTC().Truncate(time.Second),
		Sources: sourceList,
	}

	// The output must satisfy the same invariants the reader enforces.
	if _, err := dutchsoils.NewTable(res.Records); err != nil {
		return nil, eris.Wrap(err, "prep: validate output")
	}

	log.Info("build complete",
		zap.Int("records", len(res.Records)),
		zap.Int("map_areas", len(res.MapAreas)),
		zap.Int("dropped_profiles", len(res.Dropped)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// assemble joins the loaded sources and flattens them into records.
func assemble(ctx context.Context, src *sources, opts Options) (*Result, error) {
	j, err := join(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	return flatten(src, j, opts)
}

// load reads the independent datasets concurrently.
func load(ctx context.Context, in Inputs) (*sources, error) {
	src := &sources{}
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loadSoilMap(gCtx, in.SoilMap, src)
	})

	g.Go(func() error {
		shpPath, err := locateShapefile(in.Bofek, in.TempDir)
		if err != nil {
			return err
		}
		polys, err := bofek.ReadPolygons(shpPath, in.BofekField)
		if err != nil {
			return err
		}
		if len(polys) == 0 {
			return eris.Errorf("prep: no BOFEK polygons in %s", shpPath)
		}
		src.polygons = polys
		return nil
	})

	g.Go(func() error {
		names, err := bofek.ReadNames(in.BofekNames)
		if err != nil {
			return err
		}
		src.names = names
		return nil
	})

	g.Go(func() error {
		dir := ""
		if in.TempDir != "" {
			dir = filepath.Join(in.TempDir, "staring")
		}
		blocks, err := staring.ReadArchive(in.Staring, staring.Options{
			ParamsFile: in.StaringParams,
			NamesFile:  in.StaringNames,
			TempDir:    dir,
		})
		if err != nil {
			return err
		}
		src.blocks = blocks
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "prep: load sources")
	}
	return src, nil
}

func loadSoilMap(ctx context.Context, path string, src *sources) error {
	gp, err := soilmap.Open(path)
	if err != nil {
		return err
	}
	defer gp.Close() //nolint:errcheck

	if src.areas, err = gp.Areas(ctx); err != nil {
		return err
	}
	if src.areaProfiles, err = gp.AreaProfiles(ctx); err != nil {
		return err
	}
	if src.profiles, err = gp.Profiles(ctx); err != nil {
		return err
	}
	if src.horizons, err = gp.Horizons(ctx); err != nil {
		return err
	}
	return nil
}

// locateShapefile returns the .shp path for a shapefile, a zip archive or a
// directory.
func locateShapefile(p, tempDir string) (string, error) {
	if strings.EqualFold(filepath.Ext(p), ".shp") {
		return p, nil
	}
	dir := p
	if fetcher.IsZIP(p) {
		if tempDir == "" {
			return "", eris.Errorf("prep: temp dir required to extract %s", p)
		}
		dir = filepath.Join(tempDir, "bofek")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", eris.Wrap(err, "prep: create bofek dir")
		}
		if _, err := fetcher.ExtractZIP(p, dir); err != nil {
			return "", eris.Wrap(err, "prep: extract bofek archive")
		}
	}
	shpPath, err := fetcher.FindFile(dir, ".shp")
	if err != nil {
		return "", eris.Wrap(err, "prep: locate bofek shapefile")
	}
	return shpPath, nil
}
