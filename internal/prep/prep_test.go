package prep

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dutchsoils/internal/config"
	"github.com/sells-group/dutchsoils/internal/fetcher"
	"github.com/sells-group/dutchsoils/internal/soilmap"
	"github.com/sells-group/dutchsoils/internal/spatial"
	"github.com/sells-group/dutchsoils/pkg/dutchsoils"
)

var fixedNow = func() time.Time { return time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC) }

func testOptions() Options {
	return Options{SampleGrid: 8, MaxCandidates: 16, WithGeometry: true, BuildID: "build-1", Now: fixedNow}
}

func TestBuild(t *testing.T) {
	res, err := Build(context.Background(), testInputs(t), testOptions())
	require.NoError(t, err)

	assert.Equal(t, []int64{4000, 5000}, res.Dropped)
	assert.Equal(t, "build-1", res.Provenance.BuildID)
	assert.Equal(t, fixedNow(), res.Provenance.Created)
	assert.Len(t, res.Provenance.Sources, 4)

	// Ordered by profile index, then layer.
	var got [][2]int64
	for _, r := range res.Records {
		got = append(got, [2]int64{r.ProfileIndex, int64(r.LayerNumber)})
	}
	assert.Equal(t, [][2]int64{{1050, 1}, {1050, 2}, {1051, 1}, {1051, 2}, {2010, 1}, {3000, 1}}, got)

	byProfile := map[int64]dutchsoils.Record{}
	for _, r := range res.Records {
		if r.LayerNumber == 1 {
			byProfile[r.ProfileIndex] = r
		}
	}

	// Hn21 overlaps cluster 3015 by 1.5 ha and cluster 1001 by 0.5 ha.
	assert.Equal(t, 3015, byProfile[1050].BofekCluster)
	assert.Equal(t, 3015, byProfile[1051].BofekCluster)
	assert.Equal(t, "Zandgronden", byProfile[1050].BofekClusterName)
	assert.Equal(t, 1001, byProfile[2010].BofekCluster)
	assert.Equal(t, "Veengronden", byProfile[2010].BofekClusterName)
	// No overlap at all: nearest BOFEK polygon.
	assert.Equal(t, 1001, byProfile[3000].BofekCluster)

	// Equal areas: the lowest index is dominant.
	assert.InDelta(t, 1.0, byProfile[1050].Area.Float(), 1e-9)
	assert.InDelta(t, 1.0, byProfile[1051].Area.Float(), 1e-9)
	assert.True(t, byProfile[1050].Dominant)
	assert.False(t, byProfile[1051].Dominant)
	assert.True(t, byProfile[2010].Dominant)
	assert.False(t, byProfile[3000].Dominant)
	assert.InDelta(t, 0.25, byProfile[2010].Area.Float(), 1e-9)

	// Staring merge.
	assert.Equal(t, "B01", byProfile[1050].StaringBlock)
	assert.Equal(t, "Leemarm zand", byProfile[1050].StaringName)
	assert.InDelta(t, 22.32, byProfile[1050].KSatFit.Float(), 1e-12)
	assert.Equal(t, "O12", byProfile[2010].StaringBlock)
	assert.Equal(t, "zeggeveen", byProfile[2010].PeatType)
	assert.False(t, byProfile[2010].Lutite.Valid())
	assert.InDelta(t, 60.0, byProfile[2010].OrganicMatter.Float(), 1e-12)
	// Unknown block: no Staring data.
	assert.Equal(t, "", byProfile[3000].StaringBlock)
	assert.False(t, byProfile[3000].WCSat.Valid())

	require.Len(t, res.MapAreas, 4)
	ids := []int64{}
	for _, a := range res.MapAreas {
		ids = append(ids, a.MapAreaID)
		assert.NotEmpty(t, a.Geometry)
	}
	assert.Equal(t, []int64{12, 13, 14, 16}, ids)
	assert.Equal(t, int64(1051), res.MapAreas[1].ProfileIndex)
}

func TestBuild_Strict(t *testing.T) {
	opts := testOptions()
	opts.Strict = true

	_, err := Build(context.Background(), testInputs(t), opts)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidProfile))
	assert.Contains(t, err.Error(), "profile 5000")
}

func TestBuild_WithoutGeometry(t *testing.T) {
	opts := testOptions()
	opts.WithGeometry = false

	res, err := Build(context.Background(), testInputs(t), opts)
	require.NoError(t, err)
	for _, a := range res.MapAreas {
		assert.Empty(t, a.Geometry)
	}
}

func TestBuild_MissingSource(t *testing.T) {
	in := testInputs(t)
	in.BofekNames = filepath.Join(t.TempDir(), "missing.csv")

	_, err := Build(context.Background(), in, testOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prep: load sources")
}

func TestBuild_WriteAndLookup(t *testing.T) {
	res, err := Build(context.Background(), testInputs(t), testOptions())
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "data")
	profilesPath := filepath.Join(dir, "soilprofiles.csv")
	mapAreasPath := filepath.Join(dir, "mapareas.csv")
	require.NoError(t, res.Write(profilesPath, mapAreasPath))

	tbl, err := dutchsoils.LoadTable(profilesPath)
	require.NoError(t, err)
	assert.Equal(t, "build-1", tbl.Provenance.BuildID)
	assert.Equal(t, []int64{1050, 1051, 2010, 3000}, tbl.Indices())

	areas, err := dutchsoils.LoadMapAreas(mapAreasPath)
	require.NoError(t, err)
	require.NoError(t, tbl.AttachMapAreas(areas))

	sp, err := tbl.FromLocation(context.Background(), tbl.Locator(), 150, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(1051), sp.Index)

	dom, err := tbl.DominantProfile(3015)
	require.NoError(t, err)
	assert.Equal(t, int64(1050), dom.Index)

	hyd, err := dom.SWAPHydraulicParams(dutchsoils.HydraulicOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.43, 0.53}, hyd.Data["OSAT"])
}

func TestResolveInputs_Local(t *testing.T) {
	in := testInputs(t)
	r := &fetcher.Resolver{TempDir: t.TempDir()}

	got, err := ResolveInputs(context.Background(), r, config.SourcesConfig{
		SoilMap:       in.SoilMap,
		Bofek:         in.Bofek,
		BofekField:    "BOFEK2020",
		BofekNames:    in.BofekNames,
		Staring:       in.Staring,
		StaringParams: "Staringreeks2018.csv",
		StaringNames:  "StaringreeksNamen2018.csv",
		TempDir:       in.TempDir,
	})
	require.NoError(t, err)
	assert.Equal(t, in.SoilMap, got.SoilMap)
	assert.Equal(t, in.Staring, got.Staring)
	assert.Equal(t, []string{in.SoilMap, in.Bofek, in.BofekNames, in.Staring}, got.Sources)

	_, err = ResolveInputs(context.Background(), r, config.SourcesConfig{SoilMap: "/nonexistent.gpkg"})
	assert.Error(t, err)
}

func TestLocateShapefile(t *testing.T) {
	p, err := locateShapefile("/data/bofek.SHP", "")
	require.NoError(t, err)
	assert.Equal(t, "/data/bofek.SHP", p)

	_, err = locateShapefile("bofek.zip", "")
	assert.Error(t, err)
}

func TestCheckHorizons(t *testing.T) {
	h := func(layer int, top, bottom float64) soilmap.Horizon {
		return soilmap.Horizon{LayerNumber: layer, ZTop: top, ZBottom: bottom}
	}
	assert.NoError(t, checkHorizons([]soilmap.Horizon{h(1, 0, 0.2), h(2, 0.2, 0.5)}))
	assert.Error(t, checkHorizons(nil))
	assert.Error(t, checkHorizons([]soilmap.Horizon{h(1, 0, 0.2), h(2, 0.25, 0.5)}))
	assert.Error(t, checkHorizons([]soilmap.Horizon{h(1, 0, 0.2), h(1, 0.2, 0.5)}))
	assert.Error(t, checkHorizons([]soilmap.Horizon{h(1, 0.3, 0.2)}))
	assert.Error(t, checkHorizons([]soilmap.Horizon{h(1, 0, math.NaN())}))
}

func TestLargest(t *testing.T) {
	assert.Equal(t, 2, largest(map[int]float64{1: 0.2, 2: 0.5, 3: 0.3}))
	assert.Equal(t, 1001, largest(map[int]float64{3015: 0.5, 1001: 0.5}))
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []int64{1, 3, 5}, dedupe([]int64{5, 1, 3, 1, 5}))
	assert.Nil(t, dedupe(nil))
}

func TestFallbackCluster(t *testing.T) {
	idx := spatial.NewIndex([]spatial.Item{
		{ID: 0, Geom: geomSquare(0, 0, 10)},
		{ID: 1, Geom: geomSquare(20, 0, 10)},
	})
	clusters := []int{3015, 1001}
	clusterOf := func(id int64) int { return clusters[id] }

	// A vertex inside polygon 1.
	c, ok := fallbackCluster(idx, geomSquare(25, 5, 100), clusterOf)
	require.True(t, ok)
	assert.Equal(t, 1001, c)

	// Nowhere inside: nearest polygon.
	c, ok = fallbackCluster(idx, geomSquare(-5, 50, 1), clusterOf)
	require.True(t, ok)
	assert.Equal(t, 3015, c)

	_, ok = fallbackCluster(spatial.NewIndex(nil), geomSquare(0, 0, 1), clusterOf)
	assert.False(t, ok)
}
