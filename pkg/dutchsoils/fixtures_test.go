package dutchsoils

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

type horizonFixture struct {
	layer       int
	top, bottom float64
	block       string
	om, silt    float64
	lutite      float64
	density     float64
}

func profileRecords(index int64, code string, cluster int, dominant bool, area float64, hs ...horizonFixture) []Record {
	recs := make([]Record, 0, len(hs))
	for _, h := range hs {
		r := NewRecord()
		r.ProfileIndex = index
		r.SoilUnit = code
		r.ProfileName = "profile " + code
		r.BofekCluster = cluster
		r.BofekClusterName = "cluster name"
		r.Dominant = dominant
		r.Area = Measure(area)
		r.LayerNumber = h.layer
		r.FAONotation = "A"
		r.ZTop = Measure(h.top)
		r.ZBottom = Measure(h.bottom)
		r.OrganicMatter = Measure(h.om)
		r.Silt = Measure(h.silt)
		r.Lutite = Measure(h.lutite)
		r.Density = Measure(h.density)
		r.PeatType = ""
		if h.block != "" {
			r.StaringBlock = h.block
			r.StaringName = "series " + h.block
			r.WCRes = 0.01
			r.WCSat = 0.36
			r.VGMAlpha = 0.0224
			r.VGMNPar = 1.354
			r.VGMLambda = -1.06
			r.KSatFit = 22.32
		}
		recs = append(recs, r)
	}
	return recs
}

// testRecords describes three profiles in two clusters:
//   - 1050 "Hn21", cluster 3015, dominant, three horizons all with Staring blocks;
//   - 1051 "Hn21", cluster 3015, second horizon without a Staring block;
//   - 2010 "pVc", cluster 1001, dominant, first horizon without a Staring block.
func testRecords() []Record {
	var recs []Record
	recs = append(recs, profileRecords(2010, "pVc", 1001, true, 50,
		horizonFixture{layer: 1, top: 0, bottom: 0.15, om: 35, silt: 20, lutite: 10, density: 0.3},
		horizonFixture{layer: 2, top: 0.15, bottom: 0.8, block: "O16", om: 60, silt: 5, lutite: 5, density: 0.2},
	)...)
	recs = append(recs, profileRecords(1050, "Hn21", 3015, true, 1200.5,
		horizonFixture{layer: 1, top: 0, bottom: 0.25, block: "B01", om: 5, silt: 10, lutite: 3, density: 1.4},
		horizonFixture{layer: 2, top: 0.25, bottom: 0.6, block: "B02", om: 2, silt: 8, lutite: 2, density: 1.5},
		horizonFixture{layer: 3, top: 0.6, bottom: 1.2, block: "O01", om: 0.5, silt: 4, lutite: 1, density: 1.6},
	)...)
	recs = append(recs, profileRecords(1051, "Hn21", 3015, false, 300,
		horizonFixture{layer: 1, top: 0, bottom: 0.3, block: "B01", om: 4, silt: 12, lutite: 4, density: 1.35},
		horizonFixture{layer: 2, top: 0.3, bottom: 1.0, om: 1, silt: 6, lutite: 2, density: 1.55},
	)...)
	return recs
}

// newTestTable writes the fixture records as a flat file and reads them back.
func newTestTable(t *testing.T) *Table {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, testRecords(), Provenance{
		BuildID: "test-build",
		Created: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Sources: []string{"soilmap.gpkg", "BOFEK2020.zip"},
	}))
	tbl, err := ReadTable(&buf)
	require.NoError(t, err)
	return tbl
}

func square(x0, y0, size float64) *geom.MultiPolygon {
	return geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{
		{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0},
	}}})
}
