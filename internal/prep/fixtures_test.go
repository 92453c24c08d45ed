package prep

import (
	"archive/zip"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dutchsoils/internal/soilmap"
)

func squarePolygon(x, y, size float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		x, y, x + size, y, x + size, y + size, x, y + size, x, y,
	}, []int{10})
}

// writeSoilMap creates a GeoPackage with six profiles:
//   - 1050 and 1051 (Hn21) in areas 12 and 13, 1 ha each;
//   - 2010 (pVc) in area 14, 0.25 ha;
//   - 3000 (zEZ23) in area 16, far from any BOFEK polygon, with an unknown
//     Staring block;
//   - 4000 (Vz) without map areas;
//   - 5000 (Hd21) in area 17 with a gap between its horizons.
func writeSoilMap(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "BRO_DownloadBodemkaart.gpkg")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	stmts := []string{
		`CREATE TABLE gpkg_geometry_columns (table_name TEXT, column_name TEXT)`,
		`INSERT INTO gpkg_geometry_columns VALUES ('soilarea', 'geom')`,
		`CREATE TABLE soilarea (fid INTEGER PRIMARY KEY, geom BLOB, maparea_id TEXT)`,
		`CREATE TABLE soilarea_normalsoilprofile (maparea_id TEXT, normalsoilprofile_id INTEGER)`,
		`INSERT INTO soilarea_normalsoilprofile VALUES
			('BRO-SGM-00012', 1050), ('BRO-SGM-00013', 1051), ('BRO-SGM-00014', 2010),
			('BRO-SGM-00016', 3000), ('BRO-SGM-00017', 5000)`,
		`CREATE TABLE normalsoilprofiles (normalsoilprofile_id INTEGER, soilunit TEXT, othersoilname TEXT)`,
		`INSERT INTO normalsoilprofiles VALUES
			(1050, 'Hn21', 'Veldpodzolgrond'), (1051, 'Hn21', 'Veldpodzolgrond'),
			(2010, 'pVc', 'Koopveengrond'), (3000, 'zEZ23', 'Duinvaaggrond'),
			(4000, 'Vz', 'Vlierveengrond'), (5000, 'Hd21', 'Haarpodzolgrond')`,
		`CREATE TABLE soilhorizon (normalsoilprofile_id INTEGER, layernumber INTEGER,
			faohorizonnotation TEXT, ztop REAL, zbottom REAL, staringseriesblock INTEGER,
			organicmattercontent REAL, lutitecontent REAL, siltcontent REAL, density REAL, peattype TEXT)`,
		`INSERT INTO soilhorizon VALUES
			(1050, 1, 'Ah', 0.0, 0.25, 1001, 5.5, 3.0, 12.0, 1.2, NULL),
			(1050, 2, 'C', 0.25, 0.6, 2012, 0.8, 2.0, 10.0, 1.5, NULL),
			(1051, 2, 'C', 0.3, 1.0, NULL, 0.5, 2.0, 8.0, 1.6, NULL),
			(1051, 1, 'Ah', 0.0, 0.3, 1001, 4.0, 3.0, 11.0, 1.3, NULL),
			(2010, 1, 'H', 0.0, 0.4, 2012, 60.0, NULL, NULL, 0.2, 'zeggeveen'),
			(3000, 1, 'C', 0.0, 0.5, 9999, 0.1, 1.0, 2.0, 1.6, NULL),
			(4000, 1, 'H', 0.0, 1.0, 2012, 50.0, NULL, NULL, 0.2, NULL),
			(5000, 1, 'Ah', 0.0, 0.2, 1001, 3.0, 2.0, 8.0, 1.4, NULL),
			(5000, 2, 'C', 0.3, 0.5, 2012, 1.0, 2.0, 8.0, 1.5, NULL)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}

	areas := []struct {
		id   string
		poly *geom.Polygon
	}{
		{"BRO-SGM-00012", squarePolygon(0, 0, 100)},
		{"BRO-SGM-00013", squarePolygon(100, 0, 100)},
		{"BRO-SGM-00014", squarePolygon(200, 0, 50)},
		{"BRO-SGM-00016", squarePolygon(1000, 1000, 10)},
		{"BRO-SGM-00017", squarePolygon(0, 200, 10)},
	}
	for _, a := range areas {
		blob, err := soilmap.EncodeGeometry(a.poly, 28992)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO soilarea (geom, maparea_id) VALUES (?, ?)`, blob, a.id)
		require.NoError(t, err)
	}
	return path
}

// cwRing is a clockwise (outer) shapefile ring.
func cwRing(x, y, size float64) []shp.Point {
	return []shp.Point{{X: x, Y: y}, {X: x, Y: y + size}, {X: x + size, Y: y + size}, {X: x + size, Y: y}, {X: x, Y: y}}
}

// writeBofekZIP writes a BOFEK shapefile with cluster 3015 over x 0-150 and
// cluster 1001 over x 150-300 (y 0-150), and zips its parts.
func writeBofekZIP(t *testing.T, dir string) string {
	t.Helper()
	shpDir := filepath.Join(dir, "shape")
	require.NoError(t, os.MkdirAll(shpDir, 0o755))
	shpPath := filepath.Join(shpDir, "BOFEK2020.shp")

	w, err := shp.Create(shpPath, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.NumberField("BOFEK2020", 10)}))
	for i, s := range []struct {
		cluster int
		ring    []shp.Point
	}{
		{3015, cwRing(0, 0, 150)},
		{1001, cwRing(150, 0, 150)},
	} {
		w.Write((*shp.Polygon)(shp.NewPolyLine([][]shp.Point{s.ring})))
		require.NoError(t, w.WriteAttribute(i, 0, s.cluster))
	}
	w.Close()

	files := map[string]string{}
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		files["BOFEK2020_GIS/BOFEK2020"+ext] = filepath.Join(shpDir, "BOFEK2020"+ext)
	}
	return writeZIPFromFiles(t, filepath.Join(dir, "BOFEK2020_GIS.zip"), files)
}

func writeZIPFromFiles(t *testing.T, zipPath string, files map[string]string) string {
	t.Helper()
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	zw := zip.NewWriter(f)
	for name, src := range files {
		data, err := os.ReadFile(src)
		require.NoError(t, err)
		fw, err := zw.Create(name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return zipPath
}

func writeStaringZIP(t *testing.T, dir string) string {
	t.Helper()
	params := filepath.Join(dir, "Staringreeks2018.csv")
	names := filepath.Join(dir, "StaringreeksNamen2018.csv")
	require.NoError(t, os.WriteFile(params, []byte(
		"staringseriesblock,wcres,wcsat,vgmalpha,vgmnpar,vgmlambda,ksatfit\n"+
			"1001,0.0,0.43,0.0249,1.507,-0.14,22.32\n"+
			"2012,0.01,0.53,0.0125,1.212,-4.235,2.1\n"), 0o644))
	require.NoError(t, os.WriteFile(names, []byte(
		"staringseriesblock;staringseriesname\n1001;Leemarm zand\n2012;Matig zware klei\n"), 0o644))
	return writeZIPFromFiles(t, filepath.Join(dir, "Staringreeks2018.zip"), map[string]string{
		"Staringreeks2018.csv":      params,
		"StaringreeksNamen2018.csv": names,
	})
}

func writeNames(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "BOFEK2020_clusters.csv")
	require.NoError(t, os.WriteFile(p, []byte("cluster,name\n1001,Veengronden\n3015,Zandgronden\n"), 0o644))
	return p
}

func testInputs(t *testing.T) Inputs {
	t.Helper()
	dir := t.TempDir()
	return Inputs{
		SoilMap:       writeSoilMap(t, dir),
		Bofek:         writeBofekZIP(t, dir),
		BofekField:    "BOFEK2020",
		BofekNames:    writeNames(t, dir),
		Staring:       writeStaringZIP(t, dir),
		StaringParams: "Staringreeks2018.csv",
		StaringNames:  "StaringreeksNamen2018.csv",
		TempDir:       filepath.Join(dir, "tmp"),
	}
}

func geomSquare(x, y, size float64) *geom.MultiPolygon {
	return geom.NewMultiPolygonFlat(geom.XY, squarePolygon(x, y, size).FlatCoords(), [][]int{{10}})
}
