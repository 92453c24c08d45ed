// Package soilmap reads the BRO soil map of the Netherlands (Bodemkaart
// 1:50 000) from its GeoPackage distribution.
package soilmap

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dutchsoils/pkg/dutchsoils"
)

// ErrMissingTable is returned when a required table is absent.
var ErrMissingTable = eris.New("soilmap: missing table")

// Table names in the BRO soil map GeoPackage.
const (
	TableAreas        = "soilarea"
	TableAreaProfiles = "soilarea_normalsoilprofile"
	TableProfiles     = "normalsoilprofiles"
	TableHorizons     = "soilhorizon"
)

const defaultGeomColumn = "geom"

// Area is one soil-map polygon.
type Area struct {
	MapAreaID int64
	Geom      *geom.MultiPolygon
}

// AreaProfile links a map area to one of the normal soil profiles mapped in
// it.
type AreaProfile struct {
	MapAreaID int64
	ProfileID int64
}

// Profile is a normal soil profile.
type Profile struct {
	ID       int64
	SoilUnit string
	Name     string
}

// Horizon is one layer of a normal soil profile. Depths are in metres below
// the surface.
type Horizon struct {
	ProfileID    int64
	LayerNumber  int
	FAONotation  string
	ZTop         float64
	ZBottom      float64
	StaringBlock int // 0 when the horizon has no Staring block
	PeatType     string
	Values       map[string]float64 // PropertyColumns; NaN when missing
}

// PropertyColumns lists the numeric horizon properties read into
// Horizon.Values.
var PropertyColumns = []string{
	"organicmattercontent", "organicmattercontent10p", "organicmattercontent90p",
	"acidity", "acidity10p", "acidity90p",
	"cnratio", "calciccontent", "fedith",
	"loamcontent", "loamcontent10p", "loamcontent90p",
	"lutitecontent", "lutitecontent10p", "lutitecontent90p",
	"sandmedian", "sandmedian10p", "sandmedian90p",
	"siltcontent", "density",
}

// GeoPackage is an open soil map.
type GeoPackage struct {
	db *sql.DB
}

// Open opens the GeoPackage at path read-only.
func Open(path string) (*GeoPackage, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, eris.Wrap(err, "soilmap: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "soilmap: open %s", path)
	}
	return &GeoPackage{db: db}, nil
}

// Close closes the underlying database.
func (g *GeoPackage) Close() error {
	return g.db.Close()
}

// Areas returns every soil-map polygon. Rows with empty geometry are skipped.
func (g *GeoPackage) Areas(ctx context.Context) ([]Area, error) {
	if err := g.requireTable(ctx, TableAreas); err != nil {
		return nil, err
	}
	col := g.geometryColumn(ctx, TableAreas)

	rows, err := g.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s, maparea_id FROM %s`, quoteIdent(col), TableAreas))
	if err != nil {
		return nil, eris.Wrap(err, "soilmap: query areas")
	}
	defer rows.Close() //nolint:errcheck

	var (
		areas   []Area
		skipped int
	)
	for rows.Next() {
		var (
			blob []byte
			id   any
		)
		if err := rows.Scan(&blob, &id); err != nil {
			return nil, eris.Wrap(err, "soilmap: scan area")
		}
		mapID, err := parseMapAreaID(id)
		if err != nil {
			return nil, err
		}
		if len(blob) == 0 {
			skipped++
			continue
		}
		mp, err := DecodeGeometry(blob)
		if err != nil {
			return nil, eris.Wrapf(err, "soilmap: area %d", mapID)
		}
		if mp == nil || mp.Empty() {
			skipped++
			continue
		}
		areas = append(areas, Area{MapAreaID: mapID, Geom: mp})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "soilmap: iterate areas")
	}

	if skipped > 0 {
		zap.L().Debug("soilmap: skipped empty areas", zap.Int("skipped", skipped))
	}
	return areas, nil
}

// AreaProfiles returns the map area → profile links.
func (g *GeoPackage) AreaProfiles(ctx context.Context) ([]AreaProfile, error) {
	if err := g.requireTable(ctx, TableAreaProfiles); err != nil {
		return nil, err
	}
	rows, err := g.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT maparea_id, normalsoilprofile_id FROM %s`, TableAreaProfiles))
	if err != nil {
		return nil, eris.Wrap(err, "soilmap: query area profiles")
	}
	defer rows.Close() //nolint:errcheck

	var links []AreaProfile
	for rows.Next() {
		var mapID, profileID any
		if err := rows.Scan(&mapID, &profileID); err != nil {
			return nil, eris.Wrap(err, "soilmap: scan area profile")
		}
		m, err := parseMapAreaID(mapID)
		if err != nil {
			return nil, err
		}
		p, ok := toInt(profileID)
		if !ok {
			return nil, eris.Errorf("soilmap: invalid normalsoilprofile_id %v", profileID)
		}
		links = append(links, AreaProfile{MapAreaID: m, ProfileID: p})
	}
	return links, eris.Wrap(rows.Err(), "soilmap: iterate area profiles")
}

// Profiles returns all normal soil profiles keyed by id.
func (g *GeoPackage) Profiles(ctx context.Context) (map[int64]Profile, error) {
	if err := g.requireTable(ctx, TableProfiles); err != nil {
		return nil, err
	}
	rows, err := g.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT normalsoilprofile_id, soilunit, othersoilname FROM %s`, TableProfiles))
	if err != nil {
		return nil, eris.Wrap(err, "soilmap: query profiles")
	}
	defer rows.Close() //nolint:errcheck

	profiles := make(map[int64]Profile)
	for rows.Next() {
		var id, unit, name any
		if err := rows.Scan(&id, &unit, &name); err != nil {
			return nil, eris.Wrap(err, "soilmap: scan profile")
		}
		pid, ok := toInt(id)
		if !ok {
			return nil, eris.Errorf("soilmap: invalid normalsoilprofile_id %v", id)
		}
		profiles[pid] = Profile{ID: pid, SoilUnit: toString(unit), Name: toString(name)}
	}
	return profiles, eris.Wrap(rows.Err(), "soilmap: iterate profiles")
}

// Horizons returns all horizons ordered by profile and layer number.
// Columns are resolved by name, so extra or reordered columns are accepted.
func (g *GeoPackage) Horizons(ctx context.Context) ([]Horizon, error) {
	if err := g.requireTable(ctx, TableHorizons); err != nil {
		return nil, err
	}
	rows, err := g.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT * FROM %s ORDER BY normalsoilprofile_id, layernumber`, TableHorizons))
	if err != nil {
		return nil, eris.Wrap(err, "soilmap: query horizons")
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "soilmap: horizon columns")
	}
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[strings.ToLower(c)] = i
	}
	for _, required := range []string{"normalsoilprofile_id", "layernumber", "ztop", "zbottom"} {
		if _, ok := idx[required]; !ok {
			return nil, eris.Errorf("soilmap: %s has no %s column", TableHorizons, required)
		}
	}

	get := func(vals []any, name string) any {
		if i, ok := idx[name]; ok {
			return vals[i]
		}
		return nil
	}

	var horizons []Horizon
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "soilmap: scan horizon")
		}

		pid, ok := toInt(get(vals, "normalsoilprofile_id"))
		if !ok {
			return nil, eris.Errorf("soilmap: invalid horizon profile id %v", get(vals, "normalsoilprofile_id"))
		}
		layer, ok := toInt(get(vals, "layernumber"))
		if !ok {
			return nil, eris.Errorf("soilmap: profile %d: invalid layernumber %v", pid, get(vals, "layernumber"))
		}

		h := Horizon{
			ProfileID:   pid,
			LayerNumber: int(layer),
			FAONotation: toString(get(vals, "faohorizonnotation")),
			ZTop:        toFloat(get(vals, "ztop")),
			ZBottom:     toFloat(get(vals, "zbottom")),
			PeatType:    toString(get(vals, "peattype")),
			Values:      make(map[string]float64, len(PropertyColumns)),
		}
		if blk, ok := toInt(get(vals, "staringseriesblock")); ok {
			h.StaringBlock = int(blk)
		}
		for _, c := range PropertyColumns {
			h.Values[c] = toFloat(get(vals, c))
		}
		horizons = append(horizons, h)
	}
	return horizons, eris.Wrap(rows.Err(), "soilmap: iterate horizons")
}

func (g *GeoPackage) requireTable(ctx context.Context, name string) error {
	var n int
	err := g.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		return eris.Wrapf(err, "soilmap: check table %s", name)
	}
	if n == 0 {
		return eris.Wrapf(ErrMissingTable, "soilmap: table %s", name)
	}
	return nil
}

// geometryColumn looks the geometry column up in gpkg_geometry_columns,
// falling back to "geom".
func (g *GeoPackage) geometryColumn(ctx context.Context, table string) string {
	var col string
	err := g.db.QueryRowContext(ctx,
		`SELECT column_name FROM gpkg_geometry_columns WHERE table_name = ?`, table,
	).Scan(&col)
	if err != nil || col == "" {
		return defaultGeomColumn
	}
	return col
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func parseMapAreaID(v any) (int64, error) {
	if n, ok := v.(int64); ok {
		return n, nil
	}
	id, err := dutchsoils.ParseMapAreaID(toString(v))
	if err != nil {
		return 0, eris.Wrap(err, "soilmap: maparea_id")
	}
	return id, nil
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int64(t), true
	case string, []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(toString(t)), 64)
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case float64:
		return t
	case string, []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(toString(t)), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
