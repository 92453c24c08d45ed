// Package bofek reads the BOFEK2020 soil-physical cluster map and its
// cluster names.
package bofek

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/dutchsoils/internal/fetcher"
)

// Polygon is one BOFEK map unit.
type Polygon struct {
	Cluster int
	Geom    *geom.MultiPolygon
}

// ReadPolygons reads every polygon of the shapefile at shpPath together with
// the cluster id stored in the attribute field. Records without geometry or
// with an unparsable cluster id are skipped.
func ReadPolygons(shpPath, field string) ([]Polygon, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "bofek: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	col := -1
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, field) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, eris.Errorf("bofek: field %q not found in %s", field, shpPath)
	}

	var (
		polys   []Polygon
		skipped int
	)
	for reader.Next() {
		_, shape := reader.Shape()

		raw := decodeAttribute(reader.Attribute(col))
		v, ok := fetcher.ParseFloat(raw)
		if !ok || v != math.Trunc(v) {
			skipped++
			continue
		}

		g := shapeToMultiPolygon(shape)
		if g == nil {
			skipped++
			continue
		}
		polys = append(polys, Polygon{Cluster: int(v), Geom: g})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "bofek: read shapefile %s", shpPath)
	}

	if skipped > 0 {
		zap.L().Warn("bofek: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	if len(polys) == 0 {
		return nil, eris.Errorf("bofek: no polygons in %s", shpPath)
	}

	return polys, nil
}

// decodeAttribute returns s as UTF-8, treating invalid input as Windows-1252
// which is what older DBF writers produce.
func decodeAttribute(s string) string {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if utf8.ValidString(s) {
		return s
	}
	out, err := charmap.Windows1252.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return out
}

func shapeToMultiPolygon(shape shp.Shape) *geom.MultiPolygon {
	switch s := shape.(type) {
	case *shp.Polygon:
		return ringsToMultiPolygon(s.Parts, s.Points)
	case *shp.PolygonZ:
		return ringsToMultiPolygon(s.Parts, s.Points)
	case *shp.PolygonM:
		return ringsToMultiPolygon(s.Parts, s.Points)
	default:
		return nil
	}
}

type ring struct {
	flat []float64
	area float64 // signed; positive for clockwise
}

// ringsToMultiPolygon groups shapefile rings into polygons. Clockwise rings
// are outer boundaries and counter-clockwise rings are holes, assigned to the
// smallest outer ring containing their first vertex. Holes that fit no outer
// ring become outer rings themselves.
func ringsToMultiPolygon(parts []int32, points []shp.Point) *geom.MultiPolygon {
	var outers, holes []ring
	for i := range parts {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if start < 0 || end > len(points) || end-start < 4 {
			continue
		}

		flat := make([]float64, 0, 2*(end-start))
		for _, p := range points[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		r := ring{flat: flat, area: xy.SignedArea(geom.XY, flat)}
		if r.area == 0 {
			continue
		}
		if r.area > 0 {
			outers = append(outers, r)
		} else {
			holes = append(holes, r)
		}
	}

	// Writers that ignore orientation only produce counter-clockwise rings.
	if len(outers) == 0 {
		outers, holes = holes, nil
	}

	members := make([][]ring, len(outers))
	for _, h := range holes {
		best := -1
		for i, o := range outers {
			if !xy.IsPointInRing(geom.XY, geom.Coord(h.flat[:2]), o.flat) {
				continue
			}
			if best < 0 || math.Abs(o.area) < math.Abs(outers[best].area) {
				best = i
			}
		}
		if best < 0 {
			outers = append(outers, h)
			members = append(members, nil)
			continue
		}
		members[best] = append(members[best], h)
	}

	var (
		flat  []float64
		endss [][]int
	)
	for i, o := range outers {
		flat = append(flat, o.flat...)
		ends := []int{len(flat)}
		for _, h := range members[i] {
			flat = append(flat, h.flat...)
			ends = append(ends, len(flat))
		}
		endss = append(endss, ends)
	}
	if len(endss) == 0 {
		return nil
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, endss)
}
