package dutchsoils

import (
	"bufio"
	"encoding/binary"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkbhex"
)

// mapAreaIDDigits is the number of trailing characters of a soil map
// maparea_id that identify the area.
const mapAreaIDDigits = 5

// MapArea links a soil-map polygon to the profile it is mapped with.
// Geometry is optional hex-encoded WKB in RD New (EPSG:28992).
type MapArea struct {
	MapAreaID    int64  `csv:"maparea_id"`
	ProfileIndex int64  `csv:"normalsoilprofile_id"`
	Geometry     string `csv:"geometry,omitempty"`
}

// NewMapArea returns a map area with its geometry encoded; g may be nil.
func NewMapArea(id, profile int64, g *geom.MultiPolygon) (MapArea, error) {
	ma := MapArea{MapAreaID: id, ProfileIndex: profile}
	if g == nil {
		return ma, nil
	}
	s, err := wkbhex.Encode(g, binary.LittleEndian)
	if err != nil {
		return ma, eris.Wrapf(err, "dutchsoils: encode map area %d", id)
	}
	ma.Geometry = s
	return ma, nil
}

// Geom decodes the geometry. It returns nil when the area has none.
func (m MapArea) Geom() (*geom.MultiPolygon, error) {
	if m.Geometry == "" {
		return nil, nil
	}
	g, err := wkbhex.Decode(m.Geometry)
	if err != nil {
		return nil, eris.Wrapf(ErrMalformedTable, "dutchsoils: map area %d geometry: %v", m.MapAreaID, err)
	}
	switch t := g.(type) {
	case *geom.MultiPolygon:
		return t, nil
	case *geom.Polygon:
		return geom.NewMultiPolygonFlat(t.Layout(), t.FlatCoords(), [][]int{t.Ends()}), nil
	default:
		return nil, eris.Wrapf(ErrMalformedTable, "dutchsoils: map area %d: unexpected geometry %T", m.MapAreaID, g)
	}
}

// ParseMapAreaID extracts the numeric map area id from a soil map
// maparea_id: the value of its last five characters.
func ParseMapAreaID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if len(s) > mapAreaIDDigits {
		s = s[len(s)-mapAreaIDDigits:]
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(ErrInvalidInput, "dutchsoils: maparea_id %q", s)
	}
	return id, nil
}

// LoadMapAreas reads the companion map area file.
func LoadMapAreas(path string) ([]MapArea, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dutchsoils: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	areas, err := ReadMapAreas(f)
	if err != nil {
		return nil, eris.Wrapf(err, "dutchsoils: load %s", path)
	}
	return areas, nil
}

// ReadMapAreas decodes map areas from CSV.
func ReadMapAreas(r io.Reader) ([]MapArea, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.Comment = '#'
	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		return nil, eris.Wrapf(ErrMalformedTable, "dutchsoils: read map area header: %v", err)
	}
	var areas []MapArea
	for {
		var a MapArea
		if err := dec.Decode(&a); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrapf(ErrMalformedTable, "dutchsoils: decode map area %d: %v", len(areas)+1, err)
		}
		areas = append(areas, a)
	}
	return areas, nil
}

// WriteMapAreas encodes map areas as CSV.
func WriteMapAreas(w io.Writer, areas []MapArea) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	var err error
	if len(areas) == 0 {
		err = enc.EncodeHeader(MapArea{})
	} else {
		err = enc.Encode(areas)
	}
	if err != nil {
		return eris.Wrap(err, "dutchsoils: encode map areas")
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "dutchsoils: write map areas")
}

// AttachMapAreas registers map areas for FromMapArea and builds a
// LocalLocator over those that carry geometry. Areas referring to unknown
// profiles are rejected.
func (t *Table) AttachMapAreas(areas []MapArea) error {
	ids := make(map[int64]int64, len(areas))
	var located []MapArea
	for _, a := range areas {
		if _, ok := t.byProfile[a.ProfileIndex]; !ok {
			return eris.Wrapf(ErrMalformedTable, "dutchsoils: map area %d refers to unknown profile %d", a.MapAreaID, a.ProfileIndex)
		}
		if prev, ok := ids[a.MapAreaID]; ok && prev != a.ProfileIndex {
			return eris.Wrapf(ErrMalformedTable, "dutchsoils: map area %d maps to profiles %d and %d", a.MapAreaID, prev, a.ProfileIndex)
		}
		ids[a.MapAreaID] = a.ProfileIndex
		if a.Geometry != "" {
			located = append(located, a)
		}
	}

	var loc *LocalLocator
	if len(located) > 0 {
		l, err := NewLocalLocator(located)
		if err != nil {
			return err
		}
		loc = l
	}

	t.mapAreas = ids
	t.locator = loc
	return nil
}

// Locator returns the offline locator built by AttachMapAreas, or nil when no
// map area geometries are attached.
func (t *Table) Locator() *LocalLocator {
	return t.locator
}
