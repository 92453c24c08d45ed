package dutchsoils

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dutchsoils/internal/spatial"
)

// Locator resolves a coordinate to the soil map area at that location. ok is
// false when the location has no soil data.
type Locator interface {
	MapAreaID(ctx context.Context, x, y float64) (id int64, ok bool, err error)
}

// LocalLocator answers location queries from map area geometries in RD New
// (EPSG:28992) coordinates without network access.
type LocalLocator struct {
	index *spatial.Index
}

var _ Locator = (*LocalLocator)(nil)

// NewLocalLocator indexes the geometries of areas. Areas without geometry
// are ignored.
func NewLocalLocator(areas []MapArea) (*LocalLocator, error) {
	items := make([]spatial.Item, 0, len(areas))
	for _, a := range areas {
		g, err := a.Geom()
		if err != nil {
			return nil, err
		}
		if g == nil {
			continue
		}
		items = append(items, spatial.Item{ID: a.MapAreaID, Geom: g})
	}
	return &LocalLocator{index: spatial.NewIndex(items)}, nil
}

// MapAreaID implements Locator. Overlapping areas resolve to the lowest id.
func (l *LocalLocator) MapAreaID(_ context.Context, x, y float64) (int64, bool, error) {
	it, ok := l.index.Locate(x, y)
	if !ok {
		return 0, false, nil
	}
	return it.ID, true, nil
}

// FromMapArea returns the profile mapped in the given soil map area.
func (t *Table) FromMapArea(id int64) (*SoilProfile, error) {
	p, ok := t.mapAreas[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "dutchsoils: map area %d", id)
	}
	return t.FromIndex(p)
}

// FromLocation returns the profile at (x, y). The coordinate reference
// system is the locator's. Locations without soil data return ErrNotFound.
func (t *Table) FromLocation(ctx context.Context, loc Locator, x, y float64) (*SoilProfile, error) {
	if loc == nil {
		return nil, eris.Wrap(ErrInvalidInput, "dutchsoils: no locator")
	}
	id, ok, err := loc.MapAreaID(ctx, x, y)
	if err != nil {
		return nil, eris.Wrapf(err, "dutchsoils: locate (%v, %v)", x, y)
	}
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "dutchsoils: no soil data at (%v, %v)", x, y)
	}
	return t.FromMapArea(id)
}

// FromLocations looks up several locations. xs and ys must have the same
// length. Locations without soil data yield a nil entry and a warning.
func (t *Table) FromLocations(ctx context.Context, loc Locator, xs, ys []float64) ([]*SoilProfile, error) {
	if len(xs) != len(ys) {
		return nil, eris.Wrapf(ErrInvalidInput,
			"dutchsoils: x and y coordinates differ in length (x: %d, y: %d)", len(xs), len(ys))
	}
	out := make([]*SoilProfile, len(xs))
	for i := range xs {
		sp, err := t.FromLocation(ctx, loc, xs[i], ys[i])
		if eris.Is(err, ErrNotFound) {
			zap.L().Warn("dutchsoils: no soil information for location",
				zap.Float64("x", xs[i]),
				zap.Float64("y", ys[i]),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i] = sp
	}
	return out, nil
}
