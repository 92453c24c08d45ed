// Package spatial provides an R-tree over polygon geometries with point
// location, candidate lookup and overlap estimation.
package spatial

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// minLength keeps degenerate bounding boxes valid for the R-tree, which
// rejects zero-length sides.
const minLength = 1e-9

// nearestK is the number of bounding-box neighbours inspected by Nearest.
const nearestK = 8

// Item is a polygon stored in the index.
type Item struct {
	ID   int64
	Geom *geom.MultiPolygon
}

type node struct {
	item Item
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (n *node) Bounds() rtreego.Rect { return n.rect }

// Index is a read-only R-tree over items.
type Index struct {
	tree *rtreego.Rtree
	size int
}

// NewIndex builds an index. Items without geometry are skipped.
func NewIndex(items []Item) *Index {
	objs := make([]rtreego.Spatial, 0, len(items))
	for _, it := range items {
		if it.Geom == nil || it.Geom.Empty() {
			continue
		}
		objs = append(objs, &node{item: it, rect: rectFor(it.Geom.Bounds())})
	}
	return &Index{
		tree: rtreego.NewTree(2, 25, 50, objs...),
		size: len(objs),
	}
}

// Len returns the number of indexed items.
func (idx *Index) Len() int { return idx.size }

// Locate returns the item containing (x, y). When polygons overlap the item
// with the lowest id wins.
func (idx *Index) Locate(x, y float64) (Item, bool) {
	if idx.size == 0 {
		return Item{}, false
	}
	var (
		best  Item
		found bool
	)
	for _, s := range idx.tree.SearchIntersect(pointRect(x, y)) {
		it := s.(*node).item
		if !Contains(it.Geom, x, y) {
			continue
		}
		if !found || it.ID < best.ID {
			best, found = it, true
		}
	}
	return best, found
}

// Candidates returns the items whose bounding boxes intersect b, ranked by
// the area of that intersection (largest first, ties to the lowest id) and
// capped at max (max <= 0 means no cap). hits is the number of intersecting
// items before the cap.
func (idx *Index) Candidates(b *geom.Bounds, max int) (items []Item, hits int) {
	if idx.size == 0 || b == nil || b.IsEmpty() {
		return nil, 0
	}
	found := idx.tree.SearchIntersect(rectFor(b))
	type ranked struct {
		item    Item
		overlap float64
	}
	rs := make([]ranked, 0, len(found))
	for _, s := range found {
		it := s.(*node).item
		rs = append(rs, ranked{item: it, overlap: boundsOverlap(b, it.Geom.Bounds())})
	}
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].overlap != rs[j].overlap {
			return rs[i].overlap > rs[j].overlap
		}
		return rs[i].item.ID < rs[j].item.ID
	})
	if max > 0 && len(rs) > max {
		rs = rs[:max]
	}
	items = make([]Item, len(rs))
	for i, r := range rs {
		items[i] = r.item
	}
	return items, len(found)
}

// boundsOverlap is the area of the intersection of a and b.
func boundsOverlap(a, b *geom.Bounds) float64 {
	w := math.Min(a.Max(0), b.Max(0)) - math.Max(a.Min(0), b.Min(0))
	h := math.Min(a.Max(1), b.Max(1)) - math.Max(a.Min(1), b.Min(1))
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Nearest returns the item closest to (x, y), measured to the polygon
// boundary (zero when the point is inside). Ties go to the lowest id.
func (idx *Index) Nearest(x, y float64) (Item, bool) {
	if idx.size == 0 {
		return Item{}, false
	}
	var (
		best     Item
		bestDist = math.Inf(1)
		found    bool
	)
	for _, s := range idx.tree.NearestNeighbors(nearestK, rtreego.Point{x, y}) {
		if s == nil {
			continue
		}
		it := s.(*node).item
		d := Distance(it.Geom, x, y)
		if !found || d < bestDist || (d == bestDist && it.ID < best.ID) {
			best, bestDist, found = it, d, true
		}
	}
	return best, found
}

// OverlapShares estimates the fraction of poly covered by each candidate by
// sampling a grid x grid lattice of cell centres over the bounding box of
// poly. Sample points inside poly are attributed to the first candidate (in
// slice order) that contains them. Shares are relative to the sampled points
// inside poly, so uncovered parts make the shares sum to less than one. A nil
// map means no sample point fell inside poly.
func OverlapShares(poly *geom.MultiPolygon, candidates []Item, grid int) map[int64]float64 {
	if poly == nil || poly.Empty() || grid < 1 {
		return nil
	}
	b := poly.Bounds()
	minX, minY := b.Min(0), b.Min(1)
	dx := (b.Max(0) - minX) / float64(grid)
	dy := (b.Max(1) - minY) / float64(grid)

	counts := make(map[int64]int, len(candidates))
	inside := 0
	for i := 0; i < grid; i++ {
		x := minX + (float64(i)+0.5)*dx
		for j := 0; j < grid; j++ {
			y := minY + (float64(j)+0.5)*dy
			if !Contains(poly, x, y) {
				continue
			}
			inside++
			for _, c := range candidates {
				if Contains(c.Geom, x, y) {
					counts[c.ID]++
					break
				}
			}
		}
	}
	if inside == 0 {
		return nil
	}

	shares := make(map[int64]float64, len(counts))
	for id, n := range counts {
		shares[id] = float64(n) / float64(inside)
	}
	return shares
}

// Contains reports whether (x, y) lies inside g. Points on an outer boundary
// are inside; points strictly inside a hole are not.
func Contains(g *geom.MultiPolygon, x, y float64) bool {
	if g == nil {
		return false
	}
	p := geom.Coord{x, y}
	layout := g.Layout()
	for i := 0; i < g.NumPolygons(); i++ {
		poly := g.Polygon(i)
		if poly.NumLinearRings() == 0 || !xy.IsPointInRing(layout, p, poly.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for r := 1; r < poly.NumLinearRings(); r++ {
			if xy.LocatePointInRing(layout, p, poly.LinearRing(r).FlatCoords()) == location.Interior {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// Distance returns the planar distance from (x, y) to g, zero when the point
// is inside.
func Distance(g *geom.MultiPolygon, x, y float64) float64 {
	if g == nil {
		return math.Inf(1)
	}
	if Contains(g, x, y) {
		return 0
	}
	p := geom.Coord{x, y}
	layout := g.Layout()
	best := math.Inf(1)
	for i := 0; i < g.NumPolygons(); i++ {
		poly := g.Polygon(i)
		for r := 0; r < poly.NumLinearRings(); r++ {
			flat := poly.LinearRing(r).FlatCoords()
			if len(flat) < layout.Stride() {
				continue
			}
			best = math.Min(best, xy.DistanceFromPointToLineString(layout, p, flat))
		}
	}
	return best
}

// Area returns the planar area of g in squared coordinate units (m² for
// projected reference systems such as RD New). Ring orientation is ignored:
// the first ring of each polygon is its shell, the rest are holes.
func Area(g *geom.MultiPolygon) float64 {
	if g == nil {
		return 0
	}
	layout := g.Layout()
	var total float64
	for i := 0; i < g.NumPolygons(); i++ {
		poly := g.Polygon(i)
		for r := 0; r < poly.NumLinearRings(); r++ {
			a := math.Abs(xy.SignedArea(layout, poly.LinearRing(r).FlatCoords()))
			if r == 0 {
				total += a
			} else {
				total -= a
			}
		}
	}
	return total
}

func rectFor(b *geom.Bounds) rtreego.Rect {
	w := math.Max(b.Max(0)-b.Min(0), minLength)
	h := math.Max(b.Max(1)-b.Min(1), minLength)
	r, _ := rtreego.NewRect(rtreego.Point{b.Min(0), b.Min(1)}, []float64{w, h})
	return r
}

func pointRect(x, y float64) rtreego.Rect {
	r, _ := rtreego.NewRect(rtreego.Point{x, y}, []float64{minLength, minLength})
	return r
}
