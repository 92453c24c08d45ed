package prep

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/dutchsoils/internal/spatial"
)

// m2PerHa converts square metres (RD New) to hectares.
const m2PerHa = 10_000

// joined is the result of the spatial join.
type joined struct {
	areaLinks    map[int64][]int64 // map area → linked profiles, ascending
	areaSize     map[int64]float64 // map area → m²
	codeCluster  map[string]int
	unassigned   int // soil areas without any BOFEK cluster
	fallbackUsed int
	truncated    int // soil areas with more BOFEK candidates than MaxCandidates
}

// join overlays the soil map on the BOFEK polygons. Each soil polygon's area
// is split over BOFEK clusters by grid sampling; polygons with no sampled
// overlap are given to the cluster containing one of their vertices, or else
// to the nearest BOFEK polygon. A map area linked to several profiles counts
// an equal part of its overlap towards each profile's soil-unit code. Overlap
// is summed per code, and each code gets the cluster with the largest overlap
// (ties to the lowest id).
func join(ctx context.Context, src *sources, opts Options) (*joined, error) {
	items := make([]spatial.Item, len(src.polygons))
	for i, p := range src.polygons {
		items[i] = spatial.Item{ID: int64(i), Geom: p.Geom}
	}
	idx := spatial.NewIndex(items)
	clusterOf := func(id int64) int { return src.polygons[id].Cluster }

	linked := make(map[int64][]int64)
	for _, ap := range src.areaProfiles {
		if _, ok := src.profiles[ap.ProfileID]; !ok {
			zap.L().Warn("prep: map area links to unknown profile",
				zap.Int64("maparea_id", ap.MapAreaID), zap.Int64("profile", ap.ProfileID))
			continue
		}
		linked[ap.MapAreaID] = append(linked[ap.MapAreaID], ap.ProfileID)
	}

	j := &joined{
		areaLinks:   make(map[int64][]int64, len(linked)),
		areaSize:    make(map[int64]float64, len(linked)),
		codeCluster: make(map[string]int),
	}
	overlap := make(map[string]map[int]float64) // code → cluster → m²

	for n, a := range sortedAreas(src) {
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "prep: join")
			}
		}
		profiles := dedupe(linked[a.id])
		if len(profiles) == 0 {
			continue
		}
		j.areaLinks[a.id] = profiles

		size := spatial.Area(a.geom)
		j.areaSize[a.id] += size

		shares, truncated := clusterShares(idx, a.geom, opts, clusterOf)
		if truncated {
			j.truncated++
			zap.L().Warn("prep: soil area has more BOFEK candidates than max_candidates, smallest overlaps skipped",
				zap.Int64("maparea_id", a.id), zap.Int("max_candidates", opts.MaxCandidates))
		}
		if len(shares) == 0 {
			if c, ok := fallbackCluster(idx, a.geom, clusterOf); ok {
				shares = map[int]float64{c: 1}
				j.fallbackUsed++
			} else {
				j.unassigned++
				continue
			}
		}
		part := size / float64(len(profiles))
		for _, p := range profiles {
			code := src.profiles[p].SoilUnit
			if overlap[code] == nil {
				overlap[code] = make(map[int]float64)
			}
			for c, s := range shares {
				overlap[code][c] += s * part
			}
		}
	}

	for code, byCluster := range overlap {
		j.codeCluster[code] = largest(byCluster)
	}

	zap.L().Info("prep: spatial join complete",
		zap.Int("map_areas", len(j.areaLinks)),
		zap.Int("codes", len(j.codeCluster)),
		zap.Int("fallback", j.fallbackUsed),
		zap.Int("unassigned", j.unassigned),
		zap.Int("truncated", j.truncated),
	)
	return j, nil
}

type soilAreaRef struct {
	id   int64
	geom *geom.MultiPolygon
}

func sortedAreas(src *sources) []soilAreaRef {
	out := make([]soilAreaRef, len(src.areas))
	for i, a := range src.areas {
		out[i] = soilAreaRef{id: a.MapAreaID, geom: a.Geom}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].id < out[b].id })
	return out
}

// clusterShares returns the share of g covered by each BOFEK cluster. Only
// the MaxCandidates polygons with the largest bounding-box overlap are
// sampled; truncated reports whether any were left out.
func clusterShares(idx *spatial.Index, g *geom.MultiPolygon, opts Options, clusterOf func(int64) int) (shares map[int]float64, truncated bool) {
	if g == nil || g.Empty() {
		return nil, false
	}
	cands, hits := idx.Candidates(g.Bounds(), opts.MaxCandidates)
	if len(cands) == 0 {
		return nil, false
	}
	truncated = hits > len(cands)
	byPolygon := spatial.OverlapShares(g, cands, opts.SampleGrid)
	if len(byPolygon) == 0 {
		return nil, truncated
	}
	shares = make(map[int]float64, len(byPolygon))
	for id, s := range byPolygon {
		shares[clusterOf(id)] += s
	}
	return shares, truncated
}

// fallbackCluster picks a cluster for a polygon too small or thin for the
// sampling lattice: the BOFEK polygon containing one of its vertices, or the
// one nearest to its first vertex.
func fallbackCluster(idx *spatial.Index, g *geom.MultiPolygon, clusterOf func(int64) int) (int, bool) {
	if g == nil || g.Empty() {
		return 0, false
	}
	flat := g.FlatCoords()
	stride := g.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		if it, ok := idx.Locate(flat[i], flat[i+1]); ok {
			return clusterOf(it.ID), true
		}
	}
	if it, ok := idx.Nearest(flat[0], flat[1]); ok {
		return clusterOf(it.ID), true
	}
	return 0, false
}

// largest returns the key with the largest value; ties go to the lowest key.
func largest(m map[int]float64) int {
	best, bestV, first := 0, 0.0, true
	for k, v := range m {
		if first || v > bestV || (v == bestV && k < best) {
			best, bestV, first = k, v, false
		}
	}
	return best
}

func dedupe(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	s := append([]int64(nil), ids...)
	sort.Slice(s, func(a, b int) bool { return s[a] < s[b] })
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
