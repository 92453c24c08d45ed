package prep

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/dutchsoils/internal/soilmap"
	"github.com/sells-group/dutchsoils/pkg/dutchsoils"
)

// depthTolerance is the allowed gap (m) between consecutive horizons.
const depthTolerance = 1e-9

// ErrInvalidProfile is returned in strict mode for profiles that fail
// validation.
var ErrInvalidProfile = eris.New("prep: invalid profile")

// flatten turns the joined data into one record per horizon, ordered by
// profile index and layer number.
func flatten(src *sources, j *joined, opts Options) (*Result, error) {
	res := &Result{}

	horizons := make(map[int64][]soilmap.Horizon)
	for _, h := range src.horizons {
		horizons[h.ProfileID] = append(horizons[h.ProfileID], h)
	}

	ids := make([]int64, 0, len(src.profiles))
	for id := range src.profiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	var kept []int64
	for _, id := range ids {
		p := src.profiles[id]
		if _, ok := j.codeCluster[p.SoilUnit]; !ok {
			zap.L().Warn("prep: profile has no BOFEK cluster, dropped",
				zap.Int64("profile", id), zap.String("soilunit", p.SoilUnit))
			res.Dropped = append(res.Dropped, id)
			continue
		}
		hs := horizons[id]
		sort.SliceStable(hs, func(a, b int) bool { return hs[a].LayerNumber < hs[b].LayerNumber })
		if err := checkHorizons(hs); err != nil {
			if opts.Strict {
				return nil, eris.Wrapf(ErrInvalidProfile, "prep: profile %d: %v", id, err)
			}
			zap.L().Warn("prep: invalid profile dropped", zap.Int64("profile", id), zap.Error(err))
			res.Dropped = append(res.Dropped, id)
			continue
		}
		horizons[id] = hs
		kept = append(kept, id)
	}

	keep := make(map[int64]bool, len(kept))
	for _, id := range kept {
		keep[id] = true
	}
	profileArea, areaProfile := attributeAreas(j, keep)
	dominant := dominantProfiles(kept, src, j, profileArea)
	missingName := make(map[int]bool)

	for _, id := range kept {
		p := src.profiles[id]
		cluster := j.codeCluster[p.SoilUnit]
		name, ok := src.names[cluster]
		if !ok && !missingName[cluster] {
			missingName[cluster] = true
			zap.L().Warn("prep: BOFEK cluster has no name", zap.Int("cluster", cluster))
		}

		for _, h := range horizons[id] {
			r := dutchsoils.NewRecord()
			r.ProfileIndex = id
			r.SoilUnit = p.SoilUnit
			r.ProfileName = p.Name
			r.BofekCluster = cluster
			r.BofekClusterName = name
			r.Dominant = dominant[cluster] == id
			r.Area = dutchsoils.Measure(profileArea[id])
			r.LayerNumber = h.LayerNumber
			r.FAONotation = h.FAONotation
			r.ZTop = dutchsoils.Measure(h.ZTop)
			r.ZBottom = dutchsoils.Measure(h.ZBottom)
			r.PeatType = h.PeatType
			for _, col := range soilmap.PropertyColumns {
				if v, ok := h.Values[col]; ok {
					r.SetMeasure(col, v)
				}
			}
			if err := setStaring(&r, h, src, opts.Strict); err != nil {
				return nil, err
			}
			res.Records = append(res.Records, r)
		}
	}

	areas, err := mapAreas(src, areaProfile, opts.WithGeometry)
	if err != nil {
		return nil, err
	}
	res.MapAreas = areas
	return res, nil
}

// checkHorizons verifies that a profile has horizons with unique layer
// numbers and contiguous, non-overlapping depths.
func checkHorizons(hs []soilmap.Horizon) error {
	if len(hs) == 0 {
		return eris.New("no horizons")
	}
	for i, h := range hs {
		if math.IsNaN(h.ZTop) || math.IsNaN(h.ZBottom) || h.ZTop >= h.ZBottom {
			return eris.Errorf("layer %d has invalid depths %v-%v", h.LayerNumber, h.ZTop, h.ZBottom)
		}
		if i == 0 {
			continue
		}
		prev := hs[i-1]
		if h.LayerNumber == prev.LayerNumber {
			return eris.Errorf("duplicate layer %d", h.LayerNumber)
		}
		if math.Abs(prev.ZBottom-h.ZTop) > depthTolerance {
			return eris.Errorf("layer %d starts at %v, previous ends at %v", h.LayerNumber, h.ZTop, prev.ZBottom)
		}
	}
	return nil
}

// attributeAreas splits each map area (ha) equally over its linked profiles
// that survived validation, and maps the area to the lowest of them. Areas
// without any kept profile are left out.
func attributeAreas(j *joined, keep map[int64]bool) (profileArea map[int64]float64, areaProfile map[int64]int64) {
	profileArea = make(map[int64]float64)
	areaProfile = make(map[int64]int64, len(j.areaLinks))
	for id, linked := range j.areaLinks {
		var kept []int64
		for _, p := range linked {
			if keep[p] {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			continue
		}
		areaProfile[id] = kept[0]
		part := j.areaSize[id] / m2PerHa / float64(len(kept))
		for _, p := range kept {
			profileArea[p] += part
		}
	}
	return profileArea, areaProfile
}

// dominantProfiles returns, per cluster, the profile with the largest area;
// ties go to the lowest index. kept is in ascending order.
func dominantProfiles(kept []int64, src *sources, j *joined, profileArea map[int64]float64) map[int]int64 {
	dominant := make(map[int]int64)
	best := make(map[int]float64)
	for _, id := range kept {
		c := j.codeCluster[src.profiles[id].SoilUnit]
		a := profileArea[id]
		if cur, ok := best[c]; !ok || a > cur {
			best[c] = a
			dominant[c] = id
		}
	}
	return dominant
}

// setStaring copies the Staring-series parameters of the horizon's block.
// Unknown blocks are logged and left empty unless strict is set.
func setStaring(r *dutchsoils.Record, h soilmap.Horizon, src *sources, strict bool) error {
	if h.StaringBlock == 0 {
		return nil
	}
	blk, err := src.blocks.Get(h.StaringBlock)
	if err != nil {
		if strict {
			return eris.Wrapf(ErrInvalidProfile, "prep: profile %d layer %d: %v", h.ProfileID, h.LayerNumber, err)
		}
		zap.L().Warn("prep: horizon refers to unknown Staring block",
			zap.Int64("profile", h.ProfileID), zap.Int("layer", h.LayerNumber), zap.Int("block", h.StaringBlock))
		return nil
	}
	r.StaringBlock = blk.Code
	r.StaringName = blk.Name
	r.WCRes = dutchsoils.Measure(blk.WCRes)
	r.WCSat = dutchsoils.Measure(blk.WCSat)
	r.VGMAlpha = dutchsoils.Measure(blk.VGMAlpha)
	r.VGMNPar = dutchsoils.Measure(blk.VGMNPar)
	r.VGMLambda = dutchsoils.Measure(blk.VGMLambda)
	r.KSatFit = dutchsoils.Measure(blk.KSatFit)
	return nil
}

// mapAreas lists the attributed map areas ordered by id. Soil map rows
// sharing a map area id are merged into one geometry.
func mapAreas(src *sources, areaProfile map[int64]int64, withGeometry bool) ([]dutchsoils.MapArea, error) {
	merged := make(map[int64]*geom.MultiPolygon)
	if withGeometry {
		for _, a := range src.areas {
			if a.Geom == nil {
				continue
			}
			mp, ok := merged[a.MapAreaID]
			if !ok {
				mp = geom.NewMultiPolygon(geom.XY)
				merged[a.MapAreaID] = mp
			}
			for i := 0; i < a.Geom.NumPolygons(); i++ {
				if err := mp.Push(a.Geom.Polygon(i)); err != nil {
					return nil, eris.Wrapf(err, "prep: merge map area %d", a.MapAreaID)
				}
			}
		}
	}

	ids := make([]int64, 0, len(areaProfile))
	for id := range areaProfile {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	out := make([]dutchsoils.MapArea, 0, len(ids))
	for _, id := range ids {
		ma, err := dutchsoils.NewMapArea(id, areaProfile[id], merged[id])
		if err != nil {
			return nil, err
		}
		out = append(out, ma)
	}
	return out, nil
}
