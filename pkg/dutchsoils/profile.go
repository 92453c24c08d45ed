// Package dutchsoils gives access to Dutch soil profiles: their horizons,
// BOFEK2020 cluster and Staring-series hydraulic parameters, and SWAP model
// input derived from them. Profiles are looked up in a pre-built flat table
// by index, soil-unit code, BOFEK cluster, soil map area or location.
package dutchsoils

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// SoilProfile is one normal soil profile of the Dutch soil map.
type SoilProfile struct {
	Index                int64  `json:"index" yaml:"index"`
	Code                 string `json:"code" yaml:"code"`
	Name                 string `json:"name" yaml:"name"`
	BofekCluster         int    `json:"bofekcluster" yaml:"bofekcluster"`
	BofekClusterName     string `json:"bofekcluster_name" yaml:"bofekcluster_name"`
	BofekClusterDominant bool   `json:"bofekcluster_dominant" yaml:"bofekcluster_dominant"`

	table *Table
}

// FromIndex returns the profile with the given index.
func (t *Table) FromIndex(index int64) (*SoilProfile, error) {
	rows, ok := t.byProfile[index]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "dutchsoils: soil profile index %d", index)
	}
	r := &t.records[rows[0]]
	return &SoilProfile{
		Index:                r.ProfileIndex,
		Code:                 r.SoilUnit,
		Name:                 r.ProfileName,
		BofekCluster:         r.BofekCluster,
		BofekClusterName:     r.BofekClusterName,
		BofekClusterDominant: r.Dominant,
		table:                t,
	}, nil
}

// FromIndices returns the profiles with the given indices, in order.
func (t *Table) FromIndices(indices []int64) ([]*SoilProfile, error) {
	out := make([]*SoilProfile, 0, len(indices))
	for _, i := range indices {
		sp, err := t.FromIndex(i)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, nil
}

// FromCode returns every profile with the given soil-unit code, ordered by
// index.
func (t *Table) FromCode(code string) ([]*SoilProfile, error) {
	indices, ok := t.byCode[code]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "dutchsoils: soil unit code %q", code)
	}
	return t.FromIndices(indices)
}

// ProfileByCode returns the single profile with the given soil-unit code.
// When several profiles share the code it returns ErrAmbiguousCode listing
// their indices; use FromCode or FromIndex instead.
func (t *Table) ProfileByCode(code string) (*SoilProfile, error) {
	indices, ok := t.byCode[code]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "dutchsoils: soil unit code %q", code)
	}
	if len(indices) > 1 {
		s := make([]string, len(indices))
		for i, idx := range indices {
			s[i] = strconv.FormatInt(idx, 10)
		}
		return nil, eris.Wrapf(ErrAmbiguousCode,
			"dutchsoils: soil unit code %q corresponds to profiles with indices %s", code, strings.Join(s, ", "))
	}
	return t.FromIndex(indices[0])
}

// FromBofekCluster returns the profiles of a BOFEK cluster: only the
// dominant one when dominant is set, otherwise all of them ordered by index.
func (t *Table) FromBofekCluster(cluster int, dominant bool) ([]*SoilProfile, error) {
	indices, ok := t.byCluster[cluster]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "dutchsoils: bofek cluster %d", cluster)
	}
	if dominant {
		sp, err := t.FromIndex(t.dominant[cluster])
		if err != nil {
			return nil, err
		}
		return []*SoilProfile{sp}, nil
	}
	return t.FromIndices(indices)
}

// DominantProfile returns the dominant profile of a BOFEK cluster.
func (t *Table) DominantProfile(cluster int) (*SoilProfile, error) {
	sps, err := t.FromBofekCluster(cluster, true)
	if err != nil {
		return nil, err
	}
	return sps[0], nil
}

// Records returns the horizon records of the profile ordered by layer.
func (sp *SoilProfile) Records() []Record {
	return sp.table.Records(sp.Index)
}

// Area returns the area (ha) in the Netherlands of the profile ("profile")
// or of the whole BOFEK cluster it belongs to ("bofekcluster").
func (sp *SoilProfile) Area(which string) (float64, error) {
	switch which {
	case "profile":
		return sp.table.profileArea(sp.Index), nil
	case "bofekcluster":
		var sum float64
		for _, p := range sp.table.byCluster[sp.BofekCluster] {
			sum += sp.table.profileArea(p)
		}
		return sum, nil
	default:
		return 0, eris.Wrapf(ErrInvalidInput,
			"dutchsoils: area %q: use \"profile\" or \"bofekcluster\"", which)
	}
}

func (t *Table) profileArea(index int64) float64 {
	rows := t.byProfile[index]
	if len(rows) == 0 {
		return 0
	}
	a := t.records[rows[0]].Area
	if !a.Valid() {
		return 0
	}
	return a.Float()
}
