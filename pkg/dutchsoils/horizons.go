package dutchsoils

import (
	"github.com/rotisserie/eris"
)

// Horizon column sets.
var (
	depthColumns = []string{"layernumber", "faohorizonnotation", "ztop", "zbottom"}

	chemicalColumns = []string{
		"organicmattercontent", "organicmattercontent10p", "organicmattercontent90p",
		"acidity", "acidity10p", "acidity90p",
		"cnratio", "peattype", "calciccontent", "fedith",
	}

	physicalColumns = []string{
		"loamcontent", "loamcontent10p", "loamcontent90p",
		"lutitecontent", "lutitecontent10p", "lutitecontent90p",
		"sandmedian", "sandmedian10p", "sandmedian90p",
		"siltcontent", "density",
	}

	staringColumns = []string{"wcres", "wcsat", "vgmalpha", "vgmnpar", "vgmlambda", "ksatfit", "staringseriesname"}
)

// HorizonColumns returns the columns returned by Horizons for which.
func HorizonColumns(which string) ([]string, error) {
	var cols []string
	switch which {
	case "hydraulic":
		cols = append(cols, depthColumns...)
		cols = append(cols, "staringseriesblock")
		cols = append(cols, staringColumns...)
	case "chemical":
		cols = append(cols, depthColumns...)
		cols = append(cols, chemicalColumns...)
	case "physical":
		cols = append(cols, depthColumns...)
		cols = append(cols, physicalColumns...)
	case "all":
		cols = append(cols, depthColumns...)
		cols = append(cols, "staringseriesblock")
		cols = append(cols, chemicalColumns...)
		cols = append(cols, physicalColumns...)
		cols = append(cols, staringColumns...)
	default:
		return nil, eris.Wrapf(ErrInvalidInput,
			"dutchsoils: horizons %q: choose between all, hydraulic, physical, chemical", which)
	}
	return cols, nil
}

// HorizonTable holds horizon data in column order. Values are int, string,
// float64, or nil for missing measurements.
type HorizonTable struct {
	Columns []string `json:"columns" yaml:"columns"`
	Rows    [][]any  `json:"rows" yaml:"rows"`
}

// Len returns the number of horizons.
func (h *HorizonTable) Len() int { return len(h.Rows) }

// Column returns the values of the named column.
func (h *HorizonTable) Column(name string) ([]any, error) {
	for i, c := range h.Columns {
		if c != name {
			continue
		}
		out := make([]any, len(h.Rows))
		for j, row := range h.Rows {
			out[j] = row[i]
		}
		return out, nil
	}
	return nil, eris.Wrapf(ErrInvalidInput, "dutchsoils: no column %q", name)
}

// Horizons returns the horizon data of the profile, selected by which:
//   - "all": depths, Staring block, chemical, physical and hydraulic data;
//   - "hydraulic": depths, Staring block and its parameters;
//   - "physical": depths, texture fractions, sand median and density;
//   - "chemical": depths, organic matter, acidity, C/N, peat type, calcite and
//     iron oxide.
//
// The "all" and "hydraulic" selections only include horizons that have a
// Staring-series block.
func (sp *SoilProfile) Horizons(which string) (*HorizonTable, error) {
	cols, err := HorizonColumns(which)
	if err != nil {
		return nil, err
	}
	needStaring := which == "all" || which == "hydraulic"

	ht := &HorizonTable{Columns: cols}
	for _, r := range sp.Records() {
		if needStaring && !r.hasStaring() {
			continue
		}
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i], _ = r.Value(c)
		}
		ht.Rows = append(ht.Rows, row)
	}
	return ht, nil
}

// staringRecords returns the horizons used for SWAP input.
func (sp *SoilProfile) staringRecords() ([]Record, error) {
	var out []Record
	for _, r := range sp.Records() {
		if r.hasStaring() {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "dutchsoils: profile %d has no horizons with Staring parameters", sp.Index)
	}
	return out, nil
}
