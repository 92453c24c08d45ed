package dutchsoils

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// SWAP input table names.
const (
	SWAPSoilProfile  = "SOILPROFILE"
	SWAPSoilHydrFunc = "SOILHYDRFUNC"
	SWAPSoilTextures = "SOILTEXTURES"
	SWAPCofaniName   = "COFANI"
)

// SWAPTable is a SWAP input table stored column-wise.
type SWAPTable struct {
	Name    string               `json:"name" yaml:"name"`
	Columns []string             `json:"columns" yaml:"columns"`
	Data    map[string][]float64 `json:"data" yaml:"data"`
}

func newSWAPTable(name string, cols ...string) SWAPTable {
	t := SWAPTable{Name: name, Columns: cols, Data: make(map[string][]float64, len(cols))}
	for _, c := range cols {
		t.Data[c] = nil
	}
	return t
}

// Len returns the number of rows.
func (t SWAPTable) Len() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Data[t.Columns[0]])
}

// SWAPProfile discretises the profile for the SOILPROFILE table. depths are
// the thicknesses (cm) of consecutive discretisation layers and heights the
// compartment height (cm) used in each; every depth must be a multiple of
// its height. Compartment boundaries are split at the soil horizon
// boundaries, and compartments deeper than the profile take the properties
// of its deepest horizon. Sublayers sharing a soil layer and compartment
// height are merged.
func (sp *SoilProfile) SWAPProfile(depths, heights []int) (SWAPTable, error) {
	if len(depths) == 0 || len(depths) != len(heights) {
		return SWAPTable{}, eris.Wrapf(ErrInvalidInput,
			"dutchsoils: need equal, non-zero numbers of depths and heights (depths: %d, heights: %d)",
			len(depths), len(heights))
	}
	var badDepths, badHeights []string
	for i := range depths {
		if depths[i] <= 0 || heights[i] <= 0 {
			return SWAPTable{}, eris.Wrapf(ErrInvalidInput,
				"dutchsoils: depth %d and height %d must be positive", depths[i], heights[i])
		}
		if depths[i]%heights[i] != 0 {
			badDepths = append(badDepths, strconv.Itoa(depths[i]))
			badHeights = append(badHeights, strconv.Itoa(heights[i]))
		}
	}
	if len(badDepths) > 0 {
		return SWAPTable{}, eris.Wrapf(ErrInvalidInput,
			"dutchsoils: the compartment depths [%s] are not a multiple of the compartment heights [%s]",
			strings.Join(badDepths, " "), strings.Join(badHeights, " "))
	}

	recs, err := sp.staringRecords()
	if err != nil {
		return SWAPTable{}, err
	}

	soilBottoms := make([]int, len(recs))
	for i, r := range recs {
		soilBottoms[i] = int(math.Round(r.ZBottom.Float() * 100)) // m → cm
	}

	total := 0
	bounds := make(map[int]struct{})
	for i := range depths {
		for n := 0; n < depths[i]/heights[i]; n++ {
			total += heights[i]
			bounds[total] = struct{}{}
		}
	}
	for _, b := range soilBottoms {
		bounds[b] = struct{}{}
	}
	zb := make([]int, 0, len(bounds))
	for b := range bounds {
		if b > 0 && b <= total {
			zb = append(zb, b)
		}
	}
	sort.Ints(zb)

	type key struct{ layer, hcomp int }
	sums := make(map[key]int)
	prev := 0
	for _, b := range zb {
		h := b - prev
		prev = b
		layer := sort.SearchInts(soilBottoms, b) + 1
		if layer > len(soilBottoms) {
			layer = len(soilBottoms)
		}
		sums[key{layer, h}] += h
	}
	keys := make([]key, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].layer != keys[j].layer {
			return keys[i].layer < keys[j].layer
		}
		return keys[i].hcomp < keys[j].hcomp
	})

	t := newSWAPTable(SWAPSoilProfile, "ISUBLAY", "ISOILLAY", "HSUBLAY", "HCOMP", "NCOMP")
	for i, k := range keys {
		hsub := sums[k]
		t.Data["ISUBLAY"] = append(t.Data["ISUBLAY"], float64(i+1))
		t.Data["ISOILLAY"] = append(t.Data["ISOILLAY"], float64(k.layer))
		t.Data["HSUBLAY"] = append(t.Data["HSUBLAY"], float64(hsub))
		t.Data["HCOMP"] = append(t.Data["HCOMP"], float64(k.hcomp))
		t.Data["NCOMP"] = append(t.Data["NCOMP"], float64(hsub/k.hcomp))
	}
	return t, nil
}

// HydraulicOptions supplies measured values that replace defaults in the
// SOILHYDRFUNC table. Each slice, when set, needs one value per horizon.
type HydraulicOptions struct {
	KSatExm []float64 // measured saturated conductivity (cm/d); default KSATFIT
	HEnpr   []float64 // measured air entry pressure head (cm); default 0
}

// SWAPHydraulicParams returns the SOILHYDRFUNC table: van Genuchten–Mualem
// parameters per soil layer and the bulk density in kg/m3.
func (sp *SoilProfile) SWAPHydraulicParams(opts HydraulicOptions) (SWAPTable, error) {
	recs, err := sp.staringRecords()
	if err != nil {
		return SWAPTable{}, err
	}
	n := len(recs)
	if opts.KSatExm != nil && len(opts.KSatExm) != n {
		return SWAPTable{}, eris.Wrapf(ErrInvalidInput,
			"dutchsoils: %d KSATEXM values for %d soil layers", len(opts.KSatExm), n)
	}
	if opts.HEnpr != nil && len(opts.HEnpr) != n {
		return SWAPTable{}, eris.Wrapf(ErrInvalidInput,
			"dutchsoils: %d H_ENPR values for %d soil layers", len(opts.HEnpr), n)
	}

	t := newSWAPTable(SWAPSoilHydrFunc,
		"ORES", "OSAT", "ALFA", "NPAR", "KSATFIT", "LEXP", "H_ENPR", "KSATEXM", "BDENS")
	for i, r := range recs {
		t.Data["ORES"] = append(t.Data["ORES"], r.WCRes.Float())
		t.Data["OSAT"] = append(t.Data["OSAT"], r.WCSat.Float())
		t.Data["ALFA"] = append(t.Data["ALFA"], r.VGMAlpha.Float())
		t.Data["NPAR"] = append(t.Data["NPAR"], r.VGMNPar.Float())
		t.Data["KSATFIT"] = append(t.Data["KSATFIT"], r.KSatFit.Float())
		t.Data["LEXP"] = append(t.Data["LEXP"], r.VGMLambda.Float())

		hEnpr := 0.0
		if opts.HEnpr != nil {
			hEnpr = opts.HEnpr[i]
		}
		t.Data["H_ENPR"] = append(t.Data["H_ENPR"], hEnpr)

		ksatexm := r.KSatFit.Float()
		if opts.KSatExm != nil {
			ksatexm = opts.KSatExm[i]
		}
		t.Data["KSATEXM"] = append(t.Data["KSATEXM"], ksatexm)

		t.Data["BDENS"] = append(t.Data["BDENS"], r.Density.Float()*1000) // g/cm3 → kg/m3
	}
	return t, nil
}

// SWAPFractions returns the SOILTEXTURES table: sand, silt, clay and organic
// matter as mass fractions. Sand is the remainder after silt and clay.
func (sp *SoilProfile) SWAPFractions() (SWAPTable, error) {
	recs, err := sp.staringRecords()
	if err != nil {
		return SWAPTable{}, err
	}
	t := newSWAPTable(SWAPSoilTextures, "PSAND", "PSILT", "PCLAY", "ORGMAT")
	for _, r := range recs {
		silt, clay := r.Silt.Float(), r.Lutite.Float()
		t.Data["PSAND"] = append(t.Data["PSAND"], (100-silt-clay)*0.01)
		t.Data["PSILT"] = append(t.Data["PSILT"], silt*0.01)
		t.Data["PCLAY"] = append(t.Data["PCLAY"], clay*0.01)
		t.Data["ORGMAT"] = append(t.Data["ORGMAT"], r.OrganicMatter.Float()*0.01)
	}
	return t, nil
}

// SWAPCofani returns the anisotropy coefficient of each soil layer (1.0).
func (sp *SoilProfile) SWAPCofani() ([]float64, error) {
	recs, err := sp.staringRecords()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(recs))
	for i := range out {
		out[i] = 1.0
	}
	return out, nil
}

// FormatSWAPValue formats v with the shortest representation that parses
// back to v. Missing values are written as -999, the SWAP no-data value.
func FormatSWAPValue(v float64) string {
	if math.IsNaN(v) {
		return "-999"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteSWAP writes tables in the table syntax of a SWAP .swp input file.
func WriteSWAP(w io.Writer, tables ...SWAPTable) error {
	bw := bufio.NewWriter(w)
	for i, t := range tables {
		if i > 0 {
			fmt.Fprintln(bw)
		}
		cells := make([][]string, t.Len())
		widths := make([]int, len(t.Columns))
		for c, name := range t.Columns {
			widths[c] = len(name)
		}
		for r := range cells {
			cells[r] = make([]string, len(t.Columns))
			for c, name := range t.Columns {
				s := FormatSWAPValue(t.Data[name][r])
				cells[r][c] = s
				widths[c] = max(widths[c], len(s))
			}
		}

		fmt.Fprintf(bw, "* %s\n", t.Name)
		writeSWAPRow(bw, t.Columns, widths)
		for _, row := range cells {
			writeSWAPRow(bw, row, widths)
		}
		fmt.Fprintln(bw, "* End of table")
	}
	return eris.Wrap(bw.Flush(), "dutchsoils: write swap tables")
}

// WriteSWAPArray writes a one-line SWAP array parameter such as COFANI.
func WriteSWAPArray(w io.Writer, name string, values []float64) error {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = FormatSWAPValue(v)
	}
	_, err := fmt.Fprintf(w, "%s = %s\n", name, strings.Join(parts, " "))
	return eris.Wrap(err, "dutchsoils: write swap array")
}

func writeSWAPRow(w io.Writer, cells []string, widths []int) {
	for i, c := range cells {
		fmt.Fprintf(w, "  %*s", widths[i], c)
	}
	fmt.Fprintln(w)
}
