package dutchsoils

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// depthTolerance is the allowed mismatch (m) between the bottom of a horizon
// and the top of the next.
const depthTolerance = 1e-9

// Provenance describes how a flat file was produced. It is stored as "# key:
// value" comment lines above the CSV header.
type Provenance struct {
	BuildID string
	Created time.Time
	Sources []string
}

// Table is the in-memory combined soil profile table with lookup indexes.
// It is read-only after construction and safe for concurrent reads.
type Table struct {
	Provenance Provenance

	records   []Record
	byProfile map[int64][]int // record positions, ordered by layer number
	indices   []int64         // sorted profile indices
	byCode    map[string][]int64
	byCluster map[int][]int64
	dominant  map[int]int64

	mapAreas map[int64]int64 // map area id → profile index
	locator  *LocalLocator
}

// LoadTable reads the flat file at path.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dutchsoils: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	t, err := ReadTable(f)
	if err != nil {
		return nil, eris.Wrapf(err, "dutchsoils: load %s", path)
	}
	return t, nil
}

// ReadTable decodes a flat file and validates it.
func ReadTable(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	prov, err := readProvenance(br)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(br)
	cr.Comment = '#'
	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		return nil, eris.Wrapf(ErrMalformedTable, "dutchsoils: read header: %v", err)
	}

	var records []Record
	for {
		rec := NewRecord()
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrapf(ErrMalformedTable, "dutchsoils: decode row %d: %v", len(records)+1, err)
		}
		records = append(records, rec)
	}

	t, err := NewTable(records)
	if err != nil {
		return nil, err
	}
	t.Provenance = prov
	return t, nil
}

// WriteTable writes records as a flat file with a provenance header.
func WriteTable(w io.Writer, records []Record, prov Provenance) error {
	bw := bufio.NewWriter(w)
	if err := writeProvenance(bw, prov); err != nil {
		return err
	}

	cw := csv.NewWriter(bw)
	enc := csvutil.NewEncoder(cw)
	if len(records) == 0 {
		if err := enc.EncodeHeader(Record{}); err != nil {
			return eris.Wrap(err, "dutchsoils: encode header")
		}
	} else if err := enc.Encode(records); err != nil {
		return eris.Wrap(err, "dutchsoils: encode records")
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "dutchsoils: write records")
	}
	return eris.Wrap(bw.Flush(), "dutchsoils: flush")
}

func writeProvenance(w io.Writer, prov Provenance) error {
	lines := []string{"dutchsoils combined soil profile table"}
	if prov.BuildID != "" {
		lines = append(lines, "build_id: "+prov.BuildID)
	}
	if !prov.Created.IsZero() {
		lines = append(lines, "created: "+prov.Created.UTC().Format(time.RFC3339))
	}
	for _, s := range prov.Sources {
		lines = append(lines, "source: "+s)
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "# %s\n", l); err != nil {
			return eris.Wrap(err, "dutchsoils: write provenance")
		}
	}
	return nil
}

func readProvenance(br *bufio.Reader) (Provenance, error) {
	var prov Provenance
	for {
		b, err := br.Peek(1)
		if err != nil || b[0] != '#' {
			return prov, nil
		}
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return prov, eris.Wrap(err, "dutchsoils: read provenance")
		}
		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "#")), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "build_id":
			prov.BuildID = value
		case "created":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				prov.Created = ts
			}
		case "source":
			prov.Sources = append(prov.Sources, value)
		}
	}
}

// NewTable indexes records and checks the table invariants:
//   - (profile index, layer number) is unique;
//   - profile-level fields agree across the horizons of a profile;
//   - horizons of a profile are contiguous and non-overlapping;
//   - every soil-unit code maps to exactly one BOFEK cluster;
//   - every cluster has exactly one dominant profile.
func NewTable(records []Record) (*Table, error) {
	t := &Table{
		records:   records,
		byProfile: make(map[int64][]int),
		byCode:    make(map[string][]int64),
		byCluster: make(map[int][]int64),
		dominant:  make(map[int]int64),
	}

	for i := range records {
		p := records[i].ProfileIndex
		t.byProfile[p] = append(t.byProfile[p], i)
	}
	for p, rows := range t.byProfile {
		sort.Slice(rows, func(a, b int) bool {
			return records[rows[a]].LayerNumber < records[rows[b]].LayerNumber
		})
		if err := t.checkProfile(p, rows); err != nil {
			return nil, err
		}
		t.indices = append(t.indices, p)
	}
	sort.Slice(t.indices, func(a, b int) bool { return t.indices[a] < t.indices[b] })

	codeCluster := make(map[string]int)
	for _, p := range t.indices {
		r := &records[t.byProfile[p][0]]
		if c, ok := codeCluster[r.SoilUnit]; ok && c != r.BofekCluster {
			return nil, eris.Wrapf(ErrMalformedTable,
				"dutchsoils: soil unit %q maps to clusters %d and %d", r.SoilUnit, c, r.BofekCluster)
		}
		codeCluster[r.SoilUnit] = r.BofekCluster
		t.byCode[r.SoilUnit] = append(t.byCode[r.SoilUnit], p)
		t.byCluster[r.BofekCluster] = append(t.byCluster[r.BofekCluster], p)

		if r.Dominant {
			if prev, ok := t.dominant[r.BofekCluster]; ok {
				return nil, eris.Wrapf(ErrMalformedTable,
					"dutchsoils: cluster %d has dominant profiles %d and %d", r.BofekCluster, prev, p)
			}
			t.dominant[r.BofekCluster] = p
		}
	}
	for c := range t.byCluster {
		if _, ok := t.dominant[c]; !ok {
			return nil, eris.Wrapf(ErrMalformedTable, "dutchsoils: cluster %d has no dominant profile", c)
		}
	}

	return t, nil
}

func (t *Table) checkProfile(p int64, rows []int) error {
	first := &t.records[rows[0]]
	for i, pos := range rows {
		r := &t.records[pos]
		if i > 0 {
			prev := &t.records[rows[i-1]]
			if r.LayerNumber == prev.LayerNumber {
				return eris.Wrapf(ErrMalformedTable, "dutchsoils: profile %d: duplicate layer %d", p, r.LayerNumber)
			}
			if math.Abs(prev.ZBottom.Float()-r.ZTop.Float()) > depthTolerance {
				return eris.Wrapf(ErrMalformedTable,
					"dutchsoils: profile %d: layer %d starts at %v, previous ends at %v",
					p, r.LayerNumber, r.ZTop, prev.ZBottom)
			}
		}
		if !r.ZTop.Valid() || !r.ZBottom.Valid() || r.ZTop >= r.ZBottom {
			return eris.Wrapf(ErrMalformedTable,
				"dutchsoils: profile %d: layer %d has invalid depths %v-%v", p, r.LayerNumber, r.ZTop, r.ZBottom)
		}
		if r.SoilUnit != first.SoilUnit || r.BofekCluster != first.BofekCluster ||
			r.Dominant != first.Dominant || r.ProfileName != first.ProfileName {
			return eris.Wrapf(ErrMalformedTable, "dutchsoils: profile %d: inconsistent profile attributes", p)
		}
	}
	return nil
}

// Len returns the number of profiles.
func (t *Table) Len() int { return len(t.indices) }

// Indices returns all profile indices in ascending order.
func (t *Table) Indices() []int64 {
	return append([]int64(nil), t.indices...)
}

// Codes returns all soil-unit codes in ascending order.
func (t *Table) Codes() []string {
	codes := make([]string, 0, len(t.byCode))
	for c := range t.byCode {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Clusters returns all BOFEK cluster ids in ascending order.
func (t *Table) Clusters() []int {
	cs := make([]int, 0, len(t.byCluster))
	for c := range t.byCluster {
		cs = append(cs, c)
	}
	sort.Ints(cs)
	return cs
}

// Records returns the records of a profile ordered by layer number.
func (t *Table) Records(index int64) []Record {
	rows := t.byProfile[index]
	out := make([]Record, len(rows))
	for i, pos := range rows {
		out[i] = t.records[pos]
	}
	return out
}
