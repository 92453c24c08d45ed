package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/dutchsoils/pkg/dutchsoils"
)

func testProfile(t *testing.T, index int64) *dutchsoils.SoilProfile {
	t.Helper()
	setupData(t, false)
	tbl, err := loadTable()
	require.NoError(t, err)
	sp, err := tbl.FromIndex(index)
	require.NoError(t, err)
	return sp
}

func TestWriteProfiles_Table(t *testing.T) {
	sp := testProfile(t, 1050)
	v, err := newProfileView(sp, "hydraulic")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeProfiles(&buf, []profileView{v}, "table"))

	out := buf.String()
	assert.Contains(t, out, "Hn21")
	assert.Contains(t, out, "3015 Podzolen in zand (dominant)")
	assert.Contains(t, out, "100.0 ha")
	assert.Contains(t, out, "STARINGSERIESBLOCK")
	assert.Contains(t, out, "B02")
	assert.Contains(t, out, "0.43")
}

func TestWriteProfiles_JSON(t *testing.T) {
	sp := testProfile(t, 1051)
	v, err := newProfileView(sp, "chemical")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeProfiles(&buf, []profileView{v}, "json"))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, float64(1051), got[0]["index"])
	assert.Equal(t, false, got[0]["bofekcluster_dominant"])
	horizons := got[0]["horizons"].(map[string]any)
	assert.Len(t, horizons["rows"], 1)
}

func TestWriteProfiles_YAML(t *testing.T) {
	sp := testProfile(t, 1050)
	v, err := newProfileView(sp, "physical")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeProfiles(&buf, []profileView{v}, "yaml"))

	var got []struct {
		Index    int64  `yaml:"index"`
		Code     string `yaml:"code"`
		Horizons struct {
			Columns []string `yaml:"columns"`
			Rows    [][]any  `yaml:"rows"`
		} `yaml:"horizons"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(1050), got[0].Index)
	assert.Equal(t, "Hn21", got[0].Code)
	assert.Contains(t, got[0].Horizons.Columns, "siltcontent")
	assert.Len(t, got[0].Horizons.Rows, 2)
}

func TestWriteProfiles_UnknownFormat(t *testing.T) {
	err := writeProfiles(&bytes.Buffer{}, nil, "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "-", formatCell(nil))
	assert.Equal(t, "0.25", formatCell(0.25))
	assert.Equal(t, "3", formatCell(3))
	assert.Equal(t, "B01", formatCell("B01"))
}

func TestWriteSWAPInput(t *testing.T) {
	sp := testProfile(t, 1050)

	var buf bytes.Buffer
	require.NoError(t, writeSWAPInput(&buf, sp, []int{100}, []int{5}, dutchsoils.HydraulicOptions{}))

	out := buf.String()
	assert.Contains(t, out, "* SOILPROFILE")
	assert.Contains(t, out, "* SOILHYDRFUNC")
	assert.Contains(t, out, "* SOILTEXTURES")
	assert.Contains(t, out, "* End of table")
	assert.Contains(t, out, "COFANI = 1 1\n")
}

func TestWriteSWAPInput_Errors(t *testing.T) {
	sp := testProfile(t, 1050)

	err := writeSWAPInput(&bytes.Buffer{}, sp, []int{100}, []int{30}, dutchsoils.HydraulicOptions{})
	require.Error(t, err)

	err = writeSWAPInput(&bytes.Buffer{}, sp, []int{100}, []int{10}, dutchsoils.HydraulicOptions{KSatExm: []float64{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KSATEXM")
}

func TestWriteSWAPFile(t *testing.T) {
	sp := testProfile(t, 1050)
	path := filepath.Join(t.TempDir(), "soil.swp")

	require.NoError(t, writeSWAPFile(path, sp, []int{100}, []int{5}, dutchsoils.HydraulicOptions{}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "* SOILPROFILE")
	assert.Contains(t, string(data), "COFANI = 1 1\n")

	err = writeSWAPFile(filepath.Join(t.TempDir(), "missing", "soil.swp"), sp, []int{100}, []int{5}, dutchsoils.HydraulicOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "swap: create")
}

func TestFormatAreas(t *testing.T) {
	setupData(t, false)
	tbl, err := loadTable()
	require.NoError(t, err)
	sps, err := tbl.FromCode("Hn21")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, formatAreas(&buf, sps))

	out := buf.String()
	assert.Contains(t, out, "PROFILE_HA")
	assert.Contains(t, out, "1050")
	assert.Contains(t, out, "1051")
	assert.Contains(t, out, "200.0")
}

func TestFormatInfo(t *testing.T) {
	setupData(t, true)
	tbl, err := loadTable()
	require.NoError(t, err)

	var buf bytes.Buffer
	formatInfo(&buf, tbl)

	out := buf.String()
	assert.Contains(t, out, "cmd-test")
	assert.Contains(t, out, "Profiles:")
	assert.Contains(t, out, "offline and online")
}
