package dutchsoils

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromIndex(t *testing.T) {
	tbl := newTestTable(t)

	sp, err := tbl.FromIndex(1050)
	require.NoError(t, err)
	assert.Equal(t, int64(1050), sp.Index)
	assert.Equal(t, "Hn21", sp.Code)
	assert.Equal(t, "profile Hn21", sp.Name)
	assert.Equal(t, 3015, sp.BofekCluster)
	assert.Equal(t, "cluster name", sp.BofekClusterName)
	assert.True(t, sp.BofekClusterDominant)

	_, err = tbl.FromIndex(9999)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestFromIndices(t *testing.T) {
	tbl := newTestTable(t)

	sps, err := tbl.FromIndices([]int64{2010, 1050})
	require.NoError(t, err)
	require.Len(t, sps, 2)
	assert.Equal(t, int64(2010), sps[0].Index)
	assert.Equal(t, int64(1050), sps[1].Index)

	_, err = tbl.FromIndices([]int64{1050, 1})
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestFromCode(t *testing.T) {
	tbl := newTestTable(t)

	sps, err := tbl.FromCode("Hn21")
	require.NoError(t, err)
	require.Len(t, sps, 2)
	assert.Equal(t, int64(1050), sps[0].Index)
	assert.Equal(t, int64(1051), sps[1].Index)

	_, err = tbl.FromCode("zzz")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestProfileByCode(t *testing.T) {
	tbl := newTestTable(t)

	sp, err := tbl.ProfileByCode("pVc")
	require.NoError(t, err)
	assert.Equal(t, int64(2010), sp.Index)

	_, err = tbl.ProfileByCode("Hn21")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrAmbiguousCode))
	assert.Contains(t, err.Error(), "indices 1050, 1051")

	_, err = tbl.ProfileByCode("Zn21")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestFromBofekCluster(t *testing.T) {
	tbl := newTestTable(t)

	all, err := tbl.FromBofekCluster(3015, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1050), all[0].Index)
	assert.Equal(t, int64(1051), all[1].Index)

	dom, err := tbl.FromBofekCluster(3015, true)
	require.NoError(t, err)
	require.Len(t, dom, 1)
	assert.Equal(t, int64(1050), dom[0].Index)

	sp, err := tbl.DominantProfile(1001)
	require.NoError(t, err)
	assert.Equal(t, int64(2010), sp.Index)

	_, err = tbl.FromBofekCluster(4000, false)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestArea(t *testing.T) {
	tbl := newTestTable(t)
	sp, err := tbl.FromIndex(1051)
	require.NoError(t, err)

	a, err := sp.Area("profile")
	require.NoError(t, err)
	assert.InDelta(t, 300, a, 1e-9)

	a, err = sp.Area("bofekcluster")
	require.NoError(t, err)
	assert.InDelta(t, 1500.5, a, 1e-9)

	_, err = sp.Area("country")
	assert.True(t, eris.Is(err, ErrInvalidInput))
}

func TestHorizonColumns(t *testing.T) {
	tests := []struct {
		which string
		n     int
		last  string
	}{
		{"hydraulic", 12, "staringseriesname"},
		{"chemical", 14, "fedith"},
		{"physical", 15, "density"},
		{"all", 33, "staringseriesname"},
	}
	for _, tt := range tests {
		cols, err := HorizonColumns(tt.which)
		require.NoError(t, err, tt.which)
		assert.Len(t, cols, tt.n, tt.which)
		assert.Equal(t, []string{"layernumber", "faohorizonnotation", "ztop", "zbottom"}, cols[:4], tt.which)
		assert.Equal(t, tt.last, cols[len(cols)-1], tt.which)
	}

	_, err := HorizonColumns("biological")
	assert.True(t, eris.Is(err, ErrInvalidInput))
}

func TestHorizons(t *testing.T) {
	tbl := newTestTable(t)
	sp, err := tbl.FromIndex(1051)
	require.NoError(t, err)

	chem, err := sp.Horizons("chemical")
	require.NoError(t, err)
	assert.Equal(t, 2, chem.Len())

	om, err := chem.Column("organicmattercontent")
	require.NoError(t, err)
	assert.Equal(t, []any{4.0, 1.0}, om)

	fe, err := chem.Column("fedith")
	require.NoError(t, err)
	assert.Equal(t, []any{nil, nil}, fe)

	// Horizons without a Staring block are left out of hydraulic data.
	hyd, err := sp.Horizons("hydraulic")
	require.NoError(t, err)
	require.Equal(t, 1, hyd.Len())
	assert.Equal(t, 1, hyd.Rows[0][0])
	block, err := hyd.Column("staringseriesblock")
	require.NoError(t, err)
	assert.Equal(t, []any{"B01"}, block)

	all, err := sp.Horizons("all")
	require.NoError(t, err)
	assert.Equal(t, 1, all.Len())

	_, err = chem.Column("nope")
	assert.True(t, eris.Is(err, ErrInvalidInput))

	_, err = sp.Horizons("other")
	assert.True(t, eris.Is(err, ErrInvalidInput))
}
