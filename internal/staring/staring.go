// Package staring loads the Staring series (2018): van Genuchten–Mualem
// parameters of the Dutch topsoil (B) and subsoil (O) building blocks.
package staring

import (
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dutchsoils/internal/fetcher"
)

// ErrUnknownBlock is returned for block ids or codes outside the series.
var ErrUnknownBlock = eris.New("staring: unknown block")

// BlockColumn is the join key shared by the parameter and names tables.
const BlockColumn = "staringseriesblock"

// Block holds the hydraulic parameters of one Staring-series building block.
type Block struct {
	ID        int
	Code      string
	Name      string
	WCRes     float64 // residual water content (cm3/cm3)
	WCSat     float64 // saturated water content (cm3/cm3)
	VGMAlpha  float64 // van Genuchten alpha (1/cm)
	VGMNPar   float64 // van Genuchten n (-)
	VGMLambda float64 // Mualem lambda (-)
	KSatFit   float64 // fitted saturated conductivity (cm/d)
}

// paramColumns maps each parameter to the accepted header names.
var paramColumns = []struct {
	name    string
	aliases []string
	set     func(*Block, float64)
}{
	{"wcres", []string{"wcres", "theta_r", "thetar"}, func(b *Block, v float64) { b.WCRes = v }},
	{"wcsat", []string{"wcsat", "theta_s", "thetas"}, func(b *Block, v float64) { b.WCSat = v }},
	{"vgmalpha", []string{"vgmalpha", "alpha", "alfa"}, func(b *Block, v float64) { b.VGMAlpha = v }},
	{"vgmnpar", []string{"vgmnpar", "n", "npar"}, func(b *Block, v float64) { b.VGMNPar = v }},
	{"vgmlambda", []string{"vgmlambda", "lambda", "l"}, func(b *Block, v float64) { b.VGMLambda = v }},
	{"ksatfit", []string{"ksatfit", "ks", "ksat"}, func(b *Block, v float64) { b.KSatFit = v }},
}

var (
	blockAliases = []string{BlockColumn, "bouwsteen", "block"}
	nameAliases  = []string{"staringseriesname", "name", "naam", "omschrijving"}
)

// Blocks indexes blocks by numeric id.
type Blocks map[int]Block

// Get returns the block with the given id.
func (b Blocks) Get(id int) (Block, error) {
	blk, ok := b[id]
	if !ok {
		return Block{}, eris.Wrapf(ErrUnknownBlock, "staring: block %d", id)
	}
	return blk, nil
}

// Code converts a numeric block id to its display code: the leading digit 1
// becomes "B" (topsoil), 2 becomes "O" (subsoil), and the last two digits are
// kept, so 1001 is "B01" and 2012 is "O12".
func Code(id int) (string, error) {
	s := strconv.Itoa(id)
	if len(s) < 3 {
		return "", eris.Wrapf(ErrUnknownBlock, "staring: block %d", id)
	}
	var prefix string
	switch s[0] {
	case '1':
		prefix = "B"
	case '2':
		prefix = "O"
	default:
		return "", eris.Wrapf(ErrUnknownBlock, "staring: block %d", id)
	}
	return prefix + s[len(s)-2:], nil
}

// ParseCode is the inverse of Code.
func ParseCode(code string) (int, error) {
	if len(code) != 3 {
		return 0, eris.Wrapf(ErrUnknownBlock, "staring: code %q", code)
	}
	n, err := strconv.Atoi(code[1:])
	if err != nil || n < 0 {
		return 0, eris.Wrapf(ErrUnknownBlock, "staring: code %q", code)
	}
	switch code[0] {
	case 'B', 'b':
		return 1000 + n, nil
	case 'O', 'o':
		return 2000 + n, nil
	default:
		return 0, eris.Wrapf(ErrUnknownBlock, "staring: code %q", code)
	}
}

// Options names the tables inside the Staring-series archive.
type Options struct {
	ParamsFile string
	NamesFile  string
	TempDir    string // extraction directory; a temporary one when empty
}

// ReadArchive loads the blocks from a zip archive or from a directory holding
// the extracted tables. From an archive only the two tables are extracted.
func ReadArchive(path string, opts Options) (Blocks, error) {
	if !fetcher.IsZIP(path) {
		paramsPath, err := fetcher.FindFile(path, opts.ParamsFile)
		if err != nil {
			return nil, eris.Wrap(err, "staring: locate parameter table")
		}
		namesPath, err := fetcher.FindFile(path, opts.NamesFile)
		if err != nil {
			return nil, eris.Wrap(err, "staring: locate names table")
		}
		return ReadTables(paramsPath, namesPath)
	}

	tmp := opts.TempDir
	if tmp == "" {
		d, err := os.MkdirTemp("", "staring-*")
		if err != nil {
			return nil, eris.Wrap(err, "staring: create temp dir")
		}
		defer os.RemoveAll(d) //nolint:errcheck
		tmp = d
	}
	paramsPath, err := fetcher.ExtractZIPFile(path, opts.ParamsFile, tmp)
	if err != nil {
		return nil, eris.Wrap(err, "staring: extract parameter table")
	}
	namesPath, err := fetcher.ExtractZIPFile(path, opts.NamesFile, tmp)
	if err != nil {
		return nil, eris.Wrap(err, "staring: extract names table")
	}
	return ReadTables(paramsPath, namesPath)
}

// ReadTables loads the parameter and names tables and joins them on the
// block id. Blocks without a name keep an empty name.
func ReadTables(paramsPath, namesPath string) (Blocks, error) {
	csvOpts := fetcher.CSVOptions{Comment: '#', TrimSpace: true}

	params, err := fetcher.ReadCSVFile(paramsPath, csvOpts)
	if err != nil {
		return nil, eris.Wrap(err, "staring: read parameters")
	}
	blocks, err := parseParams(params)
	if err != nil {
		return nil, err
	}

	names, err := fetcher.ReadCSVFile(namesPath, csvOpts)
	if err != nil {
		return nil, eris.Wrap(err, "staring: read names")
	}
	if err := attachNames(blocks, names); err != nil {
		return nil, err
	}

	zap.L().Debug("staring: loaded blocks", zap.Int("count", len(blocks)))
	return blocks, nil
}

func parseParams(tbl *fetcher.Table) (Blocks, error) {
	blockCol := resolve(tbl, blockAliases)
	if blockCol == "" {
		return nil, eris.Errorf("staring: parameter table has no %s column", BlockColumn)
	}
	cols := make([]string, len(paramColumns))
	for i, pc := range paramColumns {
		cols[i] = resolve(tbl, pc.aliases)
		if cols[i] == "" {
			return nil, eris.Errorf("staring: parameter table has no %s column", pc.name)
		}
	}

	blocks := make(Blocks, len(tbl.Rows))
	for _, row := range tbl.Rows {
		id, err := blockID(tbl.Get(row, blockCol))
		if err != nil {
			return nil, err
		}
		if _, dup := blocks[id]; dup {
			return nil, eris.Errorf("staring: duplicate block %d", id)
		}
		code, err := Code(id)
		if err != nil {
			return nil, err
		}

		blk := Block{ID: id, Code: code}
		for i, pc := range paramColumns {
			v, ok := tbl.Float(row, cols[i])
			if !ok {
				return nil, eris.Errorf("staring: block %d: invalid %s %q", id, pc.name, tbl.Get(row, cols[i]))
			}
			pc.set(&blk, v)
		}
		blocks[id] = blk
	}
	if len(blocks) == 0 {
		return nil, eris.New("staring: parameter table is empty")
	}
	return blocks, nil
}

func attachNames(blocks Blocks, tbl *fetcher.Table) error {
	blockCol := resolve(tbl, blockAliases)
	nameCol := resolve(tbl, nameAliases)
	if blockCol == "" || nameCol == "" {
		return eris.New("staring: names table needs block and name columns")
	}
	for _, row := range tbl.Rows {
		id, err := blockID(tbl.Get(row, blockCol))
		if err != nil {
			return err
		}
		blk, ok := blocks[id]
		if !ok {
			zap.L().Warn("staring: name for unknown block", zap.Int("block", id))
			continue
		}
		blk.Name = tbl.Get(row, nameCol)
		blocks[id] = blk
	}
	return nil
}

// blockID accepts numeric ids (1001) and display codes (B01).
func blockID(s string) (int, error) {
	if v, ok := fetcher.ParseFloat(s); ok {
		return int(v), nil
	}
	return ParseCode(s)
}

func resolve(tbl *fetcher.Table, aliases []string) string {
	for _, a := range aliases {
		if tbl.Has(a) {
			return a
		}
	}
	return ""
}
