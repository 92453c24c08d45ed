package bofek

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dutchsoils/internal/fetcher"
)

var (
	idColumns   = []string{"cluster", "bofek2020", "bofekcluster", "bofek_cluster", "clusternummer"}
	nameColumns = []string{"name", "naam", "omschrijving", "description", "clusternaam"}
)

// ReadNames reads the cluster id → name lookup table from an .xlsx workbook
// (first sheet) or a .csv file. The id and name columns are matched by header
// name; when neither is recognised the first two columns are used.
func ReadNames(path string) (map[int]string, error) {
	var (
		tbl *fetcher.Table
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		tbl, err = fetcher.ReadXLSXTable(path, fetcher.XLSXOptions{})
	case ".csv", ".txt":
		tbl, err = fetcher.ReadCSVFile(path, fetcher.CSVOptions{Comment: '#', TrimSpace: true})
	default:
		return nil, eris.Errorf("bofek: unsupported names file %s", path)
	}
	if err != nil {
		return nil, eris.Wrap(err, "bofek: read names")
	}

	idCol := firstColumn(tbl, idColumns, 0)
	nameCol := firstColumn(tbl, nameColumns, 1)
	if idCol >= len(tbl.Header) || nameCol >= len(tbl.Header) {
		return nil, eris.Errorf("bofek: names table %s needs an id and a name column", path)
	}

	names := make(map[int]string, len(tbl.Rows))
	for _, row := range tbl.Rows {
		if idCol >= len(row) || nameCol >= len(row) {
			continue
		}
		v, ok := fetcher.ParseFloat(row[idCol])
		if !ok {
			continue
		}
		id := int(v)
		if _, dup := names[id]; dup {
			return nil, eris.Errorf("bofek: duplicate cluster %d in %s", id, path)
		}
		names[id] = strings.TrimSpace(row[nameCol])
	}
	if len(names) == 0 {
		return nil, eris.Errorf("bofek: no cluster names in %s", path)
	}
	return names, nil
}

func firstColumn(tbl *fetcher.Table, candidates []string, fallback int) int {
	for _, c := range candidates {
		if i := tbl.Col(c); i >= 0 {
			return i
		}
	}
	return fallback
}
