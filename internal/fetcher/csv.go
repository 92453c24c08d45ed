package fetcher

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
)

const sniffSize = 64 << 10

// CSVOptions configures the CSV table reader.
type CSVOptions struct {
	Delimiter  rune // 0 = sniff ',' or ';' from the header line
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
	Latin1     bool // decode Windows-1252 input
}

// Table is a header-keyed CSV table. Columns are addressed by name so the
// order of columns in the source file does not matter.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// Col returns the index of the named column (case-insensitive), or -1.
func (t *Table) Col(name string) int {
	if i, ok := t.index[strings.ToLower(name)]; ok {
		return i
	}
	return -1
}

// Has reports whether every named column is present.
func (t *Table) Has(names ...string) bool {
	for _, n := range names {
		if t.Col(n) < 0 {
			return false
		}
	}
	return true
}

// Require returns an error naming the first missing column.
func (t *Table) Require(names ...string) error {
	for _, n := range names {
		if t.Col(n) < 0 {
			return eris.Errorf("csv: missing column %q", n)
		}
	}
	return nil
}

// Get returns the value of the named column in row, or "" when absent.
func (t *Table) Get(row []string, name string) string {
	i := t.Col(name)
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Float parses the named column. Empty cells and Dutch decimal commas are
// accepted; ok is false for empty or unparsable values.
func (t *Table) Float(row []string, name string) (float64, bool) {
	return ParseFloat(t.Get(row, name))
}

// ParseFloat parses s as a float, accepting a decimal comma.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, opts CSVOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	t, err := ReadCSV(f, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: read %s", path)
	}
	return t, nil
}

// ReadCSV reads a CSV table whose first non-comment row is the header.
func ReadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	if opts.Latin1 {
		r = charmap.Windows1252.NewDecoder().Reader(r)
	}
	br := bufio.NewReaderSize(r, sniffSize)

	if opts.Delimiter == 0 {
		d, err := sniffDelimiter(br, opts.Comment)
		if err != nil {
			return nil, err
		}
		opts.Delimiter = d
	}

	reader := csv.NewReader(br)
	reader.Comma = opts.Delimiter
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // allow variable fields

	t := &Table{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}

		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}

		if t.Header == nil {
			// Strip a UTF-8 byte order mark left by spreadsheet exports.
			if len(record) > 0 {
				record[0] = strings.TrimPrefix(record[0], "\ufeff")
			}
			t.Header = record
			continue
		}
		t.Rows = append(t.Rows, record)
	}

	if t.Header == nil {
		return nil, eris.New("csv: empty table")
	}

	t.index = make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := t.index[key]; !dup {
			t.index[key] = i
		}
	}

	return t, nil
}

// sniffDelimiter peeks at the first non-comment line and picks ';' when it
// has more semicolons than commas.
func sniffDelimiter(br *bufio.Reader, comment rune) (rune, error) {
	buf, err := br.Peek(sniffSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return 0, eris.Wrap(err, "csv: peek header")
	}
	for _, line := range strings.Split(string(buf), "\n") {
		if strings.TrimSpace(line) == "" || (comment != 0 && strings.HasPrefix(line, string(comment))) {
			continue
		}
		if strings.Count(line, ";") > strings.Count(line, ",") {
			return ';', nil
		}
		break
	}
	return ',', nil
}
