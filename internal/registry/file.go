package registry

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/parcabul/broker/internal/normalize"
	"github.com/parcabul/broker/internal/pipeline"
	"github.com/parcabul/broker/internal/store"
)

// headerAliases maps folded column headers to vendor fields.
var headerAliases = map[string]string{
	"name":                 "name",
	"ad":                   "name",
	"isim":                 "name",
	"tedarikci":            "name",
	"tedarikçi":            "name",
	"phone":                "phone",
	"telefon":              "phone",
	"tel":                  "phone",
	"city":                 "city",
	"sehir":                "city",
	"şehir":                "city",
	"conditions":           "conditions",
	"supported_conditions": "conditions",
	"durum":                "conditions",
	"durumlar":             "conditions",
}

// ReadFile loads vendor rows from a .yaml, .yml, .csv or .xlsx file.
func ReadFile(path string) ([]VendorInput, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "registry: open vendor file")
		}
		defer f.Close() //nolint:errcheck
		return readYAML(f)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "registry: open vendor file")
		}
		defer f.Close() //nolint:errcheck
		rows, err := readCSV(f)
		if err != nil {
			return nil, err
		}
		return fromRows(rows)
	case ".xlsx":
		rows, err := readXLSX(path)
		if err != nil {
			return nil, err
		}
		return fromRows(rows)
	}
	return nil, eris.Errorf("registry: unsupported vendor file type %q", filepath.Ext(path))
}

// readYAML accepts a bare list or a document with a top-level vendors key.
func readYAML(r io.Reader) ([]VendorInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read yaml")
	}

	var list []VendorInput
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc struct {
		Vendors []VendorInput `yaml:"vendors"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "registry: parse yaml")
	}
	return doc.Vendors, nil
}

// readCSV reads every record. Semicolon-separated exports are detected from
// the header line.
func readCSV(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, eris.Wrap(err, "csv: peek header")
	}

	reader := csv.NewReader(br)
	first, _, _ := strings.Cut(string(head), "\n")
	if strings.Count(first, ";") > strings.Count(first, ",") {
		reader.Comma = ';'
	}
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "csv: read rows")
	}
	return rows, nil
}

// readXLSX returns the rows of the first sheet.
func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: file has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// fromRows maps a header row plus data rows to vendor inputs. Blank rows are
// skipped.
func fromRows(rows [][]string) ([]VendorInput, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		field, ok := headerField(h)
		if !ok {
			continue
		}
		if _, dup := cols[field]; !dup {
			cols[field] = i
		}
	}
	for _, required := range []string{"name", "phone"} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("registry: vendor file has no %s column", required)
		}
	}

	cell := func(row []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []VendorInput
	for _, row := range rows[1:] {
		in := VendorInput{
			Name:  cell(row, "name"),
			Phone: cell(row, "phone"),
			City:  cell(row, "city"),
		}
		if in.Name == "" && in.Phone == "" && in.City == "" {
			continue
		}
		if c := cell(row, "conditions"); c != "" {
			in.Conditions = strings.FieldsFunc(c, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
		}
		out = append(out, in)
	}
	return out, nil
}

// headerField resolves a column header. English headers in capitals fold
// to a dotless ı under Turkish rules, so plain lowercasing is tried too.
func headerField(h string) (string, bool) {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	if f, ok := headerAliases[normalize.Turkish.Fold(h)]; ok {
		return f, true
	}
	f, ok := headerAliases[strings.ToLower(h)]
	return f, ok
}

// RowError explains why one imported row was skipped.
type RowError struct {
	Row   int    `json:"row"`
	Phone string `json:"phone"`
	Err   error  `json:"-"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Created int        `json:"created"`
	Skipped []RowError `json:"skipped"`
}

// Import creates each vendor in order. Invalid rows and phones already in
// the registry are skipped; any other failure aborts the import.
func (r *Registry) Import(ctx context.Context, rows []VendorInput) (*ImportResult, error) {
	res := &ImportResult{}
	for i, in := range rows {
		_, err := r.Create(ctx, in)
		if err == nil {
			res.Created++
			continue
		}

		var ve *pipeline.ValidationError
		if errors.As(err, &ve) || errors.Is(err, store.ErrDuplicate) {
			res.Skipped = append(res.Skipped, RowError{Row: i + 1, Phone: in.Phone, Err: err})
			zap.L().Warn("registry: import row skipped",
				zap.Int("row", i+1),
				zap.String("phone", in.Phone),
				zap.Error(err),
			)
			continue
		}
		return res, eris.Wrapf(err, "registry: import row %d", i+1)
	}
	return res, nil
}
