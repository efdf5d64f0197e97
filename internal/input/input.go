// Package input loads company lists for batch reconciliation from CSV and
// XLSX files.
package input

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// ReadCompanies loads a company list from the given file, dispatching on the
// extension. The first row is treated as a header; rows without a domain are
// skipped.
func ReadCompanies(path string) ([]model.Company, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, eris.Errorf("input: unsupported file type %q (want .csv or .xlsx)", filepath.Ext(path))
	}
}

func readCSV(path string) ([]model.Company, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "input: open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows tolerated
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "input: read csv")
	}
	return companiesFromRows(rows)
}

func readXLSX(path string) ([]model.Company, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "input: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("input: xlsx file has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		rows = append(rows, cells)
	}
	return companiesFromRows(rows)
}

// headerAliases maps accepted column names onto the canonical company fields.
var headerAliases = map[string]string{
	"name":          "name",
	"company":       "name",
	"company_name":  "name",
	"domain":        "domain",
	"website":       "domain",
	"url":           "domain",
	"salesforce_id": "salesforce_id",
	"sf_id":         "salesforce_id",
	"location":      "location",
}

func companiesFromRows(rows [][]string) ([]model.Company, error) {
	if len(rows) == 0 {
		return nil, eris.New("input: file is empty")
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if canonical, ok := headerAliases[key]; ok {
			if _, taken := cols[canonical]; !taken {
				cols[canonical] = i
			}
		}
	}
	domainIdx, ok := cols["domain"]
	if !ok {
		return nil, eris.New("input: header has no domain column (accepted: domain, website, url)")
	}

	cell := func(row []string, field string) string {
		idx, ok := cols[field]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var companies []model.Company
	for _, row := range rows[1:] {
		if domainIdx >= len(row) {
			continue
		}
		domain := NormalizeDomain(row[domainIdx])
		if domain == "" {
			continue
		}
		companies = append(companies, model.Company{
			Name:         cell(row, "name"),
			Domain:       domain,
			SalesforceID: cell(row, "salesforce_id"),
			Location:     cell(row, "location"),
		})
	}
	return companies, nil
}

// NormalizeDomain reduces a website URL or bare domain to the canonical
// lowercase host form used as the reconciliation key.
func NormalizeDomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, ".")
}
