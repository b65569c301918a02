package providers

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/clarity-dx/referral-portal/internal/model"
)

// panel column headers, matched case-insensitively after trimming.
var panelColumns = map[string]string{
	"primary key":  "primary_key",
	"primary_key":  "primary_key",
	"billing name": "billing_name",
	"billing_name": "billing_name",
	"tin":          "tin",
	"street":       "street",
	"city":         "city",
	"state":        "state",
	"network":      "network",
	"type":         "type",
	"email":        "email",
	"fax":          "fax",
	"phone":        "phone",
	"website":      "website",
	"lat":          "lat",
	"latitude":     "lat",
	"lon":          "lon",
	"lng":          "lon",
	"longitude":    "lon",
	"rate":         "rate",
	"proc codes":   "proc_codes",
	"proc_codes":   "proc_codes",
}

// LoadPanel reads the provider roster from an XLSX workbook. The first row
// is the header; unknown columns are ignored, rows without a billing name
// are skipped.
func LoadPanel(path, sheetName string) ([]model.Provider, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "providers: open panel %s", path)
	}

	sheet, err := panelSheet(f, sheetName)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) < 2 {
		return nil, eris.Errorf("providers: panel sheet %q has no data rows", sheet.Name)
	}

	index := map[string]int{}
	for j, cell := range sheet.Rows[0].Cells {
		key := strings.ToLower(strings.TrimSpace(cell.String()))
		if field, ok := panelColumns[key]; ok {
			index[field] = j
		}
	}
	if _, ok := index["billing_name"]; !ok {
		return nil, eris.New("providers: panel header missing billing name column")
	}

	var roster []model.Provider
	skipped := 0
	for _, row := range sheet.Rows[1:] {
		cell := func(field string) string {
			j, ok := index[field]
			if !ok || j >= len(row.Cells) {
				return ""
			}
			return strings.TrimSpace(row.Cells[j].String())
		}

		name := cell("billing_name")
		if name == "" {
			skipped++
			continue
		}

		p := model.Provider{
			PrimaryKey:  cell("primary_key"),
			BillingName: name,
			TIN:         cell("tin"),
			Street:      cell("street"),
			City:        cell("city"),
			State:       cell("state"),
			Network:     cell("network"),
			Type:        cell("type"),
			Email:       cell("email"),
			Fax:         cell("fax"),
			Phone:       cell("phone"),
			Website:     cell("website"),
			Latitude:    parseFloat(cell("lat")),
			Longitude:   parseFloat(cell("lon")),
			Rate:        parseFloat(cell("rate")),
			ProcCodes:   cell("proc_codes"),
		}
		if p.PrimaryKey == "" {
			p.PrimaryKey = name
		}
		roster = append(roster, p)
	}

	zap.L().Info("provider panel loaded",
		zap.String("path", path),
		zap.Int("providers", len(roster)),
		zap.Int("skipped_rows", skipped))

	return roster, nil
}

func panelSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("providers: panel sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("providers: panel workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}
