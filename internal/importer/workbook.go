// Package importer loads manufacturer price-list workbooks into the catalog.
package importer

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"boxbluebook/internal/apperr"
	"boxbluebook/internal/catalog"
)

// headerScanRows bounds how far down a sheet the header row may sit.
const headerScanRows = 20

type column int

const (
	colBrand column = iota
	colLine
	colName
	colVitola
	colSize
	colBoxCount
	colMSRPSingle
	colMSRPBox
	colWrapper
	colCountry
	colStrength
)

// headerAliases maps squashed header text onto columns. Exact matches only.
var headerAliases = map[string]column{
	"brand":            colBrand,
	"udebrand":         colBrand,
	"manufacturer":     colBrand,
	"line":             colLine,
	"series":           colLine,
	"subbrand":         colLine,
	"udesubbrand":      colLine,
	"name":             colName,
	"itemname":         colName,
	"itemdescription":  colName,
	"description":      colName,
	"product":          colName,
	"vitola":           colVitola,
	"shape":            colVitola,
	"udepldescription": colVitola,
	"size":             colSize,
	"cigarsize":        colSize,
	"udesize":          colSize,
	"dimensions":       colSize,
	"boxcount":         colBoxCount,
	"count":            colBoxCount,
	"packagingunit":    colBoxCount,
	"sticksperbox":     colBoxCount,
	"udesticksperbox":  colBoxCount,
	"msrpcigarunit":    colMSRPSingle,
	"msrpsingle":       colMSRPSingle,
	"msrpstick":        colMSRPSingle,
	"msrpeach":         colMSRPSingle,
	"msrpcigar":        colMSRPSingle,
	"msrpbox":          colMSRPBox,
	"wrapper":          colWrapper,
	"country":          colCountry,
	"countryoforigin":  colCountry,
	"origin":           colCountry,
	"strength":         colStrength,
}

var vitolaWords = []string{
	"robusto", "toro", "churchill", "corona", "gordo", "torpedo", "belicoso",
	"lancero", "petit corona", "lonsdale", "perfecto", "figurado", "panetela", "gigante",
}

var (
	nonAlnum    = regexp.MustCompile(`[^a-z0-9]`)
	firstNumber = regexp.MustCompile(`\d+`)
	priceStrip  = regexp.MustCompile(`[$,\s]`)
)

// Options tune parsing for workbooks that omit columns.
type Options struct {
	// Brand is used for rows without a brand column, as in single-brand price lists.
	Brand string
	// Country is used for rows without a country column.
	Country string
	// Sheets restricts parsing to the named sheets.
	Sheets []string
}

// Report counts what happened to each row.
type Report struct {
	Sheets     int `json:"sheets"`
	Rows       int `json:"rows"`
	Entries    int `json:"entries"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Failed     int `json:"failed"`
}

// Parse reads every sheet with a recognisable header row and returns deduplicated entries in
// workbook order.
func Parse(r io.Reader, opts Options) ([]catalog.Entry, Report, error) {
	var report Report

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, report, fmt.Errorf("%w: open workbook: %w", apperr.ErrMalformedInput, err)
	}
	defer f.Close()

	wanted := make(map[string]bool, len(opts.Sheets))
	for _, s := range opts.Sheets {
		wanted[strings.ToLower(s)] = true
	}

	seen := make(map[string]struct{})
	entries := make([]catalog.Entry, 0)
	for _, sheet := range f.GetSheetList() {
		if len(wanted) > 0 && !wanted[strings.ToLower(sheet)] {
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, report, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		headerIdx, cols, ok := findHeader(rows)
		if !ok {
			continue
		}
		report.Sheets++

		for _, row := range rows[headerIdx+1:] {
			if blank(row) {
				continue
			}
			report.Rows++
			entry, ok := rowEntry(row, cols, opts)
			if !ok {
				report.Skipped++
				continue
			}
			key := entry.Key()
			if _, dup := seen[key]; dup {
				report.Duplicates++
				continue
			}
			seen[key] = struct{}{}
			entries = append(entries, entry)
		}
	}
	report.Entries = len(entries)
	return entries, report, nil
}

func findHeader(rows [][]string) (int, map[column]int, bool) {
	limit := min(len(rows), headerScanRows)
	for i := 0; i < limit; i++ {
		cols := make(map[column]int)
		for j, cell := range rows[i] {
			c, ok := headerAliases[squash(cell)]
			if !ok {
				continue
			}
			if _, taken := cols[c]; !taken {
				cols[c] = j
			}
		}
		if _, ok := cols[colName]; ok && len(cols) >= 2 {
			return i, cols, true
		}
	}
	return 0, nil, false
}

func rowEntry(row []string, cols map[column]int, opts Options) (catalog.Entry, bool) {
	cell := func(c column) string {
		idx, ok := cols[c]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	name := cell(colName)
	brand := cell(colBrand)
	if brand == "" {
		brand = opts.Brand
	}
	if name == "" || len(brand) < 2 || isDigits(brand) {
		return catalog.Entry{}, false
	}
	brand = catalog.NormalizeBrand(brand)

	e := catalog.Entry{
		Brand:        brand,
		Line:         cell(colLine),
		Name:         name,
		Vitola:       cell(colVitola),
		Country:      optional(cell(colCountry), opts.Country),
		Strength:     optional(cell(colStrength), ""),
		Wrapper:      optional(cell(colWrapper), ""),
		BoxCount:     parseCount(cell(colBoxCount)),
		MSRPPerCigar: parsePrice(cell(colMSRPSingle)),
		MSRPPerBox:   parsePrice(cell(colMSRPBox)),
	}
	e.LengthInches, e.RingGauge = catalog.ParseSize(cell(colSize))
	if e.Line == "" {
		e.Line = lineFromName(name, brand)
	}
	if e.Vitola == "" {
		e.Vitola = vitolaFromName(name)
	}
	return e, true
}

// lineFromName strips the brand prefix and everything from the first vitola word on.
func lineFromName(name, brand string) string {
	rest := strings.TrimSpace(name)
	if len(rest) >= len(brand) && strings.EqualFold(rest[:len(brand)], brand) {
		rest = strings.TrimLeft(rest[len(brand):], " -–")
	}
	lower := strings.ToLower(rest)
	cut := len(rest)
	for _, w := range vitolaWords {
		if i := strings.Index(lower, w); i >= 0 && i < cut {
			cut = i
		}
	}
	line := strings.TrimSpace(rest[:cut])
	if len(line) <= 2 {
		return brand
	}
	return line
}

func vitolaFromName(name string) string {
	lower := strings.ToLower(name)
	for _, w := range vitolaWords {
		if strings.Contains(lower, w) {
			return titleWords(w)
		}
	}
	return ""
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func parsePrice(raw string) *decimal.Decimal {
	raw = priceStrip.ReplaceAllString(raw, "")
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.Sign() <= 0 {
		return nil
	}
	d = d.Round(2)
	return &d
}

func parseCount(raw string) *int {
	m := firstNumber.FindString(raw)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

func optional(v, fallback string) *string {
	if v == "" {
		v = fallback
	}
	if v == "" {
		return nil
	}
	return &v
}

func squash(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
