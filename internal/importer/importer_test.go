package importer

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"boxbluebook/internal/apperr"
	"boxbluebook/internal/catalog"
)

func writeWorkbook(t *testing.T, sheets map[string][][]any) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	first := true
	for name, rows := range sheets {
		if first {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
			first = false
		} else if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("new sheet: %v", err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			r := row
			if err := f.SetSheetRow(name, cell, &r); err != nil {
				t.Fatalf("set row: %v", err)
			}
		}
	}
	return f
}

func workbookBytes(t *testing.T, sheets map[string][][]any) *bytes.Buffer {
	t.Helper()
	f := writeWorkbook(t, sheets)
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func TestParseFindsHeaderAndNormalizes(t *testing.T) {
	buf := workbookBytes(t, map[string][][]any{
		"Price List": {
			{"Altadis USA 2025"},
			{},
			{"BRAND", "DESCRIPTION", "SIZE", "PACKAGING UNIT", "MSRP CIGAR / UNIT", "MSRP BOX"},
			{"MONTECRISTO", "Montecristo White Robusto", "5 x 50", "Box of 20", "$12.50", "$250.00"},
			{"ROMEO Y JULIETA", "1875 Churchill", "52 x 7", "25", "9.00", ""},
			{"MONTECRISTO", "Montecristo White Robusto", "5 x 50", "Box of 20", "$12.50", "$250.00"},
			{"", "No brand row", "5 x 50"},
			{"12", "Numeric brand", "5 x 50"},
		},
	})

	entries, report, err := Parse(buf, Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if report.Sheets != 1 || report.Rows != 5 || report.Duplicates != 1 || report.Skipped != 2 || report.Entries != 2 {
		t.Fatalf("unexpected report %+v", report)
	}

	mc := entries[0]
	if mc.Brand != "Montecristo" || mc.Line != "White" || mc.Vitola != "Robusto" {
		t.Fatalf("unexpected identity %+v", mc)
	}
	if mc.LengthInches == nil || mc.LengthInches.String() != "5" || mc.RingGauge == nil || *mc.RingGauge != 50 {
		t.Fatalf("unexpected size %v %v", mc.LengthInches, mc.RingGauge)
	}
	if mc.BoxCount == nil || *mc.BoxCount != 20 {
		t.Fatalf("unexpected box count %v", mc.BoxCount)
	}
	if mc.MSRPPerCigar == nil || mc.MSRPPerCigar.String() != "12.5" || mc.MSRPPerBox == nil || mc.MSRPPerBox.String() != "250" {
		t.Fatalf("unexpected msrp %v %v", mc.MSRPPerCigar, mc.MSRPPerBox)
	}

	ryj := entries[1]
	if ryj.Brand != "Romeo y Julieta" || ryj.Vitola != "Churchill" {
		t.Fatalf("unexpected entry %+v", ryj)
	}
	if ryj.LengthInches == nil || ryj.LengthInches.String() != "7" || *ryj.RingGauge != 52 {
		t.Fatalf("expected swapped size repaired, got %v %v", ryj.LengthInches, ryj.RingGauge)
	}
	if ryj.Line != "1875" {
		t.Fatalf("expected line cut before the vitola, got %q", ryj.Line)
	}
	if ryj.MSRPPerBox != nil {
		t.Fatalf("expected no box msrp, got %v", ryj.MSRPPerBox)
	}
}

func TestParseDefaultBrandAndSheetFilter(t *testing.T) {
	buf := workbookBytes(t, map[string][][]any{
		"Cigars": {
			{"Item #", "Count", "Item Description", "Cigar Size", "MSRP Box", "Wrapper"},
			{"AF101", "25", "Hemingway Short Story", "4 x 49", "212.50", "Cameroon"},
		},
		"Accessories": {
			{"Item Description", "Count"},
			{"Cutter", "1"},
		},
	})

	entries, report, err := Parse(buf, Options{Brand: "AF", Country: "Dominican Republic", Sheets: []string{"cigars"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if report.Sheets != 1 || len(entries) != 1 {
		t.Fatalf("expected one sheet and entry, got %+v %+v", report, entries)
	}
	e := entries[0]
	if e.Brand != "Arturo Fuente" || e.Line != "Hemingway Short Story" || e.Vitola != "" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.Country == nil || *e.Country != "Dominican Republic" || e.Wrapper == nil || *e.Wrapper != "Cameroon" {
		t.Fatalf("unexpected optional fields %+v", e)
	}
}

func TestParseRejectsNonWorkbook(t *testing.T) {
	_, _, err := Parse(bytes.NewBufferString("not a workbook"), Options{})
	if !errors.Is(err, apperr.ErrMalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}
}

type fakeWriter struct {
	seen map[string]bool
	fail string
}

func (w *fakeWriter) UpsertCatalogEntry(_ context.Context, e catalog.Entry) (uuid.UUID, bool, error) {
	if e.Name == w.fail {
		return uuid.Nil, false, errors.New("boom")
	}
	if w.seen[e.Key()] {
		return uuid.New(), false, nil
	}
	w.seen[e.Key()] = true
	return uuid.New(), true, nil
}

func TestImportFileCountsOutcomes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.xlsx")
	f := writeWorkbook(t, map[string][][]any{
		"Sheet": {
			{"Brand", "Line", "Name", "Vitola", "Size"},
			{"Padron", "1964 Anniversary", "Exclusivo", "Robusto", "5.5 x 50"},
			{"Padron", "1964 Anniversary", "Torpedo", "Torpedo", "6 x 52"},
			{"Oliva", "Serie V", "Melanio", "Toro", "6 x 52"},
		},
	})
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	f.Close()

	w := &fakeWriter{seen: map[string]bool{"padron/1964-anniversary/exclusivo": true}, fail: "Melanio"}
	report, err := NewImporter(w, zerolog.Nop()).ImportFile(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Entries != 3 || report.Created != 1 || report.Updated != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}
