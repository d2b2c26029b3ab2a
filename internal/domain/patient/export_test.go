package patient

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExportXLSX(t *testing.T) {
	records := []Record{
		{PatientID: "P1", Name: "Patient 1", Gender: GenderMale, Age: 52, NoduleCount: 2, LastVisitDate: "2024-03-20", IsStarred: true},
		{PatientID: "P2", Name: "Patient 2", Gender: GenderFemale, Age: 61, NoduleCount: 1, LastVisitDate: "2024-05-20"},
	}
	data, err := ExportXLSX(records)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != exportSheet {
		t.Errorf("expected only the %q sheet, got %v", exportSheet, sheets)
	}
	rows, err := f.GetRows(exportSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Patient ID" || rows[1][0] != "P1" || rows[2][2] != "F" {
		t.Errorf("unexpected rows %v", rows)
	}
}

func TestExportXLSX_Empty(t *testing.T) {
	data, err := ExportXLSX(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("expected a workbook even without rows")
	}
}
