package dictionary

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalog_Valid(t *testing.T) {
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	if c.SearchFields[0].Key != "age" || c.SearchFields[0].Type != FieldNumber {
		t.Errorf("expected age (number) as the first search field, got %+v", c.SearchFields[0])
	}
	if len(c.Departments) == 0 {
		t.Error("expected departments")
	}
	if len(c.ResearchHotspots) != 1 || len(c.ResearchHotspots[0].InclusionCriteria) != 7 {
		t.Errorf("unexpected hotspots %+v", c.ResearchHotspots)
	}
	if len(c.CategoryFields["patient-lung"]) != 8 {
		t.Errorf("expected 8 lung cancer fields, got %d", len(c.CategoryFields["patient-lung"]))
	}
}

func TestDefaultCatalog_AgeIndicator(t *testing.T) {
	c, _ := DefaultCatalog()
	inds, _ := c.FetchIndicators(context.Background())
	for _, ind := range inds {
		if ind.ID == "age" {
			if ind.Type != Quantitative || *ind.Min != 0 || *ind.Max != 120 {
				t.Errorf("unexpected age indicator %+v", ind)
			}
			return
		}
	}
	t.Fatal("age indicator missing")
}

func TestCatalog_Validate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"no fields", `searchFields: []`, "at least one field"},
		{"duplicate key", `
searchFields:
  - {key: age, name: Age, type: number}
  - {key: age, name: Age, type: number}`, "duplicate key"},
		{"bad type", `
searchFields:
  - {key: age, name: Age, type: integer}`, "unknown type"},
		{"select without options", `
searchFields:
  - {key: gender, name: Gender, type: select}`, "has no options"},
		{"quantitative without bounds", `
searchFields:
  - {key: age, name: Age, type: number}
indicators:
  - {id: age, name: Age, type: quantitative, min: 10, max: 5}`, "min < max"},
		{"fields for unknown category", `
searchFields:
  - {key: age, name: Age, type: number}
categoryFields:
  nowhere: []`, "not a leaf category"},
		{"duplicate criterion", `
searchFields:
  - {key: age, name: Age, type: number}
researchHotspots:
  - id: h
    name: H
    inclusionCriteria: [{id: c1, text: a}]
    exclusionCriteria: [{id: c1, text: b}]`, "duplicate criterion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := `
searchFields:
  - {key: name, name: Name, type: string}
departments:
  - {id: d1, name: Oncology}
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	depts, _ := c.FetchDepartments(context.Background())
	if len(depts) != 1 || depts[0].Name != "Oncology" {
		t.Errorf("unexpected departments %+v", depts)
	}

	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCatalog_FetchCategoryFields(t *testing.T) {
	c, _ := DefaultCatalog()
	ctx := context.Background()

	fields, err := c.FetchCategoryFields(ctx, "patient-lung")
	if err != nil || len(fields) != 8 {
		t.Fatalf("expected 8 fields, got %d (%v)", len(fields), err)
	}
	if fields[0].QualityStats == nil || fields[0].QualityStats.ValidValue.Count != 962 {
		t.Errorf("expected quality stats on field-1, got %+v", fields[0].QualityStats)
	}

	empty, err := c.FetchCategoryFields(ctx, "exam-ct")
	if err != nil || len(empty) != 0 {
		t.Errorf("expected no fields for exam-ct, got %v (%v)", empty, err)
	}

	if _, err := c.FetchCategoryFields(ctx, "bogus"); !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestCatalog_FetchReturnsCopies(t *testing.T) {
	c, _ := DefaultCatalog()
	ctx := context.Background()

	hs, _ := c.FetchResearchHotspots(ctx)
	hs[0].InclusionCriteria[0].Checked = true
	again, _ := c.FetchResearchHotspots(ctx)
	if again[0].InclusionCriteria[0].Checked {
		t.Error("mutating a fetched hotspot leaked into the catalog")
	}

	cats, _ := c.FetchCategories(ctx)
	cats[0].Children[0].Name = "changed"
	fresh, _ := c.FetchCategories(ctx)
	if fresh[0].Children[0].Name == "changed" {
		t.Error("mutating a fetched category leaked into the catalog")
	}
}
