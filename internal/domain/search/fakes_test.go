package search

import (
	"context"
	"sync"

	"github.com/huaxi/researchdb/internal/domain/dictionary"
	"github.com/huaxi/researchdb/internal/domain/patient"
)

// recordingFetcher returns a fixed page and remembers every query.
type recordingFetcher struct {
	mu      sync.Mutex
	queries []patient.Query
	page    patient.Page
	err     error
}

func (f *recordingFetcher) FetchPatients(_ context.Context, q patient.Query) (patient.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.page, f.err
}

func (f *recordingFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *recordingFetcher) last() patient.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

// gatedFetcher blocks each call until the test releases it, so tests can
// control the order in which overlapping searches settle.
type gatedFetcher struct {
	started chan patient.Query
	release map[int]chan result
	mu      sync.Mutex
	n       int
}

type result struct {
	page patient.Page
	err  error
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{started: make(chan patient.Query, 8), release: map[int]chan result{}}
}

func (f *gatedFetcher) gate(i int) chan result {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.release[i]
	if !ok {
		ch = make(chan result, 1)
		f.release[i] = ch
	}
	return ch
}

func (f *gatedFetcher) FetchPatients(ctx context.Context, q patient.Query) (patient.Page, error) {
	f.mu.Lock()
	f.n++
	i := f.n
	f.mu.Unlock()
	ch := f.gate(i)
	f.started <- q
	r := <-ch
	return r.page, r.err
}

func records(prefix string, n int) []patient.Record {
	out := make([]patient.Record, n)
	for i := range out {
		out[i] = patient.Record{PatientID: prefix + string(rune('a'+i)), Gender: patient.GenderMale}
	}
	return out
}

func testFields() []dictionary.SearchField {
	return []dictionary.SearchField{
		{Key: "age", Name: "Age", Type: dictionary.FieldNumber},
		{Key: "gender", Name: "Gender", Type: dictionary.FieldSelect, Options: []dictionary.Option{
			{Label: "Male", Value: "M"}, {Label: "Female", Value: "F"},
		}},
		{Key: "diagnosisDate", Name: "Diagnosis date", Type: dictionary.FieldDate},
		{Key: "name", Name: "Name", Type: dictionary.FieldString},
	}
}

func testDepartments() []dictionary.Department {
	return []dictionary.Department{
		{ID: "dept1", Name: "Thoracic Surgery"},
		{ID: "dept2", Name: "Medical Oncology"},
		{ID: "dept3", Name: "Radiotherapy"},
	}
}

func testHotspots() []dictionary.ResearchHotspot {
	return []dictionary.ResearchHotspot{
		{
			ID:                "nslc",
			Name:              "NSCLC",
			InclusionCriteria: []*dictionary.Criterion{{ID: "inc1", Text: "confirmed"}, {ID: "inc2", Text: "aged 18-75"}},
			ExclusionCriteria: []*dictionary.Criterion{{ID: "exc1", Text: "metastasis"}},
		},
		{
			ID:                "sclc",
			Name:              "SCLC",
			InclusionCriteria: []*dictionary.Criterion{{ID: "sinc1", Text: "limited stage"}},
			ExclusionCriteria: []*dictionary.Criterion{{ID: "sexc1", Text: "prior chemo"}},
		},
	}
}
