package patient

import (
	"context"
	"fmt"
	"math/rand"
)

// SyntheticTotal is the match count the synthetic fetcher reports.
const SyntheticTotal = 155

// Synthetic generates deterministic patient pages without a database. The
// same page request always yields the same records.
type Synthetic struct {
	Total int
}

func NewSynthetic() *Synthetic {
	return &Synthetic{Total: SyntheticTotal}
}

func (s *Synthetic) FetchPatients(ctx context.Context, q Query) (Page, error) {
	if q == nil {
		return Page{}, ErrUnsupportedQuery
	}
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	page, pageSize := q.PageRequest()
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return Page{}, fmt.Errorf("page size must be positive, got %d", pageSize)
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if end > s.Total {
		end = s.Total
	}
	list := make([]Record, 0, max(end-start, 0))
	for n := start + 1; n <= end; n++ {
		list = append(list, syntheticRecord(n))
	}
	return Page{List: list, Total: s.Total}, nil
}

func syntheticRecord(n int) Record {
	r := rand.New(rand.NewSource(int64(n)))
	gender := GenderMale
	if n%2 == 0 {
		gender = GenderFemale
	}
	return Record{
		PatientID:     fmt.Sprintf("P%d", n),
		Name:          fmt.Sprintf("Patient %d", n),
		Gender:        gender,
		Age:           r.Intn(50) + 30,
		NoduleCount:   r.Intn(5) + 1,
		LastVisitDate: fmt.Sprintf("2024-0%d-20", r.Intn(9)+1),
		IsStarred:     r.Float64() > 0.8,
	}
}

// Overview returns the figures shown on the disease overview page.
func (s *Synthetic) Overview(ctx context.Context) (Overview, error) {
	return Overview{TotalPatients: 15890, TotalNodules: 32560, LabeledRatio: 85.5}, nil
}
