package patient

import (
	"context"
	"fmt"

	"github.com/huaxi/researchdb/internal/platform/db"
	"github.com/huaxi/researchdb/pkg/pagination"
)

// RepoPG runs patient queries against the research database.
type RepoPG struct {
	q db.Querier
}

func NewRepoPG(q db.Querier) *RepoPG {
	return &RepoPG{q: q}
}

const recordCols = `p.patient_id, p.name, p.gender, p.age, p.nodule_count,
	COALESCE(to_char(p.last_visit_date, 'YYYY-MM-DD'), ''), p.is_starred`

func (r *RepoPG) FetchPatients(ctx context.Context, q Query) (Page, error) {
	if q == nil {
		return Page{}, ErrUnsupportedQuery
	}
	args := &argList{}
	where, err := buildWhere(q, args)
	if err != nil {
		return Page{}, err
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM patient p WHERE `+where, args.args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count patients: %w", err)
	}

	page, pageSize := q.PageRequest()
	pg := pagination.NewPage(pageSize)
	pg.Current = page
	limit := args.add(pg.PageSize)
	offset := args.add(pg.Offset())
	rows, err := r.q.Query(ctx,
		`SELECT `+recordCols+` FROM patient p WHERE `+where+` ORDER BY p.patient_id LIMIT `+limit+` OFFSET `+offset,
		args.args...)
	if err != nil {
		return Page{}, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	list := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.PatientID, &rec.Name, &rec.Gender, &rec.Age, &rec.NoduleCount,
			&rec.LastVisitDate, &rec.IsStarred); err != nil {
			return Page{}, fmt.Errorf("scan patient: %w", err)
		}
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("list patients: %w", err)
	}
	return Page{List: list, Total: total}, nil
}

func (r *RepoPG) Overview(ctx context.Context) (Overview, error) {
	var o Overview
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(nodule_count), 0),
			COALESCE(ROUND(AVG(CASE WHEN is_labeled THEN 100.0 ELSE 0 END), 1), 0)::float8
		FROM patient`).Scan(&o.TotalPatients, &o.TotalNodules, &o.LabeledRatio)
	if err != nil {
		return Overview{}, fmt.Errorf("patient overview: %w", err)
	}
	return o, nil
}
