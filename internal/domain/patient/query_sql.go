package patient

import (
	"fmt"
	"strconv"
	"strings"
)

// column maps a search field key onto a patient column.
type column struct {
	expr string
	cast string
	// text columns compare case-insensitively.
	text bool
}

// Numbers arrive as float64; integer columns compare against a numeric
// placeholder so fractional values like 45.5 still bind.
var conditionColumns = map[string]column{
	"age":           {expr: "p.age", cast: "::numeric"},
	"gender":        {expr: "p.gender"},
	"noduleSize":    {expr: "p.nodule_size_mm", cast: "::numeric"},
	"noduleCount":   {expr: "p.nodule_count", cast: "::numeric"},
	"diagnosisDate": {expr: "p.diagnosis_date", cast: "::date"},
	"name":          {expr: "p.name", text: true},
}

// SupportsField reports whether conditions on key can be translated to SQL.
func SupportsField(key string) bool {
	_, ok := conditionColumns[key]
	return ok
}

type argList struct {
	args []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return "$" + strconv.Itoa(len(a.args))
}

func buildWhere(q Query, args *argList) (string, error) {
	switch q := q.(type) {
	case QueryRequest:
		return conditionWhere(q, args)
	case *QueryRequest:
		return conditionWhere(*q, args)
	case SimpleSearchParams:
		return simpleWhere(q, args), nil
	case *SimpleSearchParams:
		return simpleWhere(*q, args), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedQuery, q)
	}
}

func conditionWhere(q QueryRequest, args *argList) (string, error) {
	if len(q.Conditions) == 0 {
		return "TRUE", nil
	}
	joiner := " AND "
	if q.Logic == LogicOr {
		joiner = " OR "
	}

	parts := make([]string, 0, len(q.Conditions))
	for _, c := range q.Conditions {
		col, ok := conditionColumns[c.FieldKey]
		if !ok {
			return "", fmt.Errorf("%w: field %q", ErrUnsupportedQuery, c.FieldKey)
		}
		if !c.Operator.Valid() {
			return "", fmt.Errorf("%w: operator %q", ErrUnsupportedQuery, c.Operator)
		}
		if col.text {
			parts = append(parts, fmt.Sprintf("lower(%s) %s lower(%s)", col.expr, c.Operator, args.add(fmt.Sprint(c.Value))))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s %s%s", col.expr, c.Operator, args.add(c.Value), col.cast))
	}
	return "(" + strings.Join(parts, joiner) + ")", nil
}

func simpleWhere(p SimpleSearchParams, args *argList) string {
	var parts []string

	if kw := strings.TrimSpace(p.Keyword); kw != "" {
		parts = append(parts, fmt.Sprintf(`p.search_text ILIKE %s ESCAPE '\'`, args.add("%"+escapeLike(kw)+"%")))
	}
	if p.Gender != "" {
		parts = append(parts, "p.gender = "+args.add(string(p.Gender)))
	}

	var visit []string
	if p.StartDate != "" {
		visit = append(visit, "v.visit_date >= "+args.add(p.StartDate)+"::date")
	}
	if p.EndDate != "" {
		visit = append(visit, "v.visit_date <= "+args.add(p.EndDate)+"::date")
	}
	if p.VisitType != "" {
		visit = append(visit, "v.visit_type = "+args.add(string(p.VisitType)))
	}
	if len(p.Departments) > 0 {
		visit = append(visit, "v.department_id = ANY("+args.add(p.Departments)+")")
	}
	if len(visit) > 0 {
		parts = append(parts, "EXISTS (SELECT 1 FROM patient_visit v WHERE v.patient_id = p.patient_id AND "+
			strings.Join(visit, " AND ")+")")
	}

	if len(p.InclusionCriteria) > 0 {
		parts = append(parts, fmt.Sprintf(
			"(SELECT COUNT(DISTINCT pc.criterion_id) FROM patient_criterion pc WHERE pc.patient_id = p.patient_id AND pc.criterion_id = ANY(%s)) = %s",
			args.add(p.InclusionCriteria), args.add(len(p.InclusionCriteria))))
	}
	if len(p.ExclusionCriteria) > 0 {
		parts = append(parts, fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM patient_criterion pc WHERE pc.patient_id = p.patient_id AND pc.criterion_id = ANY(%s))",
			args.add(p.ExclusionCriteria)))
	}

	if len(parts) == 0 {
		return "TRUE"
	}
	return strings.Join(parts, " AND ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
