package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Operator compares a patient attribute with a condition value.
type Operator string

const (
	OpEq Operator = "="
	OpGt Operator = ">"
	OpLt Operator = "<"
)

func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.TrimSpace(s))
	if !op.Valid() {
		return "", fmt.Errorf("unknown operator %q", s)
	}
	return op, nil
}

func (o Operator) Valid() bool {
	return o == OpEq || o == OpGt || o == OpLt
}

// Ordering reports whether the operator needs an ordered field type.
func (o Operator) Ordering() bool {
	return o == OpGt || o == OpLt
}

// Logic combines the conditions of a QueryRequest.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

func ParseLogic(s string) (Logic, error) {
	l := Logic(strings.ToUpper(strings.TrimSpace(s)))
	if l != LogicAnd && l != LogicOr {
		return "", fmt.Errorf("logic must be AND or OR, got %q", s)
	}
	return l, nil
}

// ConditionItem is one field/operator/value predicate. Value is nil until
// the user supplies one.
type ConditionItem struct {
	ID       string   `json:"id"`
	FieldKey string   `json:"fieldKey"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// Populated reports whether the item can take part in a query.
func (c ConditionItem) Populated() bool {
	return c.FieldKey != "" && c.Operator != "" && c.Value != nil
}

// Query is either a QueryRequest or SimpleSearchParams.
type Query interface {
	PageRequest() (page, pageSize int)
	isQuery()
}

// QueryRequest is the structured condition query. It is built fresh for
// every search and never mutated afterwards.
type QueryRequest struct {
	Logic      Logic           `json:"logic"`
	Conditions []ConditionItem `json:"conditions"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
}

func (q QueryRequest) PageRequest() (int, int) { return q.Page, q.PageSize }
func (QueryRequest) isQuery()                  {}

type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

type VisitType string

const (
	VisitOutpatient VisitType = "outpatient"
	VisitInpatient  VisitType = "inpatient"
)

// SimpleSearchParams is the keyword search query. Empty optional fields do
// not filter.
type SimpleSearchParams struct {
	Keyword           string    `json:"keyword"`
	StartDate         string    `json:"startDate,omitempty"`
	EndDate           string    `json:"endDate,omitempty"`
	Gender            Gender    `json:"gender,omitempty"`
	VisitType         VisitType `json:"visitType,omitempty"`
	Departments       []string  `json:"departments"`
	InclusionCriteria []string  `json:"inclusionCriteria"`
	ExclusionCriteria []string  `json:"exclusionCriteria"`
	Page              int       `json:"page"`
	PageSize          int       `json:"pageSize"`
}

func (p SimpleSearchParams) PageRequest() (int, int) { return p.Page, p.PageSize }
func (SimpleSearchParams) isQuery()                  {}

// Record is one row of a patient search result.
type Record struct {
	PatientID     string `json:"patientId"`
	Name          string `json:"name"`
	Gender        Gender `json:"gender"`
	Age           int    `json:"age"`
	NoduleCount   int    `json:"noduleCount"`
	LastVisitDate string `json:"lastVisitDate"`
	IsStarred     bool   `json:"isStarred"`
}

// Page is one page of search results plus the total match count.
type Page struct {
	List  []Record `json:"list"`
	Total int      `json:"total"`
}

var ErrUnsupportedQuery = errors.New("unsupported query")

// Fetcher runs patient queries.
type Fetcher interface {
	FetchPatients(ctx context.Context, q Query) (Page, error)
}

// Overview is the headline statistics of the disease database.
type Overview struct {
	TotalPatients int     `json:"totalPatients"`
	TotalNodules  int     `json:"totalNodules"`
	LabeledRatio  float64 `json:"labeledRatio"`
}

type OverviewSource interface {
	Overview(ctx context.Context) (Overview, error)
}
