package search

import (
	"errors"
	"fmt"

	"github.com/huaxi/researchdb/internal/domain/patient"
	"github.com/huaxi/researchdb/pkg/pagination"
)

var (
	ErrNoConditions       = errors.New("add at least one condition before searching")
	ErrEmptyKeyword       = errors.New("keyword is required")
	ErrConditionNotFound  = errors.New("condition not found")
	ErrUnknownField       = errors.New("unknown search field")
	ErrOperatorNotAllowed = errors.New("operator not allowed for field type")
	ErrUnknownDepartment  = errors.New("unknown department")
	ErrUnknownHotspot     = errors.New("unknown research hotspot")
	ErrUnknownCriterion   = errors.New("unknown criterion")
	ErrInvalidFilter      = errors.New("invalid filter")
	ErrFetchFailed        = errors.New("patient fetch failed")
	// ErrSuperseded is returned to a search whose response arrived after a
	// newer search or a reset was issued. Its response was discarded.
	ErrSuperseded = errors.New("search superseded by a newer request")
)

// resultSet is the search output shared by both models. Every dispatch takes
// a sequence token; only the response holding the latest token is applied.
// Callers hold the owning model's lock.
type resultSet struct {
	seq             uint64
	loading         bool
	patients        []patient.Record
	pagination      pagination.Page
	defaultPageSize int
}

func newResultSet(pageSize int) resultSet {
	return resultSet{pagination: pagination.NewPage(pageSize), defaultPageSize: pageSize}
}

// pageRequest fills in defaults for a requested page.
func (r *resultSet) pageRequest(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = r.pagination.PageSize
	}
	if pageSize > pagination.MaxLimit {
		pageSize = pagination.MaxLimit
	}
	return page, pageSize
}

func (r *resultSet) begin() uint64 {
	r.seq++
	r.loading = true
	return r.seq
}

// settle applies a response. A failed fetch keeps the previous results.
func (r *resultSet) settle(token uint64, res patient.Page, fetchErr error, page, pageSize int) error {
	if token != r.seq {
		return ErrSuperseded
	}
	r.loading = false
	if fetchErr != nil {
		return fmt.Errorf("%w: %w", ErrFetchFailed, fetchErr)
	}
	r.patients = res.List
	r.pagination = pagination.Page{Current: page, PageSize: pageSize, Total: res.Total}
	return nil
}

// reset clears the results and invalidates any search still in flight.
func (r *resultSet) reset() {
	r.seq++
	r.loading = false
	r.patients = nil
	r.pagination = pagination.NewPage(r.defaultPageSize)
}

func (r *resultSet) snapshot() Results {
	return Results{
		Patients:   append([]patient.Record{}, r.patients...),
		Loading:    r.loading,
		Pagination: r.pagination,
	}
}

// Results is the observable output of a search model.
type Results struct {
	Patients   []patient.Record `json:"patientData"`
	Loading    bool             `json:"loading"`
	Pagination pagination.Page  `json:"pagination"`
}
