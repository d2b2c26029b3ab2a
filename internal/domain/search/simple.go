package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/huaxi/researchdb/internal/domain/dictionary"
	"github.com/huaxi/researchdb/internal/domain/patient"
)

// SimpleFilters is a partial edit of the simple-search text and enum
// filters. Nil fields are left alone; an empty string clears the filter.
type SimpleFilters struct {
	Keyword   *string `json:"keyword"`
	StartDate *string `json:"startDate"`
	EndDate   *string `json:"endDate"`
	Gender    *string `json:"gender"`
	VisitType *string `json:"visitType"`
}

// SimpleState is a copy of a SimpleModel's observable state.
type SimpleState struct {
	Keyword          string                       `json:"keyword"`
	StartDate        string                       `json:"startDate,omitempty"`
	EndDate          string                       `json:"endDate,omitempty"`
	Gender           patient.Gender               `json:"gender,omitempty"`
	VisitType        patient.VisitType            `json:"visitType,omitempty"`
	Departments      []dictionary.Department      `json:"departments"`
	ResearchHotspots []dictionary.ResearchHotspot `json:"researchHotspots"`
	Results
}

// SimpleModel is the keyword search form. Departments and hotspots are fixed
// at construction; toggles only flip their flags. Toggles replace the touched
// entity with a modified copy so unrelated entities keep their identity.
type SimpleModel struct {
	mu          sync.Mutex
	keyword     string
	startDate   string
	endDate     string
	gender      patient.Gender
	visitType   patient.VisitType
	departments []*dictionary.Department
	hotspots    []*dictionary.ResearchHotspot
	results     resultSet

	fetcher patient.Fetcher
	logger  zerolog.Logger
}

func NewSimpleModel(depts []dictionary.Department, hotspots []dictionary.ResearchHotspot, fetcher patient.Fetcher, pageSize int, logger zerolog.Logger) *SimpleModel {
	m := &SimpleModel{
		departments: make([]*dictionary.Department, len(depts)),
		hotspots:    make([]*dictionary.ResearchHotspot, len(hotspots)),
		results:     newResultSet(pageSize),
		fetcher:     fetcher,
		logger:      logger.With().Str("model", "simple_search").Logger(),
	}
	for i := range depts {
		d := depts[i]
		d.Selected = false
		m.departments[i] = &d
	}
	for i := range hotspots {
		h := hotspots[i].Clone()
		for _, c := range h.InclusionCriteria {
			c.Checked = false
		}
		for _, c := range h.ExclusionCriteria {
			c.Checked = false
		}
		m.hotspots[i] = h
	}
	return m
}

// SetFilters applies a partial filter edit. Invalid values reject the whole
// edit.
func (m *SimpleModel) SetFilters(f SimpleFilters) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start, end := m.startDate, m.endDate
	if f.StartDate != nil {
		start = strings.TrimSpace(*f.StartDate)
	}
	if f.EndDate != nil {
		end = strings.TrimSpace(*f.EndDate)
	}
	if err := validateDateRange(start, end); err != nil {
		return err
	}

	gender := m.gender
	if f.Gender != nil {
		g, err := parseGender(*f.Gender)
		if err != nil {
			return err
		}
		gender = g
	}
	visit := m.visitType
	if f.VisitType != nil {
		v, err := parseVisitType(*f.VisitType)
		if err != nil {
			return err
		}
		visit = v
	}

	if f.Keyword != nil {
		m.keyword = *f.Keyword
	}
	m.startDate, m.endDate = start, end
	m.gender, m.visitType = gender, visit
	return nil
}

func (m *SimpleModel) SetKeyword(keyword string) {
	m.mu.Lock()
	m.keyword = keyword
	m.mu.Unlock()
}

// SetDateRange sets the visit date window. Either end may be empty.
func (m *SimpleModel) SetDateRange(start, end string) error {
	return m.SetFilters(SimpleFilters{StartDate: &start, EndDate: &end})
}

func (m *SimpleModel) SetGender(g string) error {
	return m.SetFilters(SimpleFilters{Gender: &g})
}

func (m *SimpleModel) SetVisitType(v string) error {
	return m.SetFilters(SimpleFilters{VisitType: &v})
}

func validateDateRange(start, end string) error {
	var s, e time.Time
	var err error
	if start != "" {
		if s, err = time.Parse(dictionary.DateLayout, start); err != nil {
			return fmt.Errorf("%w: start date %q", ErrInvalidFilter, start)
		}
	}
	if end != "" {
		if e, err = time.Parse(dictionary.DateLayout, end); err != nil {
			return fmt.Errorf("%w: end date %q", ErrInvalidFilter, end)
		}
	}
	if start != "" && end != "" && e.Before(s) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidFilter, end, start)
	}
	return nil
}

func parseGender(s string) (patient.Gender, error) {
	switch g := patient.Gender(strings.ToUpper(strings.TrimSpace(s))); g {
	case "", patient.GenderMale, patient.GenderFemale:
		return g, nil
	default:
		return "", fmt.Errorf("%w: gender %q", ErrInvalidFilter, s)
	}
}

func parseVisitType(s string) (patient.VisitType, error) {
	switch v := patient.VisitType(strings.ToLower(strings.TrimSpace(s))); v {
	case "", patient.VisitOutpatient, patient.VisitInpatient:
		return v, nil
	default:
		return "", fmt.Errorf("%w: visit type %q", ErrInvalidFilter, s)
	}
}

// ToggleDepartment flips the selection of one department.
func (m *SimpleModel) ToggleDepartment(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range m.departments {
		if d.ID != id {
			continue
		}
		cp := *d
		cp.Selected = !cp.Selected
		next := append([]*dictionary.Department(nil), m.departments...)
		next[i] = &cp
		m.departments = next
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownDepartment, id)
}

func (m *SimpleModel) ToggleInclusionCriterion(hotspotID, criterionID string) error {
	return m.toggleCriterion(hotspotID, criterionID, true)
}

func (m *SimpleModel) ToggleExclusionCriterion(hotspotID, criterionID string) error {
	return m.toggleCriterion(hotspotID, criterionID, false)
}

func (m *SimpleModel) toggleCriterion(hotspotID, criterionID string, inclusion bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hi := -1
	for i, h := range m.hotspots {
		if h.ID == hotspotID {
			hi = i
			break
		}
	}
	if hi < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownHotspot, hotspotID)
	}
	h := m.hotspots[hi]

	list := h.ExclusionCriteria
	if inclusion {
		list = h.InclusionCriteria
	}
	ci := -1
	for i, c := range list {
		if c.ID == criterionID {
			ci = i
			break
		}
	}
	if ci < 0 {
		return fmt.Errorf("%w: %s in %s", ErrUnknownCriterion, criterionID, hotspotID)
	}

	crit := *list[ci]
	crit.Checked = !crit.Checked
	nextList := append([]*dictionary.Criterion(nil), list...)
	nextList[ci] = &crit

	nextHotspot := *h
	if inclusion {
		nextHotspot.InclusionCriteria = nextList
	} else {
		nextHotspot.ExclusionCriteria = nextList
	}
	next := append([]*dictionary.ResearchHotspot(nil), m.hotspots...)
	next[hi] = &nextHotspot
	m.hotspots = next
	return nil
}

// params builds the query from the current form. Checked criteria are
// collected from every hotspot.
func (m *SimpleModel) params(page, pageSize int) patient.SimpleSearchParams {
	p := patient.SimpleSearchParams{
		Keyword:           strings.TrimSpace(m.keyword),
		StartDate:         m.startDate,
		EndDate:           m.endDate,
		Gender:            m.gender,
		VisitType:         m.visitType,
		Departments:       []string{},
		InclusionCriteria: []string{},
		ExclusionCriteria: []string{},
		Page:              page,
		PageSize:          pageSize,
	}
	for _, d := range m.departments {
		if d.Selected {
			p.Departments = append(p.Departments, d.ID)
		}
	}
	seenInc, seenExc := map[string]bool{}, map[string]bool{}
	for _, h := range m.hotspots {
		for _, c := range h.InclusionCriteria {
			if c.Checked && !seenInc[c.ID] {
				seenInc[c.ID] = true
				p.InclusionCriteria = append(p.InclusionCriteria, c.ID)
			}
		}
		for _, c := range h.ExclusionCriteria {
			if c.Checked && !seenExc[c.ID] {
				seenExc[c.ID] = true
				p.ExclusionCriteria = append(p.ExclusionCriteria, c.ID)
			}
		}
	}
	return p
}

// Search runs the keyword search. A blank keyword is rejected without
// touching any state.
func (m *SimpleModel) Search(ctx context.Context, page, pageSize int) error {
	m.mu.Lock()
	if strings.TrimSpace(m.keyword) == "" {
		m.mu.Unlock()
		return ErrEmptyKeyword
	}
	page, pageSize = m.results.pageRequest(page, pageSize)
	q := m.params(page, pageSize)
	token := m.results.begin()
	m.mu.Unlock()

	res, fetchErr := m.fetcher.FetchPatients(ctx, q)

	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.results.settle(token, res, fetchErr, page, pageSize)
	switch {
	case errors.Is(err, ErrSuperseded):
		m.logger.Debug().Uint64("token", token).Msg("discarding stale search response")
	case err != nil:
		m.logger.Error().Err(fetchErr).
			Str("keyword", q.Keyword).
			Int("page", page).
			Msg("simple search failed")
	}
	return err
}

// Reset clears every filter, unselects all departments and criteria, and
// drops results. Calling it twice is the same as calling it once.
func (m *SimpleModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.keyword, m.startDate, m.endDate = "", "", ""
	m.gender, m.visitType = "", ""

	var depts []*dictionary.Department
	for i, d := range m.departments {
		if !d.Selected {
			continue
		}
		if depts == nil {
			depts = append([]*dictionary.Department(nil), m.departments...)
		}
		cp := *d
		cp.Selected = false
		depts[i] = &cp
	}
	if depts != nil {
		m.departments = depts
	}

	var hotspots []*dictionary.ResearchHotspot
	for i, h := range m.hotspots {
		inc, incChanged := uncheck(h.InclusionCriteria)
		exc, excChanged := uncheck(h.ExclusionCriteria)
		if !incChanged && !excChanged {
			continue
		}
		if hotspots == nil {
			hotspots = append([]*dictionary.ResearchHotspot(nil), m.hotspots...)
		}
		cp := *h
		cp.InclusionCriteria, cp.ExclusionCriteria = inc, exc
		hotspots[i] = &cp
	}
	if hotspots != nil {
		m.hotspots = hotspots
	}
	m.results.reset()
}

// uncheck returns list with every criterion unchecked, reusing list when
// nothing was checked.
func uncheck(list []*dictionary.Criterion) ([]*dictionary.Criterion, bool) {
	var out []*dictionary.Criterion
	for i, c := range list {
		if !c.Checked {
			continue
		}
		if out == nil {
			out = append([]*dictionary.Criterion(nil), list...)
		}
		cp := *c
		cp.Checked = false
		out[i] = &cp
	}
	if out == nil {
		return list, false
	}
	return out, true
}

func (m *SimpleModel) Snapshot() SimpleState {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := SimpleState{
		Keyword:          m.keyword,
		StartDate:        m.startDate,
		EndDate:          m.endDate,
		Gender:           m.gender,
		VisitType:        m.visitType,
		Departments:      make([]dictionary.Department, len(m.departments)),
		ResearchHotspots: make([]dictionary.ResearchHotspot, len(m.hotspots)),
		Results:          m.results.snapshot(),
	}
	for i, d := range m.departments {
		s.Departments[i] = *d
	}
	for i, h := range m.hotspots {
		s.ResearchHotspots[i] = *h.Clone()
	}
	return s
}
