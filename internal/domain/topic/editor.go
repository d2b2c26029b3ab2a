package topic

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/huaxi/researchdb/internal/domain/dictionary"
)

// Mode is the editor's position in its list -> {new, edit} -> list cycle.
type Mode string

const (
	ModeList Mode = "list"
	ModeNew  Mode = "new"
	ModeEdit Mode = "edit"
)

// EditorState is a copy of the editor's observable state.
type EditorState struct {
	Mode        Mode                  `json:"mode"`
	TopicID     string                `json:"topicId,omitempty"`
	Name        string                `json:"name,omitempty"`
	Description string                `json:"description,omitempty"`
	Indicators  []IndicatorValueRange `json:"indicators"`
	SankeyData  *SankeyData           `json:"sankeyData"`
	Generating  bool                  `json:"generating"`
}

// Editor holds one user's topic being created or edited. Any change to the
// indicator selection drops the derived flow graph.
type Editor struct {
	mu         sync.Mutex
	mode       Mode
	original   *ResearchTopic
	indicators []IndicatorValueRange
	sankey     *SankeyData
	generating bool
	flowSeq    uint64

	catalog  map[string]dictionary.Indicator
	analyzer FlowAnalyzer
	logger   zerolog.Logger
}

func NewEditor(indicators []dictionary.Indicator, analyzer FlowAnalyzer, logger zerolog.Logger) *Editor {
	catalog := make(map[string]dictionary.Indicator, len(indicators))
	for _, ind := range indicators {
		catalog[ind.ID] = ind
	}
	return &Editor{
		mode:     ModeList,
		catalog:  catalog,
		analyzer: analyzer,
		logger:   logger.With().Str("model", "topic_editor").Logger(),
	}
}

func (e *Editor) editing() error {
	if e.mode == ModeList {
		return ErrNotEditing
	}
	return nil
}

// invalidate drops the flow graph and any generation in flight.
func (e *Editor) invalidate() {
	e.sankey = nil
	e.generating = false
	e.flowSeq++
}

func (e *Editor) clear(mode Mode) {
	e.mode = mode
	e.original = nil
	e.indicators = nil
	e.invalidate()
}

// OpenNew starts a new topic with no indicators.
func (e *Editor) OpenNew() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != ModeList {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.mode, ModeNew)
	}
	e.clear(ModeNew)
	return nil
}

// OpenEdit loads a persisted topic's indicators and flow graph.
func (e *Editor) OpenEdit(t *ResearchTopic) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != ModeList {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.mode, ModeEdit)
	}
	e.clear(ModeEdit)
	e.original = t.Clone()
	e.indicators = cloneRanges(t.Indicators)
	e.sankey = t.SankeyData.Clone()
	return nil
}

// Cancel discards the open topic and returns to the list.
func (e *Editor) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editing(); err != nil {
		return err
	}
	e.clear(ModeList)
	return nil
}

// SelectIndicator adds an indicator with an empty selection (qualitative) or
// its full bounds (quantitative).
func (e *Editor) SelectIndicator(id string) (IndicatorValueRange, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editing(); err != nil {
		return IndicatorValueRange{}, err
	}
	ind, ok := e.catalog[id]
	if !ok {
		return IndicatorValueRange{}, fmt.Errorf("%w: %s", ErrUnknownIndicator, id)
	}
	if e.indexOf(id) >= 0 {
		return IndicatorValueRange{}, fmt.Errorf("%w: %s", ErrDuplicateIndicator, ind.Name)
	}

	r := IndicatorValueRange{IndicatorID: ind.ID, IndicatorName: ind.Name, Type: ind.Type}
	if ind.Type == dictionary.Qualitative {
		r.SelectedValues = []string{}
	} else {
		r.MinValue = copyFloat(ind.Min)
		r.MaxValue = copyFloat(ind.Max)
	}
	e.indicators = append(e.indicators, r)
	e.invalidate()
	return r.clone(), nil
}

func (e *Editor) indexOf(id string) int {
	for i, r := range e.indicators {
		if r.IndicatorID == id {
			return i
		}
	}
	return -1
}

func (e *Editor) RemoveIndicator(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editing(); err != nil {
		return err
	}
	i := e.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrIndicatorNotSelected, id)
	}
	e.indicators = slices.Delete(slices.Clone(e.indicators), i, i+1)
	e.invalidate()
	return nil
}

// UpdateIndicatorRange merges upd into the range of a selected indicator.
// Qualitative values must be options of the indicator; quantitative bounds
// must stay within the indicator's bounds with min <= max.
func (e *Editor) UpdateIndicatorRange(id string, upd RangeUpdate) (IndicatorValueRange, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editing(); err != nil {
		return IndicatorValueRange{}, err
	}
	i := e.indexOf(id)
	if i < 0 {
		return IndicatorValueRange{}, fmt.Errorf("%w: %s", ErrIndicatorNotSelected, id)
	}
	r := e.indicators[i].clone()
	ind := e.catalog[id]

	switch r.Type {
	case dictionary.Qualitative:
		if upd.MinValue != nil || upd.MaxValue != nil {
			return IndicatorValueRange{}, fmt.Errorf("%w: %s takes selected values, not bounds", ErrInvalidRange, r.IndicatorName)
		}
		if upd.SelectedValues != nil {
			values := make([]string, 0, len(upd.SelectedValues))
			for _, v := range upd.SelectedValues {
				if _, ok := ind.OptionLabel(v); !ok {
					return IndicatorValueRange{}, fmt.Errorf("%w: %q is not an option of %s", ErrInvalidRange, v, r.IndicatorName)
				}
				if !slices.Contains(values, v) {
					values = append(values, v)
				}
			}
			r.SelectedValues = values
		}
	case dictionary.Quantitative:
		if upd.SelectedValues != nil {
			return IndicatorValueRange{}, fmt.Errorf("%w: %s takes bounds, not selected values", ErrInvalidRange, r.IndicatorName)
		}
		if upd.MinValue != nil {
			r.MinValue = copyFloat(upd.MinValue)
		}
		if upd.MaxValue != nil {
			r.MaxValue = copyFloat(upd.MaxValue)
		}
		if err := checkBounds(r, ind); err != nil {
			return IndicatorValueRange{}, err
		}
	}

	next := slices.Clone(e.indicators)
	next[i] = r
	e.indicators = next
	e.invalidate()
	return r.clone(), nil
}

func checkBounds(r IndicatorValueRange, ind dictionary.Indicator) error {
	if r.MinValue != nil && r.MaxValue != nil && *r.MinValue > *r.MaxValue {
		return fmt.Errorf("%w: %s min %s is above max %s", ErrInvalidRange, r.IndicatorName,
			formatNumber(*r.MinValue), formatNumber(*r.MaxValue))
	}
	if ind.Min != nil && r.MinValue != nil && *r.MinValue < *ind.Min {
		return fmt.Errorf("%w: %s min is below %s", ErrInvalidRange, r.IndicatorName, formatNumber(*ind.Min))
	}
	if ind.Max != nil && r.MaxValue != nil && *r.MaxValue > *ind.Max {
		return fmt.Errorf("%w: %s max is above %s", ErrInvalidRange, r.IndicatorName, formatNumber(*ind.Max))
	}
	return nil
}

// ClearIndicators removes every selected indicator.
func (e *Editor) ClearIndicators() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editing(); err != nil {
		return err
	}
	e.indicators = nil
	e.invalidate()
	return nil
}

// GenerateFlowGraph lays out the flow graph for the current selection and
// asks the analyzer to weigh it. Too few or incomplete indicators are
// rejected without touching state. The analyzer runs without the editor
// lock; if the selection changes or another generation starts meanwhile,
// the result is dropped and ErrFlowGraphDiscarded returned.
func (e *Editor) GenerateFlowGraph(ctx context.Context) (*SankeyData, error) {
	e.mu.Lock()
	if err := e.editing(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if len(e.indicators) < 2 {
		e.mu.Unlock()
		return nil, ErrTooFewIndicators
	}
	var missing []string
	for _, r := range e.indicators {
		if !r.Complete() {
			missing = append(missing, r.IndicatorName)
		}
	}
	if len(missing) > 0 {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrIncompleteRange, strings.Join(missing, ", "))
	}

	plan := planFlowGraph(e.indicators, e.catalog)
	e.flowSeq++
	token := e.flowSeq
	e.generating = true
	e.mu.Unlock()

	weights, err := e.analyzer.ComputeFlowGraph(ctx, plan)
	var graph *SankeyData
	if err == nil {
		graph, err = plan.graph(weights)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if token != e.flowSeq {
		e.logger.Debug().Uint64("token", token).Msg("discarding stale flow graph")
		return nil, ErrFlowGraphDiscarded
	}
	e.generating = false
	if err != nil {
		e.logger.Error().Err(err).
			Int("indicators", len(e.indicators)).
			Int("buckets", len(plan.Buckets)).
			Msg("flow graph generation failed")
		return nil, fmt.Errorf("%w: %w", ErrAnalyzerFailed, err)
	}
	e.sankey = graph
	return graph.Clone(), nil
}

// Save validates the form, builds the topic, writes it through w and, once
// stored, returns the editor to the list. A new topic is created; an edited
// one is updated in place and fails with ErrTopicNotFound if it was deleted
// meanwhile.
func (e *Editor) Save(ctx context.Context, form TopicForm, now time.Time, w TopicWriter) (*ResearchTopic, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editing(); err != nil {
		return nil, err
	}
	name, desc, err := validateForm(form)
	if err != nil {
		return nil, err
	}

	t := &ResearchTopic{
		Name:        name,
		Description: desc,
		Indicators:  cloneRanges(e.indicators),
		UpdatedAt:   now,
		SankeyData:  e.sankey.Clone(),
	}
	if t.Indicators == nil {
		t.Indicators = []IndicatorValueRange{}
	}
	if e.mode == ModeEdit {
		t.ID = e.original.ID
		t.CreatedAt = e.original.CreatedAt
		stored, err := w.Update(ctx, t)
		if err != nil {
			return nil, err
		}
		e.clear(ModeList)
		return stored, nil
	}

	t.ID = uuid.NewString()
	t.CreatedAt = now
	if err := w.Create(ctx, t); err != nil {
		return nil, err
	}
	e.clear(ModeList)
	return t.Clone(), nil
}

func validateForm(form TopicForm) (string, string, error) {
	name := strings.TrimSpace(form.Name)
	desc := strings.TrimSpace(form.Description)
	if name == "" {
		return "", "", ErrNameRequired
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return "", "", fmt.Errorf("%w: %d characters, limit %d", ErrNameTooLong, n, MaxNameLength)
	}
	if n := utf8.RuneCountInString(desc); n > MaxDescriptionLength {
		return "", "", fmt.Errorf("%w: %d characters, limit %d", ErrDescriptionTooLong, n, MaxDescriptionLength)
	}
	return name, desc, nil
}

func (e *Editor) Snapshot() EditorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := EditorState{
		Mode:       e.mode,
		Indicators: cloneRanges(e.indicators),
		SankeyData: e.sankey.Clone(),
		Generating: e.generating,
	}
	if s.Indicators == nil {
		s.Indicators = []IndicatorValueRange{}
	}
	if e.original != nil {
		s.TopicID = e.original.ID
		s.Name = e.original.Name
		s.Description = e.original.Description
	}
	return s
}
