package topic

import (
	"errors"
	"time"

	"github.com/huaxi/researchdb/internal/domain/dictionary"
)

// Form limits for topic name and description, in characters.
const (
	MaxNameLength        = 20
	MaxDescriptionLength = 60
)

const copySuffix = " (copy)"

var (
	ErrTopicNotFound        = errors.New("topic not found")
	ErrUnknownIndicator     = errors.New("unknown indicator")
	ErrDuplicateIndicator   = errors.New("indicator already selected")
	ErrIndicatorNotSelected = errors.New("indicator not selected")
	ErrInvalidRange         = errors.New("invalid indicator range")
	ErrTooFewIndicators     = errors.New("select at least 2 indicators to generate a flow graph")
	ErrIncompleteRange      = errors.New("set a value range for every selected indicator")
	ErrNameRequired         = errors.New("topic name is required")
	ErrNameTooLong          = errors.New("topic name is too long")
	ErrDescriptionTooLong   = errors.New("topic description is too long")
	ErrNotEditing           = errors.New("no topic is open in the editor")
	ErrInvalidTransition    = errors.New("invalid editor transition")
	ErrAnalyzerFailed       = errors.New("flow analysis failed")
	// ErrFlowGraphDiscarded is returned when the indicator selection changed
	// or a newer generation started while the analyzer was running.
	ErrFlowGraphDiscarded = errors.New("flow graph discarded after selection changed")
)

// IndicatorValueRange is the configured value range of one selected
// indicator. Qualitative ranges use SelectedValues; quantitative ranges use
// MinValue and MaxValue.
type IndicatorValueRange struct {
	IndicatorID    string                   `json:"indicatorId"`
	IndicatorName  string                   `json:"indicatorName"`
	Type           dictionary.IndicatorType `json:"type"`
	SelectedValues []string                 `json:"selectedValues,omitempty"`
	MinValue       *float64                 `json:"minValue,omitempty"`
	MaxValue       *float64                 `json:"maxValue,omitempty"`
}

// Complete reports whether the range can feed a flow graph.
func (r IndicatorValueRange) Complete() bool {
	if r.Type == dictionary.Qualitative {
		return len(r.SelectedValues) > 0
	}
	return r.MinValue != nil && r.MaxValue != nil
}

func (r IndicatorValueRange) clone() IndicatorValueRange {
	out := r
	if r.SelectedValues != nil {
		out.SelectedValues = append([]string{}, r.SelectedValues...)
	}
	out.MinValue = copyFloat(r.MinValue)
	out.MaxValue = copyFloat(r.MaxValue)
	return out
}

func cloneRanges(in []IndicatorValueRange) []IndicatorValueRange {
	if in == nil {
		return nil
	}
	out := make([]IndicatorValueRange, len(in))
	for i, r := range in {
		out[i] = r.clone()
	}
	return out
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// RangeUpdate is a partial edit of an IndicatorValueRange. Nil fields are
// left alone; a non-nil empty SelectedValues clears the selection.
type RangeUpdate struct {
	SelectedValues []string `json:"selectedValues"`
	MinValue       *float64 `json:"minValue"`
	MaxValue       *float64 `json:"maxValue"`
}

type SankeyNode struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Value    int    `json:"value"`
}

type SankeyLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Value  int    `json:"value"`
}

// SankeyData is the flow graph derived from a topic's indicator selection.
// It is always rebuilt whole.
type SankeyData struct {
	Nodes []SankeyNode `json:"nodes"`
	Links []SankeyLink `json:"links"`
}

func (s *SankeyData) Clone() *SankeyData {
	if s == nil {
		return nil
	}
	return &SankeyData{
		Nodes: append([]SankeyNode{}, s.Nodes...),
		Links: append([]SankeyLink{}, s.Links...),
	}
}

type ResearchTopic struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	Description   string                `json:"description,omitempty"`
	Indicators    []IndicatorValueRange `json:"indicators"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
	IsRecommended bool                  `json:"isRecommended"`
	SankeyData    *SankeyData           `json:"sankeyData,omitempty"`
}

func (t *ResearchTopic) Clone() *ResearchTopic {
	out := *t
	out.Indicators = cloneRanges(t.Indicators)
	if out.Indicators == nil {
		out.Indicators = []IndicatorValueRange{}
	}
	out.SankeyData = t.SankeyData.Clone()
	return &out
}

// TopicForm holds the editable text fields of a topic.
type TopicForm struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
