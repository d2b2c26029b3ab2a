package dictionary

import (
	"fmt"
	"strings"
)

// FieldType selects which value editor a SearchField implies.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldDate   FieldType = "date"
	FieldSelect FieldType = "select"
)

func ParseFieldType(s string) (FieldType, error) {
	t := FieldType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown field type %q", s)
	}
	return t, nil
}

func (t FieldType) Valid() bool {
	_, ok := valueHandlers[t]
	return ok
}

type Option struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// SearchField describes one filterable attribute of a patient.
type SearchField struct {
	Key     string    `json:"key" yaml:"key"`
	Name    string    `json:"name" yaml:"name"`
	Type    FieldType `json:"type" yaml:"type"`
	Options []Option  `json:"options,omitempty" yaml:"options,omitempty"`
}

// OptionLabel returns the label of the option with the given value.
func (f SearchField) OptionLabel(value string) (string, bool) {
	for _, o := range f.Options {
		if o.Value == value {
			return o.Label, true
		}
	}
	return "", false
}

type Department struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Selected bool   `json:"selected,omitempty" yaml:"-"`
}

type Criterion struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Count   int    `json:"count" yaml:"count"`
	Checked bool   `json:"checked,omitempty" yaml:"-"`
}

// ResearchHotspot bundles the usual inclusion and exclusion criteria of a
// clinical research theme.
type ResearchHotspot struct {
	ID                string       `json:"id" yaml:"id"`
	Name              string       `json:"name" yaml:"name"`
	InclusionCriteria []*Criterion `json:"inclusionCriteria" yaml:"inclusionCriteria"`
	ExclusionCriteria []*Criterion `json:"exclusionCriteria" yaml:"exclusionCriteria"`
}

// Clone returns a deep copy of h.
func (h *ResearchHotspot) Clone() *ResearchHotspot {
	out := &ResearchHotspot{ID: h.ID, Name: h.Name}
	out.InclusionCriteria = cloneCriteria(h.InclusionCriteria)
	out.ExclusionCriteria = cloneCriteria(h.ExclusionCriteria)
	return out
}

func cloneCriteria(in []*Criterion) []*Criterion {
	out := make([]*Criterion, len(in))
	for i, c := range in {
		cp := *c
		out[i] = &cp
	}
	return out
}

// -- Data dictionary browser --

type Category struct {
	ID       string      `json:"id" yaml:"id"`
	Name     string      `json:"name" yaml:"name"`
	Type     string      `json:"type" yaml:"type"`
	Color    string      `json:"color,omitempty" yaml:"color,omitempty"`
	Children []*Category `json:"children,omitempty" yaml:"children,omitempty"`
}

type Share struct {
	Count      int     `json:"count" yaml:"count"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

type ValueShare struct {
	Value      string  `json:"value" yaml:"value"`
	Count      int     `json:"count" yaml:"count"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

type Quartiles struct {
	Lower string `json:"lower" yaml:"lower"`
	Upper string `json:"upper" yaml:"upper"`
}

// QualityStats summarises how well a field is populated across the cohort.
type QualityStats struct {
	ValidValue   Share        `json:"validValue" yaml:"validValue"`
	DefaultValue Share        `json:"defaultValue" yaml:"defaultValue"`
	MissingValue Share        `json:"missingValue" yaml:"missingValue"`
	Mode         string       `json:"mode,omitempty" yaml:"mode,omitempty"`
	Mean         string       `json:"mean,omitempty" yaml:"mean,omitempty"`
	StdDev       string       `json:"stdDev,omitempty" yaml:"stdDev,omitempty"`
	Median       string       `json:"median,omitempty" yaml:"median,omitempty"`
	Quartiles    *Quartiles   `json:"quartiles,omitempty" yaml:"quartiles,omitempty"`
	TopValues    []ValueShare `json:"topValues,omitempty" yaml:"topValues,omitempty"`
}

type Field struct {
	ID             string        `json:"id" yaml:"id"`
	Name           string        `json:"name" yaml:"name"`
	Description    string        `json:"description" yaml:"description"`
	ValueRange     string        `json:"valueRange" yaml:"valueRange"`
	DataType       string        `json:"dataType" yaml:"dataType"`
	ExtractionRule string        `json:"extractionRule" yaml:"extractionRule"`
	ValueSource    string        `json:"valueSource" yaml:"valueSource"`
	QualityStats   *QualityStats `json:"qualityStats,omitempty" yaml:"qualityStats,omitempty"`
}

// -- Topic indicators --

type IndicatorType string

const (
	Qualitative  IndicatorType = "qualitative"
	Quantitative IndicatorType = "quantitative"
)

func (t IndicatorType) Valid() bool {
	return t == Qualitative || t == Quantitative
}

// Indicator is a typed attribute usable in topic flow analysis. Qualitative
// indicators carry Options; quantitative ones carry Min, Max and Unit.
type Indicator struct {
	ID       string        `json:"id" yaml:"id"`
	Name     string        `json:"name" yaml:"name"`
	Type     IndicatorType `json:"type" yaml:"type"`
	Category string        `json:"category" yaml:"category"`
	Options  []Option      `json:"options,omitempty" yaml:"options,omitempty"`
	Min      *float64      `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *float64      `json:"max,omitempty" yaml:"max,omitempty"`
	Unit     string        `json:"unit,omitempty" yaml:"unit,omitempty"`
}

func (ind Indicator) OptionLabel(value string) (string, bool) {
	for _, o := range ind.Options {
		if o.Value == value {
			return o.Label, true
		}
	}
	return "", false
}
