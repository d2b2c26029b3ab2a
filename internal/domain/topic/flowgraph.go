package topic

import (
	"fmt"
	"strconv"

	"github.com/huaxi/researchdb/internal/domain/dictionary"
)

// FlowBucket is one node of a planned flow graph. A qualitative bucket holds
// a single selected value. A quantitative bucket is half of the configured
// range: [Min, Max) for the low half and [Min, Max] for the high half.
type FlowBucket struct {
	NodeID      string                   `json:"id"`
	IndicatorID string                   `json:"indicatorId"`
	Type        dictionary.IndicatorType `json:"type"`
	Name        string                   `json:"name"`
	Category    string                   `json:"category"`
	Value       string                   `json:"value,omitempty"`
	Min         float64                  `json:"min,omitempty"`
	Max         float64                  `json:"max,omitempty"`
	ClosedMax   bool                     `json:"closedMax,omitempty"`
}

// Contains reports whether a numeric observation falls in a quantitative
// bucket.
func (b FlowBucket) Contains(v float64) bool {
	if v < b.Min {
		return false
	}
	if b.ClosedMax {
		return v <= b.Max
	}
	return v < b.Max
}

type FlowEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// FlowPlan is the node and link structure of a flow graph before the
// analyzer weighs it. Buckets are grouped by indicator in selection order;
// links join every bucket of one indicator to every bucket of the next.
type FlowPlan struct {
	Buckets []FlowBucket `json:"buckets"`
	Links   []FlowEdge   `json:"links"`
}

// FlowWeights are the magnitudes an analyzer assigns to a plan. Links is
// aligned index by index with FlowPlan.Links.
type FlowWeights struct {
	Nodes map[string]int `json:"nodes"`
	Links []int          `json:"links"`
}

// planFlowGraph lays out the flow graph for a complete selection. Labels and
// units come from the indicator catalog; a value missing from the catalog is
// labelled with its raw value.
func planFlowGraph(ranges []IndicatorValueRange, catalog map[string]dictionary.Indicator) FlowPlan {
	var plan FlowPlan
	var layers [][]FlowBucket

	for _, r := range ranges {
		ind := catalog[r.IndicatorID]
		var layer []FlowBucket
		switch r.Type {
		case dictionary.Qualitative:
			for _, v := range r.SelectedValues {
				label, ok := ind.OptionLabel(v)
				if !ok {
					label = v
				}
				layer = append(layer, FlowBucket{
					NodeID:      r.IndicatorID + "_" + v,
					IndicatorID: r.IndicatorID,
					Type:        r.Type,
					Name:        label,
					Category:    r.IndicatorName,
					Value:       v,
				})
			}
		case dictionary.Quantitative:
			lo, hi := *r.MinValue, *r.MaxValue
			mid := (lo + hi) / 2
			layer = append(layer,
				FlowBucket{
					NodeID:      r.IndicatorID + "_low",
					IndicatorID: r.IndicatorID,
					Type:        r.Type,
					Name:        bucketName("low", lo, mid, ind.Unit),
					Category:    r.IndicatorName,
					Min:         lo,
					Max:         mid,
				},
				FlowBucket{
					NodeID:      r.IndicatorID + "_high",
					IndicatorID: r.IndicatorID,
					Type:        r.Type,
					Name:        bucketName("high", mid, hi, ind.Unit),
					Category:    r.IndicatorName,
					Min:         mid,
					Max:         hi,
					ClosedMax:   true,
				},
			)
		}
		if len(layer) > 0 {
			layers = append(layers, layer)
			plan.Buckets = append(plan.Buckets, layer...)
		}
	}

	for i := 0; i+1 < len(layers); i++ {
		for _, src := range layers[i] {
			for _, dst := range layers[i+1] {
				plan.Links = append(plan.Links, FlowEdge{Source: src.NodeID, Target: dst.NodeID})
			}
		}
	}
	return plan
}

func bucketName(label string, lo, hi float64, unit string) string {
	if unit != "" {
		unit = " " + unit
	}
	return fmt.Sprintf("%s (%s-%s%s)", label, formatNumber(lo), formatNumber(hi), unit)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// graph combines the plan with analyzer weights.
func (p FlowPlan) graph(w FlowWeights) (*SankeyData, error) {
	if len(w.Links) != len(p.Links) {
		return nil, fmt.Errorf("analyzer returned %d link weights for %d links", len(w.Links), len(p.Links))
	}
	g := &SankeyData{
		Nodes: make([]SankeyNode, len(p.Buckets)),
		Links: make([]SankeyLink, len(p.Links)),
	}
	for i, b := range p.Buckets {
		g.Nodes[i] = SankeyNode{ID: b.NodeID, Name: b.Name, Category: b.Category, Value: w.Nodes[b.NodeID]}
	}
	for i, l := range p.Links {
		g.Links[i] = SankeyLink{Source: l.Source, Target: l.Target, Value: w.Links[i]}
	}
	return g, nil
}
