package topic

import (
	"context"
	"errors"
	"sync"

	"github.com/huaxi/researchdb/internal/domain/dictionary"
)

func fptr(f float64) *float64 { return &f }

func testIndicators() []dictionary.Indicator {
	return []dictionary.Indicator{
		{ID: "tnm_staging", Name: "TNM staging", Type: dictionary.Qualitative, Options: []dictionary.Option{
			{Label: "Stage IA", Value: "IA"}, {Label: "Stage IB", Value: "IB"}, {Label: "Stage IIA", Value: "IIA"},
		}},
		{ID: "surgery_type", Name: "Surgery type", Type: dictionary.Qualitative, Options: []dictionary.Option{
			{Label: "Lobectomy", Value: "lobectomy"}, {Label: "Wedge resection", Value: "wedge"},
		}},
		{ID: "age", Name: "Age", Type: dictionary.Quantitative, Min: fptr(0), Max: fptr(120), Unit: "years"},
		{ID: "nodule_size", Name: "Nodule size", Type: dictionary.Quantitative, Min: fptr(0), Max: fptr(100), Unit: "mm"},
	}
}

func testCatalog() map[string]dictionary.Indicator {
	out := map[string]dictionary.Indicator{}
	for _, ind := range testIndicators() {
		out[ind.ID] = ind
	}
	return out
}

// constAnalyzer weighs every node and link with fixed values.
type constAnalyzer struct {
	node, link int
	err        error
	calls      int
	mu         sync.Mutex
}

func (a *constAnalyzer) ComputeFlowGraph(_ context.Context, plan FlowPlan) (FlowWeights, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.err != nil {
		return FlowWeights{}, a.err
	}
	w := FlowWeights{Nodes: map[string]int{}, Links: make([]int, len(plan.Links))}
	for _, b := range plan.Buckets {
		w.Nodes[b.NodeID] = a.node
	}
	for i := range w.Links {
		w.Links[i] = a.link
	}
	return w, nil
}

// gatedAnalyzer blocks until the test releases it.
type gatedAnalyzer struct {
	started chan FlowPlan
	release chan error
}

func newGatedAnalyzer() *gatedAnalyzer {
	return &gatedAnalyzer{started: make(chan FlowPlan, 4), release: make(chan error, 4)}
}

func (a *gatedAnalyzer) ComputeFlowGraph(_ context.Context, plan FlowPlan) (FlowWeights, error) {
	a.started <- plan
	if err := <-a.release; err != nil {
		return FlowWeights{}, err
	}
	return (&constAnalyzer{node: 1, link: 1}).ComputeFlowGraph(context.Background(), plan)
}

var errAnalytics = errors.New("analytics down")

// recordingWriter keeps every topic the editor writes.
type recordingWriter struct {
	created []*ResearchTopic
	updated []*ResearchTopic
	err     error
}

func (w *recordingWriter) Create(_ context.Context, t *ResearchTopic) error {
	if w.err != nil {
		return w.err
	}
	w.created = append(w.created, t.Clone())
	return nil
}

func (w *recordingWriter) Update(_ context.Context, t *ResearchTopic) (*ResearchTopic, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.updated = append(w.updated, t.Clone())
	return t.Clone(), nil
}
