package topic

import (
	"context"
	"hash/fnv"
	"math/rand"

	"github.com/huaxi/researchdb/internal/domain/dictionary"
)

// FlowAnalyzer weighs the nodes and links of a planned flow graph with
// patient counts.
type FlowAnalyzer interface {
	ComputeFlowGraph(ctx context.Context, plan FlowPlan) (FlowWeights, error)
}

// SyntheticAnalyzer produces plausible random weights without patient data.
// The same plan and seed always yield the same weights.
type SyntheticAnalyzer struct {
	Seed int64
}

func NewSyntheticAnalyzer(seed int64) *SyntheticAnalyzer {
	return &SyntheticAnalyzer{Seed: seed}
}

func (a *SyntheticAnalyzer) ComputeFlowGraph(ctx context.Context, plan FlowPlan) (FlowWeights, error) {
	if err := ctx.Err(); err != nil {
		return FlowWeights{}, err
	}
	h := fnv.New64a()
	for _, b := range plan.Buckets {
		h.Write([]byte(b.NodeID))
		h.Write([]byte{0})
	}
	r := rand.New(rand.NewSource(a.Seed ^ int64(h.Sum64())))

	w := FlowWeights{Nodes: make(map[string]int, len(plan.Buckets)), Links: make([]int, len(plan.Links))}
	for _, b := range plan.Buckets {
		if b.Type == dictionary.Qualitative {
			w.Nodes[b.NodeID] = r.Intn(300) + 1
		} else {
			w.Nodes[b.NodeID] = r.Intn(200) + 1
		}
	}
	for i := range plan.Links {
		w.Links[i] = r.Intn(100) + 1
	}
	return w, nil
}
