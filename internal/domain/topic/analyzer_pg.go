package topic

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/huaxi/researchdb/internal/domain/dictionary"
	"github.com/huaxi/researchdb/internal/platform/db"
)

// DefaultCohortParallelism bounds the number of concurrent count queries.
const DefaultCohortParallelism = 4

// CohortAnalyzerPG weighs a flow graph with patient counts from the
// patient_indicator table: a node counts the patients in its bucket and a
// link counts the patients in both of its buckets.
type CohortAnalyzerPG struct {
	q           db.Querier
	parallelism int
}

func NewCohortAnalyzerPG(q db.Querier, parallelism int) *CohortAnalyzerPG {
	if parallelism < 1 {
		parallelism = DefaultCohortParallelism
	}
	return &CohortAnalyzerPG{q: q, parallelism: parallelism}
}

type sqlArgs struct {
	args []any
}

func (a *sqlArgs) add(v any) string {
	a.args = append(a.args, v)
	return "$" + strconv.Itoa(len(a.args))
}

// bucketPredicate matches rows of alias that fall into b.
func bucketPredicate(alias string, b FlowBucket, args *sqlArgs) string {
	pred := alias + ".indicator_id = " + args.add(b.IndicatorID)
	if b.Type == dictionary.Qualitative {
		return pred + " AND " + alias + ".value_text = " + args.add(b.Value)
	}
	upper := " < "
	if b.ClosedMax {
		upper = " <= "
	}
	return pred + " AND " + alias + ".value_num >= " + args.add(b.Min) +
		" AND " + alias + ".value_num" + upper + args.add(b.Max)
}

func nodeCountSQL(b FlowBucket) (string, []any) {
	args := &sqlArgs{}
	where := bucketPredicate("a", b, args)
	return `SELECT COUNT(DISTINCT a.patient_id) FROM patient_indicator a WHERE ` + where, args.args
}

func linkCountSQL(src, dst FlowBucket) (string, []any) {
	args := &sqlArgs{}
	left := bucketPredicate("a", src, args)
	right := bucketPredicate("b", dst, args)
	return `SELECT COUNT(DISTINCT a.patient_id) FROM patient_indicator a
		JOIN patient_indicator b ON b.patient_id = a.patient_id
		WHERE ` + left + ` AND ` + right, args.args
}

func (a *CohortAnalyzerPG) count(ctx context.Context, sql string, args []any) (int, error) {
	var n int
	if err := a.q.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (a *CohortAnalyzerPG) ComputeFlowGraph(ctx context.Context, plan FlowPlan) (FlowWeights, error) {
	byID := make(map[string]FlowBucket, len(plan.Buckets))
	for _, b := range plan.Buckets {
		byID[b.NodeID] = b
	}
	for _, l := range plan.Links {
		if _, ok := byID[l.Source]; !ok {
			return FlowWeights{}, fmt.Errorf("link source %q is not a bucket", l.Source)
		}
		if _, ok := byID[l.Target]; !ok {
			return FlowWeights{}, fmt.Errorf("link target %q is not a bucket", l.Target)
		}
	}

	nodes := make([]int, len(plan.Buckets))
	links := make([]int, len(plan.Links))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for i, b := range plan.Buckets {
		g.Go(func() error {
			sql, args := nodeCountSQL(b)
			n, err := a.count(gctx, sql, args)
			if err != nil {
				return fmt.Errorf("count bucket %s: %w", b.NodeID, err)
			}
			nodes[i] = n
			return nil
		})
	}
	for i, l := range plan.Links {
		g.Go(func() error {
			sql, args := linkCountSQL(byID[l.Source], byID[l.Target])
			n, err := a.count(gctx, sql, args)
			if err != nil {
				return fmt.Errorf("count link %s -> %s: %w", l.Source, l.Target, err)
			}
			links[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return FlowWeights{}, err
	}

	w := FlowWeights{Nodes: make(map[string]int, len(nodes)), Links: links}
	for i, b := range plan.Buckets {
		w.Nodes[b.NodeID] = nodes[i]
	}
	return w, nil
}
