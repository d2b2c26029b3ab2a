package topic

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TopicWriter stores topics produced by the editor.
type TopicWriter interface {
	Create(ctx context.Context, t *ResearchTopic) error
	// Update rewrites the editable fields of an existing topic and returns
	// the stored result. CreatedAt and IsRecommended are left untouched.
	Update(ctx context.Context, t *ResearchTopic) (*ResearchTopic, error)
}

type Repository interface {
	TopicWriter
	List(ctx context.Context) ([]*ResearchTopic, error)
	Get(ctx context.Context, id string) (*ResearchTopic, error)
	Delete(ctx context.Context, id string) error
	ToggleRecommended(ctx context.Context, id string) (*ResearchTopic, error)
}

// MemoryRepo keeps topics in process, in insertion order.
type MemoryRepo struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*ResearchTopic
}

func NewMemoryRepo(seed ...*ResearchTopic) *MemoryRepo {
	r := &MemoryRepo{byID: make(map[string]*ResearchTopic)}
	for _, t := range seed {
		r.order = append(r.order, t.ID)
		r.byID[t.ID] = t.Clone()
	}
	return r
}

// SeedTopics returns the recommended topic a fresh installation starts with.
func SeedTopics() []*ResearchTopic {
	created := time.Date(2025, time.March, 17, 0, 0, 0, 0, time.UTC)
	return []*ResearchTopic{{
		ID:            "1",
		Name:          "Tumour treatment",
		Description:   "TNM staging, surgery type, molecular tests, treatment drugs",
		Indicators:    []IndicatorValueRange{},
		CreatedAt:     created,
		UpdatedAt:     created,
		IsRecommended: true,
	}}
}

func (r *MemoryRepo) List(_ context.Context) ([]*ResearchTopic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ResearchTopic, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].Clone())
	}
	return out, nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*ResearchTopic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	return t.Clone(), nil
}

func (r *MemoryRepo) Create(_ context.Context, t *ResearchTopic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[t.ID]; ok {
		return fmt.Errorf("topic %s already exists", t.ID)
	}
	r.order = append(r.order, t.ID)
	r.byID[t.ID] = t.Clone()
	return nil
}

func (r *MemoryRepo) Update(_ context.Context, t *ResearchTopic) (*ResearchTopic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[t.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, t.ID)
	}
	next := t.Clone()
	next.CreatedAt = cur.CreatedAt
	next.IsRecommended = cur.IsRecommended
	r.byID[t.ID] = next
	return next.Clone(), nil
}

func (r *MemoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	delete(r.byID, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryRepo) ToggleRecommended(_ context.Context, id string) (*ResearchTopic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	cp := t.Clone()
	cp.IsRecommended = !cp.IsRecommended
	r.byID[id] = cp
	return cp.Clone(), nil
}
