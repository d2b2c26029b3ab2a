package topic

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) List(ctx context.Context) ([]*ResearchTopic, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*ResearchTopic, error) {
	return s.repo.Get(ctx, id)
}

// OpenEdit loads the topic with id into the editor.
func (s *Service) OpenEdit(ctx context.Context, ed *Editor, id string) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return ed.OpenEdit(t)
}

// Save persists the editor's topic and returns the editor to the list.
func (s *Service) Save(ctx context.Context, ed *Editor, form TopicForm) (*ResearchTopic, error) {
	return ed.Save(ctx, form, s.now().UTC(), s.repo)
}

// Copy duplicates a topic under a new id. The copy is not recommended and
// carries the original's indicators and flow graph.
func (s *Service) Copy(ctx context.Context, id string) (*ResearchTopic, error) {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	cp := src.Clone()
	cp.ID = uuid.NewString()
	cp.Name = src.Name + copySuffix
	cp.CreatedAt = now
	cp.UpdatedAt = now
	cp.IsRecommended = false
	if err := s.repo.Create(ctx, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *Service) ToggleRecommended(ctx context.Context, id string) (*ResearchTopic, error) {
	return s.repo.ToggleRecommended(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
