package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/huaxi/researchdb/internal/domain/dictionary"
	"github.com/huaxi/researchdb/internal/domain/patient"
	"github.com/huaxi/researchdb/internal/domain/search"
	"github.com/huaxi/researchdb/internal/domain/topic"
	"github.com/huaxi/researchdb/internal/platform/auth"
)

var ErrNoUser = errors.New("request has no authenticated user")

// Workspace is one user's console state.
type Workspace struct {
	Conditions *search.ConditionModel
	Simple     *search.SimpleModel
	Topics     *topic.Editor
}

// Deps are the collaborators every workspace is wired to.
type Deps struct {
	Dictionary dictionary.Source
	Patients   patient.Fetcher
	Analyzer   topic.FlowAnalyzer
	PageSize   int
	Logger     zerolog.Logger
}

type entry struct {
	ws       *Workspace
	lastUsed time.Time
}

// Store hands out workspaces keyed by the authenticated user id. Workspaces
// are built on first use from the reference data and dropped after TTL of
// inactivity.
type Store struct {
	deps  Deps
	ttl   time.Duration
	now   func() time.Time
	build singleflight.Group

	mu     sync.Mutex
	byUser map[string]*entry
}

func NewStore(deps Deps, ttl time.Duration) *Store {
	return &Store{
		deps:   deps,
		ttl:    ttl,
		now:    time.Now,
		byUser: make(map[string]*entry),
	}
}

// Get returns the caller's workspace, creating it if needed.
func (s *Store) Get(ctx context.Context) (*Workspace, error) {
	user := auth.UserIDFromContext(ctx)
	if user == "" {
		return nil, ErrNoUser
	}

	s.mu.Lock()
	if e, ok := s.byUser[user]; ok {
		e.lastUsed = s.now()
		s.mu.Unlock()
		return e.ws, nil
	}
	s.mu.Unlock()

	// The build is shared by concurrent first requests and outlives any one of them.
	buildCtx := context.WithoutCancel(ctx)
	v, err, _ := s.build.Do(user, func() (any, error) {
		s.mu.Lock()
		if e, ok := s.byUser[user]; ok {
			s.mu.Unlock()
			return e.ws, nil
		}
		s.mu.Unlock()

		ws, err := s.newWorkspace(buildCtx, user)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.byUser[user] = &entry{ws: ws, lastUsed: s.now()}
		s.deps.Logger.Info().Str("user_id", user).Msg("workspace created")
		return ws, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Workspace), nil
}

func (s *Store) newWorkspace(ctx context.Context, user string) (*Workspace, error) {
	var (
		fields     []dictionary.SearchField
		depts      []dictionary.Department
		hotspots   []dictionary.ResearchHotspot
		indicators []dictionary.Indicator
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		fields, err = s.deps.Dictionary.FetchFieldDictionary(gctx)
		return err
	})
	g.Go(func() (err error) {
		depts, err = s.deps.Dictionary.FetchDepartments(gctx)
		return err
	})
	g.Go(func() (err error) {
		hotspots, err = s.deps.Dictionary.FetchResearchHotspots(gctx)
		return err
	})
	g.Go(func() (err error) {
		indicators, err = s.deps.Dictionary.FetchIndicators(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}

	logger := s.deps.Logger.With().Str("user_id", user).Logger()
	cond, err := search.NewConditionModel(fields, s.deps.Patients, s.deps.PageSize, logger)
	if err != nil {
		return nil, err
	}
	return &Workspace{
		Conditions: cond,
		Simple:     search.NewSimpleModel(depts, hotspots, s.deps.Patients, s.deps.PageSize, logger),
		Topics:     topic.NewEditor(indicators, s.deps.Analyzer, logger),
	}, nil
}

func (s *Store) Conditions(ctx context.Context) (*search.ConditionModel, error) {
	ws, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return ws.Conditions, nil
}

func (s *Store) Simple(ctx context.Context) (*search.SimpleModel, error) {
	ws, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return ws.Simple, nil
}

func (s *Store) Editor(ctx context.Context) (*topic.Editor, error) {
	ws, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return ws.Topics, nil
}

// Len reports how many workspaces are live.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser)
}

// Sweep drops workspaces idle for longer than the TTL and returns how many
// it removed.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for user, e := range s.byUser {
		if e.lastUsed.Before(cutoff) {
			delete(s.byUser, user)
			n++
		}
	}
	return n
}

// Run sweeps idle workspaces until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.deps.Logger.Info().Int("evicted", n).Int("live", s.Len()).Msg("idle workspaces evicted")
			}
		}
	}
}
