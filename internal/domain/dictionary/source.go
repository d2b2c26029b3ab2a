package dictionary

import (
	"context"
	"errors"
)

var ErrCategoryNotFound = errors.New("category not found")

// Source provides the read-only reference data the search and topic models
// are built from.
type Source interface {
	FetchFieldDictionary(ctx context.Context) ([]SearchField, error)
	FetchDepartments(ctx context.Context) ([]Department, error)
	FetchResearchHotspots(ctx context.Context) ([]ResearchHotspot, error)
	FetchCategories(ctx context.Context) ([]Category, error)
	FetchCategoryFields(ctx context.Context, categoryID string) ([]Field, error)
	FetchIndicators(ctx context.Context) ([]Indicator, error)
}
