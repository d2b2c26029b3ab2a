package dictionary

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Catalog is a Source backed by a YAML document.
type Catalog struct {
	SearchFields     []SearchField      `yaml:"searchFields"`
	Departments      []Department       `yaml:"departments"`
	ResearchHotspots []ResearchHotspot  `yaml:"researchHotspots"`
	Categories       []Category         `yaml:"categories"`
	CategoryFields   map[string][]Field `yaml:"categoryFields"`
	Indicators       []Indicator        `yaml:"indicators"`
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports every structural problem in the catalog at once.
func (c *Catalog) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.SearchFields) == 0 {
		add("searchFields: at least one field is required")
	}
	seen := map[string]bool{}
	for i, f := range c.SearchFields {
		switch {
		case strings.TrimSpace(f.Key) == "":
			add("searchFields[%d]: key is required", i)
		case seen[f.Key]:
			add("searchFields[%d]: duplicate key %q", i, f.Key)
		}
		seen[f.Key] = true
		if !f.Type.Valid() {
			add("searchFields[%d]: unknown type %q", i, f.Type)
		}
		if f.Type == FieldSelect && len(f.Options) == 0 {
			add("searchFields[%d]: select field %q has no options", i, f.Key)
		}
	}

	seen = map[string]bool{}
	for i, d := range c.Departments {
		if d.ID == "" || seen[d.ID] {
			add("departments[%d]: missing or duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
	}

	seen = map[string]bool{}
	for i, h := range c.ResearchHotspots {
		if h.ID == "" || seen[h.ID] {
			add("researchHotspots[%d]: missing or duplicate id %q", i, h.ID)
		}
		seen[h.ID] = true
		crit := map[string]bool{}
		for _, cr := range append(append([]*Criterion{}, h.InclusionCriteria...), h.ExclusionCriteria...) {
			if cr == nil || cr.ID == "" || crit[cr.ID] {
				add("researchHotspots[%d]: missing or duplicate criterion id", i)
				continue
			}
			crit[cr.ID] = true
		}
	}

	leaves := map[string]bool{}
	seen = map[string]bool{}
	var walk func(path string, cats []*Category)
	walk = func(path string, cats []*Category) {
		for i, cat := range cats {
			p := fmt.Sprintf("%s[%d]", path, i)
			if cat.ID == "" || seen[cat.ID] {
				add("%s: missing or duplicate id %q", p, cat.ID)
			}
			seen[cat.ID] = true
			if len(cat.Children) == 0 {
				leaves[cat.ID] = true
			}
			walk(p+".children", cat.Children)
		}
	}
	for i := range c.Categories {
		top := c.Categories[i]
		walk("categories", []*Category{&top})
	}
	for id := range c.CategoryFields {
		if !leaves[id] {
			add("categoryFields: %q is not a leaf category", id)
		}
	}

	seen = map[string]bool{}
	for i, ind := range c.Indicators {
		if ind.ID == "" || seen[ind.ID] {
			add("indicators[%d]: missing or duplicate id %q", i, ind.ID)
		}
		seen[ind.ID] = true
		switch ind.Type {
		case Qualitative:
			if len(ind.Options) == 0 {
				add("indicators[%d]: qualitative indicator %q has no options", i, ind.ID)
			}
		case Quantitative:
			if ind.Min == nil || ind.Max == nil || *ind.Min >= *ind.Max {
				add("indicators[%d]: quantitative indicator %q needs min < max", i, ind.ID)
			}
		default:
			add("indicators[%d]: unknown type %q", i, ind.Type)
		}
	}

	return errors.Join(errs...)
}

func (c *Catalog) FetchFieldDictionary(ctx context.Context) ([]SearchField, error) {
	out := make([]SearchField, len(c.SearchFields))
	for i, f := range c.SearchFields {
		f.Options = append([]Option(nil), f.Options...)
		out[i] = f
	}
	return out, nil
}

func (c *Catalog) FetchDepartments(ctx context.Context) ([]Department, error) {
	return append([]Department(nil), c.Departments...), nil
}

func (c *Catalog) FetchResearchHotspots(ctx context.Context) ([]ResearchHotspot, error) {
	out := make([]ResearchHotspot, len(c.ResearchHotspots))
	for i := range c.ResearchHotspots {
		out[i] = *c.ResearchHotspots[i].Clone()
	}
	return out, nil
}

func (c *Catalog) FetchCategories(ctx context.Context) ([]Category, error) {
	out := make([]Category, len(c.Categories))
	for i := range c.Categories {
		out[i] = *cloneCategory(&c.Categories[i])
	}
	return out, nil
}

func cloneCategory(cat *Category) *Category {
	cp := *cat
	cp.Children = make([]*Category, len(cat.Children))
	for i, ch := range cat.Children {
		cp.Children[i] = cloneCategory(ch)
	}
	if len(cp.Children) == 0 {
		cp.Children = nil
	}
	return &cp
}

func (c *Catalog) FetchCategoryFields(ctx context.Context, categoryID string) ([]Field, error) {
	if !c.hasCategory(categoryID) {
		return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
	}
	fields := c.CategoryFields[categoryID]
	out := make([]Field, len(fields))
	copy(out, fields)
	return out, nil
}

func (c *Catalog) hasCategory(id string) bool {
	var find func(cats []*Category) bool
	find = func(cats []*Category) bool {
		for _, cat := range cats {
			if cat.ID == id || find(cat.Children) {
				return true
			}
		}
		return false
	}
	for i := range c.Categories {
		if find([]*Category{&c.Categories[i]}) {
			return true
		}
	}
	return false
}

func (c *Catalog) FetchIndicators(ctx context.Context) ([]Indicator, error) {
	out := make([]Indicator, len(c.Indicators))
	for i, ind := range c.Indicators {
		ind.Options = append([]Option(nil), ind.Options...)
		out[i] = ind
	}
	return out, nil
}
