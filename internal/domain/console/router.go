package console

import (
	"errors"
	"fmt"
	"strings"
)

// View identifies a console screen.
type View string

const (
	ViewOverview        View = "overview"
	ViewDictionary      View = "dictionary"
	ViewInspiration     View = "inspiration"
	ViewSimpleSearch    View = "simple-search"
	ViewConditionSearch View = "condition-search"
	ViewPlaceholder     View = "placeholder"
)

// PlaceholderMessage is shown for paths without a view.
const PlaceholderMessage = "Feature in development"

// Route binds a console path to the view that renders it and the API the
// view is driven by.
type Route struct {
	Path  string `json:"path"`
	View  View   `json:"view"`
	Title string `json:"title"`
	API   string `json:"api"`
}

// Resolution is the outcome of routing one path.
type Resolution struct {
	Path    string `json:"path"`
	View    View   `json:"view"`
	Title   string `json:"title,omitempty"`
	API     string `json:"api,omitempty"`
	Message string `json:"message,omitempty"`
}

// Router maps console paths to views by exact match. Paths are opaque: no
// prefix matching or normalisation is applied, so anything unregistered
// resolves to the placeholder view.
type Router struct {
	routes map[string]Route
}

func NewRouter(routes []Route) (*Router, error) {
	r := &Router{routes: make(map[string]Route, len(routes))}
	var errs []error
	for _, rt := range routes {
		switch {
		case !strings.HasPrefix(rt.Path, "/"):
			errs = append(errs, fmt.Errorf("route %q: path must start with /", rt.Path))
		case rt.View == "" || rt.View == ViewPlaceholder:
			errs = append(errs, fmt.Errorf("route %q: needs a concrete view", rt.Path))
		default:
			if _, dup := r.routes[rt.Path]; dup {
				errs = append(errs, fmt.Errorf("route %q: registered twice", rt.Path))
				continue
			}
			r.routes[rt.Path] = rt
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// DefaultRoutes are the feature views this server backs.
func DefaultRoutes() []Route {
	return []Route{
		{Path: "/overview", View: ViewOverview, Title: "Disease mining", API: "/api/v1/overview"},
		{Path: "/dictionary", View: ViewDictionary, Title: "Data dictionary", API: "/api/v1/dictionary"},
		{Path: "/inspiration", View: ViewInspiration, Title: "Inspiration", API: "/api/v1/topics"},
		{Path: "/search/simple", View: ViewSimpleSearch, Title: "Simple search", API: "/api/v1/search/simple"},
		{Path: "/search/condition", View: ViewConditionSearch, Title: "Condition search", API: "/api/v1/search/condition"},
	}
}

func DefaultRouter() *Router {
	r, err := NewRouter(DefaultRoutes())
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Router) Resolve(path string) Resolution {
	if rt, ok := r.routes[path]; ok {
		return Resolution{Path: path, View: rt.View, Title: rt.Title, API: rt.API}
	}
	return Resolution{Path: path, View: ViewPlaceholder, Message: PlaceholderMessage}
}
