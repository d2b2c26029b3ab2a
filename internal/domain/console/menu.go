package console

// MenuItem is one entry of the console's top navigation.
type MenuItem struct {
	Key      string     `json:"key"`
	Label    string     `json:"label"`
	Ready    bool       `json:"ready"`
	Children []MenuItem `json:"children,omitempty"`
}

var topMenu = []MenuItem{
	{Key: "/home", Label: "Home"},
	{Key: "/overview", Label: "Disease mining"},
	{Key: "/dictionary", Label: "Data dictionary"},
	{Key: "/inspiration", Label: "Inspiration"},
	{Key: "/search", Label: "Smart search", Children: []MenuItem{
		{Key: "/search/simple", Label: "Simple search"},
		{Key: "/search/condition", Label: "Condition search"},
	}},
	{Key: "/queue", Label: "Cohort queues"},
	{Key: "/data-entry", Label: "Data entry"},
	{Key: "/projects", Label: "My projects"},
	{Key: "/research", Label: "Research projects"},
	{Key: "/multimodal", Label: "Multimodal files"},
}

// Menu returns the navigation tree. Ready marks entries that resolve to a
// view; a parent is ready when any child is.
func (r *Router) Menu() []MenuItem {
	return r.markReady(topMenu)
}

func (r *Router) markReady(items []MenuItem) []MenuItem {
	out := make([]MenuItem, len(items))
	for i, it := range items {
		it.Ready = r.Resolve(it.Key).View != ViewPlaceholder
		if len(it.Children) > 0 {
			it.Children = r.markReady(it.Children)
			for _, c := range it.Children {
				it.Ready = it.Ready || c.Ready
			}
		}
		out[i] = it
	}
	return out
}
