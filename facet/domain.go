package facet

import (
	"bytes"
	"encoding/json"
)

// Filter is one fragment of a filter list: a query string, or a reference to
// a request parameter whose values are query strings.
type Filter struct {
	Query string
	Param string
}

// Q returns a query string filter.
func Q(query string) Filter { return Filter{Query: query} }

// Param returns a filter that expands to the values of a request parameter.
// A parameter that is absent contributes nothing.
func Param(name string) Filter { return Filter{Param: name} }

// IsParam reports whether f references a request parameter.
func (f Filter) IsParam() bool { return f.Param != "" }

func (f Filter) MarshalJSON() ([]byte, error) {
	if f.IsParam() {
		return json.Marshal(map[string]string{"param": f.Param})
	}
	return json.Marshal(f.Query)
}

// UnmarshalJSON accepts a string or {"param": "<name>"}.
func (f *Filter) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		*f = Filter{Query: v}
		return nil
	case map[string]any:
		if len(v) != 1 {
			return NewRequestError("can't convert map to query", string(b))
		}
		args, ok := v["param"]
		if !ok {
			return NewRequestError("unknown type, can't convert map to query", string(b))
		}
		name, ok := args.(string)
		if !ok {
			return NewRequestError("can't retrieve non-string param", args)
		}
		*f = Filter{Param: name}
		return nil
	default:
		return NewRequestError("bad query (expected a string)", string(b))
	}
}

// JoinField replaces the domain with documents whose To field shares a
// value with the From field of a domain document.
type JoinField struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GraphField repeats a join until no new documents are reached or MaxDepth
// hops were taken. MaxDepth <= 0 means unbounded.
type GraphField struct {
	From     string `json:"from"`
	To       string `json:"to"`
	MaxDepth int    `json:"maxDepth,omitempty"`
}

// Domain changes the documents a facet aggregates over.
type Domain struct {
	// Query replaces the domain. A non-nil list that evaluates to no queries is
	// a request error.
	Query []Filter `json:"query,omitempty"`
	// ExcludeTags rebuilds the domain without the tagged top-level filters.
	ExcludeTags []string    `json:"excludeTags,omitempty"`
	Filter      []Filter    `json:"filter,omitempty"`
	Join        *JoinField  `json:"join,omitempty"`
	Graph       *GraphField `json:"graph,omitempty"`
	// BlockParent maps the domain to the children of its documents; the value
	// identifies all parent documents.
	BlockParent string `json:"blockParent,omitempty"`
	// BlockChildren maps the domain to the parents of its documents; the value
	// identifies all parent documents.
	BlockChildren string `json:"blockChildren,omitempty"`
}

// ToChildren reports whether the domain maps parents to children.
func (d *Domain) ToChildren() bool { return d.BlockParent != "" }

// ToParent reports whether the domain maps children to parents.
func (d *Domain) ToParent() bool { return d.BlockChildren != "" }

// Parents returns the query identifying parent documents.
func (d *Domain) Parents() string {
	if d.BlockParent != "" {
		return d.BlockParent
	}
	return d.BlockChildren
}

func (d *Domain) validate(path string) error {
	if d.BlockParent != "" && d.BlockChildren != "" {
		return NewRequestError("blockParent and blockChildren are mutually exclusive", path)
	}
	if d.Join != nil && (d.Join.From == "" || d.Join.To == "") {
		return NewRequestError("join requires from and to", path)
	}
	if d.Graph != nil && (d.Graph.From == "" || d.Graph.To == "") {
		return NewRequestError("graph requires from and to", path)
	}
	return nil
}
