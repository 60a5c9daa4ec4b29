package facet

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Well known sort variables.
const (
	SortCount = "count"
	SortIndex = "index"
)

// SortDirection orders buckets.
type SortDirection int

const (
	Desc SortDirection = iota
	Asc
)

// Multiplier is 1 for Desc and -1 for Asc.
func (d SortDirection) Multiplier() int {
	if d == Asc {
		return -1
	}
	return 1
}

func (d SortDirection) String() string {
	if d == Asc {
		return "asc"
	}
	return "desc"
}

// Sort is a sort key and direction.
type Sort struct {
	Variable  string
	Direction SortDirection
}

// ParseSort parses "count desc", "index asc" or "<stat> desc".
// The direction defaults to desc for count and stats and to asc for index.
func ParseSort(s string) (Sort, error) {
	parts := strings.Fields(s)
	if len(parts) == 0 || len(parts) > 2 {
		return Sort{}, NewRequestError("invalid sort", s)
	}
	out := Sort{Variable: parts[0], Direction: Desc}
	if out.Variable == SortIndex {
		out.Direction = Asc
	}
	if len(parts) == 2 {
		switch strings.ToLower(parts[1]) {
		case "asc":
			out.Direction = Asc
		case "desc":
			out.Direction = Desc
		default:
			return Sort{}, NewRequestError("invalid sort direction", s)
		}
	}
	return out, nil
}

func (s Sort) String() string { return s.Variable + " " + s.Direction.String() }

func (s Sort) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Sort) UnmarshalText(b []byte) error {
	parsed, err := ParseSort(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// RefineMethod controls distributed refinement.
type RefineMethod int

const (
	RefineNone RefineMethod = iota
	RefineSimple
	RefineIterative
)

func (m RefineMethod) String() string {
	switch m {
	case RefineSimple:
		return "simple"
	case RefineIterative:
		return "iterative"
	default:
		return "none"
	}
}

func (m RefineMethod) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

// UnmarshalJSON accepts "none", "simple", "iterative" or a boolean.
func (m *RefineMethod) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*m = RefineNone
		if t {
			*m = RefineSimple
		}
		return nil
	case string:
		switch strings.ToLower(t) {
		case "none", "false":
			*m = RefineNone
		case "simple", "true":
			*m = RefineSimple
		case "iterative":
			*m = RefineIterative
		default:
			return NewRequestError("unknown refine method", t)
		}
		return nil
	}
	return NewRequestError("unknown refine method", string(b))
}

// Stat functions supported by the reference accumulators.
const (
	StatSum = "sum"
	StatMin = "min"
	StatMax = "max"
)

// StatSpec names an aggregate function over a numeric field.
type StatSpec struct {
	Func  string `json:"func"`
	Field string `json:"field"`
}

// Request describes one facet node. The root node of a tree has no Field and
// stands for the single bucket holding all matching documents.
//
// Requests are immutable once handed to a merger or a shard.
type Request struct {
	Field        string              `json:"field,omitempty"`
	Sort         Sort                `json:"sort"`
	PrelimSort   *Sort               `json:"prelim_sort,omitempty"`
	Offset       int                 `json:"offset,omitempty"`
	Limit        int                 `json:"limit"`
	Mincount     int                 `json:"mincount"`
	Overrequest  int                 `json:"overrequest"`
	Overrefine   int                 `json:"overrefine"`
	Refine       RefineMethod        `json:"refine,omitempty"`
	ProcessEmpty bool                `json:"processEmpty,omitempty"`
	TopLevel     bool                `json:"topLevel,omitempty"`
	Stats        map[string]StatSpec `json:"stats,omitempty"`
	Facets       map[string]*Request `json:"facet,omitempty"`
	Domain       *Domain             `json:"domain,omitempty"`
}

// NewRoot creates the root request of a facet tree.
func NewRoot() *Request {
	r := NewTerms("")
	r.Limit = -1
	return r
}

// NewTerms creates a terms facet over field with default settings:
// count desc, limit 10, mincount 1, heuristic overrequest and overrefine.
func NewTerms(field string) *Request {
	return &Request{
		Field:       field,
		Sort:        Sort{Variable: SortCount, Direction: Desc},
		Limit:       10,
		Mincount:    1,
		Overrequest: -1,
		Overrefine:  -1,
	}
}

// UnmarshalJSON applies NewTerms defaults before decoding.
func (r *Request) UnmarshalJSON(b []byte) error {
	type plain Request
	p := plain(*NewTerms(""))
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Request(p)
	return nil
}

// IsRoot reports whether r is the root of a facet tree.
func (r *Request) IsRoot() bool { return r.Field == "" }

// DoRefine reports whether refinement is enabled for this node.
func (r *Request) DoRefine() bool { return r.Refine != RefineNone }

// ReturnsPartial reports whether shards may return a truncated bucket list.
func (r *Request) ReturnsPartial() bool { return r.Limit > 0 }

// InitialSort is the prelim sort if set, otherwise the sort.
func (r *Request) InitialSort() Sort {
	if r.PrelimSort != nil {
		return *r.PrelimSort
	}
	return r.Sort
}

// SubNames returns the names of the sub-facets in sorted order.
func (r *Request) SubNames() []string {
	names := make([]string, 0, len(r.Facets))
	for name := range r.Facets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// StatNames returns the names of the stats in sorted order.
func (r *Request) StatNames() []string {
	names := make([]string, 0, len(r.Stats))
	for name := range r.Stats {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Validate checks r and its sub-facets.
func (r *Request) Validate() error {
	return r.validate("facet", true)
}

func (r *Request) validate(path string, root bool) error {
	if !root && r.Field == "" {
		return NewRequestError("missing field", path)
	}
	if r.Limit < -1 {
		return NewRequestError("limit must be >= -1", path)
	}
	if r.Offset < 0 {
		return NewRequestError("offset must be >= 0", path)
	}
	if r.Overrequest < -1 || r.Overrefine < -1 {
		return NewRequestError("overrequest and overrefine must be >= -1", path)
	}
	for _, s := range []*Sort{&r.Sort, r.PrelimSort} {
		if s == nil {
			continue
		}
		switch s.Variable {
		case SortCount, SortIndex:
		default:
			if _, ok := r.Stats[s.Variable]; !ok {
				return NewRequestError("unknown sort variable", path+".sort="+s.Variable)
			}
		}
	}
	for name, st := range r.Stats {
		switch st.Func {
		case StatSum, StatMin, StatMax:
		default:
			return NewRequestError("unknown stat function", fmt.Sprintf("%s.%s=%s", path, name, st.Func))
		}
		if st.Field == "" {
			return NewRequestError("missing stat field", path+"."+name)
		}
	}
	if r.Domain != nil {
		if err := r.Domain.validate(path); err != nil {
			return err
		}
	}
	for _, name := range r.SubNames() {
		sub := r.Facets[name]
		if sub == nil {
			return NewRequestError("nil sub-facet", path+"."+name)
		}
		if root && sub.TopLevel {
			return NewRequestError("topLevel is only supported below the first facet level", path+"."+name)
		}
		if err := sub.validate(path+"."+name, false); err != nil {
			return err
		}
	}
	return nil
}
