package domain

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/hupe1980/facetgo/docset"
	"github.com/hupe1980/facetgo/facet"
)

// Resolver computes facet domains for one request on one index.
// It is safe for concurrent use.
type Resolver struct {
	exec   Executor
	top    *TopLevel
	logger *slog.Logger

	mu      sync.Mutex
	filters map[*facet.Request][]Query
}

// NewResolver creates a Resolver for the request described by top.
func NewResolver(exec Executor, top *TopLevel, logger *slog.Logger) *Resolver {
	if top == nil {
		top = &TopLevel{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		exec:    exec,
		top:     top,
		logger:  logger,
		filters: make(map[*facet.Request][]Query),
	}
}

// Resolve returns the domain of req evaluated in fc.
func (r *Resolver) Resolve(ctx context.Context, fc *Context, req *facet.Request) (docset.DocSet, error) {
	base := fc.Base
	d := req.Domain
	if d == nil {
		return base, nil
	}

	var err error
	if d.Query != nil {
		base, err = r.explicitDomain(ctx, d.Query)
	} else {
		base, err = r.excludeFilters(ctx, fc, base, d.ExcludeTags)
	}
	if err != nil {
		return nil, err
	}

	// Evaluated before the transforms so a to-children transform can use it.
	filter, err := r.nodeFilter(ctx, req)
	if err != nil {
		return nil, err
	}

	if d.Join != nil {
		if base, err = r.transform(ctx, base, func(in docset.DocSet) (Query, error) {
			return r.exec.JoinQuery(ctx, *d.Join, in)
		}); err != nil {
			return nil, err
		}
	}
	if d.Graph != nil {
		if base, err = r.transform(ctx, base, func(in docset.DocSet) (Query, error) {
			return r.exec.GraphQuery(ctx, *d.Graph, in)
		}); err != nil {
			return nil, err
		}
	}

	applied := false
	if d.ToChildren() || d.ToParent() {
		base, applied, err = r.blockJoin(ctx, base, d, filter)
		if err != nil {
			return nil, err
		}
	}

	if filter != nil && !applied {
		base = base.Intersection(filter)
	}
	return base, nil
}

func (r *Resolver) explicitDomain(ctx context.Context, filters []facet.Filter) (docset.DocSet, error) {
	qs, err := r.ParseFilters(filters)
	if err == nil && len(qs) == 0 {
		err = facet.NewRequestError("'query' domain must not evaluate to an empty list of queries", nil)
	}
	if err != nil {
		return nil, facet.WrapRequestError("unable to parse domain 'query'", filters, err)
	}
	return r.exec.Resolve(ctx, qs...)
}

// excludeFilters rebuilds the domain from the top-level query and filters
// minus the excluded ones, plus the bucket filters of every enclosing
// context. Exclusions requested by ancestors are not re-applied.
func (r *Resolver) excludeFilters(ctx context.Context, fc *Context, base docset.DocSet, tags []string) (docset.DocSet, error) {
	if len(tags) == 0 {
		return base, nil
	}
	excluded := func(qtags []string) bool {
		for _, t := range qtags {
			for _, ex := range tags {
				if t == ex {
					return true
				}
			}
		}
		return false
	}

	matched := excluded(r.top.Query.Tags)
	for _, f := range r.top.Filters {
		matched = matched || excluded(f.Tags)
	}
	if !matched {
		return base, nil
	}

	var qs []Query
	if r.top.Query.Query != nil && !excluded(r.top.Query.Tags) {
		qs = append(qs, r.top.Query.Query)
	}
	for _, f := range r.top.Filters {
		if !excluded(f.Tags) {
			qs = append(qs, f.Query)
		}
	}
	for curr := fc; curr != nil; curr = curr.Parent {
		if curr.Filter != nil {
			qs = append(qs, curr.Filter)
		}
	}
	r.logger.DebugContext(ctx, "rebuilt domain without excluded filters",
		"exclude_tags", tags, "queries", len(qs))
	return r.exec.Resolve(ctx, qs...)
}

// nodeFilter evaluates the node's own filter list. Parsed queries are cached
// per request node.
func (r *Resolver) nodeFilter(ctx context.Context, req *facet.Request) (docset.DocSet, error) {
	if len(req.Domain.Filter) == 0 {
		return nil, nil
	}
	r.mu.Lock()
	qs, ok := r.filters[req]
	r.mu.Unlock()
	if !ok {
		var err error
		if qs, err = r.ParseFilters(req.Domain.Filter); err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.filters[req] = qs
		r.mu.Unlock()
	}
	if len(qs) == 0 {
		return nil, nil
	}
	return r.exec.Resolve(ctx, qs...)
}

func (r *Resolver) transform(ctx context.Context, base docset.DocSet, build func(docset.DocSet) (Query, error)) (docset.DocSet, error) {
	q, err := build(base)
	if err != nil {
		return nil, err
	}
	return r.exec.Resolve(ctx, q)
}

func (r *Resolver) blockJoin(ctx context.Context, base docset.DocSet, d *facet.Domain, filter docset.DocSet) (docset.DocSet, bool, error) {
	pq, err := r.exec.Parse(d.Parents())
	if err != nil {
		return nil, false, facet.WrapRequestError("error parsing block join parent specification", d.Parents(), err)
	}
	ps, err := r.exec.Resolve(ctx, pq)
	if err != nil {
		return nil, false, err
	}
	maxDoc := r.exec.MaxDoc()
	parents := docset.ToBitDocSet(ps, maxDoc)

	if d.ToChildren() {
		accept := filter
		applied := accept != nil
		if accept == nil {
			accept = r.exec.LiveDocuments()
		}
		return ToChildren(base, parents, accept, maxDoc), applied, nil
	}
	return ToParents(base, parents, maxDoc), false, nil
}

// ParseFilters parses a filter list. A "$name" query string is replaced by
// the first value of parameter name and must resolve. A {"param": name}
// fragment expands to every value of the parameter and may be absent.
func (r *Resolver) ParseFilters(filters []facet.Filter) ([]Query, error) {
	qs := make([]Query, 0, len(filters))
	for _, f := range filters {
		if f.IsParam() {
			for _, raw := range r.top.Params[f.Param] {
				q, err := r.parse(raw)
				if err != nil {
					return nil, err
				}
				qs = append(qs, q)
			}
			continue
		}
		q, err := r.parse(f.Query)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return qs, nil
}

func (r *Resolver) parse(raw string) (Query, error) {
	if name, ok := strings.CutPrefix(raw, "$"); ok {
		vals := r.top.Params[name]
		if len(vals) == 0 {
			return nil, facet.NewRequestError("unresolved parameter reference", raw)
		}
		raw = vals[0]
	}
	q, err := r.exec.Parse(raw)
	if err != nil {
		return nil, facet.WrapRequestError("bad filter query", raw, err)
	}
	return q, nil
}
