package domain

import (
	"context"

	"github.com/hupe1980/facetgo/docset"
	"github.com/hupe1980/facetgo/facet"
)

// Query is an executable query produced by an Executor.
type Query interface {
	String() string
}

// Executor evaluates queries against one index.
type Executor interface {
	// Parse parses a query string.
	Parse(q string) (Query, error)
	// Resolve returns the documents matching all queries. No queries match all
	// live documents.
	Resolve(ctx context.Context, queries ...Query) (docset.DocSet, error)
	// Count returns the number of documents in domain matching q.
	Count(ctx context.Context, q Query, domain docset.DocSet) (int, error)
	// LiveDocuments returns all documents that are not deleted.
	LiveDocuments() docset.DocSet
	// JoinQuery builds a query matching documents whose join.To field shares a
	// value with the join.From field of a document in domain.
	JoinQuery(ctx context.Context, join facet.JoinField, domain docset.DocSet) (Query, error)
	// GraphQuery builds a query matching documents reachable from domain by
	// following graph edges.
	GraphQuery(ctx context.Context, graph facet.GraphField, domain docset.DocSet) (Query, error)
	// MaxDoc is one past the largest document ordinal.
	MaxDoc() int
	// Leaves returns the storage segments of the index.
	Leaves() docset.Leaves
}

// TaggedQuery is a parsed top-level query with its exclusion tags.
type TaggedQuery struct {
	Query Query
	Tags  []string
}

// TopLevel is the parsed top-level request: main query and filters.
type TopLevel struct {
	Query   TaggedQuery
	Filters []TaggedQuery
	Params  map[string][]string
}

// Context is the evaluation context of one facet node.
type Context struct {
	Parent *Context
	// Filter selects the enclosing bucket's documents; nil at the root.
	Filter Query
	// Base is the domain inherited from the enclosing bucket.
	Base docset.DocSet
}

// Sub creates the context for a sub-facet of the bucket selected by filter.
func (c *Context) Sub(filter Query, base docset.DocSet) *Context {
	return &Context{Parent: c, Filter: filter, Base: base}
}
