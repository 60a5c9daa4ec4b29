// Package domain computes the document set a facet node aggregates over.
//
// The Resolver applies, in order: an explicit domain query or filter
// exclusions, the node's own filters, join and graph transforms, block-join
// transforms, and finally intersects the node's filters unless a to-children
// transform already used them as accepted documents.
package domain
