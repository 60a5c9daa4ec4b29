// Package collect routes the documents of a domain into per-slot
// statistic accumulators, one storage segment at a time.
package collect

import (
	"github.com/hupe1980/facetgo/docset"
	"github.com/hupe1980/facetgo/facet"
)

// Accumulator gathers one statistic per slot.
type Accumulator interface {
	// Key is the stat name the accumulator reports under.
	Key() string
	// Reset clears all slots.
	Reset()
	// SetNextSegment announces the segment of the following Collect calls.
	SetNextSegment(seg docset.Segment) error
	// Collect adds the segment-relative document segDoc to slot.
	Collect(segDoc, slot int) error
	// CollectEmpty is called once for a slot whose domain is empty.
	CollectEmpty(slot int) error
	// SetValues writes the value of slot into target.
	SetValues(target *facet.BucketResult, slot int)
}

// Collector walks domains once, moving forward through the segments.
type Collector struct {
	leaves docset.Leaves
	accs   []Accumulator
}

// NewCollector creates a Collector over the segments of one index.
func NewCollector(leaves docset.Leaves, accs ...Accumulator) *Collector {
	return &Collector{leaves: leaves, accs: accs}
}

// Accumulators returns the accumulators in registration order.
func (c *Collector) Accumulators() []Accumulator { return c.accs }

// Reset resets every accumulator.
func (c *Collector) Reset() {
	for _, acc := range c.accs {
		acc.Reset()
	}
}

// Collect feeds every document of docs into slot and returns the number of
// documents collected. An empty domain notifies each accumulator once.
func (c *Collector) Collect(docs docset.DocSet, slot int) (int64, error) {
	if docs.Size() == 0 {
		for _, acc := range c.accs {
			if err := acc.CollectEmpty(slot); err != nil {
				return 0, err
			}
		}
		return 0, nil
	}

	var count int64
	seg := -1
	segBase, segEnd := 0, 0
	for doc := range docset.All(docs) {
		if doc < segBase {
			return count, facet.Invariantf("segment cursor would move backwards: doc %d < base %d", doc, segBase)
		}
		if doc >= segEnd {
			for doc >= segEnd {
				seg++
				if seg >= len(c.leaves) {
					return count, facet.Invariantf("doc %d outside every segment", doc)
				}
				segBase, segEnd = c.leaves[seg].Base, c.leaves[seg].End()
			}
			if doc < segBase {
				return count, facet.Invariantf("doc %d falls between segments", doc)
			}
			for _, acc := range c.accs {
				if err := acc.SetNextSegment(c.leaves[seg]); err != nil {
					return count, err
				}
			}
		}
		count++
		for _, acc := range c.accs {
			if err := acc.Collect(doc-segBase, slot); err != nil {
				return count, err
			}
		}
	}

	if want := int64(docs.Size()); count != want {
		return count, facet.Invariantf("collected %d docs, domain size is %d", count, want)
	}
	return count, nil
}

// SetValues writes every accumulator's slot value into target.
func (c *Collector) SetValues(target *facet.BucketResult, slot int) {
	for _, acc := range c.accs {
		acc.SetValues(target, slot)
	}
}
