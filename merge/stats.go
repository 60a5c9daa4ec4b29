package merge

import (
	"cmp"
	"math"

	"github.com/hupe1980/facetgo/facet"
)

// StatMerger combines one statistic across shards.
type StatMerger interface {
	Merge(v float64)
	Value() (float64, bool)
}

// Sortable is implemented by stat mergers that can order buckets.
type Sortable interface {
	StatMerger
	// Compare orders the receiver against other of the same kind.
	Compare(other Sortable) int
}

func newStatMerger(spec facet.StatSpec) StatMerger {
	switch spec.Func {
	case facet.StatMin:
		return &extremeMerger{pick: math.Min}
	case facet.StatMax:
		return &extremeMerger{pick: math.Max}
	default:
		return &sumMerger{}
	}
}

type sumMerger struct {
	sum float64
}

func (m *sumMerger) Merge(v float64)        { m.sum += v }
func (m *sumMerger) Value() (float64, bool) { return m.sum, true }

func (m *sumMerger) Compare(other Sortable) int {
	ov, _ := other.Value()
	return cmp.Compare(m.sum, ov)
}

type extremeMerger struct {
	v    float64
	set  bool
	pick func(a, b float64) float64
}

func (m *extremeMerger) Merge(v float64) {
	if !m.set {
		m.v, m.set = v, true
		return
	}
	m.v = m.pick(m.v, v)
}

func (m *extremeMerger) Value() (float64, bool) { return m.v, m.set }

func (m *extremeMerger) Compare(other Sortable) int {
	ov, _ := other.Value()
	return cmp.Compare(m.v, ov)
}
