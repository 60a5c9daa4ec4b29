package collect

import (
	"math"

	"github.com/hupe1980/facetgo/docset"
	"github.com/hupe1980/facetgo/facet"
)

// SegmentValues reads numeric doc values of one segment.
type SegmentValues interface {
	Value(segDoc int) (float64, bool)
}

// NumericSource opens the numeric values of a field per segment.
type NumericSource interface {
	NumericValues(field string, seg docset.Segment) (SegmentValues, error)
}

// CountAcc counts documents per slot.
type CountAcc struct {
	counts []int64
}

// NewCountAcc creates a CountAcc with numSlots slots.
func NewCountAcc(numSlots int) *CountAcc {
	return &CountAcc{counts: make([]int64, numSlots)}
}

func (a *CountAcc) Key() string                         { return "count" }
func (a *CountAcc) Reset()                              { clear(a.counts) }
func (a *CountAcc) SetNextSegment(docset.Segment) error { return nil }
func (a *CountAcc) CollectEmpty(int) error              { return nil }

func (a *CountAcc) Collect(_, slot int) error {
	a.counts[slot]++
	return nil
}

// Count returns the count of slot.
func (a *CountAcc) Count(slot int) int64 { return a.counts[slot] }

// Increment adds n to slot.
func (a *CountAcc) Increment(slot int, n int64) { a.counts[slot] += n }

func (a *CountAcc) SetValues(target *facet.BucketResult, slot int) {
	target.Count = a.counts[slot]
}

type numericAcc struct {
	key    string
	field  string
	src    NumericSource
	vals   SegmentValues
	values []float64
	seen   []bool
	fold   func(acc, v float64) float64
	// emptyValue is reported for slots without values; NaN means omit.
	emptyValue float64
}

func (a *numericAcc) Key() string { return a.key }

func (a *numericAcc) Reset() {
	clear(a.values)
	clear(a.seen)
}

func (a *numericAcc) SetNextSegment(seg docset.Segment) error {
	vals, err := a.src.NumericValues(a.field, seg)
	if err != nil {
		return err
	}
	a.vals = vals
	return nil
}

func (a *numericAcc) Collect(segDoc, slot int) error {
	if a.vals == nil {
		return nil
	}
	v, ok := a.vals.Value(segDoc)
	if !ok {
		return nil
	}
	if !a.seen[slot] {
		a.values[slot] = v
		a.seen[slot] = true
		return nil
	}
	a.values[slot] = a.fold(a.values[slot], v)
	return nil
}

func (a *numericAcc) CollectEmpty(int) error { return nil }

func (a *numericAcc) SetValues(target *facet.BucketResult, slot int) {
	v := a.values[slot]
	if !a.seen[slot] {
		if math.IsNaN(a.emptyValue) {
			return
		}
		v = a.emptyValue
	}
	if target.Stats == nil {
		target.Stats = make(map[string]float64)
	}
	target.Stats[a.key] = v
}

// NewStatAcc creates the accumulator for spec reporting under key.
func NewStatAcc(key string, spec facet.StatSpec, src NumericSource, numSlots int) (Accumulator, error) {
	a := &numericAcc{
		key:    key,
		field:  spec.Field,
		src:    src,
		values: make([]float64, numSlots),
		seen:   make([]bool, numSlots),
	}
	switch spec.Func {
	case facet.StatSum:
		a.fold = func(acc, v float64) float64 { return acc + v }
		a.emptyValue = 0
	case facet.StatMin:
		a.fold = math.Min
		a.emptyValue = math.NaN()
	case facet.StatMax:
		a.fold = math.Max
		a.emptyValue = math.NaN()
	default:
		return nil, facet.NewRequestError("unknown stat function", spec.Func)
	}
	return a, nil
}
