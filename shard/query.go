package shard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/facetgo/domain"
	"github.com/hupe1980/facetgo/facet"
)

// MatchAll is the query string matching every live document.
const MatchAll = "*:*"

// query is a parsed query of the reference syntax:
//
//	*:*                    all documents
//	field:value            term, value may be "quoted"
//	field:[lo TO hi]       inclusive range, {lo TO hi} exclusive, * open
//	q1 AND q2              conjunction
type query interface {
	domain.Query
	eval(ix *Index) *roaring.Bitmap
}

type allQuery struct{}

func (allQuery) String() string { return MatchAll }

func (allQuery) eval(ix *Index) *roaring.Bitmap {
	bm := roaring.New()
	if n := ix.MaxDoc(); n > 0 {
		bm.AddRange(0, uint64(n))
	}
	return bm
}

type termQuery struct {
	field string
	value any
}

func (q termQuery) String() string {
	if s, ok := q.value.(string); ok {
		return q.field + ":" + quote(s)
	}
	return fmt.Sprintf("%s:%v", q.field, q.value)
}

func (q termQuery) eval(ix *Index) *roaring.Bitmap {
	f := ix.fields[q.field]
	if f == nil {
		return roaring.New()
	}
	v, err := f.native(q.value)
	if err != nil {
		return roaring.New()
	}
	if bm := f.postings[v]; bm != nil {
		return bm.Clone()
	}
	return roaring.New()
}

type rangeQuery struct {
	field      string
	lo, hi     string
	incLo      bool
	incHi      bool
	openLo     bool
	openHi     bool
	loN, hiN   int64
	numericSet bool
}

func (q rangeQuery) String() string {
	open, closing := "{", "}"
	if q.incLo {
		open = "["
	}
	if q.incHi {
		closing = "]"
	}
	lo, hi := q.lo, q.hi
	if q.openLo {
		lo = "*"
	}
	if q.openHi {
		hi = "*"
	}
	return fmt.Sprintf("%s:%s%s TO %s%s", q.field, open, lo, hi, closing)
}

func (q rangeQuery) eval(ix *Index) *roaring.Bitmap {
	out := roaring.New()
	f := ix.fields[q.field]
	if f == nil {
		return out
	}
	for _, t := range f.terms {
		if q.matches(t) {
			out.Or(f.postings[t])
		}
	}
	return out
}

func (q rangeQuery) matches(t any) bool {
	var cmpLo, cmpHi int
	switch v := t.(type) {
	case int64:
		if !q.numericSet {
			return false
		}
		cmpLo, cmpHi = compareInt(v, q.loN), compareInt(v, q.hiN)
	case string:
		cmpLo, cmpHi = strings.Compare(v, q.lo), strings.Compare(v, q.hi)
	default:
		return false
	}
	if !q.openLo && (cmpLo < 0 || (cmpLo == 0 && !q.incLo)) {
		return false
	}
	if !q.openHi && (cmpHi > 0 || (cmpHi == 0 && !q.incHi)) {
		return false
	}
	return true
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

type conjunction []query

func (c conjunction) String() string {
	parts := make([]string, len(c))
	for i, q := range c {
		parts[i] = q.String()
	}
	return strings.Join(parts, " AND ")
}

func (c conjunction) eval(ix *Index) *roaring.Bitmap {
	out := c[0].eval(ix)
	for _, q := range c[1:] {
		out.And(q.eval(ix))
	}
	return out
}

// docsQuery matches a precomputed document set, as produced by joins.
type docsQuery struct {
	label string
	bm    *roaring.Bitmap
}

func (q docsQuery) String() string { return q.label }

func (q docsQuery) eval(*Index) *roaring.Bitmap { return q.bm.Clone() }

// ParseQuery parses s in the reference query syntax.
func ParseQuery(s string) (domain.Query, error) {
	q, err := parseQuery(s)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func parseQuery(s string) (query, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, facet.NewRequestError("empty query", s)
	}
	clauses := strings.Split(s, " AND ")
	if len(clauses) > 1 {
		out := make(conjunction, 0, len(clauses))
		for _, c := range clauses {
			q, err := parseClause(strings.TrimSpace(c))
			if err != nil {
				return nil, err
			}
			out = append(out, q)
		}
		return out, nil
	}
	return parseClause(s)
}

func parseClause(s string) (query, error) {
	if s == MatchAll {
		return allQuery{}, nil
	}
	name, raw, ok := strings.Cut(s, ":")
	if !ok || name == "" || raw == "" {
		return nil, facet.NewRequestError("invalid query (expected field:value)", s)
	}

	if raw[0] == '[' || raw[0] == '{' {
		return parseRange(name, raw)
	}

	if raw[0] == '"' {
		v, err := strconv.Unquote(raw)
		if err != nil {
			return nil, facet.WrapRequestError("invalid quoted value", s, err)
		}
		return termQuery{field: name, value: v}, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return termQuery{field: name, value: n}, nil
	}
	return termQuery{field: name, value: raw}, nil
}

func parseRange(name, raw string) (query, error) {
	last := raw[len(raw)-1]
	if last != ']' && last != '}' {
		return nil, facet.NewRequestError("unterminated range", raw)
	}
	lo, hi, ok := strings.Cut(raw[1:len(raw)-1], " TO ")
	if !ok {
		return nil, facet.NewRequestError("invalid range (expected [lo TO hi])", raw)
	}
	q := rangeQuery{
		field: name,
		lo:    strings.TrimSpace(lo),
		hi:    strings.TrimSpace(hi),
		incLo: raw[0] == '[',
		incHi: last == ']',
	}
	q.openLo, q.openHi = q.lo == "*", q.hi == "*"

	loN, loErr := strconv.ParseInt(q.lo, 10, 64)
	hiN, hiErr := strconv.ParseInt(q.hi, 10, 64)
	if (q.openLo || loErr == nil) && (q.openHi || hiErr == nil) {
		q.loN, q.hiN, q.numericSet = loN, hiN, true
	}
	return q, nil
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"[]{}:") {
		return strconv.Quote(s)
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.Quote(s)
	}
	return s
}
