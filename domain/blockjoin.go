package domain

import (
	"github.com/hupe1980/facetgo/docset"
	"github.com/hupe1980/facetgo/internal/bitset"
)

// ToChildren maps every parent in input to its block of children. Children
// not in acceptDocs are dropped. Members of input that are not parents are
// ignored.
func ToChildren(input docset.DocSet, parents *docset.BitDocSet, acceptDocs docset.DocSet, maxDoc int) docset.DocSet {
	pbits := parents.Bits()
	out := bitset.New(max(maxDoc, pbits.Len()))
	for parent := range docset.All(input) {
		if parent <= 0 || !pbits.Test(parent) {
			continue
		}
		prev := pbits.PrevSetBit(parent - 1)
		for child := prev + 1; child < parent; child++ {
			if acceptDocs != nil && !acceptDocs.Exists(child) {
				continue
			}
			out.Set(child)
		}
	}
	return docset.NewBitDocSet(out)
}

// ToParents maps every document in input to the parent closing its block.
// A parent maps to itself.
func ToParents(input docset.DocSet, parents *docset.BitDocSet, maxDoc int) docset.DocSet {
	pbits := parents.Bits()
	out := bitset.New(max(maxDoc, pbits.Len()))
	current := -1
	for doc := range docset.All(input) {
		if doc <= current {
			continue
		}
		current = pbits.NextSetBit(doc)
		if current < 0 {
			break
		}
		out.Set(current)
	}
	return docset.NewBitDocSet(out)
}
