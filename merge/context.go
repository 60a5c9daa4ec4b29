package merge

import (
	"github.com/hupe1980/facetgo/facet"
	"github.com/hupe1980/facetgo/internal/bitset"
)

// PendingRefinement orders how much refinement a node still expects.
type PendingRefinement int

const (
	// NoRefinement means the node is settled.
	NoRefinement PendingRefinement = iota
	// PendingResults means refinement was requested and its results are due.
	PendingResults
	// Ongoing means the node may request more refinement.
	Ongoing
)

func (p PendingRefinement) String() string {
	switch p {
	case PendingResults:
		return "pending_results"
	case Ongoing:
		return "ongoing"
	default:
		return "no"
	}
}

type topLevelSubs struct {
	children    []string
	descendants []string
}

// Context is the per-request merge state shared by all mergers of one
// facet tree. It is not safe for concurrent use.
type Context struct {
	// NumShards is the number of shards taking part in the request.
	NumShards int
	// ShardNum is the shard whose response is merged or refined right now.
	ShardNum int

	pass             int
	sawShard         *bitset.FixedBitSet
	numBuckets       int
	bucketWasMissing bool
	ancestorPending  PendingRefinement
	pendingTopLevel  bool
	failed           *bitset.FixedBitSet

	withRefinement map[*facet.Request][]string
	withPartial    map[*facet.Request][]string
	topLevel       map[*facet.Request]topLevelSubs
}

// NewContext creates the merge state for numShards shards.
func NewContext(numShards int) *Context {
	return &Context{
		NumShards:      numShards,
		sawShard:       bitset.New(64 * numShards),
		failed:         bitset.New(numShards),
		withRefinement: make(map[*facet.Request][]string),
		withPartial:    make(map[*facet.Request][]string),
		topLevel:       make(map[*facet.Request]topLevelSubs),
	}
}

// Pass returns the current pass.
func (c *Context) Pass() int { return c.pass }

// SetPass starts pass p.
func (c *Context) SetPass(p int) {
	c.pass = p
	c.pendingTopLevel = false
}

// HasPendingTopLevel reports whether some node deferred top-level children
// in this pass because an ancestor was still refining.
func (c *Context) HasPendingTopLevel() bool { return c.pendingTopLevel }

// MarkShardFailed records that shard did not answer. A refinement built for
// a failed shard assumes it has more buckets at every node, but its missing
// counts no longer make a bucket incomplete.
func (c *Context) MarkShardFailed(shard int) { c.failed.Set(shard) }

// ShardFailed reports whether shard failed in any pass so far.
func (c *Context) ShardFailed(shard int) bool { return c.failed.Test(shard) }

// FailedShards returns the failed shards in ascending order.
func (c *Context) FailedShards() []int {
	var out []int
	for i := c.failed.NextSetBit(0); i >= 0; i = c.failed.NextSetBit(i + 1) {
		out = append(out, i)
	}
	return out
}

// BucketWasMissing reports whether the enclosing bucket was never reported
// by the current shard.
func (c *Context) BucketWasMissing() bool { return c.bucketWasMissing }

func (c *Context) setBucketWasMissing(v bool) bool {
	prev := c.bucketWasMissing
	c.bucketWasMissing = v
	return prev
}

func (c *Context) newBucketNumber() int {
	n := c.numBuckets
	c.numBuckets++
	if need := c.numBuckets * c.NumShards; need > c.sawShard.Len() {
		c.sawShard = bitset.EnsureCapacity(c.sawShard, max(need, 2*c.sawShard.Len()))
	}
	return n
}

func (c *Context) setShardFlag(bucket int) {
	c.sawShard.Set(bucket*c.NumShards + c.ShardNum)
}

// ShardFlag reports whether the current shard reported bucket.
func (c *Context) ShardFlag(bucket int) bool {
	return c.shardFlag(bucket, c.ShardNum)
}

func (c *Context) shardFlag(bucket, shard int) bool {
	return c.sawShard.Test(bucket*c.NumShards + shard)
}

// updateAncestorPending raises the ancestor state to at least p and returns
// the previous state for restoring.
func (c *Context) updateAncestorPending(p PendingRefinement) PendingRefinement {
	prev := c.ancestorPending
	c.ancestorPending = max(prev, p)
	return prev
}

func (c *Context) setAncestorPending(p PendingRefinement) { c.ancestorPending = p }

func (c *Context) maybeIterativeRefinement(currentPass bool) PendingRefinement {
	if currentPass {
		return Ongoing
	}
	return NoRefinement
}

// subsWithRefinement returns the sub-facets whose subtree refines or holds
// deferred top-level facets.
func (c *Context) subsWithRefinement(req *facet.Request) []string {
	if tags, ok := c.withRefinement[req]; ok {
		return tags
	}
	var tags []string
	for _, name := range req.SubNames() {
		sub := req.Facets[name]
		if sub.DoRefine() || hasTopLevel(sub) || len(c.subsWithRefinement(sub)) > 0 {
			tags = append(tags, name)
		}
	}
	c.withRefinement[req] = tags
	return tags
}

// subsWithPartial returns the sub-facets whose subtree may return
// truncated bucket lists.
func (c *Context) subsWithPartial(req *facet.Request) []string {
	if tags, ok := c.withPartial[req]; ok {
		return tags
	}
	var tags []string
	for _, name := range req.SubNames() {
		sub := req.Facets[name]
		if sub.ReturnsPartial() || len(c.subsWithPartial(sub)) > 0 {
			tags = append(tags, name)
		}
	}
	c.withPartial[req] = tags
	return tags
}

func (c *Context) topLevelSubs(req *facet.Request) (topLevelSubs, bool) {
	t, ok := c.topLevel[req]
	if !ok {
		for _, name := range req.SubNames() {
			sub := req.Facets[name]
			switch {
			case sub.TopLevel:
				t.children = append(t.children, name)
			case hasTopLevelBelow(sub):
				t.descendants = append(t.descendants, name)
			}
		}
		c.topLevel[req] = t
	}
	return t, len(t.children) > 0 || len(t.descendants) > 0
}

func hasTopLevel(req *facet.Request) bool {
	return req.TopLevel || hasTopLevelBelow(req)
}

func hasTopLevelBelow(req *facet.Request) bool {
	for _, sub := range req.Facets {
		if hasTopLevel(sub) {
			return true
		}
	}
	return false
}

func (c *Context) setHasPendingTopLevel() { c.pendingTopLevel = true }
