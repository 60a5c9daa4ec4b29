package facetgo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/facetgo/facet"
	"github.com/hupe1980/facetgo/merge"
	"github.com/hupe1980/facetgo/shard"
	"github.com/hupe1980/facetgo/transport"
)

// Status summarizes how many shards contributed to a Result.
type Status string

const (
	// StatusSuccess means every shard answered every pass.
	StatusSuccess Status = "success"
	// StatusPartial means at least one shard failed; its buckets are missing
	// from the counts.
	StatusPartial Status = "partial"
)

// Query is one distributed facet request.
type Query struct {
	// Query is the main query, "*:*" if empty. QueryTags make it excludable
	// by facet domains.
	Query     string
	QueryTags []string
	Filters   []facet.TaggedFilter
	// Params holds parameters referenced by "$name" filters.
	Params map[string][]string
	// Facet is the root of the facet tree.
	Facet *facet.Request
}

func (q *Query) shardRequest(pass int, refine map[string]*facet.Refinement) *facet.ShardRequest {
	return &facet.ShardRequest{
		Query:     q.Query,
		QueryTags: q.QueryTags,
		Filters:   q.Filters,
		Params:    q.Params,
		Facet:     q.Facet,
		Refine:    refine,
		Pass:      pass,
	}
}

// ShardError reports a shard that failed during a request.
type ShardError struct {
	Shard string `json:"shard"`
	Pass  int    `json:"pass"`
	Error string `json:"error"`
}

// Result is the merged answer of a facet request.
type Result struct {
	Status Status              `json:"status"`
	Facets *facet.BucketResult `json:"facets"`
	// Passes is the number of passes sent to shards, the initial one included.
	Passes int `json:"passes"`
	// Converged is false when refinement was still pending after the last
	// allowed pass.
	Converged        bool         `json:"converged"`
	TotalShards      int          `json:"totalShards"`
	SuccessfulShards int          `json:"successfulShards"`
	ShardErrors      []ShardError `json:"shardErrors,omitempty"`
}

// Coordinator runs facet requests across a fixed set of shards.
// It is safe for concurrent use; requests share no merge state.
type Coordinator struct {
	clients []transport.Client
	opts    options
}

// New creates a Coordinator over clients.
func New(clients []transport.Client, optFns ...Option) (*Coordinator, error) {
	if len(clients) == 0 {
		return nil, ErrNoShards
	}
	return &Coordinator{
		clients: slices.Clone(clients),
		opts:    applyOptions(optFns),
	}, nil
}

// NewFromShards creates a Coordinator over in-process shards. Without
// WithCodec the shards are called directly; with it every request and
// response is encoded by a transport.Wire client.
func NewFromShards(shards []*shard.Shard, optFns ...Option) (*Coordinator, error) {
	o := applyOptions(optFns)
	clients := make([]transport.Client, len(shards))
	for i, s := range shards {
		if o.codec == nil {
			clients[i] = transport.NewLocal(s.Name(), s)
			continue
		}
		clients[i] = transport.NewWire(s.Name(), s,
			transport.WithCodec(o.codec),
			transport.WithIOLimit(o.rc),
		)
	}
	return New(clients, optFns...)
}

// Shards returns the shard clients in shard order.
func (c *Coordinator) Shards() []transport.Client {
	return slices.Clone(c.clients)
}

// Facet runs q on all shards and returns the merged facets.
//
// Malformed requests fail with ErrBadRequest, whether detected locally or
// by a shard. Other shard failures only degrade the result to
// StatusPartial unless every shard fails the initial pass.
func (c *Coordinator) Facet(ctx context.Context, q *Query) (*Result, error) {
	start := time.Now()
	res, err := c.facet(ctx, q)
	err = translateError(err)

	passes, failed := 0, 0
	if res != nil {
		passes, failed = res.Passes, len(res.ShardErrors)
	}
	c.opts.metricsCollector.RecordFacet(passes, time.Since(start), err)
	c.opts.logger.LogFacet(ctx, passes, failed, err)

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Coordinator) facet(ctx context.Context, q *Query) (*Result, error) {
	if q == nil || q.Facet == nil {
		return nil, facet.NewRequestError("missing facet request", nil)
	}
	if !q.Facet.IsRoot() {
		return nil, facet.NewRequestError("facet request must be a root node", q.Facet.Field)
	}
	if err := q.Facet.Validate(); err != nil {
		return nil, err
	}

	n := len(c.clients)
	mctx := merge.NewContext(n)
	root := merge.NewRootMerger(q.Facet)
	res := &Result{TotalShards: n}

	reqs := make([]*facet.ShardRequest, n)
	for i := range reqs {
		reqs[i] = q.shardRequest(0, nil)
	}

	for pass := 0; ; {
		if err := c.runPass(ctx, pass, reqs, root, mctx, res); err != nil {
			return nil, err
		}
		pass++
		res.Passes = pass

		mctx.SetPass(pass)
		var pending bool
		reqs, pending = c.refinements(q, root, mctx, pass)
		if !pending {
			res.Converged = true
			break
		}
		if pass >= c.opts.maxPasses {
			c.opts.logger.WarnContext(ctx, "refinement did not converge", "passes", pass)
			break
		}
	}

	res.Facets = root.Result(mctx)
	res.SuccessfulShards = n - len(mctx.FailedShards())
	res.Status = StatusSuccess
	if len(res.ShardErrors) > 0 {
		res.Status = StatusPartial
	}
	return res, nil
}

// runPass sends reqs to their shards and merges the answers in shard order.
// Shards without a request are skipped.
func (c *Coordinator) runPass(ctx context.Context, pass int, reqs []*facet.ShardRequest, root *merge.RootMerger, mctx *merge.Context, res *Result) error {
	targets := 0
	for _, r := range reqs {
		if r != nil {
			targets++
		}
	}
	if targets == 0 {
		return nil
	}
	c.opts.logger.LogPass(ctx, pass, targets)
	c.opts.metricsCollector.RecordPass(pass, targets)

	responses := c.fanOut(ctx, reqs)
	if err := ctx.Err(); err != nil {
		return err
	}

	var failures []error
	for i, r := range responses {
		if reqs[i] == nil {
			continue
		}
		err := r.err
		if err == nil && r.res == nil {
			err = fmt.Errorf("%w: empty response", transport.ErrShard)
		}
		if err != nil {
			if errors.Is(err, facet.ErrBadRequest) {
				return err
			}
			name := c.clients[i].Name()
			c.opts.logger.LogShardFailure(ctx, name, pass, err)
			mctx.MarkShardFailed(i)
			res.ShardErrors = append(res.ShardErrors, ShardError{Shard: name, Pass: pass, Error: err.Error()})
			failures = append(failures, &ErrShardFailed{Shard: name, Pass: pass, cause: err})
			continue
		}
		mctx.ShardNum = i
		root.Merge(r.res, mctx)
	}

	if pass == 0 && len(failures) == targets {
		return fmt.Errorf("%w: %w", ErrAllShardsFailed, errors.Join(failures...))
	}
	return nil
}

// refinements collects the refinement request of every healthy shard for
// pass. It reports whether another pass is needed.
func (c *Coordinator) refinements(q *Query, root *merge.RootMerger, mctx *merge.Context, pass int) ([]*facet.ShardRequest, bool) {
	reqs := make([]*facet.ShardRequest, len(c.clients))
	pending := false
	for i := range c.clients {
		if mctx.ShardFailed(i) {
			continue
		}
		mctx.ShardNum = i
		if ref := root.Refinement(mctx); len(ref) > 0 {
			reqs[i] = q.shardRequest(pass, ref)
			pending = true
		}
	}
	return reqs, pending || mctx.HasPendingTopLevel()
}

type shardResponse struct {
	res *facet.BucketResult
	err error
}

// fanOut calls every shard with a request in parallel. Failures are
// reported per shard and never cancel the other calls.
func (c *Coordinator) fanOut(ctx context.Context, reqs []*facet.ShardRequest) []shardResponse {
	out := make([]shardResponse, len(reqs))

	var g errgroup.Group
	if c.opts.concurrency > 0 {
		g.SetLimit(c.opts.concurrency)
	}
	for i, req := range reqs {
		if req == nil {
			continue
		}
		g.Go(func() error {
			out[i].res, out[i].err = c.call(ctx, c.clients[i], req)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (c *Coordinator) call(ctx context.Context, client transport.Client, req *facet.ShardRequest) (*facet.BucketResult, error) {
	if err := c.opts.rc.AcquireRequest(ctx); err != nil {
		return nil, err
	}
	defer c.opts.rc.ReleaseRequest()

	if c.opts.shardTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.shardTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := client.Process(ctx, req)
	c.opts.metricsCollector.RecordShardRequest(client.Name(), time.Since(start), err)
	return res, err
}
