// Package transport carries facet requests from a coordinator to shards.
//
// Local calls the shard in-process. Wire encodes every request and response
// with a codec, optionally throttled by a resource.Controller, which makes it
// behave like a network hop without a network.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/hupe1980/facetgo/codec"
	"github.com/hupe1980/facetgo/facet"
	"github.com/hupe1980/facetgo/resource"
)

// ErrShard wraps errors reported by a remote shard.
var ErrShard = errors.New("transport: shard error")

// Processor answers facet requests; *shard.Shard implements it.
type Processor interface {
	Process(ctx context.Context, req *facet.ShardRequest) (*facet.BucketResult, error)
}

// Client sends facet requests to one shard.
type Client interface {
	Processor
	// Name identifies the shard in logs and results.
	Name() string
}

// Local calls a Processor directly.
type Local struct {
	name string
	p    Processor
}

// NewLocal creates a Local client for p.
func NewLocal(name string, p Processor) *Local {
	return &Local{name: name, p: p}
}

// Name implements Client.
func (l *Local) Name() string { return l.name }

// Process implements Client.
func (l *Local) Process(ctx context.Context, req *facet.ShardRequest) (*facet.BucketResult, error) {
	return l.p.Process(ctx, req)
}

// response is the wire envelope of a shard answer.
type response struct {
	Result     *facet.BucketResult `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
	BadRequest bool                `json:"badRequest,omitempty"`
}

// Stats counts the encoded bytes a Wire client moved.
type Stats struct {
	Requests      int64
	BytesSent     int64
	BytesReceived int64
}

// Wire encodes requests and responses with a codec.
type Wire struct {
	name  string
	p     Processor
	codec codec.Codec
	rc    *resource.Controller

	requests atomic.Int64
	sent     atomic.Int64
	received atomic.Int64
}

// WireOption configures a Wire client.
type WireOption func(*Wire)

// WithCodec sets the codec. The default is codec.Default.
func WithCodec(c codec.Codec) WireOption {
	return func(w *Wire) {
		if c != nil {
			w.codec = c
		}
	}
}

// WithIOLimit charges encoded bytes against rc's IO limit.
func WithIOLimit(rc *resource.Controller) WireOption {
	return func(w *Wire) {
		w.rc = rc
	}
}

// NewWire creates a Wire client for p.
func NewWire(name string, p Processor, opts ...WireOption) *Wire {
	w := &Wire{name: name, p: p, codec: codec.Default}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name implements Client.
func (w *Wire) Name() string { return w.name }

// Codec returns the codec in use.
func (w *Wire) Codec() codec.Codec { return w.codec }

// Stats returns the traffic so far.
func (w *Wire) Stats() Stats {
	return Stats{
		Requests:      w.requests.Load(),
		BytesSent:     w.sent.Load(),
		BytesReceived: w.received.Load(),
	}
}

// Process implements Client.
func (w *Wire) Process(ctx context.Context, req *facet.ShardRequest) (*facet.BucketResult, error) {
	w.requests.Add(1)

	data, err := w.codec.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("transport: encode request: %w", err)
	}
	data, err = w.send(ctx, data)
	if err != nil {
		return nil, err
	}
	w.sent.Add(int64(len(data)))

	reply, err := Serve(ctx, w.codec, w.p, data)
	if err != nil {
		return nil, err
	}
	reply, err = w.receive(ctx, reply)
	if err != nil {
		return nil, err
	}
	w.received.Add(int64(len(reply)))

	var resp response
	if err := w.codec.Unmarshal(reply, &resp); err != nil {
		return nil, fmt.Errorf("transport: decode response: %w", err)
	}
	switch {
	case resp.BadRequest:
		return nil, facet.WrapRequestError("shard rejected request", w.name, errors.New(resp.Error))
	case resp.Error != "":
		return nil, fmt.Errorf("%w: %s: %s", ErrShard, w.name, resp.Error)
	case resp.Result == nil:
		return nil, fmt.Errorf("%w: %s: empty response", ErrShard, w.name)
	}
	return resp.Result, nil
}

// send copies an outgoing payload through the IO limit.
func (w *Wire) send(ctx context.Context, data []byte) ([]byte, error) {
	if w.rc == nil {
		return data, nil
	}
	var buf bytes.Buffer
	buf.Grow(len(data))
	if _, err := resource.NewRateLimitedWriter(ctx, &buf, w.rc).Write(data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// receive reads an incoming payload through the IO limit.
func (w *Wire) receive(ctx context.Context, data []byte) ([]byte, error) {
	if w.rc == nil {
		return data, nil
	}
	return io.ReadAll(resource.NewRateLimitedReader(ctx, bytes.NewReader(data), w.rc))
}

// Serve is the shard side of Wire: it decodes a request, processes it and
// encodes the response envelope. Processing errors are encoded into the
// envelope; context errors are returned.
func Serve(ctx context.Context, c codec.Codec, p Processor, data []byte) ([]byte, error) {
	var req facet.ShardRequest
	if err := c.Unmarshal(data, &req); err != nil {
		return c.Marshal(response{Error: err.Error(), BadRequest: true})
	}

	res, err := p.Process(ctx, &req)
	switch {
	case err == nil:
		return c.Marshal(response{Result: res})
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		return c.Marshal(response{Error: err.Error(), BadRequest: errors.Is(err, facet.ErrBadRequest)})
	}
}
