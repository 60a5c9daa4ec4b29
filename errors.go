package facetgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/facetgo/facet"
)

var (
	// ErrBadRequest is returned for malformed facet requests.
	ErrBadRequest = errors.New("bad facet request")

	// ErrInternal is returned when an internal invariant is violated.
	ErrInternal = errors.New("internal facet error")

	// ErrNoShards is returned when a coordinator has no shards.
	ErrNoShards = errors.New("no shards configured")

	// ErrAllShardsFailed is returned when no shard answered the first pass.
	ErrAllShardsFailed = errors.New("all shards failed")
)

// ErrShardFailed describes one shard that failed during a pass.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrShardFailed struct {
	Shard string
	Pass  int
	cause error
}

func (e *ErrShardFailed) Error() string {
	return fmt.Sprintf("shard %s failed in pass %d: %v", e.Shard, e.Pass, e.cause)
}

func (e *ErrShardFailed) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, facet.ErrBadRequest) {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if errors.Is(err, facet.ErrInternal) {
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}

	return err
}
