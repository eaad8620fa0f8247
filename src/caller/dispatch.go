package caller

import (
	"context"

	"github.com/deusfinance/multicallable/src/decode"
	"github.com/deusfinance/multicallable/src/multicall"
	"github.com/deusfinance/multicallable/src/split"
	"golang.org/x/sync/errgroup"
)

type indexedBucket struct {
	index int
	calls []multicall.Call
}

// dispatch splits the batch into buckets and drives the aggregate calls,
// sequentially or concurrently. Results always come back in bucket order:
// each bucket writes into its own slot, so completion order cannot leak into
// the output. Any bucket failure aborts the whole dispatch.
func (f *FCall) dispatch(ctx context.Context, opts *CallOpts) ([]bucketResult, error) {
	if opts == nil {
		opts = &CallOpts{}
	}
	n := opts.Buckets
	if n < 1 {
		n = 1
	}
	requireSuccess := !opts.AllowFailure

	// empty buckets are skipped, a zero-length aggregate call is meaningless
	pending := make([]indexedBucket, 0, n)
	for i, bucket := range split.Split(f.calls, n) {
		if len(bucket) == 0 {
			continue
		}
		pending = append(pending, indexedBucket{index: i, calls: bucket})
	}

	mc := f.function.parent.mc
	slots := make([]*bucketResult, n)

	if opts.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for _, bucket := range pending {
			g.Go(func() error {
				result, err := runBucket(gctx, mc, bucket, requireSuccess, opts)
				if err != nil {
					return err
				}
				slots[bucket.index] = result
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for done, bucket := range pending {
			result, err := runBucket(ctx, mc, bucket, requireSuccess, opts)
			if err != nil {
				return nil, err
			}
			slots[bucket.index] = result

			if opts.Progress != nil {
				opts.Progress(done+1, len(pending))
			}
		}
	}

	results := make([]bucketResult, 0, len(pending))
	for _, slot := range slots {
		if slot != nil {
			results = append(results, *slot)
		}
	}
	return results, nil
}

func runBucket(ctx context.Context, mc *multicall.Multicall, bucket indexedBucket, requireSuccess bool, opts *CallOpts) (*bucketResult, error) {
	result, err := mc.Aggregate(ctx, bucket.calls, requireSuccess, opts.BlockNumber)
	if err != nil {
		return nil, err
	}

	outputs := make([]any, len(bucket.calls))
	for i, call := range bucket.calls {
		output, err := decode.Output(call, result.Entries[i], requireSuccess)
		if err != nil {
			return nil, err
		}
		outputs[i] = output
	}

	return &bucketResult{
		index:       bucket.index,
		blockNumber: result.BlockNumber,
		outputs:     outputs,
	}, nil
}
