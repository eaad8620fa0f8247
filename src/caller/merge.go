package caller

import "math/big"

type bucketResult struct {
	index       int
	blockNumber *big.Int
	outputs     []any
}

// BlockResult groups the outputs of consecutive buckets read at one block.
type BlockResult struct {
	BlockNumber *big.Int
	Outputs     []any
}

// mergeFlat concatenates bucket outputs in bucket order. Buckets cover the
// original call sequence without gaps, so the result is index-aligned with
// the caller's argument sets.
func mergeFlat(results []bucketResult) []any {
	outputs := make([]any, 0)
	for _, result := range results {
		outputs = append(outputs, result.outputs...)
	}
	return outputs
}

// mergeByBlock opens a new group whenever the block number changes from the
// previous bucket's, so same-block buckets collapse into one group.
func mergeByBlock(results []bucketResult) []BlockResult {
	groups := make([]BlockResult, 0)
	for _, result := range results {
		if len(groups) == 0 || groups[len(groups)-1].BlockNumber.Cmp(result.blockNumber) != 0 {
			groups = append(groups, BlockResult{BlockNumber: result.blockNumber})
		}
		last := &groups[len(groups)-1]
		last.Outputs = append(last.Outputs, result.outputs...)
	}
	return groups
}
