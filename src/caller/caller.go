package caller

import (
	"context"
	"fmt"
	"math/big"

	"github.com/deusfinance/multicallable/src/contract"
	"github.com/deusfinance/multicallable/src/multicall"
)

///
/// Multicallable
///

// Multicallable exposes every function of a target contract as a batchable
// call surface backed by an aggregator contract.
type Multicallable struct {
	target *contract.Contract
	mc     *multicall.Multicall
}

func New(target *contract.Contract, mc *multicall.Multicall) (*Multicallable, error) {
	if target == nil {
		return nil, fmt.Errorf("caller: no target contract")
	}
	if mc == nil {
		return nil, multicall.ErrNoClient
	}

	return &Multicallable{
		target: target,
		mc:     mc,
	}, nil
}

// Function resolves a contract function by name.
func (m *Multicallable) Function(name string) (*Function, error) {
	if _, ok := m.target.Function(name); !ok {
		return nil, fmt.Errorf("%w: %s", contract.ErrUnknownFunction, name)
	}

	return &Function{
		name:   name,
		parent: m,
	}, nil
}

///
/// Function & FCall
///

type Function struct {
	name   string
	parent *Multicallable
}

// Args builds one call descriptor per argument set, preserving order.
// Argument count or type mismatches fail here, before anything is dispatched.
func (f *Function) Args(paramSets [][]any) (*FCall, error) {
	calls := make([]multicall.Call, len(paramSets))
	for i, params := range paramSets {
		call, err := f.parent.target.Call(f.name, params...)
		if err != nil {
			return nil, err
		}
		calls[i] = call
	}

	return &FCall{
		function: f,
		calls:    calls,
	}, nil
}

// FCall is a prepared batch of calls to one function.
type FCall struct {
	function *Function
	calls    []multicall.Call
}

// CallOpts tunes a single dispatch. The zero value means one bucket,
// require-success, latest block, sequential.
type CallOpts struct {
	// Buckets is the number of aggregate calls the batch is split into.
	Buckets int
	// AllowFailure reports failed inner calls as CallFailure values instead
	// of reverting the whole aggregate call.
	AllowFailure bool
	// BlockNumber pins the read to a block, nil means latest.
	BlockNumber *big.Int
	// Parallel dispatches buckets concurrently.
	Parallel bool
	// Progress, if set, is invoked after each bucket in sequential mode.
	Progress func(done, total int)
}

// Call dispatches the batch and returns one decoded output per argument set,
// in the caller's original order.
func (f *FCall) Call(ctx context.Context, opts *CallOpts) ([]any, error) {
	results, err := f.dispatch(ctx, opts)
	if err != nil {
		return nil, err
	}
	return mergeFlat(results), nil
}

// DetailedCall dispatches the batch and groups outputs by the block each
// bucket was read at. Consecutive buckets sharing a block coalesce.
func (f *FCall) DetailedCall(ctx context.Context, opts *CallOpts) ([]BlockResult, error) {
	results, err := f.dispatch(ctx, opts)
	if err != nil {
		return nil, err
	}
	return mergeByBlock(results), nil
}
