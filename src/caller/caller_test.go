package caller_test

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deusfinance/multicallable/src/caller"
	"github.com/deusfinance/multicallable/src/contract"
	"github.com/deusfinance/multicallable/src/decode"
	"github.com/deusfinance/multicallable/src/multicall"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const echoABI = `[{"type":"function","name":"echo","stateMutability":"view","inputs":[{"name":"x","type":"uint256","internalType":"uint256"}],"outputs":[{"name":"y","type":"uint256","internalType":"uint256"}]}]`

// echoClient simulates an aggregator contract: it unpacks each
// tryBlockAndAggregate request and answers every inner echo(x) call with x.
type echoClient struct {
	mu       sync.Mutex
	mcAbi    abi.ABI
	requests int
	blocks   []uint64          // per-request block numbers, default 123
	delays   []time.Duration   // per-request artificial latency
	fail     map[uint64][]byte // echo argument -> revert data
}

func newEchoClient(t *testing.T) *echoClient {
	t.Helper()
	mcAbi, err := abi.JSON(strings.NewReader(multicall.MulticallABI))
	if err != nil {
		t.Fatal(err)
	}
	return &echoClient{mcAbi: mcAbi}
}

func (c *echoClient) ChainID(_ context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (c *echoClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	request := c.requests
	c.requests++
	c.mu.Unlock()

	if request < len(c.delays) {
		time.Sleep(c.delays[request])
	}

	method := c.mcAbi.Methods["tryBlockAndAggregate"]
	values, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	requireSuccess := values[0].(bool)

	calls := reflect.ValueOf(values[1])
	entries := make([]multicall.Entry, calls.Len())
	for i := 0; i < calls.Len(); i++ {
		callData := calls.Index(i).FieldByName("CallData").Bytes()
		arg := new(big.Int).SetBytes(callData[4:36])

		if revert, ok := c.fail[arg.Uint64()]; ok {
			if requireSuccess {
				return nil, errors.New("execution reverted: Multicall3: call failed")
			}
			entries[i] = multicall.Entry{Success: false, ReturnData: revert}
			continue
		}
		entries[i] = multicall.Entry{Success: true, ReturnData: common.LeftPadBytes(arg.Bytes(), 32)}
	}

	block := uint64(123)
	if request < len(c.blocks) {
		block = c.blocks[request]
	}
	return method.Outputs.Pack(new(big.Int).SetUint64(block), [32]byte{}, entries)
}

func newEchoCall(t *testing.T, client *echoClient, count int) *caller.FCall {
	t.Helper()

	target, err := contract.NewContract(common.BigToAddress(big.NewInt(42)), echoABI)
	require.NoError(t, err)

	mc, err := multicall.NewWithAddress(client, common.BigToAddress(big.NewInt(1)))
	require.NoError(t, err)

	m, err := caller.New(target, mc)
	require.NoError(t, err)

	fn, err := m.Function("echo")
	require.NoError(t, err)

	paramSets := make([][]any, count)
	for i := range paramSets {
		paramSets[i] = []any{big.NewInt(int64(i))}
	}
	fcall, err := fn.Args(paramSets)
	require.NoError(t, err)

	return fcall
}

func TestCallPreservesOrder(t *testing.T) {
	client := newEchoClient(t)
	fcall := newEchoCall(t, client, 7)

	var progress [][2]int
	outputs, err := fcall.Call(context.Background(), &caller.CallOpts{
		Buckets: 3,
		Progress: func(done, total int) {
			progress = append(progress, [2]int{done, total})
		},
	})
	require.NoError(t, err)

	require.Len(t, outputs, 7)
	for i, output := range outputs {
		require.Equal(t, int64(i), output.(*big.Int).Int64())
	}

	// 7 calls over 3 buckets means 3 aggregate requests
	require.Equal(t, 3, client.requests)
	require.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
}

func TestParallelMatchesSequential(t *testing.T) {
	sequential, err := newEchoCall(t, newEchoClient(t), 10).Call(context.Background(), &caller.CallOpts{Buckets: 4})
	require.NoError(t, err)

	// later buckets answer first, completion order must not leak through
	client := newEchoClient(t)
	client.delays = []time.Duration{60 * time.Millisecond, 40 * time.Millisecond, 20 * time.Millisecond, 0}

	parallel, err := newEchoCall(t, client, 10).Call(context.Background(), &caller.CallOpts{Buckets: 4, Parallel: true})
	require.NoError(t, err)

	require.Equal(t, sequential, parallel)
}

func TestDetailedCallGroupsByBlock(t *testing.T) {
	client := newEchoClient(t)
	client.blocks = []uint64{5, 5, 7}

	groups, err := newEchoCall(t, client, 7).DetailedCall(context.Background(), &caller.CallOpts{Buckets: 3})
	require.NoError(t, err)

	require.Len(t, groups, 2)
	require.Equal(t, int64(5), groups[0].BlockNumber.Int64())
	require.Len(t, groups[0].Outputs, 5) // buckets of 3 and 2 coalesce
	require.Equal(t, int64(7), groups[1].BlockNumber.Int64())
	require.Len(t, groups[1].Outputs, 2)

	for i, output := range groups[0].Outputs {
		require.Equal(t, int64(i), output.(*big.Int).Int64())
	}
}

func TestDetailedCallCoalescesSameBlock(t *testing.T) {
	client := newEchoClient(t)
	client.blocks = []uint64{9, 9}

	groups, err := newEchoCall(t, client, 4).DetailedCall(context.Background(), &caller.CallOpts{Buckets: 2})
	require.NoError(t, err)

	require.Equal(t, 2, client.requests)
	require.Len(t, groups, 1)
	require.Equal(t, int64(9), groups[0].BlockNumber.Int64())
	require.Len(t, groups[0].Outputs, 4)
}

func TestAllowFailure(t *testing.T) {
	client := newEchoClient(t)
	client.fail = map[uint64][]byte{2: common.RightPadBytes([]byte("insufficient"), 32)}

	// require-success aborts the whole call
	_, err := newEchoCall(t, client, 5).Call(context.Background(), &caller.CallOpts{Buckets: 2})
	require.ErrorIs(t, err, multicall.ErrAggregationReverted)

	// allow-failure keeps the full-length result with a marker in place
	outputs, err := newEchoCall(t, newEchoClient(t), 5).Call(context.Background(), &caller.CallOpts{
		Buckets:      2,
		AllowFailure: true,
	})
	require.NoError(t, err)
	require.Len(t, outputs, 5)

	client = newEchoClient(t)
	client.fail = map[uint64][]byte{2: common.RightPadBytes([]byte("insufficient"), 32)}
	outputs, err = newEchoCall(t, client, 5).Call(context.Background(), &caller.CallOpts{
		Buckets:      2,
		AllowFailure: true,
	})
	require.NoError(t, err)
	require.Len(t, outputs, 5)

	failure, ok := outputs[2].(decode.CallFailure)
	require.True(t, ok, "expected a CallFailure at index 2, got %T", outputs[2])
	require.Equal(t, decode.KindRevert, failure.Kind)
	require.Equal(t, "insufficient", failure.Reason)

	for i, output := range outputs {
		if i == 2 {
			continue
		}
		require.Equal(t, int64(i), output.(*big.Int).Int64())
	}
}

func TestMoreBucketsThanCalls(t *testing.T) {
	client := newEchoClient(t)

	outputs, err := newEchoCall(t, client, 2).Call(context.Background(), &caller.CallOpts{Buckets: 5})
	require.NoError(t, err)

	require.Len(t, outputs, 2)
	// empty buckets are never dispatched
	require.Equal(t, 2, client.requests)
}

func TestFunctionLookup(t *testing.T) {
	target, err := contract.NewContract(common.BigToAddress(big.NewInt(42)), echoABI)
	require.NoError(t, err)
	mc, err := multicall.NewWithAddress(newEchoClient(t), common.BigToAddress(big.NewInt(1)))
	require.NoError(t, err)
	m, err := caller.New(target, mc)
	require.NoError(t, err)

	_, err = m.Function("echo")
	require.NoError(t, err)

	_, err = m.Function("nope")
	require.ErrorIs(t, err, contract.ErrUnknownFunction)
}
