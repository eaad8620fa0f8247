package multicall

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/deusfinance/multicallable/src/schema"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
)

///
/// Call & Result
///

// Call is one logical contract call: where to call, the encoded calldata, and
// the output schemas captured when the call was built. Immutable once built.
type Call struct {
	Target   common.Address
	CallData []byte
	Outputs  []schema.Schema
}

// Entry is the aggregator's verdict for a single inner call.
type Entry struct {
	Success    bool
	ReturnData []byte
}

// Result is one bucket's aggregate response, read at a single block.
type Result struct {
	BlockNumber *big.Int
	BlockHash   common.Hash
	Entries     []Entry
}

///
/// Client
///

type ClientDispatcher interface {
	CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error)
	ChainID(context.Context) (*big.Int, error)
}

// OverrideDispatcher performs an eth_call with state overrides.
// *gethclient.Client satisfies it.
type OverrideDispatcher interface {
	CallContract(context.Context, ethereum.CallMsg, *big.Int, *map[common.Address]gethclient.OverrideAccount) ([]byte, error)
}

var (
	ErrNoClient            = fmt.Errorf("multicall: no chain client configured")
	ErrAggregationReverted = fmt.Errorf("multicall: aggregation reverted")
)

type impersonation struct {
	client  OverrideDispatcher
	address common.Address
	code    []byte
}

// Multicall dispatches buckets of calls through an aggregator contract's
// tryBlockAndAggregate entry point. The contract binding is immutable after
// setup and safe for concurrent use.
type Multicall struct {
	contract    common.Address
	cAbi        abi.ABI
	client      ClientDispatcher
	maxGas      uint64
	impersonate *impersonation
}

var (
	bundledOnce sync.Once
	bundledAbi  abi.ABI
	bundledErr  error
)

func bundledABI() (abi.ABI, error) {
	bundledOnce.Do(func() {
		bundledAbi, bundledErr = abi.JSON(strings.NewReader(MulticallABI))
	})
	return bundledAbi, bundledErr
}

// New binds the default aggregator for the connected chain. A chain id
// missing from the deployment table keeps the canonical fallback address.
func New(ctx context.Context, client ClientDispatcher) (*Multicall, error) {
	if client == nil {
		return nil, ErrNoClient
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	address := DefaultAddress
	if deployed, ok := DeployedAddresses[chainID.Uint64()]; ok {
		address = deployed
	}

	return NewWithAddress(client, address)
}

// NewWithAddress binds a custom aggregator address with the bundled ABI.
func NewWithAddress(client ClientDispatcher, contract common.Address) (*Multicall, error) {
	cAbi, err := bundledABI()
	if err != nil {
		return nil, fmt.Errorf("parse bundled aggregator abi: %w", err)
	}
	return NewWithABI(client, contract, cAbi)
}

// NewWithABI binds a custom aggregator contract. The ABI must expose
// tryBlockAndAggregate with the canonical signature.
func NewWithABI(client ClientDispatcher, contract common.Address, cAbi abi.ABI) (*Multicall, error) {
	if client == nil {
		return nil, ErrNoClient
	}

	return &Multicall{
		contract: contract,
		cAbi:     cAbi,
		client:   client,
		maxGas:   DefaultMaxGas,
	}, nil
}

// Impersonate installs the given aggregator runtime code at address via a
// state override on every call, for chains without a deployed aggregator.
// The override never persists past a single call.
func (m *Multicall) Impersonate(client OverrideDispatcher, address common.Address, code []byte) *Multicall {
	m.impersonate = &impersonation{client: client, address: address, code: code}
	return m
}

// Contract returns the bound aggregator address.
func (m *Multicall) Contract() common.Address {
	if m.impersonate != nil {
		return m.impersonate.address
	}
	return m.contract
}

///
/// Aggregation
///

type aggregateCall struct {
	Target   common.Address
	CallData []byte
}

// Aggregate sends one bucket through tryBlockAndAggregate at the given block
// (nil means latest). With requireSuccess any inner failure reverts the whole
// call on-chain and surfaces as ErrAggregationReverted; without it, failures
// come back as unsuccessful entries.
func (m *Multicall) Aggregate(ctx context.Context, calls []Call, requireSuccess bool, blockNumber *big.Int) (Result, error) {
	// encode calls
	pairs := make([]aggregateCall, len(calls))
	for i, call := range calls {
		pairs[i] = aggregateCall{Target: call.Target, CallData: call.CallData}
	}

	callsData, err := m.cAbi.Pack("tryBlockAndAggregate", requireSuccess, pairs)
	if err != nil {
		return Result{}, fmt.Errorf("pack aggregate call: %w", err)
	}

	// call the contract
	target := m.contract
	if m.impersonate != nil {
		target = m.impersonate.address
	}
	msg := ethereum.CallMsg{
		To:   &target,
		Data: callsData,
		Gas:  m.maxGas,
	}

	var rawRes []byte
	if m.impersonate != nil {
		overrides := map[common.Address]gethclient.OverrideAccount{
			target: {Code: m.impersonate.code},
		}
		rawRes, err = m.impersonate.client.CallContract(ctx, msg, blockNumber, &overrides)
	} else {
		rawRes, err = m.client.CallContract(ctx, msg, blockNumber)
	}
	if err != nil {
		if strings.Contains(err.Error(), "execution reverted") {
			return Result{}, fmt.Errorf("%w: %v", ErrAggregationReverted, err)
		}
		return Result{}, fmt.Errorf("aggregate call: %w", err)
	}

	// decode results
	var out struct {
		BlockNumber *big.Int
		BlockHash   [32]byte
		ReturnData  []Entry
	}
	if err := m.cAbi.UnpackIntoInterface(&out, "tryBlockAndAggregate", rawRes); err != nil {
		return Result{}, fmt.Errorf("unpack aggregate result: %w", err)
	}

	// validate return data
	if len(out.ReturnData) != len(calls) {
		return Result{}, fmt.Errorf("return data length mismatch: %v != %v", len(out.ReturnData), len(calls))
	}

	return Result{
		BlockNumber: out.BlockNumber,
		BlockHash:   common.Hash(out.BlockHash),
		Entries:     out.ReturnData,
	}, nil
}
