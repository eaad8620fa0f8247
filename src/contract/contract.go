package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deusfinance/multicallable/src/multicall"
	"github.com/deusfinance/multicallable/src/schema"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownFunction = fmt.Errorf("contract: unknown function")
	ErrInvalidArgument = fmt.Errorf("contract: invalid argument")
)

///
/// Function
///

// Function is one resolved ABI entry: its input schemas for argument checks
// and its output schemas for result decoding.
type Function struct {
	Name    string
	Inputs  []schema.Schema
	Outputs []schema.Schema
}

type rawEntry struct {
	Type            string         `json:"type"`
	Name            string         `json:"name"`
	StateMutability string         `json:"stateMutability"`
	Inputs          []schema.Entry `json:"inputs"`
	Outputs         []schema.Entry `json:"outputs"`
}

///
/// Contract
///

// Contract binds a target address to its ABI. Functions are resolved once at
// construction into an explicit name-keyed map; lookups of unknown names
// report a miss instead of failing at call time.
type Contract struct {
	address   common.Address
	cAbi      abi.ABI
	functions map[string]*Function
}

// NewContract parses the ABI document and resolves every function entry.
func NewContract(address common.Address, abiJSON string) (*Contract, error) {
	cAbi, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	var entries []rawEntry
	if err := json.Unmarshal([]byte(abiJSON), &entries); err != nil {
		return nil, fmt.Errorf("parse abi entries: %w", err)
	}

	functions := make(map[string]*Function)
	for _, entry := range entries {
		if entry.Type != "function" {
			continue
		}
		// first declaration wins for overloaded names
		if _, ok := functions[entry.Name]; ok {
			continue
		}

		inputs, err := schema.ParseAll(entry.Inputs)
		if err != nil {
			return nil, fmt.Errorf("function %s inputs: %w", entry.Name, err)
		}
		outputs, err := schema.ParseAll(entry.Outputs)
		if err != nil {
			return nil, fmt.Errorf("function %s outputs: %w", entry.Name, err)
		}

		functions[entry.Name] = &Function{
			Name:    entry.Name,
			Inputs:  inputs,
			Outputs: outputs,
		}
	}

	return &Contract{
		address:   address,
		cAbi:      cAbi,
		functions: functions,
	}, nil
}

func (c *Contract) Address() common.Address {
	return c.address
}

// Function looks up a resolved function by name.
func (c *Contract) Function(name string) (*Function, bool) {
	fn, ok := c.functions[name]
	return fn, ok
}

///
/// Call construction
///

// Call builds an immutable call descriptor for one argument set. The output
// schemas are captured by value, so later changes to the contract binding
// cannot affect a built descriptor.
func (c *Contract) Call(name string, args ...any) (multicall.Call, error) {
	fn, ok := c.functions[name]
	if !ok {
		return multicall.Call{}, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}

	if len(args) != len(fn.Inputs) {
		return multicall.Call{}, fmt.Errorf("%w: %s takes %d arguments, got %d",
			ErrInvalidArgument, name, len(fn.Inputs), len(args))
	}

	callData, err := c.cAbi.Pack(name, args...)
	if err != nil {
		return multicall.Call{}, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
	}

	outputs := make([]schema.Schema, len(fn.Outputs))
	copy(outputs, fn.Outputs)

	return multicall.Call{
		Target:   c.address,
		CallData: callData,
		Outputs:  outputs,
	}, nil
}
