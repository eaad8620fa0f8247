package decode

import (
	"fmt"
	"strings"

	"github.com/deusfinance/multicallable/src/multicall"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

var ErrBadFunctionCallOutput = fmt.Errorf("decode: bad function call output")

const (
	KindRevert    = "revert"
	KindBadOutput = "bad function call output"
)

// CallFailure stands in for a single failed call inside an otherwise
// successful result list.
type CallFailure struct {
	Kind   string
	Reason string
}

func (f CallFailure) Error() string {
	return f.Reason
}

// Output decodes one aggregate entry against its call descriptor. Decoding is
// stateless, the same (call, entry) pair always yields the same output.
//
// Failed entries become CallFailure values. A successful entry with no return
// data while outputs are declared means the target contract or selector does
// not exist: fatal under requireSuccess, a CallFailure otherwise.
func Output(call multicall.Call, entry multicall.Entry, requireSuccess bool) (any, error) {
	if !entry.Success {
		return CallFailure{Kind: KindRevert, Reason: revertReason(entry.ReturnData)}, nil
	}

	if len(entry.ReturnData) == 0 && len(call.Outputs) > 0 {
		if requireSuccess {
			return nil, fmt.Errorf("%w: no return data from %s, is the contract deployed?",
				ErrBadFunctionCallOutput, call.Target)
		}
		return CallFailure{
			Kind:   KindBadOutput,
			Reason: fmt.Sprintf("no return data from %s", call.Target),
		}, nil
	}

	args := make(abi.Arguments, len(call.Outputs))
	for i, out := range call.Outputs {
		typ, err := out.ABIType()
		if err != nil {
			return nil, fmt.Errorf("resolve output type %s: %w", out.Signature(), err)
		}
		args[i] = abi.Argument{Name: out.Name, Type: typ}
	}

	values, err := args.Unpack(entry.ReturnData)
	if err != nil {
		return nil, fmt.Errorf("decode output %s: %w", outputsSignature(call), err)
	}

	// a single declared output is handed back bare
	if len(call.Outputs) == 1 {
		return values[0], nil
	}
	return values, nil
}

func outputsSignature(call multicall.Call) string {
	parts := make([]string, len(call.Outputs))
	for i, out := range call.Outputs {
		parts[i] = out.Signature()
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// revertReason scans the trailing 32 bytes of revert data for printable
// characters. Intentionally a heuristic rather than Error(string) decoding;
// callers depend on its output shape.
func revertReason(data []byte) string {
	tail := data
	if len(tail) > 32 {
		tail = tail[len(tail)-32:]
	}

	reason := make([]byte, 0, len(tail))
	for _, c := range tail {
		if c >= 0x20 && c < 0x7f {
			reason = append(reason, c)
		}
	}
	if len(reason) == 0 {
		return "Error"
	}
	return string(reason)
}
