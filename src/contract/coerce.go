package contract

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/deusfinance/multicallable/src/schema"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CoerceArgs converts textual arguments into the Go values the ABI encoder
// expects for the named function's inputs. Only primitive inputs are
// supported, which covers the command-line surface.
func (c *Contract) CoerceArgs(name string, raw []string) ([]any, error) {
	fn, ok := c.functions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if len(raw) != len(fn.Inputs) {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d",
			ErrInvalidArgument, name, len(fn.Inputs), len(raw))
	}

	args := make([]any, len(raw))
	for i, value := range raw {
		arg, err := coerce(fn.Inputs[i], value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s argument %d: %v", ErrInvalidArgument, name, i, err)
		}
		args[i] = arg
	}

	return args, nil
}

func coerce(s schema.Schema, value string) (any, error) {
	if s.Kind == schema.Tuple || s.Kind == schema.Array {
		return nil, fmt.Errorf("cannot coerce %s from text", s.Signature())
	}

	typ := s.Type
	switch {
	case typ == "address":
		if !common.IsHexAddress(value) {
			return nil, fmt.Errorf("invalid address %q", value)
		}
		return common.HexToAddress(value), nil

	case typ == "bool":
		return strconv.ParseBool(value)

	case typ == "string":
		return value, nil

	case typ == "bytes":
		return hexutil.Decode(value)

	case strings.HasPrefix(typ, "bytes"):
		size, err := strconv.Atoi(typ[len("bytes"):])
		if err != nil {
			return nil, fmt.Errorf("unsupported type %s", typ)
		}
		data, err := hexutil.Decode(value)
		if err != nil {
			return nil, err
		}
		if len(data) != size {
			return nil, fmt.Errorf("%s needs %d bytes, got %d", typ, size, len(data))
		}
		arr := reflect.New(reflect.ArrayOf(size, reflect.TypeOf(byte(0)))).Elem()
		reflect.Copy(arr, reflect.ValueOf(data))
		return arr.Interface(), nil

	case strings.HasPrefix(typ, "uint"), strings.HasPrefix(typ, "int"):
		return coerceInteger(typ, value)
	}

	return nil, fmt.Errorf("unsupported type %s", typ)
}

func coerceInteger(typ, value string) (any, error) {
	bits := 256
	signed := strings.HasPrefix(typ, "int")
	if raw := strings.TrimPrefix(strings.TrimPrefix(typ, "u"), "int"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("unsupported type %s", typ)
		}
		bits = n
	}

	// the abi encoder wants machine integers for the 8/16/32/64 widths and
	// *big.Int for everything else
	machine := bits == 8 || bits == 16 || bits == 32 || bits == 64
	if !machine {
		n, ok := new(big.Int).SetString(value, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", value)
		}
		return n, nil
	}

	if signed {
		n, err := strconv.ParseInt(value, 0, bits)
		if err != nil {
			return nil, err
		}
		switch bits {
		case 8:
			return int8(n), nil
		case 16:
			return int16(n), nil
		case 32:
			return int32(n), nil
		default:
			return n, nil
		}
	}

	n, err := strconv.ParseUint(value, 0, bits)
	if err != nil {
		return nil, err
	}
	switch bits {
	case 8:
		return uint8(n), nil
	case 16:
		return uint16(n), nil
	case 32:
		return uint32(n), nil
	default:
		return n, nil
	}
}
