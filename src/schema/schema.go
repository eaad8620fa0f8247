package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

///
/// Schema
///

type Kind int

const (
	Primitive Kind = iota
	Array
	Tuple
	Enum
)

// Entry is a single ABI argument as it appears in the contract's JSON document.
type Entry struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	InternalType string  `json:"internalType"`
	Components   []Entry `json:"components"`
}

// Schema is a resolved type node. Resolution always terminates because ABI
// documents cannot describe cyclic types.
type Schema struct {
	Kind   Kind
	Name   string   // argument name, kept for tuple component marshaling
	Type   string   // canonical type for Primitive, underlying integer type for Enum
	Size   int      // Array only, -1 for dynamic
	Elem   *Schema  // Array only
	Fields []Schema // Tuple only, declaration order
}

///
/// Parsing
///

// Parse maps an ABI argument to a Schema node.
// Structs become Tuple nodes, `enum X` internal types collapse to their
// underlying integer type, array suffixes wrap the element type.
func Parse(entry Entry) (Schema, error) {
	// peel array suffixes from the outside in
	if strings.HasSuffix(entry.Type, "]") {
		open := strings.LastIndex(entry.Type, "[")
		if open < 0 {
			return Schema{}, fmt.Errorf("malformed type %q", entry.Type)
		}

		size := -1
		if raw := entry.Type[open+1 : len(entry.Type)-1]; raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return Schema{}, fmt.Errorf("malformed array size in %q", entry.Type)
			}
			size = n
		}

		inner := entry
		inner.Type = entry.Type[:open]
		if i := strings.LastIndex(entry.InternalType, "["); i > 0 && strings.HasSuffix(entry.InternalType, "]") {
			inner.InternalType = entry.InternalType[:i]
		}

		elem, err := Parse(inner)
		if err != nil {
			return Schema{}, err
		}
		return Schema{Kind: Array, Name: entry.Name, Size: size, Elem: &elem}, nil
	}

	if entry.Type == "tuple" {
		if len(entry.Components) == 0 {
			return Schema{}, errors.New("tuple type without components")
		}

		fields := make([]Schema, len(entry.Components))
		for i, component := range entry.Components {
			field, err := Parse(component)
			if err != nil {
				return Schema{}, err
			}
			fields[i] = field
		}
		return Schema{Kind: Tuple, Name: entry.Name, Fields: fields}, nil
	}

	// enums are ABI-encoded as their underlying integer
	if strings.HasPrefix(entry.InternalType, "enum ") {
		return Schema{Kind: Enum, Name: entry.Name, Type: entry.Type}, nil
	}

	return Schema{Kind: Primitive, Name: entry.Name, Type: entry.Type}, nil
}

// ParseAll maps a function's input or output list, preserving order.
func ParseAll(entries []Entry) ([]Schema, error) {
	schemas := make([]Schema, len(entries))
	for i, entry := range entries {
		s, err := Parse(entry)
		if err != nil {
			return nil, err
		}
		schemas[i] = s
	}
	return schemas, nil
}

///
/// Resolution
///

// Signature returns the canonical type signature for the node.
// It is pure, the same node always resolves to the same string.
func (s Schema) Signature() string {
	switch s.Kind {
	case Array:
		if s.Size < 0 {
			return s.Elem.Signature() + "[]"
		}
		return fmt.Sprintf("%s[%d]", s.Elem.Signature(), s.Size)
	case Tuple:
		parts := make([]string, len(s.Fields))
		for i, field := range s.Fields {
			parts[i] = field.Signature()
		}
		return "(" + strings.Join(parts, ",") + ")"
	default:
		// Primitive and Enum both resolve to the canonical ABI type
		return s.Type
	}
}

// ABIType rebuilds a go-ethereum abi.Type from the node, so decoding can run
// against a captured schema without the source ABI document.
func (s Schema) ABIType() (abi.Type, error) {
	return abi.NewType(s.rawType(), "", s.components(0))
}

func (s Schema) rawType() string {
	switch s.Kind {
	case Array:
		if s.Size < 0 {
			return s.Elem.rawType() + "[]"
		}
		return fmt.Sprintf("%s[%d]", s.Elem.rawType(), s.Size)
	case Tuple:
		return "tuple"
	default:
		return s.Type
	}
}

func (s Schema) components(index int) []abi.ArgumentMarshaling {
	switch s.Kind {
	case Array:
		return s.Elem.components(index)
	case Tuple:
		components := make([]abi.ArgumentMarshaling, len(s.Fields))
		for i, field := range s.Fields {
			name := field.Name
			if name == "" {
				name = fmt.Sprintf("field%d", i)
			}
			components[i] = abi.ArgumentMarshaling{
				Name:       name,
				Type:       field.rawType(),
				Components: field.components(i),
			}
		}
		return components
	default:
		return nil
	}
}
