package schema_test

import (
	"testing"

	"github.com/deusfinance/multicallable/src/schema"
)

func TestSignature(t *testing.T) {
	cases := []struct {
		name  string
		entry schema.Entry
		want  string
	}{
		{
			name:  "primitive",
			entry: schema.Entry{Type: "uint256", InternalType: "uint256"},
			want:  "uint256",
		},
		{
			name:  "contract type resolves to address",
			entry: schema.Entry{Type: "address", InternalType: "contract IERC20"},
			want:  "address",
		},
		{
			name:  "enum resolves to underlying integer",
			entry: schema.Entry{Type: "uint8", InternalType: "enum Pool.Status"},
			want:  "uint8",
		},
		{
			name:  "dynamic array",
			entry: schema.Entry{Type: "address[]", InternalType: "address[]"},
			want:  "address[]",
		},
		{
			name:  "fixed array",
			entry: schema.Entry{Type: "uint256[3]", InternalType: "uint256[3]"},
			want:  "uint256[3]",
		},
		{
			name: "struct",
			entry: schema.Entry{
				Type:         "tuple",
				InternalType: "struct Pool.Info",
				Components: []schema.Entry{
					{Name: "token", Type: "address", InternalType: "contract IERC20"},
					{Name: "fee", Type: "uint24", InternalType: "uint24"},
				},
			},
			want: "(address,uint24)",
		},
		{
			name: "struct array",
			entry: schema.Entry{
				Type:         "tuple[]",
				InternalType: "struct Pool.Info[]",
				Components: []schema.Entry{
					{Name: "token", Type: "address", InternalType: "address"},
					{Name: "fee", Type: "uint24", InternalType: "uint24"},
				},
			},
			want: "(address,uint24)[]",
		},
		{
			name: "nested struct with enum and array",
			entry: schema.Entry{
				Type:         "tuple",
				InternalType: "struct Vault.State",
				Components: []schema.Entry{
					{Name: "status", Type: "uint8", InternalType: "enum Vault.Status"},
					{Name: "balances", Type: "uint256[]", InternalType: "uint256[]"},
					{Name: "owner", Type: "tuple", InternalType: "struct Vault.Owner", Components: []schema.Entry{
						{Name: "addr", Type: "address", InternalType: "address"},
						{Name: "share", Type: "uint16", InternalType: "uint16"},
					}},
				},
			},
			want: "(uint8,uint256[],(address,uint16))",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s, err := schema.Parse(c.entry)
			if err != nil {
				t.Fatal(err)
			}
			if got := s.Signature(); got != c.want {
				t.Errorf("expected %v", c.want)
				t.Fatalf("got %v", got)
			}

			// resolution is pure, a second pass must agree
			if s.Signature() != c.want {
				t.Fatal("signature changed between calls")
			}
		})
	}
}

func TestABIType(t *testing.T) {
	entry := schema.Entry{
		Type:         "tuple[]",
		InternalType: "struct Pair.Reserves[]",
		Components: []schema.Entry{
			{Name: "reserve0", Type: "uint112", InternalType: "uint112"},
			{Name: "reserve1", Type: "uint112", InternalType: "uint112"},
			{Name: "blockTimestampLast", Type: "uint32", InternalType: "uint32"},
		},
	}

	s, err := schema.Parse(entry)
	if err != nil {
		t.Fatal(err)
	}

	typ, err := s.ABIType()
	if err != nil {
		t.Fatal(err)
	}
	if typ.String() != "(uint112,uint112,uint32)[]" {
		t.Fatalf("got %v", typ.String())
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := schema.Parse(schema.Entry{Type: "tuple"}); err == nil {
		t.Fatal("expected error for tuple without components")
	}
	if _, err := schema.Parse(schema.Entry{Type: "uint256[x]"}); err == nil {
		t.Fatal("expected error for malformed array size")
	}
}
