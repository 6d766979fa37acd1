package artifacts

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ConvertArgs adapts plan values (*big.Int, string, bool, common.Address) to
// the Go types the ABI encoder expects for inputs.
func ConvertArgs(inputs abi.Arguments, args []any) ([]any, error) {
	if len(inputs) != len(args) {
		return nil, fmt.Errorf("expects %d arguments, got %d", len(inputs), len(args))
	}
	out := make([]any, len(args))
	for i, in := range inputs {
		v, err := convert(in.Type, args[i])
		if err != nil {
			label := in.Name
			if label == "" {
				label = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("argument %s (%s): %w", label, in.Type.String(), err)
		}
		out[i] = v
	}
	return out, nil
}

func convert(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		switch x := v.(type) {
		case common.Address:
			return x, nil
		case string:
			if !common.IsHexAddress(x) {
				return nil, fmt.Errorf("%q is not an address", x)
			}
			return common.HexToAddress(x), nil
		}
	case abi.BoolTy:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case abi.StringTy:
		switch x := v.(type) {
		case string:
			return x, nil
		case common.Address:
			return x.Hex(), nil
		}
	case abi.UintTy, abi.IntTy:
		n, err := toBig(v)
		if err != nil {
			return nil, err
		}
		return fitInteger(t, n)
	case abi.FixedBytesTy:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("need %d bytes, got %d", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	case abi.BytesTy:
		return toBytes(v)
	case abi.SliceTy, abi.ArrayTy:
		return convertList(t, v)
	default:
		return nil, fmt.Errorf("unsupported parameter type")
	}
	return nil, fmt.Errorf("cannot use %T", v)
}

// convertList accepts a value already of the ABI's Go type, or a []any whose
// elements convert individually.
func convertList(t abi.Type, v any) (any, error) {
	goType := t.GetType()
	if v != nil && reflect.TypeOf(v) == goType {
		return v, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("cannot use %T as %s", v, t)
	}
	if t.T == abi.ArrayTy && len(items) != t.Size {
		return nil, fmt.Errorf("need %d elements, got %d", t.Size, len(items))
	}

	var out reflect.Value
	if t.T == abi.ArrayTy {
		out = reflect.New(goType).Elem()
	} else {
		out = reflect.MakeSlice(goType, len(items), len(items))
	}
	for i, item := range items {
		conv, err := convert(*t.Elem, item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(reflect.ValueOf(conv))
	}
	return out.Interface(), nil
}

func toBig(v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		return x, nil
	case string:
		n, ok := new(big.Int).SetString(x, 0)
		if !ok {
			return nil, fmt.Errorf("%q is not an integer", x)
		}
		return n, nil
	case bool:
		if x {
			return big.NewInt(1), nil
		}
		return new(big.Int), nil
	}
	return nil, fmt.Errorf("cannot use %T as an integer", v)
}

func toBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case common.Address:
		return x.Bytes(), nil
	case string:
		b, err := hexutil.Decode(x)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", x, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("cannot use %T as bytes", v)
}

// fitInteger range-checks n and returns the Go type go-ethereum packs for t:
// sized ints up to 64 bits, *big.Int above.
func fitInteger(t abi.Type, n *big.Int) (any, error) {
	signed := t.T == abi.IntTy
	if !signed && n.Sign() < 0 {
		return nil, fmt.Errorf("%s is negative", n)
	}
	bits := uint(t.Size)
	if signed {
		limit := new(big.Int).Lsh(big.NewInt(1), bits-1)
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, fmt.Errorf("%s overflows %s", n, t)
		}
	} else if n.BitLen() > int(bits) {
		return nil, fmt.Errorf("%s overflows %s", n, t)
	}

	switch {
	case t.Size > 64:
		return new(big.Int).Set(n), nil
	case signed:
		x := n.Int64()
		switch t.Size {
		case 8:
			return int8(x), nil
		case 16:
			return int16(x), nil
		case 32:
			return int32(x), nil
		case 64:
			return x, nil
		}
	default:
		x := n.Uint64()
		switch t.Size {
		case 8:
			return uint8(x), nil
		case 16:
			return uint16(x), nil
		case 32:
			return uint32(x), nil
		case 64:
			return x, nil
		}
	}
	// Odd widths such as uint24 are packed from *big.Int.
	return new(big.Int).Set(n), nil
}
