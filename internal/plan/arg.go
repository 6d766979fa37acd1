package plan

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Kind identifies which variant an Arg holds.
type Kind uint8

const (
	KindNumber Kind = iota + 1
	KindString
	KindBool
	KindRef
	KindEnv
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindRef:
		return "ref"
	case KindEnv:
		return "env"
	case KindArray:
		return "array"
	default:
		return "unset"
	}
}

// Arg is a constructor or initializer argument. It is either a literal or a
// reference to another component's logical name, resolved only when the
// transaction that uses it is built.
type Arg struct {
	kind  Kind
	num   *big.Int
	str   string
	b     bool
	elems []Arg
}

// Number returns a literal numeric argument.
func Number(n *big.Int) Arg {
	return Arg{kind: KindNumber, num: new(big.Int).Set(n)}
}

// Uint returns a literal numeric argument.
func Uint(v uint64) Arg {
	return Arg{kind: KindNumber, num: new(big.Int).SetUint64(v)}
}

// String returns a literal string argument.
func String(s string) Arg {
	return Arg{kind: KindString, str: s}
}

// Bool returns a literal boolean argument.
func Bool(b bool) Arg {
	return Arg{kind: KindBool, b: b}
}

// Ref returns an argument that resolves to the address bound to name.
func Ref(name string) Arg {
	return Arg{kind: KindRef, str: name}
}

// Env returns an argument read from the named environment variable when the
// plan is built.
func Env(name string) Arg {
	return Arg{kind: KindEnv, str: name}
}

// Array returns a list argument, packed as an ABI array or slice.
func Array(elems ...Arg) Arg {
	return Arg{kind: KindArray, elems: append([]Arg{}, elems...)}
}

// Kind returns the variant held by the argument.
func (a Arg) Kind() Kind {
	return a.kind
}

// IsZero reports whether the argument was never set.
func (a Arg) IsZero() bool {
	return a.kind == 0
}

// RefName returns the referenced logical name for KindRef arguments.
func (a Arg) RefName() (string, bool) {
	if a.kind != KindRef {
		return "", false
	}
	return a.str, true
}

// Elems returns the elements of a KindArray argument.
func (a Arg) Elems() []Arg {
	return append([]Arg(nil), a.elems...)
}

// Refs returns every name the argument references, including references
// nested in arrays.
func (a Arg) Refs() []string {
	switch a.kind {
	case KindRef:
		return []string{a.str}
	case KindArray:
		var names []string
		for _, e := range a.elems {
			names = append(names, e.Refs()...)
		}
		return names
	default:
		return nil
	}
}

// String renders the argument for display.
func (a Arg) String() string {
	switch a.kind {
	case KindNumber:
		return a.num.String()
	case KindString:
		return strconv.Quote(a.str)
	case KindBool:
		return strconv.FormatBool(a.b)
	case KindRef:
		return "ref(" + a.str + ")"
	case KindEnv:
		return "env(" + a.str + ")"
	case KindArray:
		parts := make([]string, len(a.elems))
		for i, e := range a.elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "<unset>"
	}
}

// Lookup returns the address bound to a logical name.
type Lookup func(name string) (common.Address, bool)

// Value returns the Go value handed to the ABI encoder: *big.Int, string,
// bool, common.Address, or []any for arrays.
func (a Arg) Value(lookup Lookup) (any, error) {
	switch a.kind {
	case KindNumber:
		return new(big.Int).Set(a.num), nil
	case KindString:
		return a.str, nil
	case KindBool:
		return a.b, nil
	case KindRef:
		if lookup != nil {
			if addr, ok := lookup(a.str); ok {
				return addr, nil
			}
		}
		return nil, fmt.Errorf("%w: %s has no bound address", ErrDependencyUnresolved, a.str)
	case KindEnv:
		return nil, fmt.Errorf("%w: %s", ErrMissingEnv, a.str)
	case KindArray:
		return Values(a.elems, lookup)
	default:
		return nil, fmt.Errorf("%w: empty value", ErrInvalidArgument)
	}
}

// Values resolves a list of arguments in order.
func Values(args []Arg, lookup Lookup) ([]any, error) {
	out := make([]any, 0, len(args))
	for i, arg := range args {
		v, err := arg.Value(lookup)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (a Arg) expandEnv(lookupEnv func(string) (string, bool)) (Arg, error) {
	if a.kind == KindArray {
		out := Arg{kind: KindArray, elems: make([]Arg, len(a.elems))}
		for i, e := range a.elems {
			v, err := e.expandEnv(lookupEnv)
			if err != nil {
				return Arg{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.elems[i] = v
		}
		return out, nil
	}
	if a.kind != KindEnv {
		return a, nil
	}
	v, ok := lookupEnv(a.str)
	if !ok {
		return Arg{}, fmt.Errorf("%w: %s", ErrMissingEnv, a.str)
	}
	return String(v), nil
}

// argObject is the mapping form of an argument in plan files.
type argObject struct {
	Ref    string `yaml:"ref"`
	Env    string `yaml:"env"`
	Number string `yaml:"number"`
	Ether  string `yaml:"ether"`
	Gwei   string `yaml:"gwei"`
}

// UnmarshalYAML decodes scalars as literals, sequences as arrays, and
// mappings as one of {ref: Name}, {env: VAR}, {number: "..."},
// {ether: "..."} or {gwei: "..."}.
func (a *Arg) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return a.decodeScalar(value)
	case yaml.SequenceNode:
		elems := make([]Arg, len(value.Content))
		for i, node := range value.Content {
			if err := elems[i].UnmarshalYAML(node); err != nil {
				return err
			}
		}
		*a = Arg{kind: KindArray, elems: elems}
		return nil
	case yaml.MappingNode:
		var obj argObject
		if err := value.Decode(&obj); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrInvalidArgument, value.Line, err)
		}
		return a.decodeObject(obj, value.Line)
	default:
		return fmt.Errorf("%w: line %d: expected a scalar, sequence or mapping", ErrInvalidArgument, value.Line)
	}
}

func (a *Arg) decodeScalar(value *yaml.Node) error {
	switch value.ShortTag() {
	case "!!int":
		n, ok := new(big.Int).SetString(value.Value, 0)
		if !ok {
			return fmt.Errorf("%w: line %d: bad integer %q", ErrInvalidArgument, value.Line, value.Value)
		}
		*a = Number(n)
	case "!!bool":
		b, err := strconv.ParseBool(value.Value)
		if err != nil {
			return fmt.Errorf("%w: line %d: bad bool %q", ErrInvalidArgument, value.Line, value.Value)
		}
		*a = Bool(b)
	case "!!str":
		*a = String(value.Value)
	case "!!float":
		return fmt.Errorf("%w: line %d: fractional numbers need {ether: ...} or {gwei: ...}", ErrInvalidArgument, value.Line)
	default:
		return fmt.Errorf("%w: line %d: unsupported value %q", ErrInvalidArgument, value.Line, value.Value)
	}
	return nil
}

func (a *Arg) decodeObject(obj argObject, line int) error {
	set := 0
	for _, s := range []string{obj.Ref, obj.Env, obj.Number, obj.Ether, obj.Gwei} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: line %d: exactly one of ref, env, number, ether or gwei is required", ErrInvalidArgument, line)
	}

	switch {
	case obj.Ref != "":
		*a = Ref(obj.Ref)
	case obj.Env != "":
		*a = Env(obj.Env)
	case obj.Number != "":
		n, ok := new(big.Int).SetString(obj.Number, 0)
		if !ok {
			return fmt.Errorf("%w: line %d: bad number %q", ErrInvalidArgument, line, obj.Number)
		}
		*a = Number(n)
	case obj.Ether != "":
		n, err := ParseUnits(obj.Ether, 18)
		if err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrInvalidArgument, line, err)
		}
		*a = Number(n)
	case obj.Gwei != "":
		n, err := ParseUnits(obj.Gwei, 9)
		if err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrInvalidArgument, line, err)
		}
		*a = Number(n)
	}
	return nil
}

// ParseUnits converts a decimal string such as "1.5" into an integer scaled
// by 10^decimals.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative amount %q", s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))

	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("bad amount %q", s)
	}
	return n, nil
}
