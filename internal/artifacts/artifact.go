// Package artifacts loads compiled contracts produced by Hardhat or Foundry
// and turns them into deployable components.
package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	// ErrMissing is returned when required artifacts are not found.
	ErrMissing = errors.New("artifacts: not found")

	// ErrInvalid is returned for artifacts that cannot be used.
	ErrInvalid = errors.New("artifacts: invalid")
)

// ContractArtifact is a compiled contract with its ABI and creation code.
type ContractArtifact struct {
	ContractName string          `json:"contractName,omitempty"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     Bytecode        `json:"bytecode"`

	// Path is the file the artifact was read from.
	Path string `json:"-"`

	parsed abi.ABI
}

// Bytecode decodes both the Hardhat form ("0x6080...") and the Foundry form
// ({"object": "0x6080..."}).
type Bytecode struct {
	Object string `json:"object"`
}

// UnmarshalJSON accepts a hex string or an object with an "object" field.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &b.Object)
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	b.Object = obj.Object
	return nil
}

// ParseArtifact decodes a single artifact file and validates its ABI and
// bytecode.
func ParseArtifact(data []byte) (*ContractArtifact, error) {
	var a ContractArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(a.ABI) == 0 {
		return nil, fmt.Errorf("%w: missing abi", ErrInvalid)
	}
	parsed, err := abi.JSON(bytes.NewReader(a.ABI))
	if err != nil {
		return nil, fmt.Errorf("%w: parse abi: %v", ErrInvalid, err)
	}
	a.parsed = parsed
	return &a, nil
}

// Parsed returns the decoded ABI.
func (a *ContractArtifact) Parsed() abi.ABI {
	return a.parsed
}

// Code returns the creation bytecode. Interfaces and abstract contracts have
// none and cannot be deployed.
func (a *ContractArtifact) Code() ([]byte, error) {
	obj := strings.TrimSpace(a.Bytecode.Object)
	if obj == "" || obj == "0x" {
		return nil, fmt.Errorf("%w: %s has no bytecode", ErrInvalid, a.name())
	}
	if strings.Contains(obj, "__") {
		return nil, fmt.Errorf("%w: %s has unlinked library references", ErrInvalid, a.name())
	}
	if !strings.HasPrefix(obj, "0x") {
		obj = "0x" + obj
	}
	code, err := hexutil.Decode(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %s bytecode: %v", ErrInvalid, a.name(), err)
	}
	return code, nil
}

// HasMethod reports whether the ABI declares method.
func (a *ContractArtifact) HasMethod(method string) bool {
	_, ok := a.parsed.Methods[method]
	return ok
}

// CreationData returns the bytecode followed by the encoded constructor
// arguments.
func (a *ContractArtifact) CreationData(args ...any) ([]byte, error) {
	code, err := a.Code()
	if err != nil {
		return nil, err
	}
	converted, err := ConvertArgs(a.parsed.Constructor.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("%s constructor: %w", a.name(), err)
	}
	packed, err := a.parsed.Pack("", converted...)
	if err != nil {
		return nil, fmt.Errorf("%s constructor: %w", a.name(), err)
	}
	return append(append([]byte(nil), code...), packed...), nil
}

// Pack encodes a method call after converting args to the ABI's types.
func (a *ContractArtifact) Pack(method string, args ...any) ([]byte, error) {
	m, ok := a.parsed.Methods[method]
	if !ok {
		return nil, fmt.Errorf("%s has no method %s", a.name(), method)
	}
	converted, err := ConvertArgs(m.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", a.name(), method, err)
	}
	return a.parsed.Pack(method, converted...)
}

// Unpack decodes a method's return data.
func (a *ContractArtifact) Unpack(method string, data []byte) ([]any, error) {
	return a.parsed.Unpack(method, data)
}

func (a *ContractArtifact) name() string {
	if a.ContractName != "" {
		return a.ContractName
	}
	return "contract"
}
