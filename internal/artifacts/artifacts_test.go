package artifacts

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/rollupctl/internal/chain"
	"github.com/Bidon15/rollupctl/internal/component"
	"github.com/Bidon15/rollupctl/internal/plan"
)

var deployer = common.HexToAddress("0x00000000000000000000000000000000000000de")

// recordingSubmitter mines everything instantly and remembers what it sent.
type recordingSubmitter struct {
	calls  []chain.Call
	reads  [][]byte
	result []byte
	nonce  uint64
	// failNth makes the nth send (1-based) revert.
	failNth int
}

func (s *recordingSubmitter) From() common.Address { return deployer }

func (s *recordingSubmitter) Send(_ context.Context, call chain.Call) (*types.Receipt, error) {
	s.calls = append(s.calls, call)
	if len(s.calls) == s.failNth {
		return nil, &chain.TxError{Hash: common.HexToHash("0xdead"), Err: chain.ErrReverted}
	}
	r := &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.BigToHash(new(big.Int).SetUint64(s.nonce + 1))}
	if call.To == nil {
		r.ContractAddress = crypto.CreateAddress(deployer, s.nonce)
	}
	s.nonce++
	return r, nil
}

func (s *recordingSubmitter) Call(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
	s.reads = append(s.reads, data)
	return s.result, nil
}

func loadTestLibrary(t *testing.T) *Library {
	t.Helper()
	a, err := LoadFromDirectory("testdata/hardhat", []string{"AddressManager", "TransparentUpgradeableProxy"})
	require.NoError(t, err)
	b, err := LoadFromDirectory("testdata/foundry", []string{"TestERC20"})
	require.NoError(t, err)

	all := map[string]*ContractArtifact{}
	for _, lib := range []*Library{a, b} {
		for _, n := range lib.Names() {
			art, err := lib.Get(n)
			require.NoError(t, err)
			all[n] = art
		}
	}
	return NewLibrary(all)
}

func TestLoadFromDirectory_Hardhat(t *testing.T) {
	lib, err := LoadFromDirectory("testdata/hardhat", []string{"AddressManager"})
	require.NoError(t, err)

	art, err := lib.Get("AddressManager")
	require.NoError(t, err)
	assert.True(t, art.HasMethod("setAddressBatch"))
	assert.True(t, art.HasMethod("getAddr"))
	assert.False(t, art.HasMethod("upgradeTo"))
	assert.Equal(t, filepath.Join("testdata", "hardhat", "contracts", "AddressManager.sol", "AddressManager.json"), art.Path)

	code, err := art.Code()
	require.NoError(t, err)
	assert.Equal(t, byte(0x60), code[0])
}

func TestLoadFromDirectory_Foundry(t *testing.T) {
	lib, err := LoadFromDirectory("testdata/foundry", []string{"TestERC20"})
	require.NoError(t, err)

	art, err := lib.Get("TestERC20")
	require.NoError(t, err)
	assert.Equal(t, "TestERC20", art.ContractName)
	code, err := art.Code()
	require.NoError(t, err)
	assert.Len(t, code, 8)
}

func TestLoadFromDirectory_ReportsAllMissing(t *testing.T) {
	_, err := LoadFromDirectory("testdata/hardhat", []string{"AddressManager", "Whitelist", "Challenge"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissing)
	assert.Contains(t, err.Error(), "Whitelist, Challenge")
}

func TestLoadFromDirectory_Errors(t *testing.T) {
	_, err := LoadFromDirectory("testdata/nope", nil)
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "Dup.json"), []byte(`{"abi": []}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b", "Dup.json"), []byte(`{"abi": []}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Broken.json"), []byte(`{"abi": "nope"}`), 0o644))

	_, err = LoadFromDirectory(dir, []string{"Dup", "Broken"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "ambiguous")
	assert.Contains(t, err.Error(), "Broken.json")
}

func TestContractArtifact_Code(t *testing.T) {
	tests := []struct {
		name    string
		object  string
		wantErr string
	}{
		{name: "abstract", object: "0x", wantErr: "no bytecode"},
		{name: "unlinked", object: "0x6080__$a1b2$__", wantErr: "unlinked"},
		{name: "odd length", object: "0x608", wantErr: "bytecode"},
		{name: "missing prefix", object: "6080"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := &ContractArtifact{ContractName: "X", Bytecode: Bytecode{Object: tc.object}}
			code, err := a.Code()
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalid)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []byte{0x60, 0x80}, code)
		})
	}
}

func TestCreationData_EncodesConstructor(t *testing.T) {
	lib := loadTestLibrary(t)
	token, err := lib.Get("TestERC20")
	require.NoError(t, err)

	data, err := token.CreationData("Fee", big.NewInt(18), big.NewInt(1000))
	require.NoError(t, err)
	// 8 bytes of code, three head words, then the string's length and body.
	assert.Len(t, data, 8+5*32)
	assert.Equal(t, byte(18), data[8+2*32-1])

	_, err = token.CreationData("Fee", big.NewInt(300), big.NewInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflows")

	_, err = token.CreationData("Fee")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects 3 arguments")
}

func TestConvertArgs(t *testing.T) {
	mustType := func(s string) abi.Type {
		typ, err := abi.NewType(s, "", nil)
		require.NoError(t, err)
		return typ
	}
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	word := "0x" + common.Bytes2Hex(common.LeftPadBytes([]byte{1}, 32))

	tests := []struct {
		name    string
		typ     string
		in      any
		want    any
		wantErr string
	}{
		{name: "uint256", typ: "uint256", in: big.NewInt(7), want: big.NewInt(7)},
		{name: "uint8", typ: "uint8", in: big.NewInt(18), want: uint8(18)},
		{name: "uint64 from string", typ: "uint64", in: "0x10", want: uint64(16)},
		{name: "int32 negative", typ: "int32", in: big.NewInt(-5), want: int32(-5)},
		{name: "uint24 stays big", typ: "uint24", in: big.NewInt(9), want: big.NewInt(9)},
		{name: "uint8 overflow", typ: "uint8", in: big.NewInt(256), wantErr: "overflows"},
		{name: "int8 underflow", typ: "int8", in: big.NewInt(-129), wantErr: "overflows"},
		{name: "negative uint", typ: "uint256", in: big.NewInt(-1), wantErr: "negative"},
		{name: "address", typ: "address", in: addr, want: addr},
		{name: "address from string", typ: "address", in: addr.Hex(), want: addr},
		{name: "bad address", typ: "address", in: "DAO", wantErr: "not an address"},
		{name: "bool", typ: "bool", in: true, want: true},
		{name: "bool mismatch", typ: "bool", in: "true", wantErr: "cannot use string"},
		{name: "string", typ: "string", in: "RollupStateChain", want: "RollupStateChain"},
		{name: "bytes32", typ: "bytes32", in: word, want: [32]byte(common.LeftPadBytes([]byte{1}, 32))},
		{name: "bytes32 short", typ: "bytes32", in: "0x01", wantErr: "need 32 bytes"},
		{name: "bytes", typ: "bytes", in: "0xdead", want: []byte{0xde, 0xad}},
		{name: "address slice", typ: "address[]", in: []common.Address{addr}, want: []common.Address{addr}},
		{name: "string slice from any", typ: "string[]", in: []any{"A", "B"}, want: []string{"A", "B"}},
		{name: "fixed array", typ: "uint8[2]", in: []any{big.NewInt(1), big.NewInt(2)}, want: [2]uint8{1, 2}},
		{name: "fixed array length", typ: "uint8[2]", in: []any{big.NewInt(1)}, wantErr: "need 2 elements"},
		{name: "slice element", typ: "address[]", in: []any{"nope"}, wantErr: "element 0"},
		{name: "slice mismatch", typ: "address[]", in: addr, wantErr: "cannot use"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inputs := abi.Arguments{{Name: "x", Type: mustType(tc.typ)}}
			got, err := ConvertArgs(inputs, []any{tc.in})
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got[0])
		})
	}
}

func TestFactory_DeploysPlainComponent(t *testing.T) {
	sub := &recordingSubmitter{}
	f := NewFactory(loadTestLibrary(t), sub, "", nil)

	h, err := f.Handle(&plan.Descriptor{Name: "FeeToken", Artifact: "TestERC20"})
	require.NoError(t, err)

	inst, err := h.Instantiate(context.Background(), component.Request{
		Args: []any{"Fee", big.NewInt(18), big.NewInt(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(deployer, 0), inst.Address)
	assert.Nil(t, inst.Implementation)
	require.Len(t, sub.calls, 1)
	assert.Nil(t, sub.calls[0].To)
}

func TestFactory_DeploysBehindProxy(t *testing.T) {
	sub := &recordingSubmitter{}
	f := NewFactory(loadTestLibrary(t), sub, "", nil)
	admin := common.HexToAddress("0x00000000000000000000000000000000000000ad")

	h, err := f.Handle(&plan.Descriptor{Name: "AddressManager", Proxy: true})
	require.NoError(t, err)

	inst, err := h.Instantiate(context.Background(), component.Request{ProxyAdmin: &admin})
	require.NoError(t, err)

	impl := crypto.CreateAddress(deployer, 0)
	require.NotNil(t, inst.Implementation)
	assert.Equal(t, impl, *inst.Implementation)
	assert.Equal(t, crypto.CreateAddress(deployer, 1), inst.Address)

	require.Len(t, sub.calls, 2)
	proxyData := sub.calls[1].Data
	proxyCode := 4
	assert.Equal(t, impl.Bytes(), proxyData[proxyCode+12:proxyCode+32])
	assert.Equal(t, admin.Bytes(), proxyData[proxyCode+44:proxyCode+64])
}

func TestFactory_ProxyFailureReturnsImplementation(t *testing.T) {
	sub := &recordingSubmitter{failNth: 2}
	f := NewFactory(loadTestLibrary(t), sub, "", nil)

	h, err := f.Handle(&plan.Descriptor{Name: "AddressManager", Proxy: true})
	require.NoError(t, err)

	inst, err := h.Instantiate(context.Background(), component.Request{})
	require.ErrorIs(t, err, chain.ErrReverted)
	require.NotNil(t, inst)
	require.NotNil(t, inst.Implementation)
	assert.Equal(t, crypto.CreateAddress(deployer, 0), *inst.Implementation)
	assert.Equal(t, common.BigToHash(big.NewInt(1)), inst.ImplementationTx)
	assert.Equal(t, common.Address{}, inst.Address)
}

func TestFactory_ReusesImplementation(t *testing.T) {
	sub := &recordingSubmitter{}
	f := NewFactory(loadTestLibrary(t), sub, "", nil)
	impl := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	h, err := f.Handle(&plan.Descriptor{Name: "AddressManager", Proxy: true})
	require.NoError(t, err)

	inst, err := h.Instantiate(context.Background(), component.Request{Implementation: &impl})
	require.NoError(t, err)
	require.Len(t, sub.calls, 1, "only the proxy is deployed")
	assert.Equal(t, impl.Bytes(), sub.calls[0].Data[4+12:4+32])
	assert.Equal(t, impl, *inst.Implementation)
	assert.Equal(t, common.Hash{}, inst.ImplementationTx)
	assert.Equal(t, crypto.CreateAddress(deployer, 0), inst.Address)
}

func TestFactory_MissingProxyArtifact(t *testing.T) {
	lib, err := LoadFromDirectory("testdata/hardhat", []string{"AddressManager"})
	require.NoError(t, err)
	f := NewFactory(lib, &recordingSubmitter{}, "", nil)

	_, err = f.Handle(&plan.Descriptor{Name: "AddressManager", Proxy: true})
	assert.ErrorIs(t, err, ErrMissing)
}

func TestContract_TransactAndCall(t *testing.T) {
	lib := loadTestLibrary(t)
	art, err := lib.Get("AddressManager")
	require.NoError(t, err)
	sub := &recordingSubmitter{}
	target := common.HexToAddress("0x0000000000000000000000000000000000000011")
	c := NewContract("AddressManager", target, art, sub)

	_, err = c.Transact(context.Background(), "setAddress", "RollupStateChain", target)
	require.NoError(t, err)
	require.Len(t, sub.calls, 1)
	assert.Equal(t, target, *sub.calls[0].To)

	_, err = c.Transact(context.Background(), "upgradeTo", target)
	assert.ErrorIs(t, err, component.ErrUnknownMethod)

	_, err = c.Call(context.Background(), "getAddr", "RollupStateChain")
	assert.ErrorIs(t, err, component.ErrEmptyResult)

	sub.result = common.LeftPadBytes(target.Bytes(), 32)
	out, err := c.Call(context.Background(), "getAddr", "RollupStateChain")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, target, out[0])
}

func TestRequiredNames(t *testing.T) {
	f := &plan.File{
		Version: 1,
		Components: []plan.Descriptor{
			{Name: "AddressManager", Proxy: true},
			{Name: "FeeToken", Artifact: "TestERC20"},
			{Name: "Whitelist", Proxy: true},
		},
	}
	p, err := plan.Build(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"AddressManager", "TransparentUpgradeableProxy", "TestERC20", "Whitelist"}, RequiredNames(p))
}
