package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/rollupctl/internal/plan"
)

func TestL1Rollup(t *testing.T) {
	f, err := plan.Parse(L1Rollup)
	require.NoError(t, err)

	p, err := plan.Build(f)
	require.NoError(t, err)

	reg, ok := p.Registry()
	require.True(t, ok)
	assert.Equal(t, "AddressManager", reg.Name)
	assert.Equal(t, 15, p.Len())
	assert.Len(t, p.Externals(), 3)

	order := make(map[string]int)
	for i, d := range p.Descriptors() {
		order[d.Name] = i
	}
	assert.Less(t, order["ChallengeLogic"], order["ChallengeBeacon"])

	logic, _ := p.Descriptor("ChallengeLogic")
	assert.False(t, logic.Registered())
	assert.Len(t, p.Initializers(), 10)

	for name, key := range map[string]string{
		"StateChainStorage": "RollupStateChainContainer",
		"InputChainStorage": "RollupInputChainContainer",
	} {
		d, ok := p.Descriptor(name)
		require.True(t, ok, name)
		assert.Equal(t, key, d.RegistryKey(), name)
	}
}

func TestL2Rollup(t *testing.T) {
	const owner = "0x00000000000000000000000000000000000000aa"
	f, err := plan.Parse(L2Rollup)
	require.NoError(t, err)

	p, err := plan.Build(f, plan.WithEnv(func(name string) (string, bool) {
		return owner, name == "L2_FEE_COLLECTOR_OWNER"
	}))
	require.NoError(t, err)

	_, ok := p.Registry()
	assert.False(t, ok)
	assert.Empty(t, p.Externals())

	names := make([]string, 0, p.Len())
	for _, d := range p.Descriptors() {
		assert.False(t, d.Proxy, d.Name)
		assert.Empty(t, d.Constructor, d.Name)
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"L2FeeCollector", "L2CrossLayerWitness"}, names)

	collector, _ := p.Descriptor("L2FeeCollector")
	assert.Equal(t, "transferOwnership", collector.Initializer.Method)
	require.Len(t, collector.Initializer.Args, 1)
	assert.Equal(t, `"`+owner+`"`, collector.Initializer.Args[0].String())

	witness, _ := p.Descriptor("L2CrossLayerWitness")
	assert.Equal(t, "initialize", witness.Initializer.Method)
	assert.Empty(t, witness.Initializer.Args)
}

func TestL2Rollup_RequiresOwner(t *testing.T) {
	f, err := plan.Parse(L2Rollup)
	require.NoError(t, err)

	_, err = plan.Build(f, plan.WithEnv(func(string) (string, bool) { return "", false }))
	require.ErrorIs(t, err, plan.ErrMissingEnv)
}

func TestTemplate(t *testing.T) {
	assert.Equal(t, []string{"l1-rollup", "l2-rollup"}, Names())

	data, err := Template(DefaultTemplate)
	require.NoError(t, err)
	assert.Equal(t, L1Rollup, data)

	data, err = Template("l2-rollup")
	require.NoError(t, err)
	assert.Equal(t, L2Rollup, data)

	_, err = Template("l3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown plan template")
}
