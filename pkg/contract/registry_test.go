package contract_test

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemforge/stemforge/pkg/contract"
)

func TestDefault_LoadsEmbeddedContracts(t *testing.T) {
	t.Parallel()

	reg, err := contract.Default()
	require.NoError(t, err)

	assert.Positive(t, reg.Len())
}

func TestRegistry_AllInOrder_SortedByOrdinal(t *testing.T) {
	t.Parallel()

	reg, err := contract.Default()
	require.NoError(t, err)

	all := reg.AllInOrder()
	sorted := sort.SliceIsSorted(all, func(i, j int) bool {
		if all[i].Ordinal != all[j].Ordinal {
			return all[i].Ordinal < all[j].Ordinal
		}

		return all[i].ID < all[j].ID
	})

	assert.True(t, sorted)
}

func TestRegistry_Get_UnknownStage(t *testing.T) {
	t.Parallel()

	reg, err := contract.Default()
	require.NoError(t, err)

	_, err = reg.Get("no-such-stage")
	require.ErrorIs(t, err, contract.ErrUnknownStage)
}

func TestRegistry_Get_KnownStage(t *testing.T) {
	t.Parallel()

	reg, err := contract.Default()
	require.NoError(t, err)

	c, err := reg.Get("limiter")
	require.NoError(t, err)

	assert.Equal(t, "limiter", c.ID)
	assert.Equal(t, contract.KindMixdownDSP, c.Kind)
	assert.InDelta(t, -14.0, c.Metrics["target_lufs"], 1e-9)
}

func TestLoad_OrdinalTiesBreakByID(t *testing.T) {
	t.Parallel()

	doc := `{
		"stages": {
			"zeta":  {"id": "zeta",  "name": "Z", "ordinal": 5, "kind": "analysis"},
			"alpha": {"id": "alpha", "name": "A", "ordinal": 5, "kind": "analysis"}
		}
	}`

	reg, err := contract.Load(strings.NewReader(doc))
	require.NoError(t, err)

	all := reg.AllInOrder()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].ID)
	assert.Equal(t, "zeta", all[1].ID)
}

func TestLoad_RejectsUnknownKind(t *testing.T) {
	t.Parallel()

	doc := `{
		"stages": {
			"x": {"id": "x", "name": "X", "ordinal": 1, "kind": "magical"}
		}
	}`

	_, err := contract.Load(strings.NewReader(doc))
	require.ErrorIs(t, err, contract.ErrInvalidContract)
}

func TestLoad_RejectsUndeclaredDependency(t *testing.T) {
	t.Parallel()

	doc := `{
		"stages": {
			"x": {"id": "x", "name": "X", "ordinal": 1, "kind": "analysis", "depends_on": ["ghost"]}
		}
	}`

	_, err := contract.Load(strings.NewReader(doc))
	require.ErrorIs(t, err, contract.ErrInvalidContract)
}

func TestLoad_RejectsMissingRequiredField(t *testing.T) {
	t.Parallel()

	doc := `{"stages": {"x": {"id": "x", "ordinal": 1}}}`

	_, err := contract.Load(strings.NewReader(doc))
	require.ErrorIs(t, err, contract.ErrInvalidContract)
}

func TestKind_MutatesStems(t *testing.T) {
	t.Parallel()

	assert.True(t, contract.KindStemsDSP.MutatesStems())
	assert.True(t, contract.KindStructural.MutatesStems())
	assert.False(t, contract.KindAnalysis.MutatesStems())
	assert.False(t, contract.KindMixdownDSP.MutatesStems())
}
