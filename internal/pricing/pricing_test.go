package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCostKnownKinds(t *testing.T) {
	table := NewTable()

	cases := map[ActionKind]int64{
		KindTextGeneration:    5,
		KindImageGeneration:   10,
		KindCodeGeneration:    8,
		KindDataAnalysis:      15,
		KindTextSummarization: 3,
		KindSEOOptimization:   12,
	}
	for kind, want := range cases {
		cost, err := table.Cost(kind)
		require.NoError(t, err, "kind %s", kind)
		require.Equal(t, want, cost, "kind %s", kind)
	}
}

func TestCostUnknownKind(t *testing.T) {
	table := NewTable()

	_, err := table.Cost("video_generation")
	require.True(t, errors.Is(err, ErrUnknownActionKind))
}

func TestParseKindNormalizes(t *testing.T) {
	table := NewTable()

	kind, err := table.ParseKind("  Text_Generation ")
	require.NoError(t, err)
	require.Equal(t, KindTextGeneration, kind)

	_, err = table.ParseKind("")
	require.True(t, errors.Is(err, ErrUnknownActionKind))
}

func TestKindsStableOrder(t *testing.T) {
	table := NewTable()

	kinds := table.Kinds()
	require.Len(t, kinds, 6)
	for i := 1; i < len(kinds); i++ {
		require.Less(t, string(kinds[i-1]), string(kinds[i]))
	}
}
