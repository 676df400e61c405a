package burn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBetSplit(t *testing.T) {
	cases := []struct {
		name   string
		amount uint64
		burn   uint16
		fee    uint16
		want   Split
	}{
		{"round numbers", 1000, 100, 50, Split{Gross: 1000, Burn: 10, Fee: 5, Net: 985}},
		{"rounds down", 999, 150, 0, Split{Gross: 999, Burn: 14, Net: 985}},
		{"zero rates", 42, 0, 0, Split{Gross: 42, Net: 42}},
		{"caps", 10_000, 1000, 500, Split{Gross: 10_000, Burn: 1000, Fee: 500, Net: 8500}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BetSplit(tc.amount, tc.burn, tc.fee)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			require.Equal(t, got.Gross, got.Burn+got.Fee+got.Net)
		})
	}
}

func TestClaimSplit(t *testing.T) {
	got, err := ClaimSplit(333, 150)
	require.NoError(t, err)
	require.Equal(t, Split{Gross: 333, Burn: 4, Net: 329}, got)

	require.Equal(t, Split{Gross: 9, Burn: 9}, Full(9))
}
