package genesis

import (
	"os"
	"path/filepath"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const sampleGenesis = `{
  "platform": {
    "authority": "0x00000000000000000000000000000000000000a1",
    "treasury": "0x00000000000000000000000000000000000000e7",
    "betBurnRateBps": 100,
    "claimBurnRateBps": 150,
    "platformFeeBps": 50,
    "minBetAmount": "1000000"
  },
  "creators": ["0x00000000000000000000000000000000000000c0"],
  "committee": {
    "members": [
      "0x00000000000000000000000000000000000000d1",
      "0x00000000000000000000000000000000000000d2"
    ],
    "requiredApprovals": 2
  },
  "points": {
    "authority": "0x00000000000000000000000000000000000000a1",
    "endpoint": "https://settle.example/redeem",
    "minRedemptionAmount": "100",
    "cooldownSeconds": 3600
  },
  "alloc": {
    "0x00000000000000000000000000000000000000c0": "500000000",
    "0x0000000000000000000000000000000000000001": "1000"
  }
}`

func TestLoadSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleGenesis), 0o600))

	spec, err := LoadSpec(path)
	require.NoError(t, err)
	require.Equal(t, "PRED", spec.TokenSymbol)
	require.Equal(t, "PTS", spec.PointsSymbol)

	params := spec.PlatformParams()
	require.Equal(t, [20]byte(ethcommon.HexToAddress("0xa1")), params.Authority)
	require.EqualValues(t, 150, params.ClaimBurnRateBps)
	require.EqualValues(t, 1_000_000, params.MinBetAmount)

	require.Len(t, spec.CreatorAddresses(), 1)
	require.Len(t, spec.CommitteeMembers(), 2)
	require.NotNil(t, spec.PointsParams())
	require.EqualValues(t, 3600, spec.PointsParams().CooldownPeriod)

	allocs := spec.Allocations()
	require.Len(t, allocs, 2)
	require.EqualValues(t, 1000, allocs[0].Amount)
	require.EqualValues(t, 500_000_000, allocs[1].Amount)
}

func TestParseSpecRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"fee cap":       `{"platform":{"authority":"0x00000000000000000000000000000000000000a1","treasury":"0x00000000000000000000000000000000000000a1","platformFeeBps":501}}`,
		"bad address":   `{"platform":{"authority":"nope","treasury":"0x00000000000000000000000000000000000000a1"}}`,
		"threshold":     `{"platform":{"authority":"0x00000000000000000000000000000000000000a1","treasury":"0x00000000000000000000000000000000000000a1"},"committee":{"members":["0x00000000000000000000000000000000000000d1"],"requiredApprovals":2}}`,
		"unknown field": `{"platform":{"authority":"0x00000000000000000000000000000000000000a1","treasury":"0x00000000000000000000000000000000000000a1"},"surprise":true}`,
		"bad amount":    `{"platform":{"authority":"0x00000000000000000000000000000000000000a1","treasury":"0x00000000000000000000000000000000000000a1"},"alloc":{"0x00000000000000000000000000000000000000a1":"-5"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSpec([]byte(raw))
			require.Error(t, err)
		})
	}
}
