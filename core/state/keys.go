package state

import (
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	platformConfigKey = []byte("platform/config")
	accessRegistryKey = []byte("access/registry")
	marketSequenceKey = []byte("market/next-id")
	committeeKey      = []byte("committee/config")
	pointsSystemKey   = []byte("points/system")
)

func hexAddr(addr [20]byte) string {
	return strings.ToLower(ethcommon.Address(addr).Hex())
}

// MarketKey returns the storage key of a market record.
func MarketKey(id uint64) []byte {
	return []byte(fmt.Sprintf("market/%d", id))
}

// PredictionKey returns the storage key of a user's position on a market.
func PredictionKey(marketID uint64, user [20]byte) []byte {
	return []byte(fmt.Sprintf("market/%d/prediction/%s", marketID, hexAddr(user)))
}

func ProposalKey(marketID uint64) []byte {
	return []byte(fmt.Sprintf("committee/proposal/%d", marketID))
}

func PointsStatsKey(user [20]byte) []byte {
	return []byte("points/stats/" + hexAddr(user))
}

func RedemptionKey(id uint64) []byte {
	return []byte(fmt.Sprintf("points/redemption/%d", id))
}

func ProfileKey(user [20]byte) []byte {
	return []byte("points/profile/" + hexAddr(user))
}

// TokenBalanceKey is keyed by the upper-cased symbol.
func TokenBalanceKey(symbol string, addr [20]byte) []byte {
	return []byte(fmt.Sprintf("token/%s/balance/%s", strings.ToUpper(symbol), hexAddr(addr)))
}

func TokenSupplyKey(symbol string) []byte {
	return []byte(fmt.Sprintf("token/%s/supply", strings.ToUpper(symbol)))
}

func BurnProofKey(id string) []byte {
	return []byte("burn/proof/" + id)
}
