package access

import (
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"predictchain/core/types"
)

func creatorEvent(eventType string, admin, creator [20]byte, ts int64) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"admin":     ethcommon.BytesToAddress(admin[:]).Hex(),
			"creator":   ethcommon.BytesToAddress(creator[:]).Hex(),
			"timestamp": strconv.FormatInt(ts, 10),
		},
	}
}
