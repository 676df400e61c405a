package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"predictchain/core/events"
)

func TestMarketMetricsFollowEvents(t *testing.T) {
	m := Market()
	option := "yes"

	m.Emit(events.Burn{BurnType: events.BurnTypePredictionBet, Amount: 1000, BurnAmount: 10, PredictionOption: &option})
	m.Emit(events.PredictionPlaced{Amount: 1000, NetAmount: 985, BurnAmount: 10})
	m.Emit(events.PointsRedeemed{Amount: 40})

	require.Equal(t, 10.0, testutil.ToFloat64(m.burned.WithLabelValues("PredictionBet")))
	require.Equal(t, 1000.0, testutil.ToFloat64(m.betVolume))
	require.Equal(t, 40.0, testutil.ToFloat64(m.pointsFlows.WithLabelValues("redeemed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues(events.TypeBurn)))

	m.ObserveOperation("claim_reward", errors.New("nope"), time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("claim_reward", "rejected")))
}
