package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldhook/internal/types"
)

func TestHandleEventCountsAmounts(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.HandleEvent(ctx, types.RouterEvent{Type: types.EventAssetStaked, Asset: "uusdc", Amount: sdkmath.NewInt(800)}))
	require.NoError(t, m.HandleEvent(ctx, types.RouterEvent{Type: types.EventAssetStaked, Asset: "uusdc", Amount: sdkmath.NewInt(200)}))
	require.NoError(t, m.HandleEvent(ctx, types.RouterEvent{Type: types.EventAssetWithdrawn, Asset: "uusdc", Amount: sdkmath.NewInt(250)}))
	require.NoError(t, m.HandleEvent(ctx, types.RouterEvent{Type: types.EventYieldHarvested, Asset: "uusdc", Amount: sdkmath.NewInt(750), Claimed: sdkmath.NewInt(42)}))
	require.NoError(t, m.HandleEvent(ctx, types.RouterEvent{Type: types.EventReserveRatioUpdated, OldRatioBps: 2_000, NewRatioBps: 3_500}))

	require.Equal(t, float64(2), testutil.ToFloat64(m.events.WithLabelValues("ASSET_STAKED", "uusdc")))
	require.Equal(t, float64(1_000), testutil.ToFloat64(m.amounts.WithLabelValues("deposit", "uusdc")))
	require.Equal(t, float64(250), testutil.ToFloat64(m.amounts.WithLabelValues("withdraw", "uusdc")))
	require.Equal(t, float64(42), testutil.ToFloat64(m.claimed.WithLabelValues("uusdc")))
	require.Equal(t, float64(3_500), testutil.ToFloat64(m.reserveRatio))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	m := New()
	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/api/assets/{asset}/withdrawable", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/assets/uusdc/withdrawable", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("/api/assets/{asset}/withdrawable", "GET", "418")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "yieldhook_api_requests_total"))
}
