package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.ActionsTotal.WithLabelValues("buy", "confirmed").Inc()
	m.SaleTokensSold.Set(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("buy", "confirmed")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.SaleTokensSold))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRecordRPCCall_CountsErrors(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.RPCCallErrors.WithLabelValues("getBalance"))

	RecordRPCCall("getBalance", 0.01, nil)
	RecordRPCCall("getBalance", 0.02, errors.New("boom"))

	after := testutil.ToFloat64(DefaultMetrics.RPCCallErrors.WithLabelValues("getBalance"))
	assert.Equal(t, before+1, after)
}

func TestUpdateSale_Remaining(t *testing.T) {
	UpdateSale(100, 30)
	assert.Equal(t, 70.0, testutil.ToFloat64(DefaultMetrics.SaleRemaining))

	// Oversold values clamp to zero.
	UpdateSale(10, 30)
	assert.Equal(t, 0.0, testutil.ToFloat64(DefaultMetrics.SaleRemaining))
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{302, "3xx"},
		{409, "4xx"},
		{502, "5xx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusLabel(tt.code))
	}
}

func TestSetupTracing_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "test-service", "")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupTracing_CreatesProvider(t *testing.T) {
	// Non-routable address so nothing is exported.
	shutdown, err := SetupTracing(context.Background(), "test-service", "http://192.0.2.1:4318")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
