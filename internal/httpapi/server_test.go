package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-ico/internal/domain"
	"solana-ico/internal/ico"
	"solana-ico/internal/ico/icotest"
	"solana-ico/internal/storage/memory"
	"solana-ico/internal/wallet"
)

const sol = 1_000_000_000

type testEnv struct {
	chain   *icotest.Chain
	relay   *wallet.Keypair
	actions *memory.ActionStore
	snaps   *memory.SnapshotStore
	server  *httptest.Server
}

func newTestEnv(t *testing.T, saleTokens uint64) *testEnv {
	t.Helper()
	chain := icotest.NewChain(t)
	relay := chain.NewKeypair(t, sol)
	if saleTokens > 0 {
		chain.PutSale(t, chain.NewKeypair(t, 0).PublicKey(), saleTokens, 0)
	}

	actions := memory.NewActionStore()
	snaps := memory.NewSnapshotStore()
	session := ico.NewSession(chain.NewClient(relay), ico.WithActionStore(actions))
	require.NoError(t, session.Refresh(context.Background()))

	srv := New(session,
		WithActionStore(actions),
		WithSnapshotStore(snaps),
		WithStatus(func() interface{} { return map[string]string{"watcher": "running"} }),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{chain: chain, relay: relay, actions: actions, snaps: snaps, server: ts}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, body := env.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, env.relay.PublicKey().String(), status.Wallet)
	assert.NotNil(t, status.Components)
}

func TestState(t *testing.T) {
	env := newTestEnv(t, 1000)
	resp, body := env.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st ico.State
	require.NoError(t, json.Unmarshal(body, &st))
	assert.True(t, st.Connected)
	assert.False(t, st.IsAdmin)
	require.NotNil(t, st.Sale)
	assert.Equal(t, uint64(1000), st.Sale.TotalTokens)
}

func TestBuy(t *testing.T) {
	env := newTestEnv(t, 1000)

	resp, body := env.do(t, http.MethodPost, "/api/amount", `{"amount":"12"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = env.do(t, http.MethodPost, "/api/buy", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out ActionResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.NotEmpty(t, out.Signature)
	assert.NotEmpty(t, out.TokenAccountTx)
	assert.Equal(t, uint64(12_000_000), out.Lamports)
	assert.Equal(t, uint64(12), out.State.Sale.TokensSold)

	resp, body = env.do(t, http.MethodGet, "/api/actions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var actions []domain.Action
	require.NoError(t, json.Unmarshal(body, &actions))
	assert.Len(t, actions, 2)
}

func TestActionErrors(t *testing.T) {
	tests := []struct {
		name     string
		sale     uint64
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"invalid amount", 1000, "/api/buy", `{"amount":"0"}`, http.StatusBadRequest, "invalid_amount"},
		{"non numeric", 1000, "/api/deposit", `{"amount":"ten"}`, http.StatusBadRequest, "invalid_amount"},
		{"no sale", 0, "/api/buy", `{"amount":"1"}`, http.StatusNotFound, "sale_not_initialized"},
		{"insufficient balance", 1000, "/api/buy", `{"amount":"1000000"}`, http.StatusPaymentRequired, "insufficient_balance"},
		{"not admin", 1000, "/api/deposit", `{"amount":"5"}`, http.StatusUnprocessableEntity, "program_error"},
		{"bad json", 1000, "/api/buy", `{"amount":`, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.sale)
			resp, body := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, resp.StatusCode, string(body))

			var er ErrorResponse
			require.NoError(t, json.Unmarshal(body, &er))
			assert.Equal(t, tt.wantErr, er.Error)
			assert.NotEmpty(t, er.Message)
		})
	}
}

func TestInitializeAndDeposit(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, body := env.do(t, http.MethodPost, "/api/initialize", `{"amount":"500"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out ActionResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.True(t, out.State.IsAdmin)
	assert.Equal(t, uint64(500), out.State.Sale.TotalTokens)

	resp, body = env.do(t, http.MethodPost, "/api/deposit", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, uint64(1000), out.State.Sale.TotalTokens)
}

func TestSnapshots(t *testing.T) {
	env := newTestEnv(t, 1000)
	ctx := context.Background()
	sale := &domain.Sale{Address: "sale1", Admin: "admin", TotalTokens: 1000}
	for _, ts := range []int64{1000, 2000, 3000} {
		require.NoError(t, env.snaps.Insert(ctx, domain.NewSaleSnapshot(sale, ts, "", ts)))
	}

	resp, body := env.do(t, http.MethodGet, "/api/snapshots?sale=sale1&start=1500&end=3000", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var snaps []domain.SaleSnapshot
	require.NoError(t, json.Unmarshal(body, &snaps))
	assert.Len(t, snaps, 2)

	resp, _ = env.do(t, http.MethodGet, "/api/snapshots?sale=sale1&start=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestActions_BadLimit(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, _ := env.do(t, http.MethodGet, "/api/actions?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, _ := env.do(t, http.MethodGet, "/api/buy", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestErrorStatus(t *testing.T) {
	code, resp := errorStatus(ico.ErrBusy)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "busy", resp.Error)

	code, resp = errorStatus(&ico.ProgramError{Code: 6000, Name: "Overflow"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, uint32(6000), resp.Code)

	code, _ = errorStatus(ico.ErrConfirmTimeout)
	assert.Equal(t, http.StatusGatewayTimeout, code)

	code, _ = errorStatus(io.ErrUnexpectedEOF)
	assert.Equal(t, http.StatusBadGateway, code)
}
