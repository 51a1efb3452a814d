package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"ssov/config"
	"ssov/storage"
)

var (
	ownerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	aliceAddr = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	buyerAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func testConfig() *config.Config {
	cfg := config.Default(ownerAddr.Hex())
	cfg.Vault.Collateral = config.CollateralToken
	cfg.Vault.NativeSymbol = ""
	cfg.Genesis = []config.Allocation{
		{Address: aliceAddr.Hex(), Asset: "WETH", Amount: "10"},
		{Address: buyerAddr.Hex(), Asset: "WETH", Amount: "1"},
	}
	return cfg
}

func newTestServer(t *testing.T, limit RateLimit) (*Server, *Vault) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	vault, err := OpenVault(testConfig(), storage.NewMemDB(), logger)
	require.NoError(t, err)
	srv, err := New(Config{Vault: vault, RateLimit: limit, Logger: logger})
	require.NoError(t, err)
	return srv, vault
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestVaultLifecycleOverHTTP(t *testing.T) {
	srv, vault := newTestServer(t, RateLimit{})
	h := srv.Handler()

	rec, body := do(t, h, http.MethodPost, "/v1/strikes", map[string]interface{}{
		"caller": aliceAddr.Hex(), "strikes": []string{"2800", "3500"},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "unauthorized", body["code"])

	rec, _ = do(t, h, http.MethodPost, "/v1/strikes", map[string]interface{}{
		"caller": ownerAddr.Hex(), "strikes": []string{"2800", "3500"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/v1/deposit", map[string]interface{}{
		"caller": aliceAddr.Hex(), "strikeIndex": 0, "amount": "5",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.EqualValues(t, 1, body["epoch"])

	rec, body = do(t, h, http.MethodPost, "/v1/bootstrap", map[string]interface{}{"caller": ownerAddr.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, body["bootstrapped"])
	require.Equal(t, "5", body["totalDeposits"])
	end := uint64(body["end"].(float64))

	rec, body = do(t, h, http.MethodPost, "/v1/purchase", map[string]interface{}{
		"caller": buyerAddr.Hex(), "strikeIndex": 0, "amount": "1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "0.05", body["premium"])
	require.Equal(t, "3000", body["spot"])

	rec, body = do(t, h, http.MethodPost, "/v1/expire", map[string]interface{}{"caller": ownerAddr.Hex()})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "epoch_not_yet_expired", body["code"])

	vault.Engine.SetNowFunc(func() int64 { return int64(end) + 1 })
	rec, body = do(t, h, http.MethodPost, "/v1/expire", map[string]interface{}{
		"caller": ownerAddr.Hex(), "price": "3300",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, body["expired"])
	require.Equal(t, "3300", body["settlementPrice"])
	require.Equal(t, "16500", body["valueUsd"])

	rec, body = do(t, h, http.MethodPost, "/v1/settle", map[string]interface{}{
		"caller": buyerAddr.Hex(), "epoch": 1, "strikeIndex": 0, "amount": "1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "0.151515151515151515", body["pnl"])
	require.Equal(t, "0", body["fee"])

	rec, body = do(t, h, http.MethodPost, "/v1/withdraw", map[string]interface{}{
		"caller": aliceAddr.Hex(), "epoch": 1, "strikeIndex": 0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "4.898484848484848485", body["collateral"])

	rec, body = do(t, h, http.MethodGet, "/v1/epochs/1/positions/"+aliceAddr.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	positions := body["positions"].([]interface{})
	require.Len(t, positions, 2)
	first := positions[0].(map[string]interface{})
	require.Equal(t, true, first["withdrawn"])
	require.Equal(t, "0", first["depositShares"])

	rec, body = do(t, h, http.MethodGet, "/v1/balances/"+aliceAddr.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balances := body["balances"].(map[string]interface{})
	require.Equal(t, "9.898484848484848485", balances["WETH"])

	rec, body = do(t, h, http.MethodGet, "/v1/epochs/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, body["current"])
	require.Equal(t, false, body["paused"])

	rec, body = do(t, h, http.MethodGet, "/v1/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 7, body["total"])
	evts := body["events"].([]interface{})
	require.Len(t, evts, 7)
	lastEvt := evts[6].(map[string]interface{})
	require.Equal(t, "ssov.withdraw", lastEvt["type"])
	require.Equal(t, "eth-monthly", lastEvt["attributes"].(map[string]interface{})["vault"])
}

func TestCallRightsApprovalOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, RateLimit{})
	h := srv.Handler()
	spender := common.HexToAddress("0x00000000000000000000000000000000000000c1")

	rec, _ := do(t, h, http.MethodPost, "/v1/strikes", map[string]interface{}{
		"caller": ownerAddr.Hex(), "strikes": []string{"2800"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/v1/deposit", map[string]interface{}{
		"caller": aliceAddr.Hex(), "strikeIndex": 0, "amount": "5",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, body := do(t, h, http.MethodPost, "/v1/bootstrap", map[string]interface{}{"caller": ownerAddr.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "15000", body["valueUsd"])
	rec, _ = do(t, h, http.MethodPost, "/v1/purchase", map[string]interface{}{
		"caller": buyerAddr.Hex(), "strikeIndex": 0, "amount": "2",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	transferFrom := map[string]interface{}{
		"caller": spender.Hex(), "owner": buyerAddr.Hex(), "to": aliceAddr.Hex(),
		"epoch": 1, "strikeIndex": 0, "amount": "1",
	}
	rec, body = do(t, h, http.MethodPost, "/v1/transfer-from", transferFrom)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "insufficient_allowance", body["code"])

	rec, body = do(t, h, http.MethodPost, "/v1/approve", map[string]interface{}{
		"caller": buyerAddr.Hex(), "spender": spender.Hex(), "epoch": 1, "strikeIndex": 0, "amount": "1.5",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "1.5", body["allowance"])

	rec, _ = do(t, h, http.MethodPost, "/v1/transfer-from", transferFrom)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body = do(t, h, http.MethodGet, "/v1/allowances/1/0/"+buyerAddr.Hex()+"/"+spender.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "0.5", body["allowance"])

	rec, body = do(t, h, http.MethodGet, "/v1/epochs/1/positions/"+aliceAddr.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := body["positions"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, "1", first["callRights"])

	rec, body = do(t, h, http.MethodGet, "/v1/rewards", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "invalid_state", body["code"])
}

func TestRewardsEndpointWithYield(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()
	cfg.Yield.Enabled = true
	vault, err := OpenVault(cfg, storage.NewMemDB(), logger)
	require.NoError(t, err)
	srv, err := New(Config{Vault: vault, Logger: logger})
	require.NoError(t, err)
	h := srv.Handler()

	rec, body := do(t, h, http.MethodGet, "/v1/rewards", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "0", body["primary"])
	require.Equal(t, "0", body["primaryReceivable"])

	rec, body = do(t, h, http.MethodGet, "/v1/epochs/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rewards := body["rewards"].(map[string]interface{})
	require.Equal(t, "0", rewards["secondary"])
}

func TestStrikeAndQuoteEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, RateLimit{})
	h := srv.Handler()

	do(t, h, http.MethodPost, "/v1/strikes", map[string]interface{}{
		"caller": ownerAddr.Hex(), "strikes": []string{"2800"},
	})
	do(t, h, http.MethodPost, "/v1/deposit", map[string]interface{}{
		"caller": aliceAddr.Hex(), "strikeIndices": []int{0}, "amounts": []string{"2"},
	})

	rec, body := do(t, h, http.MethodGet, "/v1/epochs/1/strikes/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2800", body["strike"])
	require.Equal(t, "2", body["deposits"])
	require.Equal(t, "2", body["available"])

	rec, body = do(t, h, http.MethodGet, "/v1/epochs/1/strikes/4", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_strike_index", body["code"])

	rec, body = do(t, h, http.MethodGet, "/v1/fees/purchase?strike=3000&amount=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "0.00125", body["fee"])
	require.Equal(t, "0.05", body["premium"])
}

func TestOracleAndAdminEndpoints(t *testing.T) {
	srv, vault := newTestServer(t, RateLimit{})
	h := srv.Handler()

	rec, body := do(t, h, http.MethodPost, "/v1/oracle/price", map[string]interface{}{"price": "3100.5"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ETH", body["asset"])
	spot, err := vault.Oracle.GetUsdPrice("ETH")
	require.NoError(t, err)
	require.Equal(t, "310050000000", spot.Dec())

	rec, body = do(t, h, http.MethodPost, "/v1/oracle/price", map[string]interface{}{"price": "0"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_input", body["code"])

	rec, _ = do(t, h, http.MethodPost, "/v1/pause", map[string]interface{}{"caller": ownerAddr.Hex()})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body = do(t, h, http.MethodPost, "/v1/deposit", map[string]interface{}{
		"caller": aliceAddr.Hex(), "strikeIndex": 0, "amount": "1",
	})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "paused", body["code"])

	rec, _ = do(t, h, http.MethodPost, "/v1/unpause", map[string]interface{}{"caller": ownerAddr.Hex()})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/v1/addresses", map[string]interface{}{
		"caller":  ownerAddr.Hex(),
		"entries": []map[string]string{{"name": "FeeDistributor", "address": buyerAddr.Hex()}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.EqualValues(t, 1, body["updated"])
	got, err := vault.Engine.Address("FeeDistributor")
	require.NoError(t, err)
	require.Equal(t, buyerAddr, got)
}

func TestMalformedRequests(t *testing.T) {
	srv, _ := newTestServer(t, RateLimit{})
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/bootstrap", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := do(t, h, http.MethodPost, "/v1/bootstrap", map[string]interface{}{"caller": "nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_input", body["code"])

	rec, _ = do(t, h, http.MethodPost, "/v1/bootstrap", map[string]interface{}{"caller": ownerAddr.Hex(), "extra": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/v1/epochs/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/v1/balances/0x123", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, RateLimit{})
	h := srv.Handler()

	rec, body := do(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "req-42", rec.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `ssov_http_requests_total{code="200",route="GET /healthz",service="ssovd"}`)
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	srv, _ := newTestServer(t, RateLimit{RequestsPerMinute: 1, Burst: 1})
	h := srv.Handler()

	rec, _ := do(t, h, http.MethodGet, "/v1/epochs/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body := do(t, h, http.MethodGet, "/v1/epochs/current", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "rate_limited", body["code"])

	// Unthrottled routes stay reachable.
	rec, _ = do(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGenesisAppliedOnce(t *testing.T) {
	db := storage.NewMemDB()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	vault, err := OpenVault(testConfig(), db, logger)
	require.NoError(t, err)
	_, err = OpenVault(testConfig(), db, logger)
	require.NoError(t, err)
	bal, err := vault.Engine.AssetBalance(aliceAddr, "WETH")
	require.NoError(t, err)
	require.Equal(t, "10000000000000000000", bal.Dec())
}
