package web_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/elys-network/clvault/internal/auth"
	"github.com/elys-network/clvault/internal/avm"
	"github.com/elys-network/clvault/internal/config"
	"github.com/elys-network/clvault/internal/metrics"
	"github.com/elys-network/clvault/internal/simulations"
	"github.com/elys-network/clvault/internal/state"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/web"
)

var (
	governance = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	admin      = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	strategist = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	rewards    = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

type fixture struct {
	stack    *avm.PaperStack
	keeper   *avm.AVM
	metrics  *metrics.Metrics
	recorder *types.EventRecorder
	server   *web.WebServer
}

// setupServer runs an API over a paper vault where alice holds 1000 USDT of shares.
func setupServer(t *testing.T, persist bool) *fixture {
	t.Helper()
	ctx := context.Background()
	m := metrics.New(6)
	rec := types.NewEventRecorder(100)

	stack, err := avm.NewPaperStack(ctx, avm.PaperConfig{
		Roles:  auth.Roles{Governance: governance, Admin: admin, Strategist: strategist, Rewards: rewards},
		Keeper: strategist,
		Now:    1_700_000_000,
		Cap:    simulations.WholeUnits(1_000_000, 6),
		Fees:   config.DefaultFeeParameters,
		Sink:   types.EventSinks{m, rec},
	})
	require.NoError(t, err)
	stack.Chain.Mint(simulations.USDT, alice, simulations.WholeUnits(1000, 6))
	require.NoError(t, stack.Chain.Ledger().Approve(ctx, simulations.USDT, alice, avm.PaperVaultAddress, simulations.WholeUnits(1000, 6)))
	_, err = stack.Vault.JoinPool(ctx, alice, simulations.WholeUnits(1000, 6))
	require.NoError(t, err)

	keeper, err := avm.NewAVM(avm.Config{Components: stack.Components, Keeper: strategist, Metrics: m})
	require.NoError(t, err)

	server := web.NewWebServer(web.Config{
		Keeper:     keeper,
		Metrics:    m,
		Recorder:   rec,
		Persist:    persist,
		IODecimals: 6,
	})
	return &fixture{stack: stack, keeper: keeper, metrics: m, recorder: rec, server: server}
}

func setupMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	prev := state.DB
	state.DB = db
	t.Cleanup(func() {
		state.DB = prev
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return mock
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return rr, body
}

func TestHealthPendingBeforeFirstCycle(t *testing.T) {
	f := setupServer(t, false)

	rr, body := get(t, f.server.Handler(), "/api/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", body["status"])
	keeper := body["keeper"].(map[string]any)
	assert.Equal(t, "disabled", keeper["database"])
	assert.Equal(t, "pending", keeper["cycle_info"].(map[string]any)["last_cycle_status"])
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthDegradedAfterFailedCycle(t *testing.T) {
	f := setupServer(t, false)
	bad, err := avm.NewAVM(avm.Config{Components: f.stack.Components, Keeper: alice})
	require.NoError(t, err)
	bad.RunCycle(context.Background())
	server := web.NewWebServer(web.Config{Keeper: bad})

	rr, body := get(t, server.Handler(), "/api/health")

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "DEGRADED", body["status"])
}

func TestVaultSummary(t *testing.T) {
	f := setupServer(t, false)

	rr, body := get(t, f.server.Handler(), "/api/vault/summary")

	require.Equal(t, http.StatusOK, rr.Code)
	st := body["state"].(map[string]any)
	// the entry fee is paid in shares, so supply stays one share per base unit
	assert.Equal(t, "1000000000", st["total_shares"])
	display := body["display"].(map[string]any)
	assert.Equal(t, "1000", display["total_assets"])
	assert.Equal(t, "1000000", display["cap"])
	assert.NotContains(t, body, "history")
}

func TestGetAccount(t *testing.T) {
	f := setupServer(t, false)
	h := f.server.Handler()

	rr, body := get(t, h, "/api/accounts/"+alice.Hex())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "999", body["value_display"])

	rr, _ = get(t, h, "/api/accounts/not-an-address")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = get(t, h, "/api/accounts/"+governance.Hex())
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, true, body["error"])
}

func TestPositionsAndRoutes(t *testing.T) {
	f := setupServer(t, false)
	h := f.server.Handler()

	rr, body := get(t, h, "/api/positions")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 0, body["count"])

	rr, body = get(t, h, "/api/routes")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 2, body["count"])
}

func TestCyclesWithoutPersistence(t *testing.T) {
	f := setupServer(t, false)
	h := f.server.Handler()

	rr, _ := get(t, h, "/api/cycles/latest")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	snap := f.keeper.RunCycle(context.Background())
	require.True(t, snap.Success, snap.ErrorMessage)

	rr, body := get(t, h, "/api/cycles/latest")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, snap.CycleID, body["cycle_id"])

	rr, body = get(t, h, "/api/cycles")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, body["count"])

	rr, _ = get(t, h, "/api/cycles/1")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	rr, _ = get(t, h, "/api/performance")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestEventsFromRecorder(t *testing.T) {
	f := setupServer(t, false)

	rr, body := get(t, f.server.Handler(), "/api/events?name="+types.EventPoolJoined)

	require.Equal(t, http.StatusOK, rr.Code)
	events := body["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventPoolJoined, events[0].(map[string]any)["event_name"])
}

func TestCycleByIDFromDatabase(t *testing.T) {
	mock := setupMockDB(t)
	f := setupServer(t, true)
	stateJSON, err := json.Marshal(types.VaultState{})
	require.NoError(t, err)
	columns := []string{"snapshot_id", "cycle_number", "cycle_id", "snapshot_timestamp", "fee_params_id",
		"management_fee_shares", "net_value_display", "vault_state", "position_token_ids", "success", "error_message"}

	mock.ExpectQuery("WHERE snapshot_id = \\$1").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			int64(4), 4, "c0ffee00-0000-4000-8000-000000000000", time.Now(), nil, "0", "1.000000", stateJSON, nil, true, nil))
	mock.ExpectQuery("WHERE snapshot_id = \\$1").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(columns))

	rr, body := get(t, f.server.Handler(), "/api/cycles/4")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 4, body["cycle_number"])

	rr, _ = get(t, f.server.Handler(), "/api/cycles/5")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	f := setupServer(t, false)
	h := f.server.Handler()

	get(t, h, "/api/accounts/"+alice.Hex())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HTTPRequestsTotal.WithLabelValues("/api/accounts/{address}", "200")))
	assert.Contains(t, rr.Body.String(), "clvault_vault_total_shares")
}

func TestHealthServerFollowsCycles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hs := web.NewHealthServer()
	lis := bufconn.Listen(1 << 20)
	done := make(chan error, 1)
	go func() { done <- hs.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: web.KeeperService})
		require.NoError(t, err)
		return resp.Status
	}

	assert.Equal(t, healthpb.HealthCheckResponse_UNKNOWN, check())
	hs.ObserveCycle(types.CycleSnapshot{Success: true})
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())
	hs.ObserveCycle(types.CycleSnapshot{Success: false})
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	cancel()
	require.NoError(t, <-done)
}
