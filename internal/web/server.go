package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/elys-network/clvault/internal/avm"
	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/metrics"
	"github.com/elys-network/clvault/internal/state"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/utils"
	"github.com/elys-network/clvault/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

// errPersistenceDisabled is reported by history endpoints when no database is configured.
var errPersistenceDisabled = errors.New("persistence disabled")

// Config wires the API to the running keeper.
type Config struct {
	Port       string
	Keeper     *avm.AVM
	Metrics    *metrics.Metrics     // Optional, serves /metrics and counts requests
	Recorder   *types.EventRecorder // Optional, serves /api/events without a database
	Persist    bool                 // History endpoints read from internal/state
	IODecimals int32
}

// WebServer handles HTTP requests for vault data
type WebServer struct {
	router     *mux.Router
	port       string
	keeper     *avm.AVM
	metrics    *metrics.Metrics
	recorder   *types.EventRecorder
	persist    bool
	ioDecimals int32
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) *WebServer {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	server := &WebServer{
		router:     mux.NewRouter(),
		port:       cfg.Port,
		keeper:     cfg.Keeper,
		metrics:    cfg.Metrics,
		recorder:   cfg.Recorder,
		persist:    cfg.Persist,
		ioDecimals: cfg.IODecimals,
	}
	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.metrics != nil {
		ws.router.Handle("/metrics", ws.metrics.Handler()).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")
	api.HandleFunc("/accounts/{address}", ws.handleGetAccount).Methods("GET")
	api.HandleFunc("/positions", ws.handleGetPositions).Methods("GET")
	api.HandleFunc("/routes", ws.handleGetRoutes).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")
	api.HandleFunc("/cycles/{id:[0-9]+}", ws.handleGetCycle).Methods("GET")
	api.HandleFunc("/performance", ws.handleGetPerformanceMetrics).Methods("GET")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, e.g. for httptest.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// handleHealth reports the keeper's last cycle and, with persistence, the database.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	healthy := true
	cycleInfo := map[string]interface{}{
		"current_cycle":     0,
		"last_cycle_time":   nil,
		"last_cycle_status": "pending",
	}
	if last := ws.keeper.LastCycle(); last != nil {
		status := "completed"
		if !last.Success {
			status = "failed"
			healthy = false
		}
		cycleInfo = map[string]interface{}{
			"current_cycle":     last.CycleNumber,
			"cycle_id":          last.CycleID,
			"last_cycle_time":   last.Timestamp,
			"last_cycle_status": status,
			"error":             last.ErrorMessage,
		}
	}

	dbStatus := "disabled"
	if ws.persist {
		dbStatus = "ok"
		if err := state.TestDBConnection(); err != nil {
			dbStatus = "unreachable"
			healthy = false
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !healthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"keeper": map[string]interface{}{
			"database":   dbStatus,
			"cycle_info": cycleInfo,
		},
	})
}

// handleGetVaultSummary returns the live ledger and, with persistence, the recorded history totals.
func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	var st types.VaultState
	err := ws.withLedger(func(ledger vault.Reader) error {
		var err error
		st, err = ledger.State(r.Context())
		return err
	})
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to capture vault state")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault state")
		return
	}

	response := map[string]interface{}{
		"state": st,
		"display": map[string]string{
			"total_assets":     ws.display(st.TotalAssets, ws.ioDecimals),
			"idle_assets":      ws.display(st.IdleAssets, ws.ioDecimals),
			"liquidity_assets": ws.display(st.LiquidityAssets, ws.ioDecimals),
			"total_shares":     ws.display(st.TotalShares, ws.ioDecimals),
			"net_value":        ws.display(st.NetValue, utils.FixedPointDecimals),
			"cap":              ws.display(st.Cap, ws.ioDecimals),
		},
	}
	if ws.persist {
		summary, err := state.GetVaultSummary()
		if err != nil {
			webLogger.Error().Err(err).Msg("Failed to get vault summary")
		} else {
			response["history"] = summary
		}
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addrStr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addrStr) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}
	addr := common.HexToAddress(addrStr)

	var (
		acct  types.Account
		found bool
		value sdkmath.Int
	)
	err := ws.withLedger(func(ledger vault.Reader) error {
		acct, found = ledger.Account(addr)
		if !found {
			return nil
		}
		var err error
		value, err = ledger.AccountNetValue(r.Context(), addr)
		return err
	})
	if err != nil {
		webLogger.Error().Err(err).Str("address", addr.Hex()).Msg("Failed to value account")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve account")
		return
	}
	if !found {
		ws.writeErrorResponse(w, http.StatusNotFound, "Account not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"account":         types.AccountView{Account: acct, NetValue: value},
		"value_display":   ws.display(value, ws.ioDecimals),
		"entry_net_value": ws.display(acct.EntryNetValue, utils.FixedPointDecimals),
	})
}

type positionResponse struct {
	types.PositionView
	Incentive *types.IncentiveKey `json:"incentive,omitempty"`
}

func (ws *WebServer) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	var out []positionResponse
	err := ws.keeper.Do(func(c avm.Components) error {
		views, err := c.Positions.PositionViews(r.Context())
		if err != nil {
			return err
		}
		out = make([]positionResponse, 0, len(views))
		for _, v := range views {
			p := positionResponse{PositionView: v}
			if c.Staking != nil {
				if key, ok := c.Staking.StakedIncentive(v.TokenID); ok {
					p.Incentive = &key
				}
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to list positions")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve positions")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"positions": out,
		"count":     len(out),
	})
}

func (ws *WebServer) handleGetRoutes(w http.ResponseWriter, r *http.Request) {
	var routes []types.RouteEntry
	_ = ws.keeper.Do(func(c avm.Components) error {
		routes = c.Positions.Routes()
		return nil
	})
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"routes": routes,
		"count":  len(routes),
	})
}

// handleGetCycles returns recent cycles; without persistence only the in-memory latest is known.
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	limit := ws.limit(r, 20)

	var cycles []types.CycleSnapshot
	if ws.persist {
		var err error
		if cycles, err = state.GetRecentCycles(limit); err != nil {
			webLogger.Error().Err(err).Msg("Failed to get recent cycles")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
			return
		}
	} else if last := ws.keeper.LastCycle(); last != nil {
		cycles = []types.CycleSnapshot{*last}
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
		"limit":  limit,
	})
}

func (ws *WebServer) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	if !ws.persist {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, errPersistenceDisabled.Error())
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid cycle ID")
		return
	}

	cycle, err := state.GetCycleByID(id)
	if errors.Is(err, state.ErrCycleNotFound) {
		ws.writeErrorResponse(w, http.StatusNotFound, "Cycle not found")
		return
	}
	if err != nil {
		webLogger.Error().Err(err).Int64("cycleId", id).Msg("Failed to get cycle")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycle")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, cycle)
}

func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	cycle := ws.keeper.LastCycle()
	if ws.persist {
		stored, err := state.GetLatestCycle()
		switch {
		case err == nil:
			cycle = stored
		case !errors.Is(err, state.ErrCycleNotFound):
			webLogger.Error().Err(err).Msg("Failed to get latest cycle")
		}
	}
	if cycle == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, cycle)
}

func (ws *WebServer) handleGetPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	if !ws.persist {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, errPersistenceDisabled.Error())
		return
	}
	m, err := state.GetPerformanceMetrics()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get performance metrics")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve performance metrics")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, m)
}

type eventResponse struct {
	EventName string      `json:"event_name"`
	Payload   types.Event `json:"payload"`
}

// handleGetEvents lists recent events from the journal, or from the in-memory recorder without one.
func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := ws.limit(r, 50)
	name := r.URL.Query().Get("name")

	if ws.persist {
		entries, err := state.GetRecentEvents(limit, name)
		if err != nil {
			webLogger.Error().Err(err).Msg("Failed to get events")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
			return
		}
		ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"events": entries, "count": len(entries)})
		return
	}
	if ws.recorder == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, errPersistenceDisabled.Error())
		return
	}

	var recorded []types.Event
	if name != "" {
		recorded = ws.recorder.Named(name)
	} else {
		recorded = ws.recorder.Events()
	}
	events := make([]eventResponse, 0, limit)
	for i := len(recorded) - 1; i >= 0 && len(events) < limit; i-- {
		events = append(events, eventResponse{EventName: recorded[i].EventName(), Payload: recorded[i]})
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"events": events, "count": len(events)})
}

// withLedger runs fn against the share ledger while holding the keeper lock.
func (ws *WebServer) withLedger(fn func(vault.Reader) error) error {
	return ws.keeper.Do(func(c avm.Components) error { return fn(c.Vault) })
}

func (ws *WebServer) limit(r *http.Request, fallback int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 100 {
			return parsed
		}
	}
	return fallback
}

func (ws *WebServer) display(v sdkmath.Int, decimals int32) string {
	if decimals == utils.FixedPointDecimals {
		return utils.FormatFixedPoint(v)
	}
	d, err := utils.SDKIntToDecimal(v, int(decimals))
	if err != nil {
		return "0"
	}
	return d.String()
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests and counts them against their route template
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		if ws.metrics != nil {
			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			ws.metrics.RecordHTTPRequest(route, wrapper.statusCode, duration)
		}

		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
