package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/elys-network/clvault/internal/types"
)

// ErrCycleNotFound is returned when a snapshot lookup matches nothing.
var ErrCycleNotFound = errors.New("cycle not found")

// VaultSummary represents high-level vault statistics from the latest cycle. Amounts are raw token
// units as decimal strings.
type VaultSummary struct {
	TotalShares     string `json:"total_shares"`
	TotalAssets     string `json:"total_assets"`
	IdleAssets      string `json:"idle_assets"`
	LiquidityAssets string `json:"liquidity_assets"`
	NetValue        string `json:"net_value"`
	PositionCount   int    `json:"position_count"`
	TotalCycles     int    `json:"total_cycles"`
	LastUpdated     string `json:"last_updated"`
}

// PerformanceMetrics represents aggregated data across all cycles.
type PerformanceMetrics struct {
	TotalCycles              int    `json:"total_cycles"`
	SuccessfulCycles         int    `json:"successful_cycles"`
	TotalManagementFeeShares string `json:"total_management_fee_shares"`
	FirstNetValue            string `json:"first_net_value"`
	LatestNetValue           string `json:"latest_net_value"`
	NetValueChangePercent    string `json:"net_value_change_percent"`
}

const cycleColumns = `
			snapshot_id, cycle_number, cycle_id, snapshot_timestamp, fee_params_id,
			management_fee_shares, net_value_display,
			vault_state, position_token_ids, success, error_message`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (types.CycleSnapshot, error) {
	var (
		cycle     types.CycleSnapshot
		paramsID  sql.NullInt64
		feeShares string
		display   sql.NullString
		stateJSON []byte
		errMsg    sql.NullString
	)
	err := row.Scan(
		&cycle.SnapshotID, &cycle.CycleNumber, &cycle.CycleID, &cycle.Timestamp, &paramsID,
		&feeShares, &display,
		&stateJSON, pq.Array(&cycle.PositionTokenIDs), &cycle.Success, &errMsg,
	)
	if err != nil {
		return cycle, err
	}
	if paramsID.Valid {
		id := paramsID.Int64
		cycle.FeeParamsID = &id
	}
	cycle.NetValueDisplay = display.String
	cycle.ErrorMessage = errMsg.String
	if cycle.ManagementFeeShares, err = parseNumeric(feeShares); err != nil {
		return cycle, err
	}
	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &cycle.State); err != nil {
			return cycle, fmt.Errorf("failed to unmarshal vault state: %w", err)
		}
	}
	return cycle, nil
}

// GetRecentCycles retrieves up to limit cycle snapshots, newest first.
func GetRecentCycles(limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	query := `SELECT` + cycleColumns + `
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC, snapshot_id DESC
		LIMIT $1`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	var cycles []types.CycleSnapshot
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan cycle row")
			continue
		}
		cycles = append(cycles, cycle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(cycles)).Int("limit", limit).Msg("Retrieved recent cycles")
	return cycles, nil
}

// GetCycleByID retrieves a snapshot by its id.
func GetCycleByID(snapshotID int64) (*types.CycleSnapshot, error) {
	query := `SELECT` + cycleColumns + `
		FROM cycle_snapshots
		WHERE snapshot_id = $1`
	return getCycle(query, snapshotID)
}

// GetLatestCycle retrieves the most recent snapshot.
func GetLatestCycle() (*types.CycleSnapshot, error) {
	query := `SELECT` + cycleColumns + `
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC, snapshot_id DESC
		LIMIT 1`
	return getCycle(query)
}

func getCycle(query string, args ...any) (*types.CycleSnapshot, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	cycle, err := scanCycle(DB.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCycleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle: %w", err)
	}
	return &cycle, nil
}

// GetVaultSummary retrieves the ledger totals recorded by the latest cycle.
func GetVaultSummary() (*VaultSummary, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	summary := &VaultSummary{TotalShares: "0", TotalAssets: "0", IdleAssets: "0", LiquidityAssets: "0", NetValue: "0"}

	query := `
		SELECT
			total_shares::TEXT, total_assets::TEXT, idle_assets::TEXT, liquidity_assets::TEXT, net_value::TEXT,
			COALESCE(cardinality(position_token_ids), 0),
			snapshot_timestamp::TEXT
		FROM cycle_snapshots
		WHERE success = TRUE
		ORDER BY snapshot_timestamp DESC, snapshot_id DESC
		LIMIT 1
	`
	err := DB.QueryRow(query).Scan(
		&summary.TotalShares, &summary.TotalAssets, &summary.IdleAssets, &summary.LiquidityAssets, &summary.NetValue,
		&summary.PositionCount, &summary.LastUpdated,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get latest vault values: %w", err)
	}

	if err := DB.QueryRow(`SELECT COUNT(*) FROM cycle_snapshots`).Scan(&summary.TotalCycles); err != nil {
		return nil, fmt.Errorf("failed to count cycles: %w", err)
	}
	return summary, nil
}

// GetPerformanceMetrics aggregates every cycle. The net value change compares the first and latest
// successful cycles.
func GetPerformanceMetrics() (*PerformanceMetrics, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN success THEN 1 END),
			COALESCE(SUM(management_fee_shares), 0)::TEXT,
			COALESCE((SELECT net_value FROM cycle_snapshots WHERE success ORDER BY snapshot_timestamp ASC, snapshot_id ASC LIMIT 1), 0)::TEXT,
			COALESCE((SELECT net_value FROM cycle_snapshots WHERE success ORDER BY snapshot_timestamp DESC, snapshot_id DESC LIMIT 1), 0)::TEXT
		FROM cycle_snapshots
	`
	m := &PerformanceMetrics{}
	err := DB.QueryRow(query).Scan(
		&m.TotalCycles, &m.SuccessfulCycles, &m.TotalManagementFeeShares, &m.FirstNetValue, &m.LatestNetValue,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get performance metrics: %w", err)
	}

	m.NetValueChangePercent = "0"
	first, err := decimal.NewFromString(m.FirstNetValue)
	if err != nil {
		return nil, fmt.Errorf("invalid first net value %q: %w", m.FirstNetValue, err)
	}
	latest, err := decimal.NewFromString(m.LatestNetValue)
	if err != nil {
		return nil, fmt.Errorf("invalid latest net value %q: %w", m.LatestNetValue, err)
	}
	if !first.IsZero() {
		m.NetValueChangePercent = latest.Sub(first).Div(first).Mul(decimal.NewFromInt(100)).StringFixed(4)
	}
	return m, nil
}

// numeric renders an amount for a NUMERIC column; nil amounts store as zero.
func numeric(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}

func parseNumeric(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}
