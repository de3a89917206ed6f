// ./internal/state/snapshot_store.go
package state

import (
	"encoding/json"
	"fmt"

	"github.com/lib/pq" // PostgreSQL driver for array support

	"github.com/elys-network/clvault/internal/types"
)

// SaveCycleSnapshot saves one keeper cycle to the database and returns its snapshot id.
func SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	stateJSON, err := json.Marshal(snapshot.State)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal vault_state: %w", err)
	}

	query := `
		INSERT INTO cycle_snapshots (
			cycle_number, cycle_id, snapshot_timestamp, fee_params_id,
			total_shares, total_assets, idle_assets, liquidity_assets, net_value,
			management_fee_shares, net_value_display,
			vault_state, position_token_ids, success, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING snapshot_id;
	`

	st := snapshot.State
	var snapshotID int64
	err = DB.QueryRow(
		query,
		snapshot.CycleNumber, snapshot.CycleID, snapshot.Timestamp, snapshot.FeeParamsID,
		numeric(st.TotalShares), numeric(st.TotalAssets), numeric(st.IdleAssets), numeric(st.LiquidityAssets), numeric(st.NetValue),
		numeric(snapshot.ManagementFeeShares), snapshot.NetValueDisplay,
		stateJSON, pq.Array(snapshot.PositionTokenIDs), snapshot.Success, snapshot.ErrorMessage,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save cycle snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", snapshot.CycleNumber).
		Str("net_value", snapshot.NetValueDisplay).
		Bool("success", snapshot.Success).
		Msg("Cycle snapshot saved to database")
	return snapshotID, nil
}
