// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/clvault/internal/types"
)

// ErrNoFeeParameters is returned when no fee configuration matches.
var ErrNoFeeParameters = errors.New("no fee parameters found")

const feeColumns = `
            entry_ratio, entry_denominator, exit_ratio, exit_denominator,
            management_ratio, management_denominator, performance_ratio, performance_denominator`

// SaveFeeParameters saves a new version of a fee configuration. With makeActive every other version
// of the configuration is deactivated in the same transaction.
func SaveFeeParameters(params types.FeeParameters, configName string, version int, makeActive bool) (paramsID int64, err error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if makeActive {
		_, err = tx.Exec(`UPDATE fee_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing fee parameters for %s: %w", configName, err)
		}
	}

	stmt := `
        INSERT INTO fee_parameters (
            version, config_name, is_active, activated_at, created_at,` + feeColumns + `
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING params_id;`

	now := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, now, now,
		params.Entry.Ratio, params.Entry.Denominator,
		params.Exit.Ratio, params.Exit.Denominator,
		params.Management.Ratio, params.Management.Denominator,
		params.Performance.Ratio, params.Performance.Denominator,
	).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert fee parameters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved fee parameters")
	return paramsID, nil
}

// LoadActiveFeeParameters loads the active version of configName.
func LoadActiveFeeParameters(configName string) (*types.FeeParameters, error) {
	query := `
        SELECT` + feeColumns + `
        FROM fee_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`
	return loadFeeParameters(query, configName)
}

// LoadLatestFeeParameters loads the most recently activated version of configName, active or not.
func LoadLatestFeeParameters(configName string) (*types.FeeParameters, error) {
	query := `
        SELECT` + feeColumns + `
        FROM fee_parameters
        WHERE config_name = $1
        ORDER BY activated_at DESC, created_at DESC
        LIMIT 1;`
	return loadFeeParameters(query, configName)
}

func loadFeeParameters(query, configName string) (*types.FeeParameters, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	p := &types.FeeParameters{
		Entry:       types.FeeParameter{Kind: types.FeeEntry},
		Exit:        types.FeeParameter{Kind: types.FeeExit},
		Management:  types.FeeParameter{Kind: types.FeeManagement},
		Performance: types.FeeParameter{Kind: types.FeePerformance},
	}
	err := DB.QueryRow(query, configName).Scan(
		&p.Entry.Ratio, &p.Entry.Denominator,
		&p.Exit.Ratio, &p.Exit.Denominator,
		&p.Management.Ratio, &p.Management.Denominator,
		&p.Performance.Ratio, &p.Performance.Denominator,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for config '%s'", ErrNoFeeParameters, configName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan fee parameters for config '%s': %w", configName, err)
	}
	log.Debug().Str("config", configName).Msg("Loaded fee parameters")
	return p, nil
}

// GetActiveFeeParametersID returns the params_id of the active version of configName, or nil when
// none is active.
func GetActiveFeeParametersID(configName string) (*int64, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
        SELECT params_id
        FROM fee_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var paramsID int64
	err := DB.QueryRow(query, configName).Scan(&paramsID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active fee parameters ID for config '%s': %w", configName, err)
	}
	return &paramsID, nil
}
