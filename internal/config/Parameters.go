/*

This file contains the default fee configuration for the vault.

These values are applied at bootstrap and saved as version 1 of the default fee configuration
when no active configuration is found in the database.

*/

package config

import (
	"github.com/elys-network/clvault/internal/types"
)

// DefaultFeeParameters are the bootstrap fees, each a ratio over a base of 1000.
var DefaultFeeParameters = types.FeeParameters{
	// 0.1% of minted shares on every deposit.
	Entry: types.FeeParameter{Kind: types.FeeEntry, Ratio: 1, Denominator: 1000},

	// No exit fee.
	Exit: types.FeeParameter{Kind: types.FeeExit, Ratio: 0, Denominator: 1000},

	// 0.2% of outstanding shares per year, accrued before every mutating operation.
	Management: types.FeeParameter{Kind: types.FeeManagement, Ratio: 2, Denominator: 1000},

	// 2% of the gain since entry, charged on exit.
	Performance: types.FeeParameter{Kind: types.FeePerformance, Ratio: 20, Denominator: 1000},
}
