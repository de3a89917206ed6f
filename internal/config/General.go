package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/elys-network/clvault/internal/utils"
)

// PaperMode is the only runnable VAULT_MODE.
const PaperMode = "paper"

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	LogLevel string
	// VaultMode selects the collaborator backend; only "paper" is runnable.
	VaultMode string
	// LoopInterval is the keeper cycle period.
	LoopInterval time.Duration

	WebPort  string
	GRPCPort string

	// DBHost empty disables persistence.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	GovernanceAddress common.Address
	AdminAddress      common.Address
	StrategistAddress common.Address
	RewardsAddress    common.Address

	// IOTokenDecimals scales VAULT_CAP and the metrics gauges.
	IOTokenDecimals int32
	// VaultCap is the deposit cap in raw token units.
	VaultCap sdkmath.Int
)

// ErrMissingEnv is wrapped by every error for a required but unset variable.
var ErrMissingEnv = errors.New("required environment variable not set")

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Role addresses are required; everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error
	LogLevel = getEnvDefault("LOG_LEVEL", "info")
	VaultMode = getEnvDefault("VAULT_MODE", PaperMode)
	if LoopInterval, err = getEnvAsDuration("LOOP_INTERVAL", time.Minute); err != nil {
		return err
	}
	WebPort = getEnvDefault("WEB_PORT", "8080")
	GRPCPort = getEnvDefault("GRPC_PORT", "9090")

	DBHost = getEnvDefault("DB_HOST", "")
	if DBPort, err = getEnvAsInt("DB_PORT", 5432); err != nil {
		return err
	}
	DBUser = getEnvDefault("DB_USER", "postgres")
	DBPassword = getEnvDefault("DB_PASSWORD", "")
	DBName = getEnvDefault("DB_NAME", "clvault")
	DBSSLMode = getEnvDefault("DB_SSLMODE", "disable")

	roles := []struct {
		key  string
		slot *common.Address
	}{
		{"GOVERNANCE_ADDRESS", &GovernanceAddress},
		{"ADMIN_ADDRESS", &AdminAddress},
		{"STRATEGIST_ADDRESS", &StrategistAddress},
		{"REWARDS_ADDRESS", &RewardsAddress},
	}
	for _, r := range roles {
		if *r.slot, err = getEnvAsAddress(r.key); err != nil {
			return err
		}
	}

	decimals, err := getEnvAsInt("IO_TOKEN_DECIMALS", 6)
	if err != nil {
		return err
	}
	if decimals < 0 || decimals > 36 {
		return fmt.Errorf("IO_TOKEN_DECIMALS must be between 0 and 36, got %d", decimals)
	}
	IOTokenDecimals = int32(decimals)

	if VaultCap, err = ParseTokenAmount(getEnvDefault("VAULT_CAP", "1000000"), IOTokenDecimals); err != nil {
		return fmt.Errorf("VAULT_CAP: %w", err)
	}

	log.Debug().
		Str("mode", VaultMode).
		Dur("loopInterval", LoopInterval).
		Str("cap", VaultCap.String()).
		Bool("persistence", PersistenceEnabled()).
		Msg("Configuration loaded successfully.")
	return nil
}

// PersistenceEnabled reports whether a database is configured.
func PersistenceEnabled() bool {
	return DBHost != ""
}

// ParseTokenAmount converts a decimal amount of whole tokens into raw units, rejecting negative
// values and precision beyond decimals.
func ParseTokenAmount(s string, decimals int32) (sdkmath.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("amount %q must not be negative", s)
	}
	if raw := d.Shift(decimals); !raw.Equal(raw.Truncate(0)) {
		return sdkmath.Int{}, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	return utils.DecimalToSDKInt(d, int(decimals))
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrMissingEnv, key)
}

func getEnvDefault(key, fallback string) string {
	if value, err := getEnv(key); err == nil {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer, got: %s", key, valueStr)
	}
	return value, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("environment variable %s must be a positive duration, got: %s", key, valueStr)
	}
	return value, nil
}

func getEnvAsAddress(key string) (common.Address, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(valueStr) {
		return common.Address{}, fmt.Errorf("environment variable %s must be a hex address, got: %s", key, valueStr)
	}
	return common.HexToAddress(valueStr), nil
}
