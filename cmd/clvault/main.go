package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/elys-network/clvault/internal/auth"
	"github.com/elys-network/clvault/internal/avm"
	"github.com/elys-network/clvault/internal/config"
	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/metrics"
	"github.com/elys-network/clvault/internal/state"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/web"
)

const recentEventsKept = 500

// main is the entry point for the vault keeper.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel)
	log.Info().Msg("Vault keeper starting...")

	if config.VaultMode != config.PaperMode {
		log.Fatal().Str("mode", config.VaultMode).Msg("VAULT_MODE is not 'paper'. Halting: no live collaborator backend is available.")
	}

	fees := config.DefaultFeeParameters
	persist := config.PersistenceEnabled()
	if persist {
		dbCfg := state.DBConfig{
			Host: config.DBHost, Port: config.DBPort,
			User: config.DBUser, Password: config.DBPassword,
			DBName: config.DBName, SSLMode: config.DBSSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		fees = loadFeeParameters()
	} else {
		log.Warn().Msg("DB_HOST not set. Cycle history and the event journal are disabled.")
	}

	// --- 2. Component Wiring ---
	m := metrics.New(config.IOTokenDecimals)
	recorder := types.NewEventRecorder(recentEventsKept)
	sinks := types.EventSinks{m, recorder}
	if persist {
		sinks = append(sinks, state.Journal{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := avm.NewPaperStack(ctx, avm.PaperConfig{
		Roles: auth.Roles{
			Governance: config.GovernanceAddress,
			Admin:      config.AdminAddress,
			Strategist: config.StrategistAddress,
			Rewards:    config.RewardsAddress,
		},
		Keeper: config.StrategistAddress,
		Now:    time.Now().Unix(),
		Cap:    config.VaultCap,
		Fees:   fees,
		Sink:   sinks,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build paper vault")
	}

	healthServer := web.NewHealthServer()
	step := int64(config.LoopInterval / time.Second)
	keeper, err := avm.NewAVM(avm.Config{
		Components: stack.Components,
		Keeper:     config.StrategistAddress,
		Metrics:    m,
		Persist:    persist,
		ConfigName: avm.DEFAULT_FEE_CONFIG_NAME,
		BeforeCycle: func(context.Context) error {
			stack.Chain.Advance(step)
			return nil
		},
		AfterCycle: healthServer.ObserveCycle,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create AVM instance")
	}

	webServer := web.NewWebServer(web.Config{
		Port:       config.WebPort,
		Keeper:     keeper,
		Metrics:    m,
		Recorder:   recorder,
		Persist:    persist,
		IODecimals: config.IOTokenDecimals,
	})

	// --- 3. Run until signalled ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return webServer.Start(gctx) })
	g.Go(func() error { return healthServer.Start(gctx, config.GRPCPort) })
	g.Go(func() error {
		keeper.RunLoop(gctx, config.LoopInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Vault keeper stopped with error")
		return
	}
	log.Info().Msg("Vault keeper stopped")
}

// loadFeeParameters returns the active fee configuration, saving the defaults as the first version
// when none exists.
func loadFeeParameters() types.FeeParameters {
	params, err := state.LoadActiveFeeParameters(avm.DEFAULT_FEE_CONFIG_NAME)
	if err == nil {
		log.Info().Msg("Fee parameters loaded successfully.")
		return *params
	}
	log.Warn().Err(err).Msg("Failed to load active fee parameters, using defaults and saving.")
	defaults := config.DefaultFeeParameters
	if _, err := state.SaveFeeParameters(defaults, avm.DEFAULT_FEE_CONFIG_NAME, avm.DEFAULT_FEE_CONFIG_VERSION, true); err != nil {
		log.Fatal().Err(err).Msg("Failed to save initial default fee parameters.")
	}
	return defaults
}
