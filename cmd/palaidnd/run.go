package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/palaidn/palaidn/validator/api"
	"github.com/palaidn/palaidn/validator/commit"
	"github.com/palaidn/palaidn/validator/config"
	"github.com/palaidn/palaidn/validator/constant"
	"github.com/palaidn/palaidn/validator/core"
	"github.com/palaidn/palaidn/validator/db"
	"github.com/palaidn/palaidn/validator/dispatch"
	verrors "github.com/palaidn/palaidn/validator/errors"
	"github.com/palaidn/palaidn/validator/evaluator"
	"github.com/palaidn/palaidn/validator/ledger"
	"github.com/palaidn/palaidn/validator/logger"
	"github.com/palaidn/palaidn/validator/membership"
	"github.com/palaidn/palaidn/validator/metrics"
	"github.com/palaidn/palaidn/validator/refdata"
	"github.com/palaidn/palaidn/validator/rpcpool"
	"github.com/palaidn/palaidn/validator/scoring"
	"github.com/palaidn/palaidn/validator/statestore"
)

// runValidator wires every component and blocks until ctx is cancelled.
func runValidator(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)
	log.Info().
		Uint16("netuid", cfg.NetUID).
		Str("hotkey", cfg.WalletHotkey).
		Int("own_uid", cfg.OwnUID).
		Str("home", cfg.NodeHome).
		Msg("🚀 Starting palaidn validator...")

	if cfg.WalletHotkey == "" {
		return verrors.NewConfigError("wallet_hotkey is required")
	}

	database, err := db.OpenFileDB(filepath.Join(cfg.NodeHome, constant.DatabasesSubdir), constant.StateDBFileName, true)
	if err != nil {
		return err
	}
	defer database.Close()
	states := statestore.NewStore(database.Client(), log)

	pool := rpcpool.NewManager("ledger", cfg.LedgerGRPCURLs, cfg.RPCPoolConfig, ledger.ClientFactory(), log)
	if pool == nil {
		return verrors.NewConfigError("ledger_grpc_urls is required")
	}
	if err := pool.Start(ctx); err != nil {
		return err
	}
	defer pool.Stop()

	conn := ledger.NewConnector(pool, cfg.LedgerCallTimeout(), log)
	defer conn.Close()
	if err := connectLedger(ctx, conn.Connect, nil, log); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	scores, err := scoring.New(cfg.Alpha, nil)
	if err != nil {
		return err
	}

	v := core.New(settingsFrom(cfg), scores, core.Deps{
		Ledger:     conn,
		Syncer:     membership.NewSyncer(conn, cfg.NetUID, cfg.LedgerCallTimeout(), log),
		Dispatcher: dispatch.NewDispatcher(dispatch.NewHTTPTransport(cfg.WalletHotkey), cfg.MaxTargets, log),
		Evaluator:  evaluator.F1Evaluator{},
		Reference:  refdata.NewFetcher(cfg.ReferenceAPIURL, cfg.ReferenceAPIKey, cfg.ReferenceCacheTTL(), cfg.QueryTimeout(), log),
		Committer:  commit.NewCommitter(conn, states, cfg.NetUID, cfg.WalletHotkey, cfg.CommitBlockDistance, log),
		Store:      states,
		Metrics:    m,
		Pool:       pool,
	}, log)

	if err := v.Restore(ctx, cfg.LoadState); err != nil {
		return err
	}

	server := api.NewServer(log, cfg.QueryServerPort, v, api.Options{
		Commits:  states,
		Pool:     pool,
		Gatherer: reg,
	})
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start query server: %w", err)
	}
	v.SetServer(server)

	log.Info().Int("port", cfg.QueryServerPort).Msg("✅ Initialization complete. Entering main loop...")
	return v.Run(ctx)
}

// connectLedger makes the startup connection attempts. An unreachable ledger only
// fails startup on shutdown; otherwise the round loop reconnects once it next fails
// to read the ledger height.
func connectLedger(ctx context.Context, connect func(context.Context) error, retry *verrors.RetryConfig, log zerolog.Logger) error {
	err := verrors.RetryWithConfig(ctx, func() error { return connect(ctx) }, retry)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.Warn().Err(err).Msg("ledger unreachable at startup, entering main loop disconnected")
	return nil
}

func settingsFrom(cfg *config.Config) core.Settings {
	return core.Settings{
		NetUID:               cfg.NetUID,
		OwnUID:               cfg.OwnUID,
		Hotkey:               cfg.WalletHotkey,
		MinStake:             cfg.MinStake,
		MaxTargets:           cfg.MaxTargets,
		SelectionSeed:        cfg.SelectionSeed,
		QueryTimeout:         cfg.QueryTimeout(),
		LedgerCallTimeout:    cfg.LedgerCallTimeout(),
		LightRefreshEvery:    uint64(cfg.LightRefreshEveryRounds),
		FullSyncEvery:        uint64(cfg.FullSyncEveryRounds),
		RoundInterval:        cfg.RoundInterval(),
		EmptyResponseBackoff: cfg.EmptyResponseBackoff(),
	}
}
