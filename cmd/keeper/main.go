package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/arbelos/dexkeeper/params"
	"github.com/arbelos/dexkeeper/pkg/api"
	"github.com/arbelos/dexkeeper/pkg/chain"
	"github.com/arbelos/dexkeeper/pkg/engine"
	"github.com/arbelos/dexkeeper/pkg/journal"
	"github.com/arbelos/dexkeeper/pkg/orderstore"
	"github.com/arbelos/dexkeeper/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Signer (optional: absence degrades to read-only) ----
	var signer *chain.Signer
	if cfg.Chain.PrivateKeyHex != "" {
		signer, err = chain.FromPrivateKeyHex(cfg.Chain.PrivateKeyHex)
		if err != nil {
			sugar.Fatalw("signer_init_failed", "err", err)
		}
		sugar.Infow("signer_loaded", "address", signer.Address().Hex())
	} else {
		sugar.Warn("no keeper key configured - running read-only, settlement disabled")
	}

	// ---- Chain clients ----
	client, err := chain.Dial(ctx, cfg.Chain.RPCURL, signer, sugar)
	if err != nil {
		sugar.Fatalw("chain_dial_failed", "rpc_url", cfg.Chain.RPCURL, "err", err)
	}
	defer client.Close()
	oracle := chain.NewOracle(client)
	venue := chain.NewVenue(client)

	// ---- Order store ----
	store := orderstore.NewClient(cfg.OrderStore.BaseURL, cfg.OrderStore.RequestTimeout, sugar)

	// ---- Settlement journal ----
	jnl, err := journal.Open(cfg.Node.JournalPath)
	if err != nil {
		sugar.Fatalw("journal_open_failed", "path", cfg.Node.JournalPath, "err", err)
	}
	defer jnl.Close()

	// ---- Engine ----
	clock := util.RealClock{}
	gate := engine.NewGate(oracle, cfg.Chain.CallTimeout, sugar)
	reconciler := engine.NewReconciler(store, cfg.OrderStore.RequestTimeout, sugar)

	var executor *engine.Executor
	if signer != nil {
		executor = engine.NewExecutor(venue, oracle, jnl,
			cfg.Engine.SlippageBps, cfg.Chain.CallTimeout, sugar)
	}

	cycle := engine.NewCycle(store, gate, executor, reconciler, clock,
		engine.MatcherConfig{
			MinOrderSize: cfg.Engine.MinOrderSize,
			MaxMatches:   cfg.Engine.MaxMatchesPerCycle,
		},
		cfg.OrderStore.RequestTimeout, sugar)

	keeper := engine.NewKeeper(cycle, clock, cfg.Engine.Interval, sugar)

	// ---- Ops API ----
	apiServer := api.NewServer(keeper, sugar)
	go func() {
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			sugar.Errorw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("keeper_config",
		"interval_ms", cfg.Engine.Interval.Milliseconds(),
		"max_matches_per_cycle", cfg.Engine.MaxMatchesPerCycle,
		"min_order_size", cfg.Engine.MinOrderSize.String(),
		"slippage_bps", cfg.Engine.SlippageBps,
		"order_store", cfg.OrderStore.BaseURL,
		"read_only", signer == nil)

	if err := keeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		sugar.Errorw("keeper_exited", "err", err)
	}
}
