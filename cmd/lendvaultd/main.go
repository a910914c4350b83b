package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lendvault/config"
	nativecommon "lendvault/native/common"
	"lendvault/native/lending"
	"lendvault/observability"
	"lendvault/observability/logging"
	"lendvault/rpc"
	"lendvault/rpc/modules"
	"lendvault/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("lendvaultd", cfg.Env, cfg.LogFile)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	store := lending.NewStore(db)
	oracle := lending.NewPriceStore()
	pauses := nativecommon.NewPauses()

	engine := lending.NewEngine(common.HexToAddress(cfg.VaultAddress))
	engine.SetState(store)
	engine.SetOracle(oracle)
	engine.SetPauses(pauses)
	engine.SetStep(currentStep(cfg.StepIntervalSeconds))

	if err := bootstrapMarkets(engine, store, oracle, cfg, logger); err != nil {
		logger.Error("Failed to bootstrap markets", slog.Any("error", err))
		os.Exit(1)
	}

	module := modules.NewLendingModule(engine, oracle, pauses)
	server := rpc.NewServer(module, logger)

	rpcErrCh := make(chan error, 1)
	go func() {
		rpcErrCh <- server.Start(cfg.RPCAddress)
		close(rpcErrCh)
	}()
	if err := waitForRPCStartup(cfg.RPCAddress, rpcErrCh, 5*time.Second); err != nil {
		logger.Error("RPC server failed to start", slog.Any("error", err))
		os.Exit(1)
	}

	stopAccrual := startAccrualLoop(engine, cfg.StepIntervalSeconds, logger)
	defer stopAccrual()

	logger.Info("lendvault daemon initialised and running",
		slog.String("rpc", cfg.RPCAddress),
		slog.Int("markets", len(cfg.Markets)),
		slog.Uint64("step_interval_seconds", cfg.StepIntervalSeconds),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err, ok := <-rpcErrCh:
		if ok && err != nil {
			logger.Error("RPC server terminated", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

// bootstrapMarkets lists every configured market that is not already present
// in the store and rebinds ledger tokens for the ones that are. Configured
// prices seed the oracle on every start so restarted nodes quote immediately.
//
// The in-process ledger token keeps balances in memory only, so a restart
// starts restored markets with empty token books even though the stored
// ledger records survive. Deployments against real asset ledgers must bind a
// token adapter whose balances are durable.
func bootstrapMarkets(engine *lending.Engine, store *lending.Store, oracle *lending.PriceStore, cfg *config.Config, logger *slog.Logger) error {
	for i := range cfg.Markets {
		market := &cfg.Markets[i]
		asset := market.AssetAddress()

		existing, err := store.GetMarket(asset)
		if err != nil {
			return fmt.Errorf("load market %s: %w", market.Symbol, err)
		}
		if existing == nil {
			assetCfg, err := market.EngineConfig()
			if err != nil {
				return fmt.Errorf("market %s: %w", market.Symbol, err)
			}
			if err := engine.ListAsset(asset, assetCfg, lending.NewLedgerToken(engine.Vault())); err != nil {
				return fmt.Errorf("list market %s: %w", market.Symbol, err)
			}
			logger.Info("listed market", slog.String("symbol", market.Symbol), slog.String("asset", asset.Hex()))
		} else {
			engine.BindToken(asset, lending.NewLedgerToken(engine.Vault()))
			logger.Info("restored market", slog.String("symbol", market.Symbol), slog.String("asset", asset.Hex()))
		}

		price, err := market.Price()
		if err != nil {
			return fmt.Errorf("market %s price: %w", market.Symbol, err)
		}
		if price != nil {
			if err := oracle.SetPrice(asset, price); err != nil {
				return fmt.Errorf("market %s price: %w", market.Symbol, err)
			}
		}
	}
	return nil
}

// currentStep maps wall-clock time onto the accrual step counter so the
// counter stays monotonic across restarts.
func currentStep(intervalSeconds uint64) uint64 {
	if intervalSeconds == 0 {
		return 0
	}
	return uint64(time.Now().Unix()) / intervalSeconds
}

// startAccrualLoop advances the step counter on a fixed cadence and settles
// interest across all listed markets. Accrual runs even while the module is
// paused because time passes regardless of the pause switch.
func startAccrualLoop(engine *lending.Engine, intervalSeconds uint64, logger *slog.Logger) func() {
	if intervalSeconds == 0 {
		return func() {}
	}
	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				engine.SetStep(currentStep(intervalSeconds))
				if err := engine.AccrueAll(); err != nil {
					logger.Error("accrual pass failed", slog.Any("error", err))
					continue
				}
				observability.VaultMetrics().RecordAccrual()
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

func waitForRPCStartup(addr string, errCh <-chan error, timeout time.Duration) error {
	dialAddr := dialAddressFor(addr)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err, ok := <-errCh:
			if !ok || err == nil {
				return fmt.Errorf("RPC server exited before startup confirmation")
			}
			return err
		default:
		}

		conn, err := net.DialTimeout("tcp", dialAddr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case err, ok := <-errCh:
			if !ok || err == nil {
				return fmt.Errorf("RPC server exited before startup confirmation")
			}
			return err
		case <-ticker.C:
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for RPC server to start on %s", addr)
		}
	}
}

func dialAddressFor(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
