package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/polycopy/config"
	"github.com/alejandrodnm/polycopy/internal/adapters/notify"
	"github.com/alejandrodnm/polycopy/internal/adapters/onchain"
	"github.com/alejandrodnm/polycopy/internal/adapters/polymarket"
	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/application/baseline"
	"github.com/alejandrodnm/polycopy/internal/application/engine"
	"github.com/alejandrodnm/polycopy/internal/application/engine/live"
	"github.com/alejandrodnm/polycopy/internal/application/engine/paper"
	"github.com/alejandrodnm/polycopy/internal/application/risk"
	"github.com/alejandrodnm/polycopy/internal/application/roster"
	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

const (
	stopFile      = "STOP"
	stopFilePoll  = 5 * time.Second
	drainTimeout  = 30 * time.Second
	minLiveUSDC   = 1.0
	liveAbortWait = 5 * time.Second
)

func run(ctx context.Context, cfg *config.Config, configPath string, store *storage.SQLiteStorage, once, verbose bool) error {
	mode := cfg.Mode()

	sink, err := newSink(ctx, cfg, store)
	if err != nil {
		return err
	}
	if sink == nil {
		return nil // abortado durante el aviso de live
	}

	gate := risk.New(risk.Config{Location: cfg.DayLocation(), Increment: cfg.Sizing.Increment})
	if err := restoreGate(ctx, gate, store, cfg.DayLocation()); err != nil {
		return err
	}

	var baselines ports.BaselineStore = baseline.NewMemoryStore()
	if cfg.Storage.PersistBaselines {
		baselines = store.Baselines()
	}

	source := polymarket.NewClient(clientOptions(cfg, true))
	var board ports.LeaderboardSource
	if cfg.API.LeaderboardKey != "" {
		board = polymarket.NewLeaderboardClient(cfg.API.LeaderboardURL, cfg.API.LeaderboardKey, clientOptions(cfg, false))
	}
	resolver := roster.New(roster.Config{Manual: cfg.Traders.Manual, MaxTraders: cfg.Traders.MaxTraders}, store, board, nil)

	activity := notify.Fanout{store, notify.NewLogSink(nil), notify.NewConsole(verbose)}

	coord := engine.New(cfg.EngineSettings(), engine.Deps{
		Source:    source,
		Sink:      sink,
		Baselines: baselines,
		Roster:    resolver,
		Activity:  activity,
		Journal:   store,
		Ledger:    store,
		Gate:      gate,
		Mode:      mode,
	})

	if once {
		return runOnce(ctx, coord)
	}

	if err := coord.Start(ctx); err != nil {
		return err
	}
	if len(coord.Traders()) == 0 {
		slog.Warn("no traders configured: set traders.manual, MANUAL_TRADERS or PCC_API_KEY, or use -add-trader")
	}
	slog.Info("polycopy running, press Ctrl+C or create the STOP file to exit", "stop_file", stopFile)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	ticker := time.NewTicker(stopFilePoll)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received")
			break loop
		case <-hup:
			reload(coord, cfg, configPath)
		case <-ticker.C:
			if _, err := os.Stat(stopFile); err == nil {
				slog.Info("STOP file detected, shutting down")
				os.Remove(stopFile)
				break loop
			}
		}
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	if err := coord.Stop(drainCtx); err != nil {
		return err
	}
	st := coord.Stats()
	slog.Info("polycopy stopped cleanly",
		"cycles", st.Cycles,
		"failed_cycles", st.FailedCycles,
		"executed", st.Executed,
		"skipped", st.Skipped,
		"rejected", st.Rejected,
	)
	return nil
}

func runOnce(ctx context.Context, coord *engine.Coordinator) error {
	results, err := coord.RunOnce(ctx)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		slog.Warn("no traders configured: nothing to do")
		return nil
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
		slog.Info("cycle complete",
			"trader", r.Trader,
			"seeded", r.Seeded,
			"positions", r.Positions,
			"deltas", r.Deltas,
			"executed", r.Executed,
			"skipped", r.Skipped,
			"rejected", r.Rejected,
			"duration", r.Duration.Round(time.Millisecond),
			"err", r.Err,
		)
	}
	if failed == len(results) {
		return fmt.Errorf("all %d cycles failed", failed)
	}
	return nil
}

// reload re-lee el archivo y aplica solo la parte recargable. Un archivo
// inválido se ignora y el engine sigue con la configuración anterior.
func reload(coord *engine.Coordinator, current *config.Config, path string) {
	next, err := config.Load(path)
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		slog.Warn("config reload rejected, keeping previous settings", "err", err)
		return
	}
	if next.Mode() != current.Mode() || next.Storage != current.Storage {
		slog.Warn("config reload: mode and storage changes need a restart")
	}
	coord.UpdateSettings(next.EngineSettings())
	slog.Info("config reloaded",
		"interval", next.PollInterval(),
		"capital_ratio", next.Sizing.CapitalRatio,
		"increment", next.Sizing.Increment,
		"max_position_usd", next.Risk.MaxPositionUSD,
		"max_concurrent", next.Risk.MaxConcurrentPositions,
		"daily_loss_limit", next.Risk.DailyLossLimitUSD,
	)
}

// newSink devuelve nil, nil si el usuario aborta durante el aviso de live.
func newSink(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) (ports.ExecutionSink, error) {
	if cfg.Mode() == domain.ModePaper {
		slog.Info("=== PAPER TRADING MODE ===", "capital", fmt.Sprintf("$%.2f", cfg.Engine.PaperCapitalUSDC))
		return paper.New(paper.Config{
			InitialCapital: cfg.Engine.PaperCapitalUSDC,
			FeeRate:        cfg.Engine.PaperFeeRate,
		}), nil
	}

	fmt.Printf("\n⚠️  LIVE TRADING MODE: REAL MONEY WILL BE SPENT\n")
	fmt.Printf("   Capital ratio: %.2f | Max position: $%.2f | Daily loss limit: $%.2f\n",
		cfg.Sizing.CapitalRatio, cfg.Risk.MaxPositionUSD, cfg.Risk.DailyLossLimitUSD)
	fmt.Printf("   Press Ctrl+C within 5 seconds to abort...\n\n")

	abortTimer := time.NewTimer(liveAbortWait)
	defer abortTimer.Stop()
	select {
	case <-abortTimer.C:
	case <-ctx.Done():
		slog.Info("live trading aborted by user")
		return nil, nil
	}

	wallet, err := onchain.NewWallet(cfg.Wallet.RPCURL, cfg.Wallet.PrivateKey, cfg.Wallet.FunderAddress)
	if err != nil {
		return nil, fmt.Errorf("live: wallet: %w", err)
	}

	slog.Info("live: checking on-chain approvals...")
	if err := wallet.EnsureApprovals(ctx); err != nil {
		return nil, fmt.Errorf("live: approvals: %w", err)
	}

	balance, err := wallet.USDCBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("live: balance: %w", err)
	}
	slog.Info("live: USDC.e balance", "address", wallet.Address(), "usdc", fmt.Sprintf("$%.2f", balance))
	if balance < minLiveUSDC {
		return nil, fmt.Errorf("live: insufficient USDC.e balance $%.2f", balance)
	}

	auth, err := polymarket.NewAuthClient(clientOptions(cfg, true), cfg.Wallet.PrivateKey, cfg.Wallet.FunderAddress, cfg.Wallet.SignatureType)
	if err != nil {
		return nil, fmt.Errorf("live: auth client: %w", err)
	}
	if err := auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("live: derive API credentials, check PRIVATE_KEY: %w", err)
	}
	slog.Info("live: authenticated with Polymarket CLOB", "address", auth.Address())

	trading := polymarket.NewTradingClient(auth)
	sink := live.New(trading, trading, wallet, live.Config{})
	if err := sink.RestoreBreaker(ctx, store); err != nil {
		return nil, err
	}
	if cb := sink.Breaker(); !cb.Allow(time.Now()) {
		slog.Warn("live: circuit breaker restored open", "until", cb.CooldownUntil.Local().Format(time.TimeOnly))
	}
	return sink, nil
}

// restoreGate recarga posiciones de la réplica y el P&L realizado hoy.
func restoreGate(ctx context.Context, gate *risk.Gate, store *storage.SQLiteStorage, loc *time.Location) error {
	positions, err := store.LoadPositions(ctx)
	if err != nil {
		return fmt.Errorf("restore: positions: %w", err)
	}
	realized, err := store.RealizedSince(ctx, dayStart(time.Now(), loc))
	if err != nil {
		return fmt.Errorf("restore: realized: %w", err)
	}
	gate.Restore(positions, realized)
	if len(positions) > 0 || realized != 0 {
		slog.Info("risk state restored", "positions", len(positions), "realized_today", fmt.Sprintf("$%.2f", realized))
	}
	return nil
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// clientOptions: noRetry para los clientes cuyas llamadas ya reintenta el engine.
func clientOptions(cfg *config.Config, noRetry bool) polymarket.Options {
	return polymarket.Options{
		CLOBBase: cfg.API.CLOBBase,
		DataBase: cfg.API.DataBase,
		NoRetry:  noRetry,
		Timeout:  time.Duration(cfg.API.TimeoutSeconds) * time.Second,
	}
}
