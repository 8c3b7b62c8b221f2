package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polycopy/config"
	"github.com/alejandrodnm/polycopy/internal/adapters/notify"
	"github.com/alejandrodnm/polycopy/internal/adapters/onchain"
	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

const (
	reportOrders = 20
	reportWindow = 24 * time.Hour
)

func runReport(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) error {
	traders, err := store.ListTraders(ctx, false)
	if err != nil {
		return err
	}
	positions, err := store.LoadPositions(ctx)
	if err != nil {
		return err
	}
	orders, err := store.RecentOrders(ctx, reportOrders)
	if err != nil {
		return err
	}
	now := time.Now()
	realized, err := store.RealizedSince(ctx, dayStart(now, cfg.DayLocation()))
	if err != nil {
		return err
	}
	since := now.Add(-reportWindow)
	counts, err := store.OutcomeCounts(ctx, since)
	if err != nil {
		return err
	}

	// Sin feed de precios: el uPnL usa la última marca guardada.
	var unrealized float64
	for _, p := range positions {
		unrealized += p.UnrealizedPnL()
	}

	notify.NewConsole(false).PrintReport(notify.Report{
		Mode:            cfg.Mode(),
		Traders:         traders,
		Positions:       positions,
		RealizedToday:   realized,
		UnrealizedToday: unrealized,
		DailyLossLimit:  cfg.Risk.DailyLossLimitUSD,
		Balance:         reportBalance(ctx, cfg),
		Orders:          orders,
		Counts:          counts,
		Since:           since,
	})
	return nil
}

// reportBalance devuelve -1 (no mostrar) en paper o si falla el RPC.
func reportBalance(ctx context.Context, cfg *config.Config) float64 {
	if cfg.Mode() != domain.ModeLive {
		return -1
	}
	w, err := onchain.NewWallet(cfg.Wallet.RPCURL, cfg.Wallet.PrivateKey, cfg.Wallet.FunderAddress)
	if err != nil {
		slog.Warn("report: wallet unavailable", "err", err)
		return -1
	}
	defer w.Close()
	bal, err := w.USDCBalance(ctx)
	if err != nil {
		slog.Warn("report: balance unavailable", "err", err)
		return -1
	}
	return bal
}
