package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polycopy/config"
	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

func runAddTrader(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, raw, label string) error {
	addr, err := parseTrader(raw)
	if err != nil {
		return err
	}
	if err := store.UpsertTrader(ctx, domain.Trader{
		Address: addr,
		Label:   label,
		Source:  domain.SourceManual,
		Active:  true,
	}); err != nil {
		return err
	}
	recordRoster(ctx, store, cfg, addr, domain.OutcomeTraderAdded, label)
	fmt.Printf("added trader %s\n", addr)
	warnManualOverride(cfg)
	return nil
}

// runRemoveTrader borra el trader y su baseline: si vuelve, empieza con seed.
func runRemoveTrader(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, raw string) error {
	addr, err := parseTrader(raw)
	if err != nil {
		return err
	}
	if err := store.RemoveTrader(ctx, addr); err != nil {
		return err
	}
	if err := store.Baselines().Delete(ctx, addr); err != nil {
		return err
	}
	recordRoster(ctx, store, cfg, addr, domain.OutcomeTraderRemoved, "")
	fmt.Printf("removed trader %s\n", addr)
	warnManualOverride(cfg)
	return nil
}

func runToggleTrader(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, raw string) error {
	addr, err := parseTrader(raw)
	if err != nil {
		return err
	}
	traders, err := store.ListTraders(ctx, false)
	if err != nil {
		return err
	}
	for _, t := range traders {
		if t.Address != addr {
			continue
		}
		if err := store.SetTraderActive(ctx, addr, !t.Active); err != nil {
			return err
		}
		state := "paused"
		if !t.Active {
			state = "active"
		}
		fmt.Printf("trader %s is now %s\n", addr, state)
		warnManualOverride(cfg)
		return nil
	}
	return fmt.Errorf("trader %s not found", addr)
}

func parseTrader(raw string) (domain.TraderAddress, error) {
	addr := domain.NormalizeAddress(raw)
	if !addr.Valid() {
		return "", fmt.Errorf("%q is not a wallet address", raw)
	}
	return addr, nil
}

func recordRoster(ctx context.Context, store *storage.SQLiteStorage, cfg *config.Config, addr domain.TraderAddress, outcome domain.Outcome, details string) {
	err := store.Record(ctx, domain.ActivityRecord{
		Timestamp: time.Now().UTC(),
		Trader:    addr,
		Outcome:   outcome,
		Mode:      cfg.Mode(),
		Details:   details,
	})
	if err != nil {
		slog.Warn("activity record failed", "err", err)
	}
}

func warnManualOverride(cfg *config.Config) {
	if len(cfg.Traders.Manual) > 0 {
		fmt.Println("note: traders.manual / MANUAL_TRADERS is set and takes precedence over the stored roster")
	}
}
