package engine

import (
	"time"

	"github.com/alejandrodnm/polycopy/internal/application/sizing"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

const (
	defaultPollInterval  = 30 * time.Second
	defaultFetchRetries  = 2
	defaultSubmitRetries = 2
	defaultRetryBackoff  = 500 * time.Millisecond
	defaultRosterRefresh = 10 * time.Minute
	defaultMaxParallel   = 8
)

// Settings is the hot-reloadable part of the configuration. A cycle loads it
// once at start and uses that copy throughout.
type Settings struct {
	PollInterval  time.Duration
	Sizing        sizing.Config
	Limits        domain.RiskLimits
	FetchRetries  int
	SubmitRetries int
	RetryBackoff  time.Duration
	RosterRefresh time.Duration
	MaxParallel   int // traders en paralelo en RunOnce
}

// DefaultSettings: 30s, ratio 0.1, $50 por posición, 10 posiciones, $100/día.
func DefaultSettings() Settings {
	return Settings{
		PollInterval: defaultPollInterval,
		Sizing:       sizing.DefaultConfig(),
		Limits: domain.RiskLimits{
			MaxPositionUSD:         50,
			MaxConcurrentPositions: 10,
			DailyLossLimitUSD:      100,
		},
		FetchRetries:  defaultFetchRetries,
		SubmitRetries: defaultSubmitRetries,
		RetryBackoff:  defaultRetryBackoff,
		RosterRefresh: defaultRosterRefresh,
		MaxParallel:   defaultMaxParallel,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.PollInterval <= 0 {
		s.PollInterval = d.PollInterval
	}
	if s.Sizing.CapitalRatio <= 0 {
		s.Sizing.CapitalRatio = d.Sizing.CapitalRatio
	}
	if s.Sizing.Increment <= 0 {
		s.Sizing.Increment = d.Sizing.Increment
	}
	if s.FetchRetries < 0 {
		s.FetchRetries = 0
	}
	if s.SubmitRetries < 0 {
		s.SubmitRetries = 0
	}
	if s.RetryBackoff <= 0 {
		s.RetryBackoff = d.RetryBackoff
	}
	if s.RosterRefresh <= 0 {
		s.RosterRefresh = d.RosterRefresh
	}
	if s.MaxParallel <= 0 {
		s.MaxParallel = d.MaxParallel
	}
	return s
}
