package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polycopy/internal/application/engine"
	"github.com/alejandrodnm/polycopy/internal/application/sizing"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

// Config es la configuración completa del bot.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Sizing  SizingConfig  `yaml:"sizing"`
	Risk    RiskConfig    `yaml:"risk"`
	Traders TradersConfig `yaml:"traders"`
	API     APIConfig     `yaml:"api"`
	Wallet  WalletConfig  `yaml:"wallet"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig controla el loop de polling.
type EngineConfig struct {
	Mode                 string  `yaml:"mode"` // paper | live (solo al arrancar)
	PollIntervalSeconds  int     `yaml:"poll_interval_seconds"`
	RosterRefreshSeconds int     `yaml:"roster_refresh_seconds"`
	FetchRetries         *int    `yaml:"fetch_retries"`  // nil = default; 0 = sin reintentos
	SubmitRetries        *int    `yaml:"submit_retries"` // nil = default; 0 = sin reintentos
	RetryBackoffMs       int     `yaml:"retry_backoff_ms"`
	MaxParallel          int     `yaml:"max_parallel"`
	PaperCapitalUSDC     float64 `yaml:"paper_capital_usdc"`
	PaperFeeRate         float64 `yaml:"paper_fee_rate"`
}

// SizingConfig controla el tamaño de las réplicas.
type SizingConfig struct {
	CapitalRatio float64 `yaml:"capital_ratio"`
	Increment    float64 `yaml:"increment"`    // shares
	MaxSlippage  float64 `yaml:"max_slippage"` // 0 = a mercado
}

// RiskConfig son los límites de cuenta.
type RiskConfig struct {
	MaxPositionUSD         float64 `yaml:"max_position_usd"`
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
	DailyLossLimitUSD      float64 `yaml:"daily_loss_limit_usd"`
	DayBoundary            string  `yaml:"day_boundary"` // utc | local
}

// TradersConfig controla el roster.
type TradersConfig struct {
	Manual     []string `yaml:"manual"`
	MaxTraders int      `yaml:"max_traders"`
}

// APIConfig contiene los base URLs y la key del leaderboard.
type APIConfig struct {
	CLOBBase       string `yaml:"clob_base"`
	DataBase       string `yaml:"data_base"`
	LeaderboardURL string `yaml:"leaderboard_url"`
	LeaderboardKey string `yaml:"-"` // solo por env: PCC_API_KEY
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// WalletConfig solo aplica en modo live. La clave nunca va en el YAML.
type WalletConfig struct {
	PrivateKey    string `yaml:"-"`
	FunderAddress string `yaml:"funder_address"`
	SignatureType int    `yaml:"signature_type"` // 0 EOA, 1 POLY_PROXY, 2 GNOSIS_SAFE
	RPCURL        string `yaml:"rpc_url"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN              string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
	PersistBaselines bool   `yaml:"persist_baselines"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
// No valida: el caller llama a Validate.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
// Un valor numérico mal formado se ignora aquí y lo detecta Validate si queda inválido.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PCC_API_URL"); v != "" {
		cfg.API.LeaderboardURL = v
	}
	if v := os.Getenv("PCC_API_KEY"); v != "" {
		cfg.API.LeaderboardKey = v
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.Wallet.PrivateKey = v
	}
	if v := os.Getenv("FUNDER_ADDRESS"); v != "" {
		cfg.Wallet.FunderAddress = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Wallet.RPCURL = v
	}
	if v := os.Getenv("PAPER_TRADING"); v != "" {
		if paper, err := strconv.ParseBool(v); err == nil {
			cfg.Engine.Mode = string(domain.ModeLive)
			if paper {
				cfg.Engine.Mode = string(domain.ModePaper)
			}
		}
	}
	if v := os.Getenv("MAX_TRADERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Traders.MaxTraders = n
		}
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.PollIntervalSeconds = n
		}
	}
	if v := os.Getenv("MAX_POSITION_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Risk.MaxPositionUSD = f
		}
	}
	if v := os.Getenv("MAX_CONCURRENT_POSITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Risk.MaxConcurrentPositions = n
		}
	}
	if v := os.Getenv("DAILY_LOSS_LIMIT_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Risk.DailyLossLimitUSD = f
		}
	}
	if v := os.Getenv("MANUAL_TRADERS"); v != "" {
		cfg.Traders.Manual = nil
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				cfg.Traders.Manual = append(cfg.Traders.Manual, a)
			}
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Solo rellena ceros: un valor negativo explícito lo rechaza Validate.
func setDefaults(cfg *Config) {
	if cfg.Engine.Mode == "" {
		cfg.Engine.Mode = string(domain.ModePaper)
	}
	if cfg.Engine.PollIntervalSeconds == 0 {
		cfg.Engine.PollIntervalSeconds = 30
	}
	if cfg.Engine.RosterRefreshSeconds == 0 {
		cfg.Engine.RosterRefreshSeconds = 600
	}
	if cfg.Engine.FetchRetries == nil {
		cfg.Engine.FetchRetries = intPtr(2)
	}
	if cfg.Engine.SubmitRetries == nil {
		cfg.Engine.SubmitRetries = intPtr(2)
	}
	if cfg.Engine.RetryBackoffMs == 0 {
		cfg.Engine.RetryBackoffMs = 500
	}
	if cfg.Engine.MaxParallel == 0 {
		cfg.Engine.MaxParallel = 8
	}
	if cfg.Engine.PaperCapitalUSDC == 0 {
		cfg.Engine.PaperCapitalUSDC = 1000
	}
	if cfg.Sizing.CapitalRatio == 0 {
		cfg.Sizing.CapitalRatio = 0.1
	}
	if cfg.Sizing.Increment == 0 {
		cfg.Sizing.Increment = 1
	}
	if cfg.Risk.MaxPositionUSD == 0 {
		cfg.Risk.MaxPositionUSD = 50
	}
	if cfg.Risk.MaxConcurrentPositions == 0 {
		cfg.Risk.MaxConcurrentPositions = 10
	}
	if cfg.Risk.DailyLossLimitUSD == 0 {
		cfg.Risk.DailyLossLimitUSD = 100
	}
	if cfg.Risk.DayBoundary == "" {
		cfg.Risk.DayBoundary = "utc"
	}
	if cfg.Traders.MaxTraders == 0 {
		cfg.Traders.MaxTraders = 10
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.LeaderboardURL == "" {
		cfg.API.LeaderboardURL = "https://polycopycatbot.com/api/traders"
	}
	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = 15
	}
	if cfg.Wallet.RPCURL == "" {
		cfg.Wallet.RPCURL = "https://polygon-rpc.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polycopy.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate devuelve todos los problemas juntos; errors.Is(err, domain.ErrConfigInvalid).
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	mode, err := domain.ParseMode(c.Engine.Mode)
	if err != nil {
		bad("engine.mode: %q must be paper or live", c.Engine.Mode)
	}
	if c.Engine.PollIntervalSeconds < 1 {
		bad("engine.poll_interval_seconds: must be >= 1, got %d", c.Engine.PollIntervalSeconds)
	}
	if c.Engine.RosterRefreshSeconds < 1 {
		bad("engine.roster_refresh_seconds: must be >= 1, got %d", c.Engine.RosterRefreshSeconds)
	}
	if derefInt(c.Engine.FetchRetries) < 0 || derefInt(c.Engine.SubmitRetries) < 0 {
		bad("engine: retries must be >= 0")
	}
	if c.Engine.MaxParallel < 1 {
		bad("engine.max_parallel: must be >= 1, got %d", c.Engine.MaxParallel)
	}
	if c.Engine.PaperCapitalUSDC < 0 || c.Engine.PaperFeeRate < 0 || c.Engine.PaperFeeRate >= 1 {
		bad("engine: paper_capital_usdc must be >= 0 and paper_fee_rate in [0,1)")
	}
	if c.Sizing.CapitalRatio <= 0 || c.Sizing.CapitalRatio > 1 {
		bad("sizing.capital_ratio: must be in (0,1], got %g", c.Sizing.CapitalRatio)
	}
	if c.Sizing.Increment <= 0 {
		bad("sizing.increment: must be > 0, got %g", c.Sizing.Increment)
	}
	if c.Sizing.MaxSlippage < 0 || c.Sizing.MaxSlippage >= 1 {
		bad("sizing.max_slippage: must be in [0,1), got %g", c.Sizing.MaxSlippage)
	}
	if c.Risk.MaxPositionUSD <= 0 {
		bad("risk.max_position_usd: must be > 0, got %g", c.Risk.MaxPositionUSD)
	}
	if c.Risk.MaxConcurrentPositions < 1 {
		bad("risk.max_concurrent_positions: must be >= 1, got %d", c.Risk.MaxConcurrentPositions)
	}
	if c.Risk.DailyLossLimitUSD <= 0 {
		bad("risk.daily_loss_limit_usd: must be > 0, got %g", c.Risk.DailyLossLimitUSD)
	}
	if b := strings.ToLower(c.Risk.DayBoundary); b != "utc" && b != "local" {
		bad("risk.day_boundary: %q must be utc or local", c.Risk.DayBoundary)
	}
	if c.Traders.MaxTraders < 1 {
		bad("traders.max_traders: must be >= 1, got %d", c.Traders.MaxTraders)
	}
	for _, a := range c.Traders.Manual {
		if !domain.NormalizeAddress(a).Valid() {
			bad("traders.manual: %q is not a wallet address", a)
		}
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		bad("log.format: %q must be text or json", c.Log.Format)
	}
	if mode == domain.ModeLive {
		if c.Wallet.PrivateKey == "" {
			bad("wallet: PRIVATE_KEY is required in live mode")
		}
		if c.Wallet.SignatureType < 0 || c.Wallet.SignatureType > 2 {
			bad("wallet.signature_type: must be 0, 1 or 2, got %d", c.Wallet.SignatureType)
		}
		if c.Wallet.FunderAddress != "" && !domain.NormalizeAddress(c.Wallet.FunderAddress).Valid() {
			bad("wallet.funder_address: %q is not a wallet address", c.Wallet.FunderAddress)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrConfigInvalid, errors.Join(errs...))
}

// Mode devuelve el modo de ejecución. Validate ya garantizó que es válido.
func (c *Config) Mode() domain.Mode {
	m, _ := domain.ParseMode(c.Engine.Mode)
	return m
}

// PollInterval devuelve el intervalo de polling como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalSeconds) * time.Second
}

// DayLocation es el corte del día para el límite de pérdida diaria.
func (c *Config) DayLocation() *time.Location {
	if strings.EqualFold(c.Risk.DayBoundary, "local") {
		return time.Local
	}
	return time.UTC
}

// EngineSettings construye la parte recargable en caliente.
func (c *Config) EngineSettings() engine.Settings {
	return engine.Settings{
		PollInterval: c.PollInterval(),
		Sizing: sizing.Config{
			CapitalRatio: c.Sizing.CapitalRatio,
			Increment:    c.Sizing.Increment,
			MaxSlippage:  c.Sizing.MaxSlippage,
		},
		Limits: domain.RiskLimits{
			MaxPositionUSD:         c.Risk.MaxPositionUSD,
			MaxConcurrentPositions: c.Risk.MaxConcurrentPositions,
			DailyLossLimitUSD:      c.Risk.DailyLossLimitUSD,
			Increment:              c.Sizing.Increment,
		},
		FetchRetries:  derefInt(c.Engine.FetchRetries),
		SubmitRetries: derefInt(c.Engine.SubmitRetries),
		RetryBackoff:  time.Duration(c.Engine.RetryBackoffMs) * time.Millisecond,
		RosterRefresh: time.Duration(c.Engine.RosterRefreshSeconds) * time.Second,
		MaxParallel:   c.Engine.MaxParallel,
	}
}

func intPtr(n int) *int { return &n }

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
