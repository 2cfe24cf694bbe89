package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DateLayout        = "2006-01-02"
	defaultConfigFile = "config.yaml"
)

// Default returns the configuration used when neither a file nor the
// environment sets a value.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Symbols: []string{"BTCUSDT", "ETHUSDT"},
		Backtest: BacktestConfig{
			MA:         20,
			Threshold:  0.005,
			VolumeRate: 1.2,
			VolumeMA:   5,
			Slope:      3,
			Breakout:   true,
			Reentry:    true,
			Entry:      "TigerEntry",
			Exits:      []string{"TigerExit"},
		},
		Investor: InvestorConfig{
			Capital:    2000000,
			Sizing:     "fraction",
			Fraction:   0.25,
			MaxShares:  1000,
			MinBalance: 3000,
			Lookback:   400,
			Fees: FeesConfig{
				BuyRate:  0.000855,
				SellRate: 0.002655,
				MinFee:   20,
			},
		},
		Sync: SyncConfig{
			HistoryDays: 730,
		},
	}
}

// Load layers the configuration: defaults, then .env, then a YAML file,
// then environment variables. The YAML path is the first of paths, else
// CONFIG_FILE, else config.yaml when it exists. A missing .env is fine.
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	c := Default()

	path, required := defaultConfigFile, false
	if len(paths) > 0 && paths[0] != "" {
		path, required = paths[0], true
	} else if env := os.Getenv("CONFIG_FILE"); env != "" {
		path, required = env, true
	}
	if err := c.loadFile(path, required); err != nil {
		return nil, err
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) loadFile(path string, required bool) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	log.Printf("Using config file %s", path)
	return nil
}

func (c *Config) applyEnv() {
	c.Exchange.APIKey = pickStr(os.Getenv("BINANCE_API_KEY"), c.Exchange.APIKey)
	c.Exchange.SecretKey = pickStr(os.Getenv("BINANCE_SECRET_KEY"), c.Exchange.SecretKey)

	c.Database.Host = pickStr(os.Getenv("DB_HOST"), c.Database.Host)
	if port := EnvtoInt(os.Getenv("DB_PORT")); port > 0 {
		c.Database.Port = port
	}
	c.Database.User = pickStr(os.Getenv("DB_USER"), c.Database.User)
	c.Database.Password = pickStr(os.Getenv("DB_PASSWORD"), c.Database.Password)
	c.Database.DBName = pickStr(os.Getenv("DB_NAME"), c.Database.DBName)
	c.Database.SSLMode = pickStr(os.Getenv("DB_SSLMODE"), c.Database.SSLMode)

	c.Symbols = getSymbols(c.Symbols)

	if ma := EnvtoInt(os.Getenv("BACKTEST_MA")); ma > 0 {
		c.Backtest.MA = ma
	}
	c.Backtest.Entry = pickStr(os.Getenv("BACKTEST_ENTRY"), c.Backtest.Entry)
	if exits := os.Getenv("BACKTEST_EXITS"); exits != "" {
		c.Backtest.Exits = splitCSV(exits)
	}
	c.Backtest.EntryDate = pickStr(os.Getenv("BACKTEST_ENTRY_DATE"), c.Backtest.EntryDate)
	c.Backtest.ExitDate = pickStr(os.Getenv("BACKTEST_EXIT_DATE"), c.Backtest.ExitDate)
	if workers := EnvtoInt(os.Getenv("BACKTEST_WORKERS")); workers > 0 {
		c.Backtest.Workers = workers
	}

	if capital, err := strconv.ParseFloat(os.Getenv("INVESTOR_CAPITAL"), 64); err == nil && capital > 0 {
		c.Investor.Capital = capital
	}
	c.Investor.Sizing = pickStr(os.Getenv("INVESTOR_SIZING"), c.Investor.Sizing)

	if days := EnvtoInt(os.Getenv("SYNC_HISTORY_DAYS")); days > 0 {
		c.Sync.HistoryDays = days
	}
}

// Validate checks the values every mode depends on.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("at least one symbol is required")
	}

	b := c.Backtest
	if b.MA < 1 || b.VolumeMA < 1 || b.Slope < 1 {
		return errors.New("backtest.ma, backtest.volumeMa and backtest.slope must be positive")
	}
	if b.Entry == "" || len(b.Exits) == 0 {
		return errors.New("backtest.entry and backtest.exits are required")
	}
	entry, err := ParseDate(b.EntryDate)
	if err != nil {
		return fmt.Errorf("backtest.entryDate: %w", err)
	}
	exit, err := ParseDate(b.ExitDate)
	if err != nil {
		return fmt.Errorf("backtest.exitDate: %w", err)
	}
	if !entry.IsZero() && !exit.IsZero() && exit.Before(entry) {
		return fmt.Errorf("backtest.exitDate %s is before backtest.entryDate %s", b.ExitDate, b.EntryDate)
	}

	inv := c.Investor
	if inv.Capital < 0 {
		return errors.New("investor.capital cannot be negative")
	}
	switch inv.Sizing {
	case "fraction":
		if inv.Fraction <= 0 || inv.Fraction > 1 {
			return errors.New("investor.fraction must be in (0,1]")
		}
	case "shares":
		if inv.MaxShares <= 0 {
			return errors.New("investor.maxShares must be positive")
		}
	default:
		return fmt.Errorf("invalid investor.sizing: %s (fraction|shares)", inv.Sizing)
	}
	if inv.Fees.BuyRate < 0 || inv.Fees.SellRate < 0 || inv.Fees.MinFee < 0 {
		return errors.New("investor.fees cannot be negative")
	}

	if c.Sync.HistoryDays <= 0 {
		return errors.New("sync.historyDays must be positive")
	}
	return nil
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.DBName,
		d.SSLMode)
}

// ParseDate parses a DateLayout date in UTC. Empty means no date.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, s)
}

// helper env(string) to int
func EnvtoInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}

// helper to get symbols
func getSymbols(fallback []string) []string {
	symbols := os.Getenv("TRADING_SYMBOLS")
	if symbols == "" {
		return fallback
	}
	return splitCSV(symbols)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func pickStr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
