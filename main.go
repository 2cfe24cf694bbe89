package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"StockBacktester/config"
	"StockBacktester/internal/handlers"
	"StockBacktester/internal/models"
	"StockBacktester/internal/operations/binance"
	"StockBacktester/internal/operations/investor"
	"StockBacktester/internal/repositories"
	"StockBacktester/internal/services/cache"
	"StockBacktester/internal/services/strategy"
)

func main() {
	var (
		mode       = flag.String("mode", "backtest", "backtest|grid|invest|sync|catalog|show")
		configFile = flag.String("config", "", "YAML config file (default $CONFIG_FILE or config.yaml)")
		symbols    = flag.String("symbols", "", "comma separated symbols (default from config)")
		entry      = flag.String("entry", "", "entry strategy key")
		exits      = flag.String("exits", "", "comma separated exit strategy keys")
		from       = flag.String("from", "", "entry date, 2006-01-02")
		to         = flag.String("to", "", "exit date, 2006-01-02")
		gridSpec   = flag.String("grid", "", "grid for -mode grid, e.g. ma=10,20;threshold=0.005,0.01")
		top        = flag.Int("top", 10, "grid results to print, 0 for all")
		capital    = flag.Float64("capital", 0, "investor capital (default from config)")
		source     = flag.String("source", "db", "bar source: db|binance")
		runID      = flag.String("id", "", "run id for -mode show")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	applyFlags(cfg, *symbols, *entry, *exits, *from, *to)
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	registry := strategy.NewRegistry()
	if *mode == "catalog" {
		handlers.NewBacktestHandler(nil, nil, registry, nil, cfg, os.Stdout).Catalog()
		return
	}

	// Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := setupDatabase(cfg.Database)
	barRepo := repositories.NewBarRepository(db)
	resultRepo := repositories.NewResultRepository(db)
	klines := binance.NewKlineClient(cfg.Exchange.APIKey, cfg.Exchange.SecretKey)

	if *mode == "sync" {
		barHandler := handlers.NewBarHandler(klines, barRepo, cfg.Symbols, cfg.Sync.HistoryDays, cfg.Sync.Workers)
		if err := barHandler.Sync(ctx); err != nil {
			log.Fatal("Bar sync failed:", err)
		}
		return
	}

	var bars investor.BarSource = barRepo
	switch *source {
	case "db":
	case "binance":
		bars = klines
	default:
		log.Fatalf("Unknown bar source %q", *source)
	}

	params, err := handlers.ParamsFromConfig(cfg.Backtest)
	if err != nil {
		log.Fatal("Invalid strategy parameters:", err)
	}

	h := handlers.NewBacktestHandler(bars, resultRepo, registry, cache.NewIndicatorCache(nil), cfg, os.Stdout)
	switch *mode {
	case "backtest":
		_, err = h.Backtest(ctx, cfg.Symbols, params)
	case "grid":
		grid, perr := handlers.ParseGrid(*gridSpec)
		if perr != nil {
			log.Fatal("Invalid grid:", perr)
		}
		for _, symbol := range cfg.Symbols {
			if _, err = h.GridSearch(ctx, symbol, params, grid, *top); err != nil {
				break
			}
		}
	case "invest":
		money := *capital
		if money <= 0 {
			money = cfg.Investor.Capital
		}
		_, err = h.Invest(ctx, cfg.Symbols, money, params)
	case "show":
		err = h.Show(ctx, *runID)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// applyFlags lets command line flags win over the file and environment.
func applyFlags(cfg *config.Config, symbols, entry, exits, from, to string) {
	if symbols != "" {
		cfg.Symbols = splitList(symbols)
	}
	if entry != "" {
		cfg.Backtest.Entry = entry
	}
	if exits != "" {
		cfg.Backtest.Exits = splitList(exits)
	}
	if from != "" {
		cfg.Backtest.EntryDate = from
	}
	if to != "" {
		cfg.Backtest.ExitDate = to
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setupDatabase(dbConfig config.DatabaseConfig) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dbConfig.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto migrate database schemas
	err = db.AutoMigrate(
		&models.Bar{},
		&models.BacktestRun{},
		&models.TradeRecord{},
		&models.PortfolioRun{},
		&models.PortfolioEvent{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	return db
}
