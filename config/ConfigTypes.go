package config

type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Database DatabaseConfig `yaml:"database"`
	Symbols  []string       `yaml:"symbols"`
	Backtest BacktestConfig `yaml:"backtest"`
	Investor InvestorConfig `yaml:"investor"`
	Sync     SyncConfig     `yaml:"sync"`
}

type ExchangeConfig struct {
	APIKey    string `yaml:"apiKey"`
	SecretKey string `yaml:"secretKey"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbName"`
	SSLMode  string `yaml:"sslMode"`
}

// BacktestConfig holds the default strategy parameters of a run.
type BacktestConfig struct {
	MA         int                `yaml:"ma"`
	Threshold  float64            `yaml:"threshold"`
	VolumeRate float64            `yaml:"volumeRate"`
	VolumeMA   int                `yaml:"volumeMa"`
	Slope      int                `yaml:"slope"`
	Breakout   bool               `yaml:"breakout"`
	Reentry    bool               `yaml:"reentry"`
	Entry      string             `yaml:"entry"`
	Exits      []string           `yaml:"exits"`
	EntryDate  string             `yaml:"entryDate"` // 2006-01-02, empty for no bound
	ExitDate   string             `yaml:"exitDate"`
	Extra      map[string]float64 `yaml:"extra"`
	Workers    int                `yaml:"workers"` // grid search and investor fan-out
}

type InvestorConfig struct {
	Capital    float64    `yaml:"capital"`
	Sizing     string     `yaml:"sizing"` // fraction|shares
	Fraction   float64    `yaml:"fraction"`
	MaxShares  int64      `yaml:"maxShares"`
	MinBalance float64    `yaml:"minBalance"`
	Lookback   int        `yaml:"lookback"` // warm-up days before entryDate
	Fees       FeesConfig `yaml:"fees"`
}

type FeesConfig struct {
	BuyRate  float64 `yaml:"buyRate"`
	SellRate float64 `yaml:"sellRate"`
	MinFee   float64 `yaml:"minFee"`
}

type SyncConfig struct {
	HistoryDays int `yaml:"historyDays"` // first download depth
	Workers     int `yaml:"workers"`
}
