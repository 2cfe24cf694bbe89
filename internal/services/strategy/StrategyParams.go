package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidParam = errors.New("invalid strategy parameter")

// Fees is the transaction cost schedule. Zero values fall back to the
// investor defaults.
type Fees struct {
	BuyRate  float64 `json:"buyRate" yaml:"buyRate"`
	SellRate float64 `json:"sellRate" yaml:"sellRate"`
	MinFee   float64 `json:"minFee" yaml:"minFee"`
}

// Params configures one backtest run. It is a value: copy it with Clone
// before changing Exits or Extra.
type Params struct {
	MA         int     `json:"ma"`
	Threshold  float64 `json:"threshold"`  // MA premium, 0.005 is 0.5%
	VolumeRate float64 `json:"volumeRate"` // volume multiplier over VolumeMA
	VolumeMA   int     `json:"volumeMa"`
	Slope      int     `json:"slope"` // MA slope window
	Breakout   bool    `json:"breakout"`
	Reentry    bool    `json:"reentry"`

	EntryDate time.Time `json:"entryDate"`
	ExitDate  time.Time `json:"exitDate"` // zero means no upper bound

	Entry string   `json:"entry"`
	Exits []string `json:"exits"`

	Fees  Fees               `json:"fees"`
	Extra map[string]float64 `json:"extra,omitempty"`
}

// DefaultParams returns the parameters used when a run leaves them unset.
func DefaultParams() Params {
	return Params{
		MA:         20,
		Threshold:  0.005,
		VolumeRate: 1.2,
		VolumeMA:   5,
		Slope:      3,
		Breakout:   true,
		Reentry:    true,
		Entry:      "TigerEntry",
		Exits:      []string{"TigerExit"},
	}
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	c := p
	c.Exits = append([]string(nil), p.Exits...)
	if p.Extra != nil {
		c.Extra = make(map[string]float64, len(p.Extra))
		for k, v := range p.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// Validate checks the typed fields.
func (p Params) Validate() error {
	if p.MA < 1 {
		return fmt.Errorf("ma must be positive, got %d: %w", p.MA, ErrInvalidParam)
	}
	if p.VolumeMA < 1 {
		return fmt.Errorf("volumeMa must be positive, got %d: %w", p.VolumeMA, ErrInvalidParam)
	}
	if p.Slope < 1 {
		return fmt.Errorf("slope must be positive, got %d: %w", p.Slope, ErrInvalidParam)
	}
	if p.Threshold < 0 || math.IsNaN(p.Threshold) {
		return fmt.Errorf("threshold must be >= 0, got %v: %w", p.Threshold, ErrInvalidParam)
	}
	if p.Entry == "" {
		return fmt.Errorf("entry strategy is required: %w", ErrInvalidParam)
	}
	if len(p.Exits) == 0 {
		return fmt.Errorf("at least one exit strategy is required: %w", ErrInvalidParam)
	}
	if !p.ExitDate.IsZero() && p.ExitDate.Before(p.EntryDate) {
		return fmt.Errorf("exit date %s before entry date %s: %w",
			p.ExitDate.Format("2006-01-02"), p.EntryDate.Format("2006-01-02"), ErrInvalidParam)
	}
	return nil
}

// Set assigns a parameter by name. Typed fields are checked; any other name
// lands in Extra.
func (p *Params) Set(name string, value float64) error {
	switch name {
	case "ma":
		n, err := positiveInt(name, value)
		if err != nil {
			return err
		}
		p.MA = n
	case "volumeMa":
		n, err := positiveInt(name, value)
		if err != nil {
			return err
		}
		p.VolumeMA = n
	case "slope":
		n, err := positiveInt(name, value)
		if err != nil {
			return err
		}
		p.Slope = n
	case "threshold":
		if value < 0 || math.IsNaN(value) {
			return fmt.Errorf("threshold must be >= 0, got %v: %w", value, ErrInvalidParam)
		}
		p.Threshold = value
	case "volumeRate":
		if value <= 0 || math.IsNaN(value) {
			return fmt.Errorf("volumeRate must be positive, got %v: %w", value, ErrInvalidParam)
		}
		p.VolumeRate = value
	case "breakout", "reentry":
		if value != 0 && value != 1 {
			return fmt.Errorf("%s must be 0 or 1, got %v: %w", name, value, ErrInvalidParam)
		}
		if name == "breakout" {
			p.Breakout = value == 1
		} else {
			p.Reentry = value == 1
		}
	default:
		if name == "" || math.IsNaN(value) {
			return fmt.Errorf("bad extra parameter %q=%v: %w", name, value, ErrInvalidParam)
		}
		if p.Extra == nil {
			p.Extra = make(map[string]float64)
		}
		p.Extra[name] = value
	}
	return nil
}

// Get reads a parameter by any name Set accepts.
func (p Params) Get(name string) (float64, bool) {
	switch name {
	case "ma":
		return float64(p.MA), true
	case "volumeMa":
		return float64(p.VolumeMA), true
	case "slope":
		return float64(p.Slope), true
	case "threshold":
		return p.Threshold, true
	case "volumeRate":
		return p.VolumeRate, true
	case "breakout":
		return boolFloat(p.Breakout), true
	case "reentry":
		return boolFloat(p.Reentry), true
	}
	v, ok := p.Extra[name]
	return v, ok
}

// Float reads a strategy specific parameter.
func (p Params) Float(name string, def float64) float64 {
	if v, ok := p.Extra[name]; ok {
		return v
	}
	return def
}

func (p Params) Int(name string, def int) int {
	return int(p.Float(name, float64(def)))
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func positiveInt(name string, value float64) (int, error) {
	if value < 1 || value != math.Trunc(value) {
		return 0, fmt.Errorf("%s must be a positive integer, got %v: %w", name, value, ErrInvalidParam)
	}
	return int(value), nil
}
