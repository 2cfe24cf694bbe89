package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknownStrategy  = errors.New("unknown strategy")
	ErrStrategyDisabled = errors.New("strategy disabled")
	ErrNoCapability     = errors.New("strategy lacks capability")
)

// Constructor builds a strategy over one run's input. The returned value
// implements EntryStrategy, ExitStrategy or both.
type Constructor func(in *Input) (any, error)

// Descriptor registers one strategy variant.
type Descriptor struct {
	Key      string
	Name     string
	HasEntry bool
	HasExit  bool
	Enabled  bool
	New      Constructor
}

// Info is the catalog view of a Descriptor.
type Info struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	HasEntry bool   `json:"hasEntry"`
	HasExit  bool   `json:"hasExit"`
	Enabled  bool   `json:"enabled"`
}

// Registry maps strategy keys to constructors. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{descriptors: make(map[string]Descriptor)}
	for _, d := range builtins() {
		r.descriptors[d.Key] = d
	}
	return r
}

// Register adds or replaces a strategy.
func (r *Registry) Register(d Descriptor) error {
	if d.Key == "" || d.New == nil {
		return fmt.Errorf("descriptor needs a key and a constructor")
	}
	if !d.HasEntry && !d.HasExit {
		return fmt.Errorf("%s: %w", d.Key, ErrNoCapability)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[d.Key] = d
	return nil
}

func (r *Registry) Lookup(key string) (Descriptor, error) {
	r.mu.RLock()
	d, ok := r.descriptors[key]
	r.mu.RUnlock()
	if !ok {
		return Descriptor{}, fmt.Errorf("%q: %w", key, ErrUnknownStrategy)
	}
	if !d.Enabled {
		return Descriptor{}, fmt.Errorf("%q: %w", key, ErrStrategyDisabled)
	}
	return d, nil
}

// Build constructs the strategy registered under key.
func (r *Registry) Build(key string, in *Input) (any, error) {
	d, err := r.Lookup(key)
	if err != nil {
		return nil, err
	}
	s, err := d.New(in)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", key, err)
	}
	return s, nil
}

func (r *Registry) BuildEntry(key string, in *Input) (EntryStrategy, error) {
	s, err := r.Build(key, in)
	if err != nil {
		return nil, err
	}
	entry, ok := s.(EntryStrategy)
	if !ok {
		return nil, fmt.Errorf("%s has no entry rule: %w", key, ErrNoCapability)
	}
	return entry, nil
}

func (r *Registry) BuildExit(key string, in *Input) (ExitStrategy, error) {
	s, err := r.Build(key, in)
	if err != nil {
		return nil, err
	}
	exit, ok := s.(ExitStrategy)
	if !ok {
		return nil, fmt.Errorf("%s has no exit rule: %w", key, ErrNoCapability)
	}
	return exit, nil
}

// Resolve checks that entry and every exit are registered, enabled and
// capable, without building anything.
func (r *Registry) Resolve(entry string, exits []string) error {
	d, err := r.Lookup(entry)
	if err != nil {
		return err
	}
	if !d.HasEntry {
		return fmt.Errorf("%s has no entry rule: %w", entry, ErrNoCapability)
	}
	for _, key := range exits {
		d, err := r.Lookup(key)
		if err != nil {
			return err
		}
		if !d.HasExit {
			return fmt.Errorf("%s has no exit rule: %w", key, ErrNoCapability)
		}
	}
	return nil
}

// Catalog lists every registered strategy, disabled ones included, by key.
func (r *Registry) Catalog() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, Info{
			Key:      d.Key,
			Name:     d.Name,
			HasEntry: d.HasEntry,
			HasExit:  d.HasExit,
			Enabled:  d.Enabled,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func builtins() []Descriptor {
	return []Descriptor{
		{Key: "TwoDaysUpEntry", Name: "Two days above MA entry", HasEntry: true, Enabled: true, New: newTwoDaysUpEntry},
		{Key: "TigerEntry", Name: "MA breakout entry", HasEntry: true, Enabled: true, New: newTigerEntry},
		{Key: "BullTigerEntry", Name: "Bull market MA breakout entry", HasEntry: true, Enabled: true, New: newBullTigerEntry},
		{Key: "TigerExit", Name: "MA breakdown exit", HasExit: true, Enabled: true, New: newTigerExit},
		{Key: "DynamicStopExit", Name: "Dynamic stop and take profit exit", HasExit: true, Enabled: true, New: newDynamicStopExit},
		{Key: "RsiHotExit", Name: "RSI overheat exit", HasExit: true, Enabled: true, New: newRsiHotExit},
		{Key: "RsiExit", Name: "RSI short/long dead cross exit", HasExit: true, Enabled: true, New: newRsiExit},
		{Key: "MaCrossEntryExit", Name: "MA cross entry and exit", HasEntry: true, HasExit: true, Enabled: true, New: newMaCrossEntryExit},
		{Key: "AdxEntry", Name: "ADX entry", HasEntry: true, Enabled: true, New: newAdxEntry},
		{Key: "AdxExit", Name: "ADX exit", HasExit: true, Enabled: true, New: newAdxExit},
		{Key: "MacdEntry", Name: "MACD entry", HasEntry: true, Enabled: true, New: newMacdEntry},
		{Key: "MacdExit", Name: "MACD exit", HasExit: true, Enabled: true, New: newMacdExit},
		{Key: "ObvMacdEntryExit", Name: "OBV MACD entry and exit", HasEntry: true, HasExit: true, Enabled: true, New: newObvMacdEntryExit},
		{Key: "BBEntryExit", Name: "Bollinger band entry and exit", HasEntry: true, HasExit: true, Enabled: true, New: newBBEntryExit},
		{Key: "KdjExit", Name: "KDJ dead cross exit", HasExit: true, Enabled: true, New: newKdjExit},
		{Key: "CciExit", Name: "CCI dead cross exit", HasExit: true, Enabled: true, New: newCciExit},
		{Key: "SarExit", Name: "Parabolic SAR reversal exit", HasExit: true, Enabled: true, New: newSarExit},
	}
}
