package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// TariffBand is one progressive block of the tariff table. A nil UpTo means
// the band is open-ended.
type TariffBand struct {
	UpTo *float64 `mapstructure:"upTo" json:"up_to,omitempty"`
	Rate float64  `mapstructure:"rate" json:"rate"`
}

// TariffConfig is the progressive-block tariff table plus the flat per-unit
// wheeling charge applied across every band.
type TariffConfig struct {
	WheelingCharge float64      `mapstructure:"wheelingCharge" json:"wheeling_charge"`
	Bands          []TariffBand `mapstructure:"bands" json:"bands"`
}

func DefaultTariffConfig() TariffConfig {
	return TariffConfig{
		WheelingCharge: 1.24,
		Bands: []TariffBand{
			{UpTo: floatPtr(100), Rate: 4.43},
			{UpTo: floatPtr(300), Rate: 9.64},
			{UpTo: floatPtr(500), Rate: 12.83},
			{UpTo: nil, Rate: 14.33},
		},
	}
}

func floatPtr(v float64) *float64 { return &v }

// TariffHolder exposes the current tariff table with hot reload from
// tariff.yml when one is present.
type TariffHolder struct {
	current atomic.Value // holds TariffConfig
}

func NewTariffHolder() (*TariffHolder, error) {
	v := viper.New()

	v.SetConfigName("tariff")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/wattline")
	v.AddConfigPath(".")

	v.SetEnvPrefix("WATTLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultTariffConfig()
		v.SetDefault("tariff.wheelingCharge", defaults.WheelingCharge)
		v.SetDefault("tariff.bands", defaults.Bands)
	}

	var cfg TariffConfig
	if err := v.UnmarshalKey("tariff", &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Bands) == 0 {
		cfg = DefaultTariffConfig()
	}
	if err := validateTariffConfig(cfg); err != nil {
		return nil, err
	}

	holder := &TariffHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated TariffConfig
		if err := v.UnmarshalKey("tariff", &updated); err != nil {
			log.Printf("[tariff-config] reload failed: %v", err)
			return
		}
		if err := validateTariffConfig(updated); err != nil {
			log.Printf("[tariff-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[tariff-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// Current returns the active tariff table.
func (h *TariffHolder) Current() TariffConfig {
	if h == nil {
		return DefaultTariffConfig()
	}
	cfg, ok := h.current.Load().(TariffConfig)
	if !ok {
		return DefaultTariffConfig()
	}
	return cfg
}

func validateTariffConfig(cfg TariffConfig) error {
	if cfg.WheelingCharge < 0 {
		return errors.New("tariff: wheeling charge must not be negative")
	}
	if len(cfg.Bands) == 0 {
		return errors.New("tariff: at least one band is required")
	}
	prev := 0.0
	for i, band := range cfg.Bands {
		if band.Rate <= 0 {
			return errors.New("tariff: band rates must be positive")
		}
		last := i == len(cfg.Bands)-1
		if band.UpTo == nil {
			if !last {
				return errors.New("tariff: only the final band may be open-ended")
			}
			continue
		}
		if *band.UpTo <= prev {
			return errors.New("tariff: band boundaries must be strictly ascending")
		}
		prev = *band.UpTo
	}
	if cfg.Bands[len(cfg.Bands)-1].UpTo != nil {
		return errors.New("tariff: final band must be open-ended")
	}
	return nil
}
