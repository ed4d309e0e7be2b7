// Package config loads server and auction-rule settings from a YAML file
// with environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SandeepCodez24/ipl-auction-server/internal/auction"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"nats"`

	Store struct {
		Postgres bool `yaml:"postgres"` // DB_* env vars supply the connection
	} `yaml:"store"`

	Auction AuctionConfig `yaml:"auction"`
}

// AuctionConfig is the default rule set applied to new rooms. Amounts are in
// lakh, durations in seconds.
type AuctionConfig struct {
	InitialPurse    int64           `yaml:"initial_purse"`
	MinRoster       int             `yaml:"min_roster"`
	MaxRoster       int             `yaml:"max_roster"`
	BasePriceFloor  int64           `yaml:"base_price_floor"`
	BidWindowSec    int             `yaml:"bid_window_sec"`
	SnipeFloorSec   int             `yaml:"snipe_floor_sec"`
	SnipeExtendSec  int             `yaml:"snipe_extend_sec"`
	MaxExtensionSec int             `yaml:"max_extension_sec"`
	Increments      []IncrementTier `yaml:"increments"`
}

type IncrementTier struct {
	Below int64 `yaml:"below"`
	Step  int64 `yaml:"step"`
}

// Load reads the config file at path, falling back to defaults when path is
// empty or the file does not exist. Environment variables override the
// server port.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults are a full configuration.
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.NATS.URL = url
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.NATS.URL = "nats://localhost:4222"

	r := auction.DefaultRules()
	cfg.Auction = AuctionConfig{
		InitialPurse:    r.InitialPurse,
		MinRoster:       r.MinRoster,
		MaxRoster:       r.MaxRoster,
		BasePriceFloor:  r.BasePriceFloor,
		BidWindowSec:    int(r.BidWindow.Seconds()),
		SnipeFloorSec:   int(r.SnipeFloor.Seconds()),
		SnipeExtendSec:  int(r.SnipeExtend.Seconds()),
		MaxExtensionSec: int(r.MaxExtension.Seconds()),
	}
	for _, t := range r.Increments {
		cfg.Auction.Increments = append(cfg.Auction.Increments, IncrementTier{Below: t.Below, Step: t.Step})
	}
	return cfg
}

// Rules converts the loaded auction section into the core rule set.
func (c *Config) Rules() auction.Rules {
	r := auction.Rules{
		InitialPurse:   c.Auction.InitialPurse,
		MinRoster:      c.Auction.MinRoster,
		MaxRoster:      c.Auction.MaxRoster,
		BasePriceFloor: c.Auction.BasePriceFloor,
		BidWindow:      time.Duration(c.Auction.BidWindowSec) * time.Second,
		SnipeFloor:     time.Duration(c.Auction.SnipeFloorSec) * time.Second,
		SnipeExtend:    time.Duration(c.Auction.SnipeExtendSec) * time.Second,
		MaxExtension:   time.Duration(c.Auction.MaxExtensionSec) * time.Second,
	}
	for _, t := range c.Auction.Increments {
		r.Increments = append(r.Increments, auction.IncrementTier{Below: t.Below, Step: t.Step})
	}
	return r
}
