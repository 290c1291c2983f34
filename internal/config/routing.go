package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RoutingConfig holds the provider-routing tunables. Values come from an
// optional routing.yml with environment overrides; defaults match the
// behavior the rest of the platform was built against.
type RoutingConfig struct {
	// DefaultPrimaryModel is used when a caller has a primary key but no
	// stored model preference.
	DefaultPrimaryModel string `mapstructure:"defaultPrimaryModel"`
	// ProTierModel is the model used for server-funded pro-tier requests.
	ProTierModel string `mapstructure:"proTierModel"`
	// DefaultSecondaryModel is the fallback-provider model.
	DefaultSecondaryModel string `mapstructure:"defaultSecondaryModel"`

	// PoolCooldown is applied to a rate-limited pool key when the upstream
	// response carries no Retry-After signal.
	PoolCooldown time.Duration `mapstructure:"poolCooldown"`
	// PoolBackoffMax caps the wait for the soonest-recovering pool key once
	// every key has been tried within a single request.
	PoolBackoffMax time.Duration `mapstructure:"poolBackoffMax"`

	// PrimaryCostPer1K is the display-only dollar estimate per 1000 primary
	// provider tokens reported by the quota endpoint.
	PrimaryCostPer1K float64 `mapstructure:"primaryCostPer1K"`
}

func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		DefaultPrimaryModel:   "gpt-4o-mini",
		ProTierModel:          "gpt-4o",
		DefaultSecondaryModel: "gemini-1.5-flash",
		PoolCooldown:          60 * time.Second,
		PoolBackoffMax:        10 * time.Second,
		PrimaryCostPer1K:      0.002,
	}
}

// NewRoutingConfig reads routing.yml when present and falls back to defaults.
func NewRoutingConfig() (RoutingConfig, error) {
	v := viper.New()

	v.SetConfigName("routing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/studyloop")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STUDYLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRoutingConfig()
	v.SetDefault("routing.defaultPrimaryModel", defaults.DefaultPrimaryModel)
	v.SetDefault("routing.proTierModel", defaults.ProTierModel)
	v.SetDefault("routing.defaultSecondaryModel", defaults.DefaultSecondaryModel)
	v.SetDefault("routing.poolCooldown", defaults.PoolCooldown)
	v.SetDefault("routing.poolBackoffMax", defaults.PoolBackoffMax)
	v.SetDefault("routing.primaryCostPer1K", defaults.PrimaryCostPer1K)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return RoutingConfig{}, err
		}
	}

	var cfg RoutingConfig
	if err := v.UnmarshalKey("routing", &cfg); err != nil {
		return RoutingConfig{}, err
	}
	if err := validateRoutingConfig(cfg); err != nil {
		return RoutingConfig{}, err
	}
	return cfg, nil
}

func validateRoutingConfig(cfg RoutingConfig) error {
	if cfg.PoolCooldown <= 0 {
		return errors.New("routing.poolCooldown must be positive")
	}
	if cfg.PoolBackoffMax <= 0 {
		return errors.New("routing.poolBackoffMax must be positive")
	}
	if cfg.DefaultSecondaryModel == "" {
		return errors.New("routing.defaultSecondaryModel cannot be empty")
	}
	return nil
}
