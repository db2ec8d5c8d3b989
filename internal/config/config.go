package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env             string        `mapstructure:"ENV"`
	Port            string        `mapstructure:"PORT"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	AdminKey        string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed     string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	UpstreamURL     string        `mapstructure:"UPSTREAM_URL"`
	InventoryURL    string        `mapstructure:"INVENTORY_URL"`
	UpdaterInterval time.Duration `mapstructure:"UPDATER_INTERVAL"`
	CacheTTL        time.Duration `mapstructure:"DASHBOARD_CACHE_TTL"`
	StagingTTL      time.Duration `mapstructure:"STAGING_TTL"`
	OpenHour        int           `mapstructure:"OPERATING_OPEN_HOUR"`
	CloseHour       int           `mapstructure:"OPERATING_CLOSE_HOUR"`

	// Scorer weights. Defaults mirror the production tuning.
	WeightSameCorridor    float64 `mapstructure:"SCORE_SAME_CORRIDOR"`
	WeightDailyLoad       float64 `mapstructure:"SCORE_DAILY_LOAD"`
	WeightHistoricalUse   float64 `mapstructure:"SCORE_HISTORICAL_USE"`
	WeightPrincipalType   float64 `mapstructure:"SCORE_PRINCIPAL_TYPE"`
	WeightSecondaryType   float64 `mapstructure:"SCORE_SECONDARY_TYPE"`
	WeightContinuousAvail float64 `mapstructure:"SCORE_CONTINUOUS_AVAIL"`
	WeightMedicPreference float64 `mapstructure:"SCORE_MEDIC_PREFERENCE"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("UPDATER_INTERVAL", "10s")
	v.SetDefault("DASHBOARD_CACHE_TTL", "1h")
	v.SetDefault("STAGING_TTL", "15m")
	v.SetDefault("OPERATING_OPEN_HOUR", 8)
	v.SetDefault("OPERATING_CLOSE_HOUR", 18)

	v.SetDefault("SCORE_SAME_CORRIDOR", 15.0)
	v.SetDefault("SCORE_DAILY_LOAD", 3.0)
	v.SetDefault("SCORE_HISTORICAL_USE", 2.0)
	v.SetDefault("SCORE_PRINCIPAL_TYPE", 25.0)
	v.SetDefault("SCORE_SECONDARY_TYPE", 10.0)
	v.SetDefault("SCORE_CONTINUOUS_AVAIL", 7.0)
	v.SetDefault("SCORE_MEDIC_PREFERENCE", 12.0)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
