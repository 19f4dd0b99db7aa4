package node

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// Duration wraps time.Duration with YAML support for "250ms" style strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid duration %q", raw)
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// TraderConfig names the trader instance.
type TraderConfig struct {
	Name  string `yaml:"name" validate:"required"`
	IDTag string `yaml:"id_tag" validate:"required"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// DatabaseConfig selects and addresses the execution database backend.
type DatabaseConfig struct {
	Type string `yaml:"type" validate:"required,oneof=redis memory"`
	Host string `yaml:"host" validate:"required_if=Type redis"`
	Port int    `yaml:"port" validate:"required_if=Type redis"`
}

// StrategyConfig controls strategy state round-trips.
type StrategyConfig struct {
	LoadState bool `yaml:"load_state"`
	SaveState bool `yaml:"save_state"`
}

// StopConfig controls the shutdown drain.
type StopConfig struct {
	DrainTimeout      Duration `yaml:"drain_timeout"`
	DrainPollInterval Duration `yaml:"drain_poll_interval"`
}

// VenueConfig parameterizes the paper venue the node trades against. Balance
// is kept as a string so it decodes losslessly into a decimal.
type VenueConfig struct {
	Name     string `yaml:"name" validate:"required"`
	Currency string `yaml:"currency" validate:"required"`
	Balance  string `yaml:"balance" validate:"required"`
}

// StartingBalance parses the configured venue balance.
func (v VenueConfig) StartingBalance() (decimal.Decimal, error) {
	balance, err := decimal.NewFromString(v.Balance)
	if err != nil {
		return decimal.Zero, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err,
			"invalid venue balance %q", v.Balance)
	}

	return balance, nil
}

// Config is the full trading node configuration.
type Config struct {
	Trader   TraderConfig   `yaml:"trader" validate:"required"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Strategy StrategyConfig `yaml:"strategy"`
	Stop     StopConfig     `yaml:"stop"`
	Venue    VenueConfig    `yaml:"venue"`
}

// DefaultConfig returns the baseline every loaded config starts from.
func DefaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Type: "memory"},
		Strategy: StrategyConfig{LoadState: true, SaveState: true},
		Stop: StopConfig{
			DrainTimeout:      Duration(10 * time.Second),
			DrainPollInterval: Duration(10 * time.Millisecond),
		},
		Venue: VenueConfig{
			Name:     "SIM",
			Currency: "USD",
			Balance:  "1000000",
		},
	}
}

// LoadConfig reads and validates a YAML config file. Absent keys keep their
// defaults.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeConfigReadFailed, err, "read config %s", path)
	}

	return ParseConfig(raw)
}

// ParseConfig decodes YAML config bytes over the defaults and validates the
// result.
func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "parse config", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the struct tags and cross-field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "validate config", err)
	}

	if c.Stop.DrainTimeout.Std() <= 0 || c.Stop.DrainPollInterval.Std() <= 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration,
			"stop.drain_timeout and stop.drain_poll_interval must be positive")
	}

	if _, err := c.Venue.StartingBalance(); err != nil {
		return err
	}

	return nil
}
