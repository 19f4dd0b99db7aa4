package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
trader:
  name: QUANT
  id_tag: "001"
`))
	require.NoError(t, err)

	require.Equal(t, "QUANT", cfg.Trader.Name)
	require.Equal(t, "memory", cfg.Database.Type)
	require.Equal(t, "info", cfg.Logging.Level)
	require.True(t, cfg.Strategy.LoadState)
	require.True(t, cfg.Strategy.SaveState)
	require.Equal(t, 10*time.Second, cfg.Stop.DrainTimeout.Std())
	require.Equal(t, 10*time.Millisecond, cfg.Stop.DrainPollInterval.Std())
	require.Equal(t, "SIM", cfg.Venue.Name)
}

func TestParseConfigOverrides(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
trader:
  name: QUANT
  id_tag: "001"
logging:
  level: debug
database:
  type: redis
  host: 127.0.0.1
  port: 6379
strategy:
  load_state: false
  save_state: false
stop:
  drain_timeout: 2s
  drain_poll_interval: 5ms
venue:
  name: PAPER
  currency: EUR
  balance: "250000.50"
`))
	require.NoError(t, err)

	require.Equal(t, "redis", cfg.Database.Type)
	require.Equal(t, 6379, cfg.Database.Port)
	require.False(t, cfg.Strategy.LoadState)
	require.False(t, cfg.Strategy.SaveState)
	require.Equal(t, 2*time.Second, cfg.Stop.DrainTimeout.Std())

	balance, err := cfg.Venue.StartingBalance()
	require.NoError(t, err)
	require.Equal(t, "250000.5", balance.String())
}

func TestParseConfigRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing trader": `
logging:
  level: info
`,
		"bad database type": `
trader: {name: QUANT, id_tag: "001"}
database:
  type: postgres
`,
		"redis without host": `
trader: {name: QUANT, id_tag: "001"}
database:
  type: redis
`,
		"bad log level": `
trader: {name: QUANT, id_tag: "001"}
logging:
  level: loud
`,
		"bad duration": `
trader: {name: QUANT, id_tag: "001"}
stop:
  drain_timeout: fast
`,
		"bad balance": `
trader: {name: QUANT, id_tag: "001"}
venue:
  name: SIM
  currency: USD
  balance: lots
`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(raw))
			require.Error(t, err)
			require.True(t,
				errors.HasCode(err, errors.ErrCodeInvalidConfiguration), "got %v", err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeConfigReadFailed, errors.GetCode(err))
}
