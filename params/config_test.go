package params

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("EXCHANGE_SOURCES", " a, b ,,c")
	t.Setenv("ORDERING_MODE", "ranked")
	t.Setenv("REJECT_SELF_MATCH", "true")
	t.Setenv("FEED_MODE", "kafka")
	t.Setenv("GEN_SEED", "42")
	t.Setenv("GEN_CANCEL_PCT", "150")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DATA_DIR", "/tmp/run")
	t.Setenv("API_ADDR", "")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Exchange.Sources)
	assert.Equal(t, "ranked", cfg.Exchange.OrderingMode)
	assert.True(t, cfg.Exchange.RejectSelfMatch)
	assert.Equal(t, "kafka", cfg.Feed.Mode)
	assert.Equal(t, int64(42), cfg.Feed.Generator.Seed)
	assert.Equal(t, 10, cfg.Feed.Generator.CancelPct, "out of range values are ignored")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "/tmp/run", cfg.Node.DataDir)
	assert.Equal(t, filepath.Join("/tmp/run", "exchange.log"), cfg.Node.LogFile)
	assert.Empty(t, cfg.Node.APIAddr, "an empty API_ADDR disables the server")
}

func TestLoadFromEnv_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("EXCHANGE_SYMBOLS=XYZ\nGEN_MESSAGES_PER_SOURCE=7\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("EXCHANGE_SYMBOLS")
		os.Unsetenv("GEN_MESSAGES_PER_SOURCE")
	})

	cfg := LoadFromEnv(path)
	assert.Equal(t, []string{"XYZ"}, cfg.Exchange.Symbols)
	assert.Equal(t, 7, cfg.Feed.Generator.MessagesPerSource)
}
