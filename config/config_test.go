package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saorsa-fec/fec/config"
	"github.com/saorsa-fec/fec/kdf"
	"github.com/saorsa-fec/fec/rs"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(err)
	assert.Equal(config.Default().ChunkSize, cfg.ChunkSize)
	assert.Equal(config.Default().DefaultNSpec, cfg.DefaultNSpec)
}

func TestLoadOverridesFromYAML(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "fec.yaml")
	contents := `
chunk_size: 65536
data_shards: 8
parity_shards: 3
enc_mode: random
rs_backend: pure
worker_count: 2
in_flight_puts: 4
`
	require.NoError(os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := config.Load(path)
	require.NoError(err)

	assert.Equal(65536, cfg.ChunkSize)
	assert.EqualValues(8, cfg.DefaultNSpec.K)
	assert.EqualValues(3, cfg.DefaultNSpec.M)
	assert.Equal(kdf.Random, cfg.DefaultMode)
	assert.Equal(rs.Pure, cfg.RSBackend)
	assert.Equal(2, cfg.WorkerCount)
	assert.Equal(4, cfg.InFlightPuts)
}

func TestLoadRejectsInvalidNSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_shards: 0\n"), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownEncMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("enc_mode: bogus\n"), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadOverridesKeyShareSettings(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "fec.yaml")
	contents := `
key_share_count: 5
key_share_threshold: 3
`
	require.NoError(os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := config.Load(path)
	require.NoError(err)
	assert.Equal(5, cfg.KeyShareCount)
	assert.Equal(3, cfg.KeyShareThreshold)
}

func TestValidateRejectsKeyShareThresholdOutOfRange(t *testing.T) {
	cfg := config.Default()
	cfg.KeyShareCount = 5
	cfg.KeyShareThreshold = 1
	require.Error(t, cfg.Validate())

	cfg.KeyShareThreshold = 6
	require.Error(t, cfg.Validate())

	cfg.KeyShareThreshold = 3
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsKeyShareCountBelowOne(t *testing.T) {
	cfg := config.Default()
	cfg.KeyShareCount = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadRetryPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Retry.MaxAttempts = 0
	require.Error(t, cfg.Validate())

	cfg = config.Default()
	cfg.Retry.MaxDelay = cfg.Retry.BaseDelay - time.Millisecond
	require.Error(t, cfg.Validate())
}

func TestLoadOverridesRetryPolicy(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "fec.yaml")
	contents := `
retry_max_attempts: 5
retry_base_delay_ms: 50
retry_max_delay_ms: 1000
`
	require.NoError(os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := config.Load(path)
	require.NoError(err)
	assert.Equal(5, cfg.Retry.MaxAttempts)
	assert.Equal(50*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(1000*time.Millisecond, cfg.Retry.MaxDelay)
}
