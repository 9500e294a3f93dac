// Package config loads the pipeline's Config from YAML and environment
// variables via github.com/spf13/viper, matching the config layers of
// ateneo-connect-zstore and frnd1406-NasServer (both carry viper as a
// direct dependency for exactly this purpose) rather than OhanaFS/stitch's
// own flag-only cmd/stitch, since the pipeline orchestrator needs
// tunables (chunk size, default NSpec, worker pool size, retry policy)
// a CLI front-end alone does not naturally own.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"

	"github.com/saorsa-fec/fec/kdf"
	"github.com/saorsa-fec/fec/rs"
	"github.com/saorsa-fec/fec/shard"
)

// RetryPolicy governs pipeline.Writer/Reader's backend retry behavior.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Config is the full set of tunables the pipeline package needs beyond
// what a caller supplies per-call (FileID, NSpec override, EncMode).
type Config struct {
	ChunkSize         int
	DefaultNSpec      shard.NSpec
	DefaultMode       kdf.Mode
	RSBackend         rs.Backend
	WorkerCount       int
	InFlightPuts      int
	Retry             RetryPolicy
	KeyShareCount     int
	KeyShareThreshold int
}

// Default returns the configuration used when no file or environment
// overrides are present: a 1 MiB chunk size, a (4,2) NSpec, Convergent
// mode, the Accelerated RS backend, and a worker pool sized for modest
// concurrency.
func Default() Config {
	return Config{
		ChunkSize:    1 << 20,
		DefaultNSpec: shard.NSpec{K: 4, M: 2},
		DefaultMode:  kdf.Convergent,
		RSBackend:    rs.Accelerated,
		WorkerCount:  4,
		InFlightPuts: 16,
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    2 * time.Second,
		},
		KeyShareCount:     1,
		KeyShareThreshold: 1,
	}
}

// Load reads configuration from the YAML file at path (if it exists),
// overlaid by FEC_-prefixed environment variables, overlaid onto
// Default(). A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FEC")
	v.AutomaticEnv()

	v.SetDefault("chunk_size", cfg.ChunkSize)
	v.SetDefault("data_shards", int(cfg.DefaultNSpec.K))
	v.SetDefault("parity_shards", int(cfg.DefaultNSpec.M))
	v.SetDefault("enc_mode", "convergent")
	v.SetDefault("rs_backend", "accelerated")
	v.SetDefault("worker_count", cfg.WorkerCount)
	v.SetDefault("in_flight_puts", cfg.InFlightPuts)
	v.SetDefault("retry_max_attempts", cfg.Retry.MaxAttempts)
	v.SetDefault("retry_base_delay_ms", cfg.Retry.BaseDelay.Milliseconds())
	v.SetDefault("retry_max_delay_ms", cfg.Retry.MaxDelay.Milliseconds())
	v.SetDefault("key_share_count", cfg.KeyShareCount)
	v.SetDefault("key_share_threshold", cfg.KeyShareThreshold)

	if err := v.ReadInConfig(); err != nil {
		// An explicitly set path that does not exist surfaces as an
		// fs.ErrNotExist error rather than ConfigFileNotFoundError.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
	}

	mode, err := parseMode(v.GetString("enc_mode"))
	if err != nil {
		return Config{}, err
	}
	backend, err := parseBackend(v.GetString("rs_backend"))
	if err != nil {
		return Config{}, err
	}

	cfg.ChunkSize = v.GetInt("chunk_size")
	cfg.DefaultNSpec = shard.NSpec{K: uint8(v.GetInt("data_shards")), M: uint8(v.GetInt("parity_shards"))}
	cfg.DefaultMode = mode
	cfg.RSBackend = backend
	cfg.WorkerCount = v.GetInt("worker_count")
	cfg.InFlightPuts = v.GetInt("in_flight_puts")
	cfg.Retry = RetryPolicy{
		MaxAttempts: v.GetInt("retry_max_attempts"),
		BaseDelay:   time.Duration(v.GetInt64("retry_base_delay_ms")) * time.Millisecond,
		MaxDelay:    time.Duration(v.GetInt64("retry_max_delay_ms")) * time.Millisecond,
	}
	cfg.KeyShareCount = v.GetInt("key_share_count")
	cfg.KeyShareThreshold = v.GetInt("key_share_threshold")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks Config's internal consistency.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("config: chunk_size must be positive, got %d", c.ChunkSize)
	}
	if err := c.DefaultNSpec.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("config: worker_count must be >= 1, got %d", c.WorkerCount)
	}
	if c.InFlightPuts < 1 {
		return fmt.Errorf("config: in_flight_puts must be >= 1, got %d", c.InFlightPuts)
	}
	if c.KeyShareCount < 1 {
		return fmt.Errorf("config: key_share_count must be >= 1, got %d", c.KeyShareCount)
	}
	if c.KeyShareCount > 1 && (c.KeyShareThreshold < 2 || c.KeyShareThreshold > c.KeyShareCount) {
		return fmt.Errorf("config: key_share_threshold must be in [2, key_share_count] when key_share_count > 1, got %d", c.KeyShareThreshold)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry_max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("config: retry_max_delay_ms must be >= retry_base_delay_ms")
	}
	return nil
}

func parseMode(s string) (kdf.Mode, error) {
	switch s {
	case "convergent":
		return kdf.Convergent, nil
	case "convergent-with-secret":
		return kdf.ConvergentWithSecret, nil
	case "random":
		return kdf.Random, nil
	default:
		return 0, fmt.Errorf("config: unknown enc_mode %q", s)
	}
}

func parseBackend(s string) (rs.Backend, error) {
	switch s {
	case "pure":
		return rs.Pure, nil
	case "accelerated":
		return rs.Accelerated, nil
	default:
		return 0, fmt.Errorf("config: unknown rs_backend %q", s)
	}
}
