package campaign

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okanek/campaign/natskv"
	"github.com/okanek/campaign/types"
)

// Disabled turns off an optional duration behavior that would otherwise
// fall back to its default when left zero. Any negative value is
// treated the same way.
const Disabled time.Duration = -1

// Config is the configuration for an Election or a Reader.
//
// All duration fields accept standard Go duration strings like "30s",
// "5m", "1h" when loaded from YAML. Optional duration fields use zero
// for "apply the default" and Disabled to turn the behavior off.
type Config struct {
	// Key is the contested slot key whose existence and content
	// designate the current leader. All candidates of one election must
	// use the same key. Defaults to "leader".
	Key string `yaml:"key"`

	// ID is the identity representing this candidate. It must be
	// different from other candidates' IDs. If empty, a random identity
	// is generated at construction (see WithIDGenerator).
	ID string `yaml:"id"`

	// Bucket is the NATS KV bucket used by the built-in coordinator.
	// Ignored when a custom Coordinator is supplied via WithCoordinator.
	// Defaults to natskv.DefaultBucket.
	Bucket string `yaml:"bucket"`

	// BucketTTL is the TTL applied when the built-in coordinator creates
	// the bucket. A leader claim that is not renewed within the TTL
	// expires, which makes claims session-scoped. 0 applies the default
	// of 30 seconds; Disabled means claims never expire on their own.
	BucketTTL time.Duration `yaml:"bucketTtl"`

	// RenewInterval is how often a leader refreshes its claim to keep it
	// from expiring. Must be shorter than BucketTTL when both are
	// active; recommended: BucketTTL/3. 0 applies the default of
	// 10 seconds; Disabled turns renewal off, for buckets without a TTL.
	RenewInterval time.Duration `yaml:"renewInterval"`

	// RetryInterval paces the unbounded retries of transiently failing
	// coordination calls. The termination gate is re-checked before
	// every retry. 0 applies the default of 200 milliseconds; Disabled
	// retries without pacing.
	RetryInterval time.Duration `yaml:"retryInterval"`

	// OperationTimeout is the timeout for individual coordination calls
	// (create, read, watch installation, renew).
	// Recommended: 10 seconds.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// Permissions is the opaque permissions descriptor passed through to
	// slot creation. Defaults to OpenPermissions. Never interpreted by
	// the election itself.
	Permissions types.Permissions `yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		Key:              "leader",
		Bucket:           natskv.DefaultBucket,
		BucketTTL:        30 * time.Second,
		RenewInterval:    10 * time.Second,
		RetryInterval:    200 * time.Millisecond,
		OperationTimeout: 10 * time.Second,
		Permissions:      types.OpenPermissions,
	}
}

// SetDefaults fills in missing configuration values with production
// defaults. Only zero values are filled; Disabled (or any negative
// duration) is an explicit choice and survives untouched. The candidate
// ID is deliberately left empty; identity resolution happens once at
// construction so an injected generator can take effect.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Key == "" {
		cfg.Key = defaults.Key
	}
	if cfg.Bucket == "" {
		cfg.Bucket = defaults.Bucket
	}
	if cfg.BucketTTL == 0 {
		cfg.BucketTTL = defaults.BucketTTL
	}
	if cfg.RenewInterval == 0 {
		cfg.RenewInterval = defaults.RenewInterval
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = defaults.RetryInterval
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.Permissions == nil {
		cfg.Permissions = defaults.Permissions
	}
}

// Validate checks configuration constraints and returns an error for
// invalid values.
//
// Hard Validation Rules:
//   - Key must not be empty
//   - OperationTimeout > 0
//   - RenewInterval < BucketTTL when both are active (a renewal period
//     equal to or longer than the TTL cannot keep a claim alive)
//
// Returns:
//   - error: Validation error with clear explanation, nil if valid
func (cfg *Config) Validate() error {
	if cfg.Key == "" {
		return fmt.Errorf("Key must not be empty")
	}

	if cfg.OperationTimeout <= 0 {
		return fmt.Errorf("OperationTimeout must be > 0, got %v", cfg.OperationTimeout)
	}

	if cfg.RenewInterval > 0 && cfg.BucketTTL > 0 && cfg.RenewInterval >= cfg.BucketTTL {
		return fmt.Errorf(
			"RenewInterval (%v) must be < BucketTTL (%v) to keep a claim alive; recommended: BucketTTL/3",
			cfg.RenewInterval, cfg.BucketTTL,
		)
	}

	return nil
}

// bucketTTL returns the TTL for the built-in coordinator's bucket;
// Disabled maps to 0, which JetStream treats as no expiry.
func (cfg *Config) bucketTTL() time.Duration {
	if cfg.BucketTTL < 0 {
		return 0
	}

	return cfg.BucketTTL
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Test timings are 10-100x faster than production defaults to enable
// rapid iteration without sacrificing test coverage. Use DefaultConfig()
// for production deployments.
//
// Returns:
//   - Config: Configuration with fast timings for tests
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.BucketTTL = 3 * time.Second
	cfg.RenewInterval = 1 * time.Second
	cfg.RetryInterval = 20 * time.Millisecond
	cfg.OperationTimeout = 2 * time.Second

	return cfg
}

// LoadConfig reads a Config from a YAML file.
//
// Parameters:
//   - path: Path of the YAML file
//
// Returns:
//   - Config: Parsed configuration (defaults NOT applied; call
//     SetDefaults or rely on New doing so)
//   - error: Read or parse failure
func LoadConfig(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}

// UnmarshalYAML implements yaml.Unmarshaler so duration fields accept
// Go duration strings ("30s", "200ms") in addition to integer
// nanoseconds.
func (cfg *Config) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig struct {
		Key              string `yaml:"key"`
		ID               string `yaml:"id"`
		Bucket           string `yaml:"bucket"`
		BucketTTL        string `yaml:"bucketTtl"`
		RenewInterval    string `yaml:"renewInterval"`
		RetryInterval    string `yaml:"retryInterval"`
		OperationTimeout string `yaml:"operationTimeout"`
	}

	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	cfg.Key = raw.Key
	cfg.ID = raw.ID
	cfg.Bucket = raw.Bucket

	for _, field := range []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"bucketTtl", raw.BucketTTL, &cfg.BucketTTL},
		{"renewInterval", raw.RenewInterval, &cfg.RenewInterval},
		{"retryInterval", raw.RetryInterval, &cfg.RetryInterval},
		{"operationTimeout", raw.OperationTimeout, &cfg.OperationTimeout},
	} {
		if field.src == "" {
			continue
		}
		d, err := time.ParseDuration(field.src)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", field.name, err)
		}
		*field.dst = d
	}

	return nil
}
