// Package config provides configuration loading and validation for droplife.
// Supports YAML files with environment variable overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dray-io/droplife/internal/lifecycle"
	"github.com/dray-io/droplife/internal/storage"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "DROPLIFE_CONFIG"

// Storage backend names.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendS3     = "s3"
)

// Config holds all configuration for a droplife daemon.
type Config struct {
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Storage   StorageConfig   `yaml:"storage"`
	// ReplicaStorage holds copies of precious drops. Nil keeps copies next
	// to their source. It has no environment overrides.
	ReplicaStorage *StorageConfig      `yaml:"replicaStorage"`
	Observability  ObservabilityConfig `yaml:"observability"`
}

type LifecycleConfig struct {
	CheckPeriod            time.Duration `yaml:"checkPeriod" env:"DROPLIFE_CHECK_PERIOD"`
	CleanupPeriod          time.Duration `yaml:"cleanupPeriod" env:"DROPLIFE_CLEANUP_PERIOD"`
	CheckTimeout           time.Duration `yaml:"checkTimeout" env:"DROPLIFE_CHECK_TIMEOUT"`
	ReplicationTimeout     time.Duration `yaml:"replicationTimeout" env:"DROPLIFE_REPLICATION_TIMEOUT"`
	ReplicationFactor      int           `yaml:"replicationFactor" env:"DROPLIFE_REPLICATION_FACTOR"`
	MaxReplicationAttempts int           `yaml:"maxReplicationAttempts" env:"DROPLIFE_MAX_REPLICATION_ATTEMPTS"`
	ChecksPerSecond        float64       `yaml:"checksPerSecond" env:"DROPLIFE_CHECKS_PER_SECOND"`
}

type StorageConfig struct {
	// Backend is one of file, memory or s3.
	Backend string `yaml:"backend" env:"DROPLIFE_STORAGE_BACKEND"`
	// Root is the directory of the file backend.
	Root string `yaml:"root" env:"DROPLIFE_STORAGE_ROOT"`
	// Prefix is prepended to object keys of the memory and s3 backends.
	Prefix string `yaml:"prefix" env:"DROPLIFE_STORAGE_PREFIX"`
	// Codec compresses object content: none, snappy, zstd or lz4.
	Codec string   `yaml:"codec" env:"DROPLIFE_STORAGE_CODEC"`
	S3    S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint     string `yaml:"endpoint" env:"DROPLIFE_S3_ENDPOINT"`
	Bucket       string `yaml:"bucket" env:"DROPLIFE_S3_BUCKET"`
	Region       string `yaml:"region" env:"DROPLIFE_S3_REGION"`
	AccessKey    string `yaml:"accessKey" env:"DROPLIFE_S3_ACCESS_KEY"`
	SecretKey    string `yaml:"secretKey" env:"DROPLIFE_S3_SECRET_KEY"`
	UsePathStyle bool   `yaml:"usePathStyle" env:"DROPLIFE_S3_USE_PATH_STYLE"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr" env:"DROPLIFE_METRICS_ADDR"`
	LogLevel    string `yaml:"logLevel" env:"DROPLIFE_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" env:"DROPLIFE_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	lc := lifecycle.DefaultConfig()
	return &Config{
		Lifecycle: LifecycleConfig{
			CheckPeriod:            lc.CheckPeriod,
			CleanupPeriod:          lc.CleanupPeriod,
			CheckTimeout:           lc.CheckTimeout,
			ReplicationTimeout:     lc.ReplicationTimeout,
			ReplicationFactor:      lc.ReplicationFactor,
			MaxReplicationAttempts: lc.MaxReplicationAttempts,
		},
		Storage: StorageConfig{
			Backend: BackendFile,
			Root:    "/var/lib/droplife",
			Codec:   string(storage.CodecNone),
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load reads the file named by DROPLIFE_CONFIG, or starts from defaults when
// it is unset, then applies environment overrides and validates.
func Load() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return LoadFromPath(path)
	}
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath reads a YAML file over the defaults, then applies
// environment overrides and validates.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields tagged with env from set environment variables.
func (c *Config) ApplyEnv() error {
	return applyEnv(reflect.ValueOf(c).Elem())
}

var durationType = reflect.TypeOf(time.Duration(0))

func applyEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		if field.Type.Kind() == reflect.Struct {
			if err := applyEnv(fv); err != nil {
				return err
			}
			continue
		}
		name := field.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		if err := setField(fv, raw); err != nil {
			return fmt.Errorf("config: %s=%q: %w", name, raw, err)
		}
	}
	return nil
}

func setField(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	}
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		fv.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field kind %s", fv.Kind())
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Lifecycle.CheckPeriod <= 0 {
		errs = append(errs, errors.New("lifecycle.checkPeriod must be > 0"))
	}
	if c.Lifecycle.CleanupPeriod < 0 {
		errs = append(errs, errors.New("lifecycle.cleanupPeriod must be >= 0"))
	}
	if c.Lifecycle.ChecksPerSecond < 0 {
		errs = append(errs, errors.New("lifecycle.checksPerSecond must be >= 0"))
	}
	if err := c.Storage.validate("storage"); err != nil {
		errs = append(errs, err)
	}
	if c.ReplicaStorage != nil {
		if err := c.ReplicaStorage.validate("replicaStorage"); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

func (s *StorageConfig) validate(section string) error {
	if _, err := storage.ParseCodec(s.Codec); err != nil {
		return fmt.Errorf("%s.codec: %w", section, err)
	}
	switch s.Backend {
	case BackendFile:
		if s.Root == "" {
			return fmt.Errorf("%s.root is required for the file backend", section)
		}
	case BackendMemory:
	case BackendS3:
		if s.S3.Bucket == "" {
			return fmt.Errorf("%s.s3.bucket is required for the s3 backend", section)
		}
	default:
		return fmt.Errorf("%s.backend: unknown backend %q", section, s.Backend)
	}
	return nil
}

// ManagerConfig converts the lifecycle section to a lifecycle.Config.
func (c *Config) ManagerConfig() lifecycle.Config {
	return lifecycle.Config{
		CheckPeriod:            c.Lifecycle.CheckPeriod,
		CleanupPeriod:          c.Lifecycle.CleanupPeriod,
		CheckTimeout:           c.Lifecycle.CheckTimeout,
		ReplicationTimeout:     c.Lifecycle.ReplicationTimeout,
		ReplicationFactor:      c.Lifecycle.ReplicationFactor,
		MaxReplicationAttempts: c.Lifecycle.MaxReplicationAttempts,
		ChecksPerSecond:        c.Lifecycle.ChecksPerSecond,
	}
}
