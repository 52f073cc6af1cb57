package config

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/eval"
	"gopkg.in/yaml.v3"
)

// Load reads a deployment file, applies defaults and validates the result.
// Files ending in .pkl are evaluated with PKL; anything else is decoded as YAML.
func Load(ctx context.Context, path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pkl":
		cfg, err = loadPkl(ctx, path)
	default:
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config: %w", err)
		}
		defer f.Close()
		cfg, err = Decode(f)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode decodes a YAML document over the defaults. Unknown keys are rejected,
// which keeps plaintext credentials out of the configuration.
func Decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errdefs.Configuration("", "%v", err)
	}
	return cfg, nil
}

func loadPkl(ctx context.Context, path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	// PKL evaluation yields every declared field, so defaults are only filled
	// for zero values the module left out.
	var cfg Config
	if err := eval.NewEvaluator(filepath.Dir(abs)).EvaluateInto(ctx, abs, nil, &cfg); err != nil {
		return nil, errdefs.Configuration("", "%v", err)
	}
	applyDefaults(&cfg, Defaults())
	return &cfg, nil
}

func applyDefaults(cfg, def *Config) {
	if cfg.Backend == "" {
		cfg.Backend = def.Backend
	}
	if cfg.Compute.InstanceSize == "" {
		cfg.Compute.InstanceSize = def.Compute.InstanceSize
	}
	if cfg.Compute.ContainerPort == 0 {
		cfg.Compute.ContainerPort = def.Compute.ContainerPort
	}
	if cfg.Database.EngineVersion == "" {
		cfg.Database.EngineVersion = def.Database.EngineVersion
	}
	if cfg.Database.InstanceClass == "" {
		cfg.Database.InstanceClass = def.Database.InstanceClass
	}
	if cfg.Database.AllocatedStorage == 0 {
		cfg.Database.AllocatedStorage = def.Database.AllocatedStorage
	}
	if cfg.Database.BackupRetentionDays == 0 {
		cfg.Database.BackupRetentionDays = def.Database.BackupRetentionDays
	}
	if cfg.Database.Username == "" {
		cfg.Database.Username = def.Database.Username
	}
	if cfg.Secret.Name == "" {
		cfg.Secret.Name = def.Secret.Name
	}
	if cfg.Secret.Length == 0 {
		cfg.Secret.Length = def.Secret.Length
	}
	if cfg.Secret.ExcludeCharacters == "" {
		cfg.Secret.ExcludeCharacters = def.Secret.ExcludeCharacters
	}
	if cfg.Edge.ListenerPort == 0 {
		cfg.Edge.ListenerPort = def.Edge.ListenerPort
	}
	if cfg.State.Type == "" {
		cfg.State.Type = def.State.Type
	}
	if cfg.State.Path == "" {
		cfg.State.Path = def.State.Path
	}
}

// LoadEnv loads AWS credentials and profile settings from a dotenv file.
// A missing default file is not an error.
func LoadEnv(path string, explicit bool) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
