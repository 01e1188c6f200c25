package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Validatable is implemented by every config section that can be loaded with
// Load.
type Validatable interface {
	Validate() error
}

type Config struct {
	Repo      RepoConfig      `mapstructure:"repo" toml:"repo"`
	Network   NetworkConfig   `mapstructure:"network" toml:"network"`
	Ledger    LedgerConfig    `mapstructure:"ledger" toml:"ledger"`
	Walrus    WalrusConfig    `mapstructure:"walrus" toml:"walrus"`
	Storage   StorageConfig   `mapstructure:"storage" toml:"storage"`
	Seal      SealConfig      `mapstructure:"seal" toml:"seal"`
	Signer    SignerConfig    `mapstructure:"signer" toml:"signer"`
	Access    AccessConfig    `mapstructure:"access" toml:"access"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" toml:"telemetry"`
	KeyServer KeyServerConfig `mapstructure:"keyserver" toml:"keyserver"`
}

func (c Config) Validate() error {
	if err := validateConfig(c); err != nil {
		return err
	}
	if err := c.Repo.Validate(); err != nil {
		return err
	}
	if err := c.Network.Validate(); err != nil {
		return err
	}
	return c.Seal.Validate()
}

func Load[T Validatable]() (T, error) {
	var out T
	if err := viper.Unmarshal(&out); err != nil {
		return out, fmt.Errorf("unable to decode config, %w", err)
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("invalid config, %w", err)
	}
	return out, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateConfig(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	return nil
}
