package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"

	"github.com/utafrali/catalogcore/pkg/validator"
)

// Load parses environment variables into the provided struct and then checks
// its `validate` tags.
//
// Example:
//
//	type Config struct {
//	    Port     int    `env:"HTTP_PORT" envDefault:"8080" validate:"gte=1,lte=65535"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return Check(cfg)
}

// Check runs the `validate` tags of an already populated config. Callers
// that adjust a config after Load (flag overrides) call it again.
func Check(cfg any) error {
	if err := validator.Validate(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
