package config

import "github.com/rotisserie/eris"

// JWTConfig holds configuration for JWT token generation and validation.
// Authentication is disabled when Secret is empty.
type JWTConfig struct {
	Secret          string `mapstructure:"secret"`
	ExpirationHours int    `mapstructure:"expiration_hours"`
}

// Enabled reports whether bearer authentication is on.
func (c JWTConfig) Enabled() bool {
	return c.Secret != ""
}

// validate checks the configuration when authentication is enabled.
func (c JWTConfig) validate() error {
	if !c.Enabled() {
		return nil
	}
	if len(c.Secret) < 32 {
		return eris.New("JWT_SECRET must be at least 32 bytes")
	}
	if c.ExpirationHours < 1 {
		return eris.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
