package config

import (
	"encoding/json"
	"os"
	"strconv"

	"habisync/internal/constants"
	"habisync/internal/models"
)

var (
	ErrMissingPadronURL = models.ConfigError{Message: "missing padron API base URL"}
	ErrMissingStorePath = models.ConfigError{Message: "missing store path"}
)

func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Padron.APIBaseURL == "" {
		return ErrMissingPadronURL
	}
	if c.Store.Path == "" {
		return ErrMissingStorePath
	}

	if c.Padron.TimeoutSec <= 0 {
		c.Padron.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Connectivity.ProbeIntervalSec <= 0 {
		c.Connectivity.ProbeIntervalSec = constants.DefaultProbeIntervalSec
	}
	if c.Connectivity.ProbeTimeoutSec <= 0 {
		c.Connectivity.ProbeTimeoutSec = constants.DefaultProbeTimeoutSec
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultBackoffInitialMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("PADRON_API_URL"); url != "" {
		c.Padron.APIBaseURL = url
	}
	if path := os.Getenv("STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	if port := os.Getenv("HABISYNC_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
}
