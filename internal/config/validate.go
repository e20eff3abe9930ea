package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCompute(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.CacheDir == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if c.Paths.ProjectDir == "" {
		return errors.New("paths.project_dir must be set")
	}
	return nil
}

func (c *Config) validateCompute() error {
	if c.Compute.Workers < 1 || c.Compute.Workers > 64 {
		return fmt.Errorf("compute.workers must be between 1 and 64, got %d", c.Compute.Workers)
	}
	if c.Compute.Retries > 10 {
		return fmt.Errorf("compute.retries must be at most 10, got %d", c.Compute.Retries)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}
