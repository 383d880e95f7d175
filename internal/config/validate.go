package config

import (
	"errors"
	"fmt"

	"github.com/gobwas/glob"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateConvert(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateScan() error {
	for _, ext := range c.Scan.SourceExtensions {
		if ext == ".ktx2" {
			return errors.New("scan.source_extensions must not include .ktx2")
		}
		for _, manifestExt := range c.Scan.ManifestExtensions {
			if ext == manifestExt {
				return fmt.Errorf("scan.source_extensions and scan.manifest_extensions both contain %s", ext)
			}
		}
	}
	for _, pattern := range c.Scan.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("scan.exclude: invalid pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func (c *Config) validateConvert() error {
	if c.Convert.Workers < 0 {
		return errors.New("convert.workers must be zero (auto) or positive")
	}
	if c.Convert.JobTimeout < 0 {
		return errors.New("convert.job_timeout must be zero (unbounded) or positive (seconds)")
	}
	if c.Convert.RetryAttempts < 0 {
		return errors.New("convert.retry_attempts must not be negative")
	}
	if c.Convert.RetryAttempts > 0 && c.Convert.RetryBackoffMS <= 0 {
		return errors.New("convert.retry_backoff_ms must be positive when convert.retry_attempts is set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
