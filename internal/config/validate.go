package config

import (
	"errors"
	"fmt"
	"strings"

	"imagemill/internal/imaging"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateOptimizers(); err != nil {
		return err
	}
	if err := c.validateVariants(); err != nil {
		return err
	}
	if err := c.validateFilter(); err != nil {
		return err
	}
	if err := c.validatePlaceholder(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageBackendLocal:
		if strings.TrimSpace(c.Storage.Local.Root) == "" {
			return errors.New("storage.local.root must be set when storage.backend is \"local\"")
		}
	case StorageBackendS3:
		if strings.TrimSpace(c.Storage.S3.Endpoint) == "" {
			return errors.New("storage.s3.endpoint must be set when storage.backend is \"s3\"")
		}
		if strings.TrimSpace(c.Storage.S3.Bucket) == "" {
			return errors.New("storage.s3.bucket must be set when storage.backend is \"s3\"")
		}
		if strings.TrimSpace(c.Storage.S3.AccessKey) == "" || strings.TrimSpace(c.Storage.S3.SecretKey) == "" {
			return errors.New("storage.s3.access_key and storage.s3.secret_key must be set when storage.backend is \"s3\"")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", StorageBackendLocal, StorageBackendS3, c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateOptimizers() error {
	for format, chain := range c.Optimizers {
		if strings.TrimSpace(format) == "" {
			return errors.New("optimizer tables must be keyed by format")
		}
		for i, tool := range chain {
			if strings.TrimSpace(tool.Binary) == "" {
				return fmt.Errorf("optimizer.%s[%d].binary must be set", format, i)
			}
			if !argsContain(tool.Args, "{src}") {
				return fmt.Errorf("optimizer.%s[%d].args must reference {src}", format, i)
			}
			if tool.TimeoutSeconds < 0 {
				return fmt.Errorf("optimizer.%s[%d].timeout_seconds must be >= 0", format, i)
			}
		}
	}
	return nil
}

func (c *Config) validateVariants() error {
	for i, rule := range c.Variants {
		if rule.Format == "" {
			return fmt.Errorf("variant[%d].format must be set", i)
		}
		if len(rule.Sources) == 0 {
			return fmt.Errorf("variant[%d].sources must include at least one source format", i)
		}
		if strings.TrimSpace(rule.Binary) == "" {
			return fmt.Errorf("variant[%d].binary must be set", i)
		}
		if !argsContain(rule.Args, "{src}") || !argsContain(rule.Args, "{dst}") {
			return fmt.Errorf("variant[%d].args must reference both {src} and {dst}", i)
		}
		if rule.Quality < 0 || rule.Quality > 100 {
			return fmt.Errorf("variant[%d].quality must be between 0 and 100", i)
		}
		for _, width := range rule.Widths {
			if width < 0 {
				return fmt.Errorf("variant[%d].widths entries must be >= 0", i)
			}
		}
		if rule.TimeoutSeconds < 0 {
			return fmt.Errorf("variant[%d].timeout_seconds must be >= 0", i)
		}
		// A native-width rendition in the source's own format would carry the
		// original asset's file name and overwrite it at publish.
		if widthsIncludeNative(rule.Widths) {
			target, ok := imaging.FormatForExtension(rule.Format)
			if !ok {
				continue
			}
			for _, source := range rule.Sources {
				if src, ok := imaging.FormatForExtension(source); ok && src == target {
					return fmt.Errorf("variant[%d]: a native-width %s rendition of a %s source would overwrite the published original; drop width 0 or change the format", i, rule.Format, source)
				}
			}
		}
	}
	return nil
}

func (c *Config) validateFilter() error {
	if !c.Filter.Enabled {
		return nil
	}
	if c.Filter.MaxWidth <= 0 {
		return errors.New("filter.max_width must be positive when filter.enabled is true")
	}
	if c.Filter.JPEGQuality < 1 || c.Filter.JPEGQuality > 100 {
		return errors.New("filter.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validatePlaceholder() error {
	if !c.Placeholder.Enabled {
		return nil
	}
	if c.Placeholder.Width <= 0 {
		return errors.New("placeholder.width must be positive when placeholder.enabled is true")
	}
	if c.Placeholder.PaletteSize <= 0 {
		return errors.New("placeholder.palette_size must be positive when placeholder.enabled is true")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.max_attempts":         c.Workflow.MaxAttempts,
		"workflow.stale_staging_hours":  c.Workflow.StaleStagingHours,
	}); err != nil {
		return err
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func widthsIncludeNative(widths []int) bool {
	for _, width := range widths {
		if width == 0 {
			return true
		}
	}
	return false
}

func argsContain(args []string, token string) bool {
	for _, arg := range args {
		if strings.Contains(arg, token) {
			return true
		}
	}
	return false
}
