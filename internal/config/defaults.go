package config

// Storage backend identifiers.
const (
	StorageBackendLocal = "local"
	StorageBackendS3    = "s3"
)

const (
	defaultStagingDir        = "~/.local/share/imagemill/staging"
	defaultLogDir            = "~/.local/share/imagemill/logs"
	defaultStorageRoot       = "~/.local/share/imagemill/assets"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultToolTimeout       = 120
	defaultVariantQuality    = 80
	defaultFilterMaxWidth    = 2560
	defaultFilterJPEGQuality = 82
	defaultPlaceholderWidth  = 16
	defaultPaletteSize       = 5
	defaultPollInterval      = 5
	defaultErrorRetry        = 10
	defaultMaxAttempts       = 3
	defaultStaleStagingHours = 48
)

// Default returns a Config populated with repository defaults: lossless
// chains for jpeg/png/gif and a WebP variant for jpeg and png sources.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Storage: Storage{
			Backend: StorageBackendLocal,
			Local: LocalStorage{
				Root: defaultStorageRoot,
			},
		},
		Optimizers: map[string][]OptimizerTool{
			"jpeg": {
				{Binary: "jpegoptim", Args: []string{"--strip-all", "{src}"}, TimeoutSeconds: defaultToolTimeout},
			},
			"png": {
				{Binary: "optipng", Args: []string{"-o3", "-strip", "all", "{src}"}, TimeoutSeconds: defaultToolTimeout},
			},
			"gif": {
				{Binary: "gifsicle", Args: []string{"-O3", "-b", "{src}"}, TimeoutSeconds: defaultToolTimeout},
			},
		},
		Variants: []VariantRule{
			{
				Format:         "webp",
				Sources:        []string{"jpeg", "png"},
				Binary:         "cwebp",
				Args:           []string{"-q", "{quality}", "{src}", "-o", "{dst}"},
				Quality:        defaultVariantQuality,
				Widths:         []int{0},
				TimeoutSeconds: defaultToolTimeout,
			},
		},
		Filter: Filter{
			Enabled:     false,
			MaxWidth:    defaultFilterMaxWidth,
			JPEGQuality: defaultFilterJPEGQuality,
		},
		Placeholder: Placeholder{
			Enabled:     true,
			Width:       defaultPlaceholderWidth,
			PaletteSize: defaultPaletteSize,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetry,
			MaxAttempts:        defaultMaxAttempts,
			StaleStagingHours:  defaultStaleStagingHours,
			SkipLarger:         true,
		},
	}
}
