package config

const (
	defaultCacheDir          = "~/.local/share/wavecache/cache"
	defaultProjectDir        = "~/.local/share/wavecache/projects"
	defaultLogDir            = "~/.local/share/wavecache/logs"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultComputeWorkers    = 2
	defaultComputeRetries    = 2
	defaultFreeSpaceFloorMiB = 64
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:   defaultCacheDir,
			ProjectDir: defaultProjectDir,
			LogDir:     defaultLogDir,
		},
		Compute: Compute{
			Workers:           defaultComputeWorkers,
			Retries:           defaultComputeRetries,
			FreeSpaceFloorMiB: defaultFreeSpaceFloorMiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
