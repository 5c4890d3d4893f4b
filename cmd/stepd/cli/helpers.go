package cli

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/stepchallenge/stepd/internal/config"
	"github.com/stepchallenge/stepd/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from the --data-dir flag,
// STEPD_DATA_DIR env var, or ~/.stepd as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("STEPD_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.stepd"
}

// openStore opens the SQLite store in the resolved data directory.
func openStore() (*store.Store, error) {
	return store.NewStore(resolveDataDir())
}

// loadConfig reads the YAML config file named by --config, or the one viper
// located, falling back to the built-in defaults when neither exists.
func loadConfig() *config.YAMLConfig {
	path := cfgFile
	if path == "" {
		path = viper.ConfigFileUsed()
	}
	if path == "" {
		return config.DefaultYAMLConfig()
	}
	cfg, err := config.LoadYAMLConfig(path)
	if err != nil {
		return config.DefaultYAMLConfig()
	}
	return cfg
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
