package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// DefaultAppName names the config and data directories.
const DefaultAppName = "tikk"

// Environment variables that override resolved paths and options.
const (
	EnvConfigPath = "TIKK_CONFIG"
	EnvDBPath     = "TIKK_DB_PATH"
	EnvAppName    = "TIKK_APP_NAME"
	EnvDevMode    = "TIKK_DEV_MODE"
)

// Paths represents paths data used by this package.
type Paths struct {
	ConfigPath string
	DataDir    string
	DBPath     string
	LogDir     string
}

// Options defines optional settings for configuration.
type Options struct {
	AppName string
	DevMode bool
}

// OptionsFromEnv fills unset options from TIKK_APP_NAME and TIKK_DEV_MODE.
func OptionsFromEnv(opts Options, getenv func(string) string) Options {
	if getenv == nil {
		getenv = os.Getenv
	}
	if strings.TrimSpace(opts.AppName) == "" {
		opts.AppName = strings.TrimSpace(getenv(EnvAppName))
	}
	if !opts.DevMode {
		if v, err := strconv.ParseBool(strings.TrimSpace(getenv(EnvDevMode))); err == nil {
			opts.DevMode = v
		}
	}
	return opts
}

// DefaultPathsWithOptions returns default paths with options.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	appName := strings.TrimSpace(opts.AppName)
	if appName == "" {
		appName = DefaultAppName
	}
	if opts.DevMode {
		appName += "-dev"
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("user config dir: %w", err)
	}
	dataDir := configDir
	if runtime.GOOS == "linux" {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return Paths{}, fmt.Errorf("user home dir: %w", homeErr)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}

	env := map[string]string{}
	for _, key := range []string{"XDG_CONFIG_HOME", "XDG_DATA_HOME", "APPDATA", "LOCALAPPDATA", EnvConfigPath, EnvDBPath} {
		env[key] = os.Getenv(key)
	}
	return PathsFor(runtime.GOOS, env, configDir, dataDir, appName)
}

// PathsFor resolves per-OS locations; TIKK_CONFIG and TIKK_DB_PATH win over everything.
func PathsFor(goos string, env map[string]string, userConfigDir, userDataDir, appName string) (Paths, error) {
	if userConfigDir == "" || userDataDir == "" {
		return Paths{}, fmt.Errorf("empty base dirs")
	}
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Paths{}, fmt.Errorf("empty app name")
	}

	configBase := userConfigDir
	dataBase := userDataDir

	switch goos {
	case "linux":
		if v := env["XDG_CONFIG_HOME"]; v != "" {
			configBase = v
		}
		if v := env["XDG_DATA_HOME"]; v != "" {
			dataBase = v
		}
	case "windows":
		if v := env["APPDATA"]; v != "" {
			configBase = v
		}
		if v := env["LOCALAPPDATA"]; v != "" {
			dataBase = v
		}
	}

	appDataDir := filepath.Join(dataBase, appName)
	paths := Paths{
		ConfigPath: filepath.Join(configBase, appName, "config.toml"),
		DataDir:    appDataDir,
		DBPath:     filepath.Join(appDataDir, appName+".db"),
		LogDir:     filepath.Join(appDataDir, "logs"),
	}
	if v := strings.TrimSpace(env[EnvConfigPath]); v != "" {
		paths.ConfigPath = v
	}
	if v := strings.TrimSpace(env[EnvDBPath]); v != "" {
		paths.DBPath = v
	}
	return paths, nil
}
