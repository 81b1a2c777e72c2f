package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment overrides, applied after the config file and .env.
const (
	EnvInstallRoot     = "KAMIWAZA_INSTALL_ROOT"
	EnvDatabaseDSN     = "KAMIWAZA_DB_DSN"
	EnvStabilizeSecs   = "KAMIWAZA_STABILIZE_SECONDS"
	EnvContainerScript = "KAMIWAZA_CONTAINERS_SCRIPT"
)

// DefaultFileNames are searched in the working directory when no explicit
// config path is given. The first one that exists is used.
var DefaultFileNames = []string{
	"install.yaml",
	"install.yml",
	"install.json",
	"install.jsonc",
}

// Load builds the configuration in four layers: defaults, the config file
// (path, or the first of DefaultFileNames found), <root>/.env, and finally
// KAMIWAZA_* environment variables. A missing default file is not an error;
// a missing explicit path is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findDefaultFile()
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv(EnvInstallRoot); v != "" {
		cfg.Root = v
	}

	// godotenv.Load never overrides variables that are already set, so the
	// real environment keeps precedence over .env.
	envFile := filepath.Join(cfg.Root, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// findDefaultFile returns the first DefaultFileNames entry present in the
// working directory, or "".
func findDefaultFile() string {
	for _, name := range DefaultFileNames {
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			return name
		}
	}
	return ""
}

// loadFile merges the file at path into cfg. JSON and JSONC files are
// stripped of comments with jsonc.ToJSON and then decoded by yaml.v3, which
// accepts JSON as a YAML subset, so both formats share the yaml struct tags
// and duration parsing.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(EnvContainerScript); v != "" {
		cfg.Containers.Script = v
	}
	if v := os.Getenv(EnvStabilizeSecs); v != "" {
		secs, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s must be an integer number of seconds: %w", EnvStabilizeSecs, err)
		}
		cfg.Containers.StabilizeDelay = time.Duration(secs) * time.Second
	}
	return nil
}
