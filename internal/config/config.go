// Package config loads the user configuration from ~/.flexios.yaml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/flexpertsdev/flexios-v1/internal/models"
)

const (
	// UserConfigPath is the default path to the user config.
	UserConfigPath = "~/.flexios.yaml"

	// InitialUserConfigVersion is the first version of the user config.
	// Config files that do not specify a version default to it.
	InitialUserConfigVersion = "v1alpha1"

	// SupportedUserConfigVersion is the config version this binary reads.
	SupportedUserConfigVersion = "v1alpha1"

	// DefaultDataDir holds the local store when nothing else is configured.
	DefaultDataDir = "~/.flexios"
)

// Environment variables that override the config file. The token is only
// ever read from the environment.
const (
	TokenEnv   = "FLEXIOS_GITHUB_TOKEN"
	DataDirEnv = "FLEXIOS_DATA_DIR"
	APIURLEnv  = "FLEXIOS_API_URL"
)

// parseConfigErrTemplate is used when the config file is not valid YAML or
// has unknown fields. The yaml library loses context, so only its message is
// passed on.
const parseConfigErrTemplate = "Configuration file could not be parsed. " +
	"Please review %q.\n" +
	"Common pitfalls include:\n" +
	" - Using the wrong types for fields\n" +
	" - Having extra fields inside the config file\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// User is the user configuration.
type User struct {
	Version     string `json:"version,omitempty"`
	DataDir     string `json:"dataDir,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Repo        string `json:"repo,omitempty"`
	Branch      string `json:"branch,omitempty"`
	APIURL      string `json:"apiURL,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
	Timeout     string `json:"timeout,omitempty"`

	// Token comes from TokenEnv and is never written to disk.
	Token string `json:"-"`
}

type incompatibleVersionError struct {
	path, exp, actual string
}

func (err incompatibleVersionError) Error() string {
	return fmt.Sprintf("The configuration file %q is incompatible "+
		"with this version of flexios.\n"+
		"Expected version %q, but got %q.", err.path, err.exp, err.actual)
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// getenv will be overridden in mock tests
var getenv = os.Getenv

// ParseUser reads the user config. A missing file is not an error: the
// defaults and environment are used instead.
func ParseUser() (User, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return User{}, fmt.Errorf("expand config path: %w", err)
	}

	cfg := User{Version: InitialUserConfigVersion}
	if err := parseConfig(path, &cfg); err != nil {
		return User{}, fmt.Errorf("parse: %w", err)
	}

	if v := getenv(DataDirEnv); v != "" {
		cfg.DataDir = v
	}
	if v := getenv(APIURLEnv); v != "" {
		cfg.APIURL = v
	}
	cfg.Token = getenv(TokenEnv)

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	cfg.DataDir, err = homedirExpand(cfg.DataDir)
	if err != nil {
		return User{}, fmt.Errorf("expand data dir: %w", err)
	}

	if _, err := cfg.TimeoutDuration(); err != nil {
		return User{}, err
	}
	return cfg, nil
}

func parseConfig(path string, cfg *User) error {
	configBytes, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	if err := yaml.Unmarshal(configBytes, cfg); err != nil {
		return fmt.Errorf(parseConfigErrTemplate, path, err)
	}
	if cfg.Version != SupportedUserConfigVersion {
		return incompatibleVersionError{path, SupportedUserConfigVersion, cfg.Version}
	}

	// Check for extra fields only after the version, so that a version
	// mismatch is reported first.
	if err := yaml.UnmarshalStrict(configBytes, cfg, yaml.DisallowUnknownFields); err != nil {
		return fmt.Errorf(parseConfigErrTemplate, path, err)
	}
	return nil
}

// WriteUser writes the given user config to disk.
func WriteUser(cfg User) error {
	cfg.Version = SupportedUserConfigVersion
	path, err := GetUserConfigPath()
	if err != nil {
		return fmt.Errorf("expand config path: %w", err)
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// GetUserConfigPath returns the expanded path of the user config.
func GetUserConfigPath() (string, error) {
	return homedirExpand(UserConfigPath)
}

// Target returns the configured sync target with the default branch filled
// in. It may be incomplete.
func (u User) Target() models.SyncTarget {
	return models.SyncTarget{Owner: u.Owner, Repo: u.Repo, Branch: u.Branch}.WithDefaults()
}

// TimeoutDuration returns the per-call timeout, or zero for the default.
func (u User) TimeoutDuration() (time.Duration, error) {
	if u.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(u.Timeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: use a duration such as 30s", u.Timeout)
	}
	return d, nil
}
