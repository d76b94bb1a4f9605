package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Env is the environment surface read exactly once at startup.
type Env struct {
	DataHome       string `envconfig:"XDG_DATA_HOME"`
	DataDirs       string `envconfig:"XDG_DATA_DIRS"`
	CurrentDesktop string `envconfig:"XDG_CURRENT_DESKTOP"`
	Shell          string `envconfig:"SHELL" default:"/bin/sh"`
	Lang           string `envconfig:"LANG"`
	LCMessages     string `envconfig:"LC_MESSAGES"`
	LCAll          string `envconfig:"LC_ALL"`
	I3Sock         string `envconfig:"I3SOCK"`
	SwaySock       string `envconfig:"SWAYSOCK"`
	Home           string `envconfig:"HOME"`
}

// LoadEnv reads the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := envconfig.Process("", &e); err != nil {
		return Env{}, fmt.Errorf("failed to read environment: %w", err)
	}
	return e, nil
}

// Locale returns the message locale with the usual override order.
func (e Env) Locale() string {
	if e.LCAll != "" {
		return e.LCAll
	}
	if e.LCMessages != "" {
		return e.LCMessages
	}
	return e.Lang
}

// DesktopEnvironments splits $XDG_CURRENT_DESKTOP into its tokens.
func (e Env) DesktopEnvironments() []string {
	if e.CurrentDesktop == "" {
		return nil
	}
	var envs []string
	for _, tok := range strings.Split(e.CurrentDesktop, ":") {
		if tok != "" {
			envs = append(envs, tok)
		}
	}
	return envs
}

// File is the optional TOML config file. Every field supplies a default
// for the matching CLI flag; flags take precedence.
type File struct {
	Menu            string `toml:"menu"`
	Terminal        string `toml:"terminal"`
	Wrapper         string `toml:"wrapper"`
	UsageLog        string `toml:"usage_log"`
	WaitOn          string `toml:"wait_on"`
	NoGeneric       bool   `toml:"no_generic"`
	CaseInsensitive bool   `toml:"case_insensitive"`
	UseXDGDE        bool   `toml:"use_xdg_de"`
	Fuzzy           bool   `toml:"fuzzy"`
	Quirks          string `toml:"quirks"`
	LogLevel        string `toml:"log_level"`
}

// DefaultFilePath returns ~/.config/dmenud/config.toml.
func DefaultFilePath(home string) string {
	if home == "" {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".config", "dmenud", "config.toml")
}

// LoadFile reads the config file. A missing file is not an error and
// yields the zero value.
func LoadFile(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f, nil
		}
		return f, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return f, nil
}
