// Package config loads b7 configuration from an INI file with optional
// per-profile sections, falling back to sensible defaults for anything
// unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"gopkg.in/ini.v1"
)

// Config holds all b7 configuration.
type Config struct {
	// Paths
	ConfigPath string
	BasePath   string
	LogsPath   string
	DBPath     string
	DynPath    string

	// Search settings
	Solver     string // "dynamorio" or "perf"
	Timeout    time.Duration
	MaxWorkers int
	ArgvBrute  bool
	StdinBrute bool

	// Behavior
	Debug     bool
	DisableUI bool

	// Profile selects an INI section layered over the defaults.
	Profile string

	// Vars is the free-form variable map handed to solvers. DynPath is
	// mirrored into it under "dynpath".
	Vars map[string]string
}

// DefaultSolver is used when no solver is configured.
const DefaultSolver = "dynamorio"

// LoadConfig reads the configuration file if it exists and applies profile
// overrides. An empty configFile means the default location under the
// user's home directory.
func LoadConfig(configFile, profile string) (*Config, error) {
	cfg := &Config{
		MaxWorkers: runtime.NumCPU() / 2,
		Timeout:    5 * time.Second,
		Solver:     DefaultSolver,
		StdinBrute: true,
		Profile:    profile,
		Vars:       make(map[string]string),
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}

	if cfg.BasePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		cfg.BasePath = filepath.Join(home, ".b7")
	}

	if configFile == "" {
		configFile = filepath.Join(cfg.BasePath, "b7.ini")
	}
	cfg.ConfigPath = configFile

	if _, err := os.Stat(configFile); err == nil {
		if err := cfg.loadINI(configFile); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if cfg.LogsPath == "" {
		cfg.LogsPath = filepath.Join(cfg.BasePath, "logs")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.BasePath, "runs.db")
	}
	if cfg.DynPath != "" {
		cfg.Vars["dynpath"] = cfg.DynPath
	}

	return cfg, nil
}

// loadINI layers the DEFAULT section and then the selected profile section
// over the current values. A [vars] section populates the solver variable
// map verbatim.
func (cfg *Config) loadINI(filename string) error {
	f, err := ini.Load(filename)
	if err != nil {
		return err
	}

	cfg.applySection(f.Section(ini.DefaultSection))
	if cfg.Profile != "" {
		sec, err := f.GetSection(cfg.Profile)
		if err != nil {
			return fmt.Errorf("profile %q not found in %s", cfg.Profile, filename)
		}
		cfg.applySection(sec)
	}

	if vars, err := f.GetSection("vars"); err == nil {
		for _, key := range vars.Keys() {
			cfg.Vars[key.Name()] = key.String()
		}
	}

	return nil
}

func (cfg *Config) applySection(sec *ini.Section) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(strings.ReplaceAll(key.Name(), "_", ""))
		value := key.String()

		switch name {
		case "workers", "maxworkers":
			if n, err := key.Int(); err == nil && n > 0 {
				cfg.MaxWorkers = n
			}
		case "timeout":
			if d, err := key.Duration(); err == nil && d > 0 {
				cfg.Timeout = d
			}
		case "solver":
			cfg.Solver = strings.ToLower(value)
		case "dynpath":
			cfg.DynPath = value
		case "basepath":
			cfg.BasePath = value
		case "logs", "logspath":
			cfg.LogsPath = value
		case "db", "dbpath":
			cfg.DBPath = value
		case "argvbrute":
			if b, err := key.Bool(); err == nil {
				cfg.ArgvBrute = b
			}
		case "stdinbrute":
			if b, err := key.Bool(); err == nil {
				cfg.StdinBrute = b
			}
		case "debug":
			if b, err := key.Bool(); err == nil {
				cfg.Debug = b
			}
		case "disableui", "noui":
			if b, err := key.Bool(); err == nil {
				cfg.DisableUI = b
			}
		}
	}
}

// WriteDefaultConfig writes the configuration out as an INI file that
// LoadConfig reads back.
func WriteDefaultConfig(filename string, cfg *Config) error {
	f := ini.Empty()

	sec := f.Section(ini.DefaultSection)
	sec.Key("workers").SetValue(fmt.Sprintf("%d", cfg.MaxWorkers))
	sec.Key("timeout").SetValue(cfg.Timeout.String())
	sec.Key("solver").SetValue(cfg.Solver)
	sec.Key("dynpath").SetValue(cfg.DynPath)
	sec.Key("logs").SetValue(cfg.LogsPath)
	sec.Key("db").SetValue(cfg.DBPath)
	sec.Key("argv_brute").SetValue(fmt.Sprintf("%v", cfg.ArgvBrute))
	sec.Key("stdin_brute").SetValue(fmt.Sprintf("%v", cfg.StdinBrute))
	sec.Key("disable_ui").SetValue(fmt.Sprintf("%v", cfg.DisableUI))

	if len(cfg.Vars) > 0 {
		vars := f.Section("vars")
		for k, v := range cfg.Vars {
			vars.Key(k).SetValue(v)
		}
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return f.SaveTo(filename)
}

// Validate checks configuration validity and creates missing directories.
func (cfg *Config) Validate() error {
	if cfg.MaxWorkers < 1 {
		return fmt.Errorf("MaxWorkers must be at least 1")
	}
	if cfg.MaxWorkers > 1024 {
		return fmt.Errorf("MaxWorkers is too large (max 1024)")
	}
	if cfg.Solver != "dynamorio" && cfg.Solver != "perf" {
		return fmt.Errorf("unknown solver %q", cfg.Solver)
	}
	if cfg.Solver == "dynamorio" && cfg.Vars["dynpath"] == "" {
		return fmt.Errorf("the dynamorio solver requires dynpath to be set")
	}

	for name, path := range map[string]string{
		"logs": cfg.LogsPath,
		"base": cfg.BasePath,
	} {
		if path == "" {
			return fmt.Errorf("%s path is not configured", name)
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(path, 0755); err != nil {
					return fmt.Errorf("%s directory %s cannot be created: %w", name, path, err)
				}
			} else {
				return fmt.Errorf("%s directory %s: %w", name, path, err)
			}
		} else if !info.IsDir() {
			return fmt.Errorf("%s path %s is not a directory", name, path)
		}
	}

	return nil
}

// GetSystemInfo returns kernel identification for the run banner.
func GetSystemInfo() (osname, osversion, arch string, ncpus int) {
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err == nil {
		osname = strings.TrimRight(string(utsname.Sysname[:]), "\x00")
		osversion = strings.TrimRight(string(utsname.Release[:]), "\x00")
		arch = strings.TrimRight(string(utsname.Machine[:]), "\x00")
	}
	ncpus = runtime.NumCPU()
	return
}
