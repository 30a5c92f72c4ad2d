package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const envConfigPath = "CKPT_CONFIG"

// Config represents the ckpt configuration file (~/.config/ckptinspect/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	// Parser limits
	MaxHeaderSize      *int64 `yaml:"max_header_size"`
	LargeFileThreshold *int64 `yaml:"large_file_threshold"`

	// PyTorch tool
	Python        string         `yaml:"python"`
	PyTorchScript string         `yaml:"pytorch_script"`
	ToolTimeout   *time.Duration `yaml:"tool_timeout"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
	Root          string `yaml:"root"`
}

// loadedConfig is filled once by the root command's Before hook.
var loadedConfig Config

func configPath() string {
	if p := strings.TrimSpace(os.Getenv(envConfigPath)); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ckptinspect", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config; a
// file that exists but does not parse is an error.
func LoadConfig() (Config, error) {
	path := configPath()
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	loadedConfig = cfg
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyParserConfig applies config file defaults to the parser flags
// that were not set explicitly.
func applyParserConfig(c *cli.Command, cfg Config) {
	if cfg.MaxHeaderSize != nil && !c.IsSet("max-header-size") {
		maxHeaderSize = *cfg.MaxHeaderSize
	}
	if cfg.LargeFileThreshold != nil && !c.IsSet("large-file-threshold") {
		largeFileThreshold = *cfg.LargeFileThreshold
	}
	if cfg.Python != "" && !c.IsSet("python") {
		pythonPath = cfg.Python
	}
	if cfg.PyTorchScript != "" && !c.IsSet("pytorch-script") {
		pytorchScript = cfg.PyTorchScript
	}
	if cfg.ToolTimeout != nil && !c.IsSet("tool-timeout") {
		toolTimeout = *cfg.ToolTimeout
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr, root *string) {
	applyParserConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.Root != "" && !c.IsSet("root") {
		*root = cfg.Root
	}
}
