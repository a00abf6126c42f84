// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the scanner service configuration from an optional
// YAML file plus SBOMSCAN_-prefixed environment variables. Environment
// variables win over the file, the file wins over defaults.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete runtime configuration of the scanner service.
type Config struct {
	// Port is the HTTP listen port.
	Port int `mapstructure:"port"`

	// DataDir is the root directory for job workspaces and the durable
	// report index.
	DataDir string `mapstructure:"data_dir"`

	// ToolsDir is where acquired build tools (e.g. a downloaded Maven
	// distribution) are cached across jobs.
	ToolsDir string `mapstructure:"tools_dir"`

	// MaxConcurrentJobs caps how many scan jobs run at once. Submissions
	// beyond the cap stay pending until a slot frees.
	MaxConcurrentJobs int `mapstructure:"max_concurrent_jobs"`

	// StageTimeout bounds every external tool invocation.
	StageTimeout time.Duration `mapstructure:"stage_timeout"`

	// JobTimeout bounds a whole job from running to terminal.
	JobTimeout time.Duration `mapstructure:"job_timeout"`

	// TrivyArgs is a shell-style string of extra arguments appended to
	// every vulnerability scan invocation.
	TrivyArgs string `mapstructure:"trivy_args"`

	// MavenVersion and MavenBaseURL pin the Maven distribution downloaded
	// when no host install exists.
	MavenVersion string `mapstructure:"maven_version"`
	MavenBaseURL string `mapstructure:"maven_base_url"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// LogDir, when set, mirrors logs to a rotating file in that directory.
	LogDir string `mapstructure:"log_dir"`

	// OTLPEndpoint, when set, enables trace export to the collector at
	// that address.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Load reads configuration from configPath (optional; empty skips the
// file) and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 12310)
	v.SetDefault("data_dir", "/tmp/sbomscan")
	v.SetDefault("tools_dir", "/tmp/sbomscan/tools")
	v.SetDefault("max_concurrent_jobs", 4)
	v.SetDefault("stage_timeout", 10*time.Minute)
	v.SetDefault("job_timeout", 45*time.Minute)
	v.SetDefault("trivy_args", "")
	v.SetDefault("maven_version", "3.9.9")
	v.SetDefault("maven_base_url", "https://archive.apache.org/dist/maven/maven-3")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dir", "")
	v.SetDefault("otlp_endpoint", "")

	v.SetEnvPrefix("SBOMSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("max_concurrent_jobs must be positive, got %d", c.MaxConcurrentJobs)
	}
	if c.StageTimeout <= 0 || c.JobTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive (stage %s, job %s)", c.StageTimeout, c.JobTimeout)
	}
	if !filepath.IsAbs(c.DataDir) {
		return fmt.Errorf("data_dir must be absolute, got %q", c.DataDir)
	}
	if !filepath.IsAbs(c.ToolsDir) {
		return fmt.Errorf("tools_dir must be absolute, got %q", c.ToolsDir)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}
