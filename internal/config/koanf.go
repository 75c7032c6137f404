// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the environment variable namespace, e.g.
// LOGPOND_BATCHING__MAX_BATCH_SIZE maps to batching.max_batch_size.
const envPrefix = "LOGPOND_"

// defaultConfigPaths are probed in order when no explicit path is given.
var defaultConfigPaths = []string{
	"config.yaml",
	"/etc/logpond/config.yaml",
}

// Load builds the configuration by layering, lowest precedence first:
//
//  1. built-in defaults (Default)
//  2. a YAML file (explicit path, LOGPOND_CONFIG_PATH, or the first
//     existing default path)
//  3. LOGPOND_-prefixed environment variables
//
// The merged result is validated before it is returned.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if resolved := resolveConfigPath(path); resolved != "" {
		if err := k.Load(file.Provider(resolved), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", resolved, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyTransform), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveConfigPath picks the config file to read. An explicit path must
// exist; probed paths are optional.
func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if p := os.Getenv(envPrefix + "CONFIG_PATH"); p != "" {
		return p
	}
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKeyTransform maps LOGPOND_SECTION__SOME_KEY to section.some_key.
// A double underscore separates nesting levels; single underscores stay
// part of the key so multi-word fields survive the round trip.
func envKeyTransform(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	if s == "CONFIG_PATH" {
		return "" // consumed by resolveConfigPath, not a config key
	}
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}
