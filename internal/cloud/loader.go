// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud defines the application configuration and service clients.
// This file implements the hierarchical TOML loader: a base `.env.toml` file
// is decoded first, then an environment-specific `.env.<runtime>.toml` file
// overwrites any values it declares. The config directory and runtime name
// come from environment variables so tests, local runs, and production can
// point at different files without code changes. Environment-variable
// credential defaults are applied last.
package cloud

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Constants for configuration loading.
const (
	ConfigFileBaseName  = ".env"
	ConfigFileExtension = ".toml"
	ConfigSeparator     = "."
	EnvConfigFilePrefix = "CHANNELINTEL_CONFIG_PREFIX" // directory holding the TOML files
	EnvConfigRuntime    = "CHANNELINTEL_RUNTIME"       // e.g. "local", "test", "prod"
)

// fileExists reports whether a file exists at the given path.
func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig populates baseConfig from the base TOML file and then from the
// runtime-specific override file, if either exists. It then applies
// environment-variable credential defaults for any key pools or API keys the
// files left empty.
//
// Inputs:
//   - baseConfig: a pointer to the Config struct to populate.
func LoadConfig(baseConfig *Config) {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension

	if fileExists(baseConfigFileName) {
		if _, err := toml.DecodeFile(baseConfigFileName, baseConfig); err != nil {
			log.Fatalf("failed to decode base configuration file %s with error: %s", baseConfigFileName, err)
		}
	}

	// Values in the runtime file overwrite the base values.
	if fileExists(envConfigFileName) {
		if _, err := toml.DecodeFile(envConfigFileName, baseConfig); err != nil {
			log.Fatalf("failed to decode environment configuration file: %s with error: %s", envConfigFileName, err)
		}
	}

	applyEnvDefaults(baseConfig)
}

// applyEnvDefaults fills credential fields from the process environment when
// the TOML files declared none. Per-user secrets still take precedence at job
// time; these are only the service-wide fallbacks.
func applyEnvDefaults(config *Config) {
	if len(config.Search.APIKeys) == 0 {
		if pool := os.Getenv(EnvSearchAPIKeys); pool != "" {
			for _, key := range strings.Split(pool, ",") {
				if trimmed := strings.TrimSpace(key); trimmed != "" {
					config.Search.APIKeys = append(config.Search.APIKeys, trimmed)
				}
			}
		}
	}
}
