/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package config loads the service configuration: embedded defaults, merged
// with an optional file named by the RRLEDGER_CONFIG environment variable.
package config

import (
	"bytes"
	"embed"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ConfigFileEnv names an extra configuration file merged over the defaults.
const ConfigFileEnv = "RRLEDGER_CONFIG"

//go:embed resources/config.yaml
var embeddedFiles embed.FS

// Server configures the HTTP surface.
type Server struct {
	Address string `mapstructure:"address"`
}

// DB configures the backing store.
type DB struct {
	Driver             string `mapstructure:"driver"`
	DataSource         string `mapstructure:"dataSource"`
	TablePrefix        string `mapstructure:"tablePrefix"`
	CreateSchema       bool   `mapstructure:"createSchema"`
	MaxOpenConns       int    `mapstructure:"maxOpenConns"`
	MaxIdleConns       int    `mapstructure:"maxIdleConns"`
	MaxIdleTimeSeconds int    `mapstructure:"maxIdleTimeSeconds"`
}

// Ledger configures engine policy.
type Ledger struct {
	CancelPolicy string `mapstructure:"cancelPolicy"`
}

// Configuration is the full service configuration.
type Configuration struct {
	Server Server `mapstructure:"server"`
	DB     DB     `mapstructure:"db"`
	Ledger Ledger `mapstructure:"ledger"`
}

// Load reads the embedded defaults, merges the file named by RRLEDGER_CONFIG
// when set, and unmarshals the result.
func Load() (*Configuration, error) {
	defaults, err := embeddedFiles.ReadFile("resources/config.yaml")
	if err != nil {
		return nil, errors.Wrap(err, "couldn't find the default config file")
	}
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, errors.Wrap(err, "couldn't read the default config")
	}

	if configFile := os.Getenv(ConfigFileEnv); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "couldn't read the config file [%s]", configFile)
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal the configuration")
	}
	return &config, nil
}
