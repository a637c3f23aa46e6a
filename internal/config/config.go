// Package config loads the application configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Tables struct {
	Users    string `yaml:"users"`
	Sessions string `yaml:"sessions"`
	Blogs    string `yaml:"blogs"`
}

type Config struct {
	Port     string `yaml:"port"`
	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`
	Tables   Tables `yaml:"tables"`

	// SessionLifetimeSec is the session cookie max-age in seconds.
	SessionLifetimeSec int `yaml:"session_lifetime"`
	// SweepIntervalSec is the period of the expired-session sweep in seconds.
	SweepIntervalSec int `yaml:"sweep_interval"`

	BlogDir  string `yaml:"blog_dir"`
	ImageDir string `yaml:"image_dir"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Port:     "8080",
		DBDriver: "sqlite3",
		DBDSN:    "blogapp.db",
		Tables: Tables{
			Users:    "users",
			Sessions: "sessions",
			Blogs:    "blogs",
		},
		SessionLifetimeSec: 86400,
		SweepIntervalSec:   600,
		BlogDir:            "static/blogs",
		ImageDir:           "static/img/profiles",
	}
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	return config, nil
}

func (c *Config) SessionLifetime() time.Duration {
	return time.Duration(c.SessionLifetimeSec) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}
