// Package config loads the sitepipe configuration using Viper. Values come
// from defaults, an optional .sitepipe.yml file, SITEPIPE_ environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"io"
	"time"

	"github.com/conneroisu/sitepipe/internal/assets"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/transform"
	"github.com/spf13/viper"
)

// Config is the effective configuration of a run.
type Config struct {
	Paths       PathsConfig  `mapstructure:"paths" yaml:"paths" json:"paths"`
	Styles      StylesConfig `mapstructure:"styles" yaml:"styles" json:"styles"`
	Images      ImagesConfig `mapstructure:"images" yaml:"images" json:"images"`
	Server      ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
	Watch       WatchConfig  `mapstructure:"watch" yaml:"watch" json:"watch"`
	Log         LogConfig    `mapstructure:"log" yaml:"log" json:"log"`
	Concurrency int          `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency"`
}

// PathsConfig is the path table: one source glob and destination per
// asset category.
type PathsConfig struct {
	HTML   PathConfig `mapstructure:"html" yaml:"html" json:"html"`
	Styles PathConfig `mapstructure:"styles" yaml:"styles" json:"styles"`
	Images PathConfig `mapstructure:"images" yaml:"images" json:"images"`
}

type PathConfig struct {
	Src  string `mapstructure:"src" yaml:"src" json:"src"`
	Dest string `mapstructure:"dest" yaml:"dest" json:"dest"`
}

type StylesConfig struct {
	// Steps names the transform chain in order.
	Steps []string `mapstructure:"steps" yaml:"steps" json:"steps"`
}

type ImagesConfig struct {
	JPEGQuality int  `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
	Verbose     bool `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host" yaml:"host" json:"host"`
	Port         int    `mapstructure:"port" yaml:"port" json:"port"`
	PortAttempts int    `mapstructure:"port_attempts" yaml:"port_attempts" json:"port_attempts"`
	Open         bool   `mapstructure:"open" yaml:"open" json:"open"`
	Notify       bool   `mapstructure:"notify" yaml:"notify" json:"notify"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// Defaults reproduce the classic src/ -> dist/ layout.
var defaults = map[string]interface{}{
	"paths.html.src":       "src/*.html",
	"paths.html.dest":      "dist",
	"paths.styles.src":     "src/css/*.css",
	"paths.styles.dest":    "dist/css",
	"paths.images.src":     "src/img/**/*.{png,jpg,gif,svg}",
	"paths.images.dest":    "dist/img",
	"styles.steps":         []string{transform.StepPrefix, transform.StepMinify},
	"images.jpeg_quality":  85,
	"images.verbose":       true,
	"server.host":          "localhost",
	"server.port":          3000,
	"server.port_attempts": 100,
	"server.open":          true,
	"server.notify":        false,
	"watch.debounce":       100 * time.Millisecond,
	"log.level":            "info",
	"log.format":           "text",
	"concurrency":          0,
}

// SetDefaults registers every default on v so that environment variables
// and Unmarshal see the full key set.
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads the configuration from the global Viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom applies defaults to v, unmarshals it and validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	if result := ValidateConfigWithDetails(&config); result.HasErrors() {
		return nil, fmt.Errorf("invalid configuration:\n%s", result.String())
	}

	return &config, nil
}

// Table builds the path table.
func (c *Config) Table() (*assets.Table, error) {
	rows := []struct {
		name string
		path PathConfig
	}{
		{assets.HTML, c.Paths.HTML},
		{assets.Styles, c.Paths.Styles},
		{assets.Images, c.Paths.Images},
	}

	categories := make([]assets.Category, 0, len(rows))
	for _, row := range rows {
		category, err := assets.NewCategory(row.name, row.path.Src, row.path.Dest)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return assets.NewTable(categories...)
}

// Chain builds the styles transform chain.
func (c *Config) Chain() (*transform.Chain, error) {
	return transform.ChainFromNames(c.Styles.Steps)
}

// LoggerConfig returns the logger settings writing to output.
func (c *Config) LoggerConfig(output io.Writer) (*logging.LoggerConfig, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	return &logging.LoggerConfig{
		Level:  level,
		Format: c.Log.Format,
		Output: output,
	}, nil
}

// OutputDirs returns the destination directories of every category.
func (c *Config) OutputDirs() []string {
	return []string{c.Paths.HTML.Dest, c.Paths.Styles.Dest, c.Paths.Images.Dest}
}
