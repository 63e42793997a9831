package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conneroisu/sitepipe/internal/assets"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, PathConfig{Src: "src/*.html", Dest: "dist"}, cfg.Paths.HTML)
	assert.Equal(t, PathConfig{Src: "src/css/*.css", Dest: "dist/css"}, cfg.Paths.Styles)
	assert.Equal(t, PathConfig{Src: "src/img/**/*.{png,jpg,gif,svg}", Dest: "dist/img"}, cfg.Paths.Images)
	assert.Equal(t, []string{"prefix", "minify"}, cfg.Styles.Steps)
	assert.Equal(t, 85, cfg.Images.JPEGQuality)
	assert.True(t, cfg.Images.Verbose)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Server.PortAttempts)
	assert.True(t, cfg.Server.Open)
	assert.False(t, cfg.Server.Notify)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Zero(t, cfg.Concurrency)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(v *viper.Viper)
		expectError string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "overrides",
			setup: func(v *viper.Viper) {
				v.Set("server.port", 8080)
				v.Set("images.verbose", false)
				v.Set("watch.debounce", "250ms")
				v.Set("styles.steps", []string{"minify"})
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.False(t, cfg.Images.Verbose)
				assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
				assert.Equal(t, []string{"minify"}, cfg.Styles.Steps)
			},
		},
		{
			name: "comma separated steps",
			setup: func(v *viper.Viper) {
				v.Set("styles.steps", "prefix,minify")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"prefix", "minify"}, cfg.Styles.Steps)
			},
		},
		{
			name:        "port out of range",
			setup:       func(v *viper.Viper) { v.Set("server.port", 70000) },
			expectError: "server.port",
		},
		{
			name:        "undecodable port",
			setup:       func(v *viper.Viper) { v.Set("server.port", "invalid_port") },
			expectError: "decoding configuration",
		},
		{
			name:        "empty glob",
			setup:       func(v *viper.Viper) { v.Set("paths.styles.src", "") },
			expectError: "paths.styles.src",
		},
		{
			name:        "broken glob",
			setup:       func(v *viper.Viper) { v.Set("paths.images.src", "src/img/*.{png,jpg") },
			expectError: "paths.images.src",
		},
		{
			name:        "quality out of range",
			setup:       func(v *viper.Viper) { v.Set("images.jpeg_quality", 0) },
			expectError: "images.jpeg_quality",
		},
		{
			name:        "minify before prefix",
			setup:       func(v *viper.Viper) { v.Set("styles.steps", []string{"minify", "prefix"}) },
			expectError: "styles.steps",
		},
		{
			name:        "unknown log level",
			setup:       func(v *viper.Viper) { v.Set("log.level", "chatty") },
			expectError: "log.level",
		},
		{
			name:        "bad host",
			setup:       func(v *viper.Viper) { v.Set("server.host", "local host;rm") },
			expectError: "server.host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			tt.setup(v)

			cfg, err := LoadFrom(v)
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".sitepipe.yml")
	content := `
paths:
  html:
    src: site/*.html
    dest: public
server:
  port: 4000
  notify: true
images:
  jpeg_quality: 70
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))

	t.Setenv("SITEPIPE_SERVER_PORT", "4100")
	t.Setenv("SITEPIPE_LOG_LEVEL", "debug")

	v := viper.New()
	v.SetConfigFile(file)
	v.SetEnvPrefix("SITEPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, PathConfig{Src: "site/*.html", Dest: "public"}, cfg.Paths.HTML)
	assert.Equal(t, "dist/css", cfg.Paths.Styles.Dest)
	assert.Equal(t, 4100, cfg.Server.Port)
	assert.True(t, cfg.Server.Notify)
	assert.Equal(t, 70, cfg.Images.JPEGQuality)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestTable(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	table, err := cfg.Table()
	require.NoError(t, err)

	images := table.MustGet(assets.Images)
	assert.Equal(t, "src/img", filepath.ToSlash(images.Base()))
	assert.True(t, images.Match("src/img/sub/c.png"))

	c, ok := table.Classify("src/css/b.css")
	require.True(t, ok)
	assert.Equal(t, assets.Styles, c.Name())

	chain, err := cfg.Chain()
	require.NoError(t, err)
	assert.Equal(t, []string{"prefix", "minify"}, chain.Names())

	assert.Equal(t, []string{"dist", "dist/css", "dist/img"}, cfg.OutputDirs())
}

func TestLoggerConfig(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"

	lc, err := cfg.LoggerConfig(os.Stdout)
	require.NoError(t, err)
	assert.Equal(t, logging.LevelWarn, lc.Level)
	assert.Equal(t, "json", lc.Format)
	assert.Equal(t, os.Stdout, lc.Output)
}

func TestValidationWarnings(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	cfg.Server.Host = "0.0.0.0"
	cfg.Paths.Images.Dest = "src/img/out"
	cfg.Styles.Steps = nil

	result := ValidateConfigWithDetails(cfg)
	assert.True(t, result.Valid)
	assert.False(t, result.HasErrors())
	require.True(t, result.HasWarnings())

	fields := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		fields = append(fields, w.Field)
	}
	assert.ElementsMatch(t, []string{"server.host", "paths.images.dest", "styles.steps"}, fields)
	assert.Contains(t, result.String(), "warnings:")
}

func TestValidateHostname(t *testing.T) {
	tests := []struct {
		host  string
		valid bool
	}{
		{"localhost", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"dev.example.com", true},
		{"my-host", true},
		{"", false},
		{"-bad", false},
		{"bad-", false},
		{"a..b", false},
		{"host;rm", false},
		{"host name", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			err := validateHostname(tt.host)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
