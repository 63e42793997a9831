//go:build integration
// +build integration

package integration_tests

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// TestServerConfig contains configuration for test server setup
type TestServerConfig struct {
	ReadinessTimeout    time.Duration
	HealthCheckInterval time.Duration
}

// DefaultTestConfig returns a default test configuration
func DefaultTestConfig() *TestServerConfig {
	return &TestServerConfig{
		ReadinessTimeout:    TestTimeout(),
		HealthCheckInterval: 50 * time.Millisecond,
	}
}

// WaitForServerReadiness polls baseURL until it answers with 200.
func WaitForServerReadiness(ctx context.Context, baseURL string, config *TestServerConfig) error {
	if config == nil {
		config = DefaultTestConfig()
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, config.ReadinessTimeout)
	defer cancel()

	ticker := time.NewTicker(config.HealthCheckInterval)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	for {
		select {
		case <-timeoutCtx.Done():
			return fmt.Errorf("server readiness timeout after %v", config.ReadinessTimeout)
		case <-ticker.C:
			resp, err := client.Get(baseURL + "/")
			if err != nil {
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
	}
}

// FindAvailablePort finds an available port on the system
func FindAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port, nil
}

// WriteSiteFile writes content to name below root, creating directories.
func WriteSiteFile(t *testing.T, root, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, content, 0644), "Failed to write %s", name)
	return p
}

// SiteConfig returns the default configuration rooted at root, serving on
// a free local port without opening a browser.
func SiteConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(viper.New())
	require.NoError(t, err)

	cfg.Paths.HTML = config.PathConfig{Src: filepath.Join(root, "src", "*.html"), Dest: filepath.Join(root, "dist")}
	cfg.Paths.Styles = config.PathConfig{Src: filepath.Join(root, "src", "css", "*.css"), Dest: filepath.Join(root, "dist", "css")}
	cfg.Paths.Images = config.PathConfig{Src: filepath.Join(root, "src", "img", "**", "*.{png,jpg,gif,svg}"), Dest: filepath.Join(root, "dist", "img")}

	port, err := FindAvailablePort()
	require.NoError(t, err)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = port
	cfg.Server.Open = false
	cfg.Watch.Debounce = 30 * time.Millisecond
	return cfg
}

// AssertEventually checks that a condition becomes true within a timeout
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	timeoutChan := time.After(timeout)
	for {
		select {
		case <-timeoutChan:
			require.True(t, condition(), "Timed out waiting for condition: %s", message)
			return
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}

// TestTimeout returns appropriate test timeout based on testing mode
func TestTimeout() time.Duration {
	if testing.Short() {
		return 5 * time.Second
	}
	return 30 * time.Second
}
