package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/conneroisu/sitepipe/internal/assets"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/transform"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	write("errors", vr.Errors)
	write("warnings", vr.Warnings)
	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

// ValidateConfigWithDetails checks every section and collects all problems.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validatePaths(&config.Paths, result)
	validateStyles(&config.Styles, result)
	validateImages(&config.Images, result)
	validateServer(&config.Server, result)
	validateWatch(&config.Watch, result)
	validateLog(&config.Log, result)

	if config.Concurrency < 0 {
		result.addError("concurrency", config.Concurrency, "must not be negative", "use 0 for one worker per CPU")
	}

	result.Valid = !result.HasErrors()
	return result
}

func validatePaths(config *PathsConfig, result *ValidationResult) {
	rows := []struct {
		name string
		path PathConfig
	}{
		{assets.HTML, config.HTML},
		{assets.Styles, config.Styles},
		{assets.Images, config.Images},
	}

	var categories []assets.Category
	for _, row := range rows {
		field := "paths." + row.name
		if row.path.Src == "" {
			result.addError(field+".src", row.path.Src, "source glob is empty")
			continue
		}
		if row.path.Dest == "" {
			result.addError(field+".dest", row.path.Dest, "destination is empty")
			continue
		}
		category, err := assets.NewCategory(row.name, row.path.Src, row.path.Dest)
		if err != nil {
			result.addError(field+".src", row.path.Src, err.Error(), "globs support *, **, ? and {a,b}")
			continue
		}
		categories = append(categories, category)
	}

	// Output written inside a watched source tree would retrigger the watch.
	for _, c := range categories {
		for _, other := range categories {
			if !within(other.Base(), c.Dest()) {
				continue
			}
			if other.Recursive() || filepath.Clean(c.Dest()) == filepath.Clean(other.Base()) {
				result.addWarning("paths."+c.Name()+".dest", c.Dest(),
					fmt.Sprintf("output directory is inside the %s source tree", other.Name()),
					"keep sources and output in separate directories")
				break
			}
		}
	}
}

func validateStyles(config *StylesConfig, result *ValidationResult) {
	if _, err := transform.ChainFromNames(config.Steps); err != nil {
		result.addError("styles.steps", config.Steps, err.Error(),
			fmt.Sprintf("known steps are %q and %q", transform.StepPrefix, transform.StepMinify))
	}
	if len(config.Steps) == 0 {
		result.addWarning("styles.steps", config.Steps, "no steps configured, stylesheets are copied unchanged")
	}
}

func validateImages(config *ImagesConfig, result *ValidationResult) {
	if config.JPEGQuality < 1 || config.JPEGQuality > 100 {
		result.addError("images.jpeg_quality", config.JPEGQuality, "must be between 1 and 100")
	}
}

func validateServer(config *ServerConfig, result *ValidationResult) {
	if config.Port < 1 || config.Port > 65535 {
		result.addError("server.port", config.Port, fmt.Sprintf("port %d is not in valid range 1-65535", config.Port))
	}
	if config.PortAttempts < 1 {
		result.addError("server.port_attempts", config.PortAttempts, "must be at least 1")
	}
	if err := validateHostname(config.Host); err != nil {
		result.addError("server.host", config.Host, err.Error())
		return
	}
	if config.Host == "0.0.0.0" || config.Host == "::" {
		result.addWarning("server.host", config.Host, "dev server is reachable from other machines",
			"use localhost unless you test from another device")
	}
}

func validateWatch(config *WatchConfig, result *ValidationResult) {
	if config.Debounce < 0 {
		result.addError("watch.debounce", config.Debounce.String(), "must not be negative")
	}
}

func validateLog(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.addError("log.level", config.Level, err.Error(), "use debug, info, warn or error")
	}
	switch config.Format {
	case "text", "json":
	default:
		result.addError("log.format", config.Format, "must be text or json")
	}
}

// validateHostname accepts an IP address or an RFC 1123 host name.
func validateHostname(host string) error {
	if host == "" {
		return fmt.Errorf("host is empty")
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if len(host) > 253 {
		return fmt.Errorf("host name too long")
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return fmt.Errorf("invalid host name %q", host)
		}
		for i, r := range label {
			alnum := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
			if !alnum && !(r == '-' && i > 0 && i < len(label)-1) {
				return fmt.Errorf("invalid host name %q", host)
			}
		}
	}
	return nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
