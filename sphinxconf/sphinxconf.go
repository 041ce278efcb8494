// Package sphinxconf extracts the locale settings a catalog sync needs from
// a documentation project's configuration. Two formats are supported: the
// project's conf.py, read with a narrow line parser that never executes
// Python, and a declarative sphinxtr.yaml for projects that prefer to keep
// tool settings out of conf.py.
package sphinxconf

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError reports a missing or malformed configuration.
type ConfigError struct {
	Path string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// Config holds the settings extracted from the project configuration.
type Config struct {
	// LocaleDir is the absolute path of the locale root, resolved relative
	// to the config file's directory.
	LocaleDir string
	// Language is the project's source language, when the config declares
	// one. May be empty.
	Language string
	// Path is the config file the settings were read from.
	Path string
}

// defaultLocations is the lookup order when no config path is given.
var defaultLocations = []string{
	"conf.py",
	filepath.Join("source", "conf.py"),
	"sphinxtr.yaml",
}

// Locate finds the project configuration starting from dir, trying the
// conventional locations in order.
func Locate(dir string) (string, error) {
	for _, rel := range defaultLocations {
		path := filepath.Join(dir, rel)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", &ConfigError{
		Path: dir,
		Msg:  "no conf.py, source/conf.py or sphinxtr.yaml found",
	}
}

// Load reads the configuration at path, dispatching on the file name.
func Load(path string) (*Config, error) {
	switch filepath.Base(path) {
	case "conf.py":
		return loadConfPy(path)
	default:
		return loadYAML(path)
	}
}

// yamlConfig is the sphinxtr.yaml schema.
type yamlConfig struct {
	LocaleDir string `yaml:"locale_dir"`
	Language  string `yaml:"language"`
}

func loadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Msg: err.Error()}
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, &ConfigError{Path: path, Msg: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if yc.LocaleDir == "" {
		return nil, &ConfigError{Path: path, Msg: "locale_dir is not set"}
	}

	return &Config{
		LocaleDir: resolve(path, yc.LocaleDir),
		Language:  yc.Language,
		Path:      path,
	}, nil
}

// loadConfPy extracts locale_dirs and language from a conf.py without
// executing it. Only simple top-level assignments with string or
// string-list literals are recognized; anything computed at import time is
// out of reach by design of the no-execution rule.
func loadConfPy(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Msg: err.Error()}
	}
	defer f.Close()

	var localeDir, language string

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, value, ok := splitAssignment(line)
		if !ok {
			continue
		}

		switch name {
		case "locale_dirs":
			dirs, err := parseStringList(value)
			if err != nil {
				return nil, &ConfigError{
					Path: path,
					Msg:  fmt.Sprintf("line %d: locale_dirs: %v", lineNo, err),
				}
			}
			if len(dirs) > 0 {
				localeDir = dirs[0]
			}
		case "language":
			s, err := parseString(value)
			if err != nil {
				return nil, &ConfigError{
					Path: path,
					Msg:  fmt.Sprintf("line %d: language: %v", lineNo, err),
				}
			}
			language = s
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ConfigError{Path: path, Msg: err.Error()}
	}

	if localeDir == "" {
		return nil, &ConfigError{Path: path, Msg: "locale_dirs is not set"}
	}

	return &Config{
		LocaleDir: resolve(path, localeDir),
		Language:  language,
		Path:      path,
	}, nil
}

// splitAssignment recognizes a top-level "name = value" line and returns the
// identifier and the raw right-hand side.
func splitAssignment(line string) (name, value string, ok bool) {
	eq := strings.Index(line, "=")
	if eq < 1 {
		return "", "", false
	}
	// == is a comparison, not an assignment.
	if eq+1 < len(line) && line[eq+1] == '=' {
		return "", "", false
	}
	name = strings.TrimSpace(line[:eq])
	for _, r := range name {
		if !isIdentRune(r) {
			return "", "", false
		}
	}
	return name, strings.TrimSpace(line[eq+1:]), true
}

func isIdentRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// parseString reads a single-quoted or double-quoted Python string literal.
func parseString(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return "", fmt.Errorf("expected a string literal, got %q", s)
	}
	quote := s[0]
	if quote != '\'' && quote != '"' {
		return "", fmt.Errorf("expected a string literal, got %q", s)
	}
	if s[len(s)-1] != quote {
		return "", fmt.Errorf("unterminated string literal %q", s)
	}
	return s[1 : len(s)-1], nil
}

// parseStringList reads a Python list of string literals, e.g. ['locale/'].
func parseStringList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("expected a list literal, got %q", s)
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil, nil
	}

	var items []string
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue // trailing comma
		}
		item, err := parseString(part)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// resolve makes a locale dir absolute relative to the config file's
// directory, matching how the documentation build resolves it.
func resolve(configPath, dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(filepath.Dir(configPath), dir)
}
