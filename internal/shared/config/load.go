package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Option customizes Load.
type Option func(*loadOptions)

type loadOptions struct {
	configPath string
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
}

// WithConfigPath pins the file to read.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithEnv overrides environment lookups used for path resolution and
// ${VAR} interpolation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		if lookup != nil {
			o.envLookup = lookup
		}
	}
}

// WithFileReader overrides how the config file is read.
func WithFileReader(readFile func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		if readFile != nil {
			o.readFile = readFile
		}
	}
}

// WithHomeDir overrides home directory resolution.
func WithHomeDir(homeDir func() (string, error)) Option {
	return func(o *loadOptions) { o.homeDir = homeDir }
}

// Load reads the YAML config file over Default() and applies ${VAR}
// interpolation to every scalar. A missing file yields the defaults.
func Load(opts ...Option) (Config, string, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := Default()

	configPath := strings.TrimSpace(options.configPath)
	if configPath == "" {
		configPath, _ = ResolveConfigPath(options.envLookup, options.homeDir)
	}
	if configPath == "" {
		return cfg, "", nil
	}

	data, err := options.readFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, configPath, nil
		}
		return cfg, configPath, fmt.Errorf("read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, configPath, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return cfg, configPath, fmt.Errorf("parse config file: %w", err)
	}
	expandNodeEnv(options.envLookup, &root)
	if err := root.Decode(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("decode config file: %w", err)
	}

	return cfg, configPath, nil
}

func expandNodeEnv(lookup EnvLookup, node *yaml.Node) {
	if node == nil {
		return
	}
	if node.Kind == yaml.ScalarNode {
		expanded := expandEnvValue(lookup, node.Value)
		if expanded != node.Value {
			node.Value = expanded
			// Keep typed scalars (ints, bools) decodable after substitution.
			if node.Style == 0 {
				node.Tag = ""
			}
		}
		return
	}
	for _, child := range node.Content {
		expandNodeEnv(lookup, child)
	}
}

// expandEnvValue replaces ${VAR} and ${VAR:-default} references.
func expandEnvValue(lookup EnvLookup, value string) string {
	if !strings.Contains(value, "${") {
		return value
	}
	if lookup == nil {
		lookup = DefaultEnvLookup
	}

	var out strings.Builder
	rest := value
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			out.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			out.WriteString(rest)
			break
		}
		end += start

		out.WriteString(rest[:start])
		expr := rest[start+2 : end]
		name, fallback, hasFallback := strings.Cut(expr, ":-")
		resolved, ok := lookup(strings.TrimSpace(name))
		if (!ok || resolved == "") && hasFallback {
			resolved = fallback
		}
		out.WriteString(resolved)
		rest = rest[end+1:]
	}
	return out.String()
}
