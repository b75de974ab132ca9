// Package config loads tracemock settings from defaults, an optional YAML
// file and TRACEMOCK_* environment variables, in that order of precedence.
// Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/getmockd/tracemock/pkg/logging"
	"github.com/getmockd/tracemock/pkg/replay"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "TRACEMOCK_"

// Defaults.
const (
	DefaultAddress   = "127.0.0.1:0"
	DefaultMatcher   = replay.ComparatorMethodTarget
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// LocalConfigFileNames are searched for in the working directory when no
// --config is given.
var LocalConfigFileNames = []string{".tracemock.yaml", ".tracemock.yml"}

// Config is the complete serve configuration.
type Config struct {
	Address  string `yaml:"address" env:"ADDRESS"`
	TraceDir string `yaml:"traceDir" env:"TRACE_DIR"`
	// Trace is loaded for replay at startup.
	Trace string `yaml:"trace" env:"TRACE"`
	// Record names a trace, relative to TraceDir, to record into.
	Record  string `yaml:"record" env:"RECORD"`
	Online  bool   `yaml:"online" env:"ONLINE"`
	Logging bool   `yaml:"logging" env:"LOGGING"`

	Matcher      string   `yaml:"matcher" env:"MATCHER"`
	MatchHeaders []string `yaml:"matchHeaders" env:"MATCH_HEADERS" envSeparator:","`

	Hosts    []HostRecord    `yaml:"hosts"`
	Services []ServiceRecord `yaml:"services"`
	// HostSpecs and ServiceSpecs carry records from the environment in
	// their flag syntax; Load folds them into Hosts and Services.
	HostSpecs    []string `yaml:"-" env:"HOSTS" envSeparator:","`
	ServiceSpecs []string `yaml:"-" env:"SERVICES" envSeparator:","`

	TLS TLSConfig `yaml:"tls" envPrefix:"TLS_"`
	Log LogConfig `yaml:"log" envPrefix:"LOG_"`
}

// TLSConfig selects HTTPS. Enabled without files uses a generated
// self-signed certificate.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	CertFile string `yaml:"certFile" env:"CERT_FILE"`
	KeyFile  string `yaml:"keyFile" env:"KEY_FILE"`
}

// LogConfig configures process logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	// File receives a JSON copy of every record.
	File string `yaml:"file" env:"FILE"`
}

// HostRecord maps a hostname to an address in the fake resolver.
type HostRecord struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// ServiceRecord registers an SRV target in the fake resolver.
type ServiceRecord struct {
	Service  string `yaml:"service"`
	Protocol string `yaml:"protocol"`
	Domain   string `yaml:"domain"`
	Address  string `yaml:"address"`
	Port     uint16 `yaml:"port"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Address: DefaultAddress,
		Matcher: DefaultMatcher,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// ConfigError reports a problem in a configuration file.
type ConfigError struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d, column %d): %s", e.Path, e.Line, e.Column, e.Message)
	}
	return e.Path + ": " + e.Message
}

// Load builds a Config from defaults, the file at path (if path is not
// empty) and the environment. It does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ParseEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindLocalConfig returns the first local config file present in dir, or ""
// when there is none.
func FindLocalConfig(dir string) string {
	for _, name := range LocalConfigFileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return &ConfigError{Path: path, Message: err.Error()}
	}
	if len(root.Content) == 0 {
		return nil
	}
	if err := root.Content[0].Decode(c); err != nil {
		line, col := 0, 0
		var te *yaml.TypeError
		if errors.As(err, &te) {
			line, col = root.Content[0].Line, root.Content[0].Column
		}
		return &ConfigError{Path: path, Line: line, Column: col, Message: err.Error()}
	}
	return nil
}

// ParseEnv overlays TRACEMOCK_* variables that are set. Unset variables
// leave the current values alone.
func (c *Config) ParseEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	for _, spec := range c.HostSpecs {
		h, err := ParseHostSpec(spec)
		if err != nil {
			return fmt.Errorf("parse env: %sHOSTS: %w", EnvPrefix, err)
		}
		c.Hosts = append(c.Hosts, h)
	}
	for _, spec := range c.ServiceSpecs {
		s, err := ParseServiceSpec(spec)
		if err != nil {
			return fmt.Errorf("parse env: %sSERVICES: %w", EnvPrefix, err)
		}
		c.Services = append(c.Services, s)
	}
	c.HostSpecs, c.ServiceSpecs = nil, nil
	return nil
}

// ParseHostSpec parses "name=address".
func ParseHostSpec(s string) (HostRecord, error) {
	name, addr, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok || name == "" || addr == "" {
		return HostRecord{}, fmt.Errorf("invalid host record %q (want name=address)", s)
	}
	return HostRecord{Name: name, Address: addr}, nil
}

// ParseServiceSpec parses "service/protocol/domain=address:port".
func ParseServiceSpec(s string) (ServiceRecord, error) {
	key, target, ok := strings.Cut(strings.TrimSpace(s), "=")
	parts := strings.Split(key, "/")
	if !ok || len(parts) != 3 {
		return ServiceRecord{}, fmt.Errorf("invalid service record %q (want service/protocol/domain=address:port)", s)
	}
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return ServiceRecord{}, fmt.Errorf("invalid service target %q: %w", target, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return ServiceRecord{}, fmt.Errorf("invalid service port %q: %w", portStr, err)
	}
	return ServiceRecord{
		Service:  parts[0],
		Protocol: parts[1],
		Domain:   parts[2],
		Address:  host,
		Port:     uint16(port),
	}, nil
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		errs = append(errs, fmt.Errorf("address %q: %w", c.Address, err))
	}
	if _, err := replay.ComparatorByName(c.Matcher, c.MatchHeaders); err != nil {
		errs = append(errs, err)
	}
	if c.Trace != "" && c.Record != "" {
		errs = append(errs, errors.New("trace and record are mutually exclusive"))
	}
	if c.Record != "" && c.TraceDir == "" {
		errs = append(errs, errors.New("record requires a trace directory"))
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls certFile and keyFile must be set together"))
	}
	if err := logging.ValidateLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if err := logging.ValidateFormat(c.Log.Format); err != nil {
		errs = append(errs, err)
	}
	for i, h := range c.Hosts {
		if h.Name == "" || h.Address == "" {
			errs = append(errs, fmt.Errorf("hosts[%d]: name and address are required", i))
		}
	}
	for i, s := range c.Services {
		if s.Service == "" || s.Protocol == "" || s.Domain == "" || s.Address == "" {
			errs = append(errs, fmt.Errorf("services[%d]: service, protocol, domain and address are required", i))
		}
		if s.Port == 0 {
			errs = append(errs, fmt.Errorf("services[%d]: port is required", i))
		}
	}
	return errors.Join(errs...)
}

// UseTLS reports whether the server should serve HTTPS.
func (c *Config) UseTLS() bool {
	return c.TLS.Enabled || c.TLS.CertFile != ""
}

// Comparator returns the configured replay comparator.
func (c *Config) Comparator() (replay.Comparator, error) {
	return replay.ComparatorByName(c.Matcher, c.MatchHeaders)
}

// Logging returns the logging configuration. The caller owns opening
// Log.File and setting Tee.
func (c *Config) Logging() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.Log.Level)
	lc.Format = logging.ParseFormat(c.Log.Format)
	return lc
}
