package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/tracemock/pkg/logging"
	"github.com/getmockd/tracemock/pkg/replay"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultAddress, cfg.Address)
	assert.Equal(t, DefaultMatcher, cfg.Matcher)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.UseTLS())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tracemock.yaml", `
address: 127.0.0.1:9443
traceDir: ./traces
trace: ./traces/login.trace
online: true
matcher: strict
matchHeaders: [Authorization]
hosts:
  - name: api.example.com
    address: 127.0.0.1
services:
  - service: http
    protocol: tcp
    domain: example.com
    address: api.example.com
    port: 8080
tls:
  enabled: true
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9443", cfg.Address)
	assert.Equal(t, "./traces", cfg.TraceDir)
	assert.Equal(t, "./traces/login.trace", cfg.Trace)
	assert.True(t, cfg.Online)
	assert.False(t, cfg.Logging)
	assert.Equal(t, replay.ComparatorStrict, cfg.Matcher)
	assert.Equal(t, []string{"Authorization"}, cfg.MatchHeaders)
	assert.Equal(t, []HostRecord{{Name: "api.example.com", Address: "127.0.0.1"}}, cfg.Hosts)
	require.Len(t, cfg.Services, 1)
	assert.Equal(t, uint16(8080), cfg.Services[0].Port)
	assert.True(t, cfg.UseTLS())
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())

	lc := cfg.Logging()
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, logging.FormatJSON, lc.Format)
}

func TestLoad_FileKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "online: true\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultAddress, cfg.Address)
	assert.Equal(t, DefaultMatcher, cfg.Matcher)
	assert.True(t, cfg.Online)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultAddress, cfg.Address)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "address: [unterminated\n")

	_, err := Load(path)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, path, cfgErr.Path)
	assert.Contains(t, err.Error(), path)
}

func TestLoad_TypeMismatch(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "online: sometimes\n")

	_, err := Load(path)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Positive(t, cfgErr.Line)
	assert.Contains(t, err.Error(), "line")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseEnv(t *testing.T) {
	t.Setenv("TRACEMOCK_ADDRESS", "0.0.0.0:8443")
	t.Setenv("TRACEMOCK_ONLINE", "true")
	t.Setenv("TRACEMOCK_LOGGING", "true")
	t.Setenv("TRACEMOCK_MATCH_HEADERS", "Authorization,Accept")
	t.Setenv("TRACEMOCK_HOSTS", "api.example.com=127.0.0.1,db.example.com=127.0.0.2")
	t.Setenv("TRACEMOCK_SERVICES", "http/tcp/example.com=api.example.com:80")
	t.Setenv("TRACEMOCK_TLS_ENABLED", "true")
	t.Setenv("TRACEMOCK_LOG_LEVEL", "warn")

	cfg := Default()
	require.NoError(t, cfg.ParseEnv())

	assert.Equal(t, "0.0.0.0:8443", cfg.Address)
	assert.True(t, cfg.Online)
	assert.True(t, cfg.Logging)
	assert.Equal(t, []string{"Authorization", "Accept"}, cfg.MatchHeaders)
	assert.Equal(t, []HostRecord{
		{Name: "api.example.com", Address: "127.0.0.1"},
		{Name: "db.example.com", Address: "127.0.0.2"},
	}, cfg.Hosts)
	assert.Equal(t, []ServiceRecord{
		{Service: "http", Protocol: "tcp", Domain: "example.com", Address: "api.example.com", Port: 80},
	}, cfg.Services)
	assert.True(t, cfg.TLS.Enabled)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, DefaultMatcher, cfg.Matcher)
}

func TestParseEnv_OverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "address: 127.0.0.1:1000\nonline: true\n")
	t.Setenv("TRACEMOCK_ADDRESS", "127.0.0.1:2000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:2000", cfg.Address)
	assert.True(t, cfg.Online)
}

func TestParseEnv_Invalid(t *testing.T) {
	t.Setenv("TRACEMOCK_ONLINE", "maybe")
	err := Default().ParseEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestParseEnv_InvalidHostSpec(t *testing.T) {
	t.Setenv("TRACEMOCK_HOSTS", "no-address")
	err := Default().ParseEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRACEMOCK_HOSTS")
}

func TestParseHostSpec(t *testing.T) {
	h, err := ParseHostSpec(" api.example.com=::1 ")
	require.NoError(t, err)
	assert.Equal(t, HostRecord{Name: "api.example.com", Address: "::1"}, h)

	for _, bad := range []string{"", "=1.2.3.4", "name=", "name"} {
		_, err := ParseHostSpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseServiceSpec(t *testing.T) {
	s, err := ParseServiceSpec("ldap/tcp/example.com=dir.example.com:389")
	require.NoError(t, err)
	assert.Equal(t, ServiceRecord{
		Service: "ldap", Protocol: "tcp", Domain: "example.com",
		Address: "dir.example.com", Port: 389,
	}, s)

	tests := []string{
		"ldap/tcp=dir:389",
		"ldap/tcp/example.com",
		"ldap/tcp/example.com=dir",
		"ldap/tcp/example.com=dir:http",
		"ldap/tcp/example.com=dir:70000",
	}
	for _, bad := range tests {
		_, err := ParseServiceSpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Address = "no-port"
	cfg.Matcher = "fuzzy"
	cfg.Trace = "a.trace"
	cfg.Record = "b.trace"
	cfg.TLS.CertFile = "cert.pem"
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Hosts = []HostRecord{{Name: "x"}}
	cfg.Services = []ServiceRecord{{Service: "http"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, replay.ErrUnknownComparator)

	msg := err.Error()
	for _, want := range []string{
		"address",
		"mutually exclusive",
		"record requires a trace directory",
		"certFile and keyFile",
		"invalid log level",
		"invalid log format",
		"hosts[0]",
		"services[0]",
		"port is required",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestComparator(t *testing.T) {
	cfg := Default()
	cmp, err := cfg.Comparator()
	require.NoError(t, err)
	assert.NotNil(t, cmp)

	cfg.Matcher = "nope"
	_, err = cfg.Comparator()
	assert.ErrorIs(t, err, replay.ErrUnknownComparator)
}

func TestFindLocalConfig(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, FindLocalConfig(dir))

	want := writeFile(t, dir, ".tracemock.yml", "online: true\n")
	assert.Equal(t, want, FindLocalConfig(dir))

	want = writeFile(t, dir, ".tracemock.yaml", "online: true\n")
	assert.Equal(t, want, FindLocalConfig(dir))
}
