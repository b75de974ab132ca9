package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/getmockd/tracemock/pkg/config"
	"github.com/getmockd/tracemock/pkg/logging"
	"github.com/getmockd/tracemock/pkg/server"
	mocktls "github.com/getmockd/tracemock/pkg/tls"
)

type serveFlags struct {
	address     string
	traceDir    string
	trace       string
	record      string
	online      bool
	logging     bool
	matcher     string
	matchHeader []string
	hosts       []string
	services    []string
	tls         bool
	tlsCert     string
	tlsKey      string
	logLevel    string
	logFormat   string
	logFile     string
}

func newServeCommand(g *globalFlags) *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the trace mock server",
		Long: `Start the mock server and block until interrupted.

With --trace the server replays the trace and answers with a 400 diagnostic
on the first request that does not match. With --record NAME the server
passes traffic through to the real services and writes every exchange to
NAME inside --trace-dir on shutdown.`,
		Example: `  # Replay a recorded trace
  tracemock serve --trace testdata/login.trace

  # Record live traffic into traces/login.yaml
  tracemock serve --trace-dir traces --record login.yaml

  # HTTPS with a generated certificate
  tracemock serve --tls --trace testdata/login.trace`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g.configFile)
			if err != nil {
				return err
			}
			if err := f.apply(cmd.Flags(), cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}

			log, closeLog, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log, func(srv *server.Server) {
				fmt.Fprintf(cmd.OutOrStdout(), "tracemock listening on %s\n", srv.URL())
			})
		},
	}

	f.register(cmd.Flags())
	return cmd
}

func (f *serveFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.address, "addr", config.DefaultAddress, "Address to listen on (host:port)")
	fs.StringVar(&f.traceDir, "trace-dir", "", "Directory recordings are written to")
	fs.StringVarP(&f.trace, "trace", "t", "", "Trace file to replay")
	fs.StringVar(&f.record, "record", "", "Record traffic into this trace name inside --trace-dir")
	fs.BoolVar(&f.online, "online", false, "Pass requests through to the real network when no trace is loaded")
	fs.BoolVar(&f.logging, "logging", false, "Record exchanges while online")
	fs.StringVar(&f.matcher, "match", config.DefaultMatcher, "Request comparator (method-target or strict)")
	fs.StringArrayVar(&f.matchHeader, "match-header", nil, "Header the strict comparator also compares (repeatable)")
	fs.StringArrayVar(&f.hosts, "host", nil, "Fake resolver record name=address (repeatable)")
	fs.StringArrayVar(&f.services, "service", nil, "Fake SRV record service/proto/domain=address:port (repeatable)")
	fs.BoolVar(&f.tls, "tls", false, "Serve HTTPS (generates a certificate unless --tls-cert is set)")
	fs.StringVar(&f.tlsCert, "tls-cert", "", "PEM certificate file")
	fs.StringVar(&f.tlsKey, "tls-key", "", "PEM private key file")
	fs.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", config.DefaultLogFormat, "Log format (text or json)")
	fs.StringVar(&f.logFile, "log-file", "", "Also write JSON logs to this file")
}

// loadConfig reads path, or the local config file when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if wd, err := os.Getwd(); err == nil {
			path = config.FindLocalConfig(wd)
		}
	}
	return config.Load(path)
}

// apply copies the flags the user set over cfg, so flags beat the file and
// the environment while unset flags leave them alone.
func (f *serveFlags) apply(fs *pflag.FlagSet, cfg *config.Config) error {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("addr", func() { cfg.Address = f.address })
	set("trace-dir", func() { cfg.TraceDir = f.traceDir })
	set("trace", func() { cfg.Trace = f.trace })
	set("record", func() { cfg.Record = f.record })
	set("online", func() { cfg.Online = f.online })
	set("logging", func() { cfg.Logging = f.logging })
	set("match", func() { cfg.Matcher = f.matcher })
	set("match-header", func() { cfg.MatchHeaders = f.matchHeader })
	set("tls", func() { cfg.TLS.Enabled = f.tls })
	set("tls-cert", func() { cfg.TLS.CertFile = f.tlsCert })
	set("tls-key", func() { cfg.TLS.KeyFile = f.tlsKey })
	set("log-level", func() { cfg.Log.Level = f.logLevel })
	set("log-format", func() { cfg.Log.Format = f.logFormat })
	set("log-file", func() { cfg.Log.File = f.logFile })

	for _, spec := range f.hosts {
		h, err := config.ParseHostSpec(spec)
		if err != nil {
			return fmt.Errorf("--host: %w", err)
		}
		cfg.Hosts = append(cfg.Hosts, h)
	}
	for _, spec := range f.services {
		s, err := config.ParseServiceSpec(spec)
		if err != nil {
			return fmt.Errorf("--service: %w", err)
		}
		cfg.Services = append(cfg.Services, s)
	}
	return nil
}

// newLogger builds the process logger. The returned func closes the log
// file, if any.
func newLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, func(), error) {
	lc := cfg.Logging()
	lc.Output = stderr
	if cfg.Log.File == "" {
		return logging.New(lc), func() {}, nil
	}
	file, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	lc.Tee = file
	return logging.New(lc), func() { _ = file.Close() }, nil
}

// newServer builds a stopped server from cfg.
func newServer(cfg *config.Config, log *slog.Logger) (*server.Server, error) {
	cmp, err := cfg.Comparator()
	if err != nil {
		return nil, err
	}
	srv := server.New(
		server.WithLogger(log),
		server.WithAddress(cfg.Address),
		server.WithComparator(cmp),
		server.WithTraceDirectory(cfg.TraceDir),
	)

	if cfg.UseTLS() {
		if err := installCertificate(srv, cfg.TLS); err != nil {
			return nil, err
		}
	}

	for _, h := range cfg.Hosts {
		srv.Resolver().AddHost(h.Name, h.Address)
	}
	for _, s := range cfg.Services {
		srv.Resolver().AddService(s.Service, s.Protocol, s.Domain, s.Address, s.Port)
	}

	if n := srv.Resolver().Hosts(); n > 0 || len(cfg.Services) > 0 {
		log.Info("fake resolver records", "hosts", n, "services", len(cfg.Services))
	}

	srv.SetEnableOnline(cfg.Online || cfg.Record != "")
	srv.SetEnableLogging(cfg.Logging || cfg.Record != "")
	return srv, nil
}

// installCertificate loads the configured pair, or generates one when no
// files are given.
func installCertificate(srv *server.Server, tc config.TLSConfig) error {
	if tc.CertFile == "" {
		if _, err := srv.SetDefaultTLSCertificate(); err != nil {
			return fmt.Errorf("generate certificate: %w", err)
		}
		return nil
	}
	cert, err := mocktls.Load(tc.CertFile, tc.KeyFile)
	if err != nil {
		return err
	}
	srv.SetTLSCertificate(cert)
	return nil
}

// serve runs the server until ctx is done. ready is called once the server
// is listening and its trace is in place.
func serve(ctx context.Context, cfg *config.Config, log *slog.Logger, ready func(*server.Server)) error {
	srv, err := newServer(cfg, log)
	if err != nil {
		return err
	}

	switch {
	case cfg.Trace != "":
		if err := srv.LoadTrace(cfg.Trace); err != nil {
			return err
		}
	case cfg.Record != "":
		if err := srv.StartTrace(cfg.Record); err != nil {
			return err
		}
	}

	if err := srv.Run(); err != nil {
		return err
	}
	if ready != nil {
		ready(srv)
	}

	<-ctx.Done()
	log.Info("shutting down")

	endErr := srv.EndTrace()
	stopErr := srv.Stop()
	return errors.Join(endErr, stopErr)
}
