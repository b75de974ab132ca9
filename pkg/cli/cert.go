package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	mocktls "github.com/getmockd/tracemock/pkg/tls"
)

func newCertCommand() *cobra.Command {
	def := mocktls.DefaultConfig()
	var (
		certFile string
		keyFile  string
		hosts    []string
		validFor time.Duration
	)

	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Generate a self-signed certificate for serve --tls-cert",
		Long: `Generate a self-signed ECDSA certificate and key. Clients trust it by adding
the certificate file to their root pool.`,
		Example: `  tracemock cert --host api.example.com --host 127.0.0.1
  tracemock serve --tls-cert cert.pem --tls-key key.pem`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := mocktls.DefaultConfig()
			cfg.Hosts = hosts
			cfg.ValidFor = validFor
			if len(hosts) > 0 {
				cfg.CommonName = hosts[0]
			}

			cert, err := mocktls.Generate(cfg)
			if err != nil {
				return fmt.Errorf("generate certificate: %w", err)
			}
			if err := mocktls.Save(cert, certFile, keyFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "certificate: %s\nprivate key: %s\nexpires:     %s\n",
				certFile, keyFile, cert.Leaf.NotAfter.Format(time.RFC3339))
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&certFile, "cert-file", "cert.pem", "Where to write the PEM certificate")
	fs.StringVar(&keyFile, "key-file", "key.pem", "Where to write the PEM private key")
	fs.StringSliceVar(&hosts, "host", def.Hosts, "DNS names and IPs the certificate covers")
	fs.DurationVar(&validFor, "valid-for", def.ValidFor, "Validity period")
	return cmd
}
