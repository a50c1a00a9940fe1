package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/remiblancher/sigcore/internal/api/router"
	"github.com/remiblancher/sigcore/internal/api/server"
	"github.com/remiblancher/sigcore/internal/api/service"
)

// Serve command flags
var (
	servePort     int
	serveHost     string
	serveTLSCert  string
	serveTLSKey   string
	serveMaxConns int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the REST API server for encoding, conversion and verification.

Flags take precedence over environment variables, which take precedence
over the server section of the configuration file.

Environment variables:
  SIGCORE_PORT      Listen port
  SIGCORE_TLS_CERT  TLS certificate file
  SIGCORE_TLS_KEY   TLS private key file

Examples:
  # Start on the default port
  sigcore serve

  # Start with TLS
  sigcore serve --port 8443 --tls-cert server.crt --tls-key server.key

  # Start with a configuration file (defaults, DHPOP key, limits)
  sigcore serve --config sigcore.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default: 8080)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: all interfaces)")
	serveCmd.Flags().StringVar(&serveTLSCert, "tls-cert", "", "TLS certificate file")
	serveCmd.Flags().StringVar(&serveTLSKey, "tls-key", "", "TLS private key file")
	serveCmd.Flags().IntVar(&serveMaxConns, "max-connections", 0, "Maximum concurrent connections (0: config value)")
	serveCmd.MarkFlagsRequiredTogether("tls-cert", "tls-key")
}

func runServe(cmd *cobra.Command, args []string) error {
	srvCfg, err := serverConfig()
	if err != nil {
		return err
	}

	aux, err := cfg.LoadDHPOP()
	if err != nil {
		return err
	}

	srv := server.New(srvCfg, &router.Config{
		Version:    version,
		Dispatcher: dispatcher,
		Options: []service.Option{
			service.WithStaticKeyPair(aux),
			service.WithDefaults(cfg.SignAlgo),
			service.WithLimits(cfg.Limits),
		},
	})
	return srv.Start()
}

// serverConfig merges flags, environment and the configuration file.
func serverConfig() (*server.Config, error) {
	srvCfg := cfg.Server
	applyServeEnvVars()

	if servePort != 0 {
		srvCfg.Port = servePort
	}
	if serveHost != "" {
		srvCfg.Host = serveHost
	}
	if serveTLSCert != "" {
		srvCfg.TLSCert = serveTLSCert
		srvCfg.TLSKey = serveTLSKey
	}
	if serveMaxConns > 0 {
		srvCfg.MaxConnections = serveMaxConns
	}

	if srvCfg.Port < 0 || srvCfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", srvCfg.Port)
	}
	if (srvCfg.TLSCert == "") != (srvCfg.TLSKey == "") {
		return nil, fmt.Errorf("TLS certificate and key must be set together")
	}
	return &srvCfg, nil
}

func applyServeEnvVars() {
	if servePort == 0 {
		if v := os.Getenv("SIGCORE_PORT"); v != "" {
			if p, err := strconv.Atoi(v); err == nil {
				servePort = p
			}
		}
	}
	if serveTLSCert == "" {
		serveTLSCert = os.Getenv("SIGCORE_TLS_CERT")
		serveTLSKey = os.Getenv("SIGCORE_TLS_KEY")
	}
}
