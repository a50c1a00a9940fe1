// Command sigcore encodes, converts, signs and verifies digital signatures.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/remiblancher/sigcore/internal/config"
	"github.com/remiblancher/sigcore/internal/crypto"
	"github.com/remiblancher/sigcore/pkg/audit"
	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

// Build-time variables (injected by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	auditLogPath string
	configPath   string
)

// cfg is loaded before every command runs.
var cfg = config.Default()

// dispatcher is shared by all verifying commands.
var dispatcher = pkicrypto.NewDispatcher(nil)

func main() {
	// Setup signal handler for clean PKCS#11 shutdown
	setupSignalHandler()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		crypto.CloseAllPools()
		os.Exit(1)
	}

	crypto.CloseAllPools()
}

// setupSignalHandler releases PKCS#11 sessions on SIGINT/SIGTERM.
func setupSignalHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		crypto.CloseAllPools()
		_ = audit.Close()
		os.Exit(0)
	}()
}

var rootCmd = &cobra.Command{
	Use:   "sigcore",
	Short: "Signature encoding and verification toolkit",
	Long: `sigcore builds EMSA-PKCS1-v1_5 and EMSA-PSS blocks, converts DSA and ECDSA
signatures between DER and plain r||s form, and verifies signatures for
RSA, DSA, ECDSA, Ed25519, Ed448, X25519 and X448 keys.

Examples:
  # List supported digests
  sigcore hash list

  # Encode a SHA-256 digest for a 2048-bit RSA key
  sigcore encode pkcs1 --hash SHA256 --in message.txt --modulus-bits 2048

  # Convert an ECDSA DER signature to plain form
  sigcore convert to-plain --in sig.der --key-bits 256 --out sig.plain

  # Verify a signature
  sigcore verify --pub key.pem --algorithm SHA256withRSAandMGF1 --in message.txt --signature sig.bin

  # Start the REST API
  sigcore serve --port 8080`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadFromEnv(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		// --audit-log, then PKI_AUDIT_LOG, then the config file
		path := auditLogPath
		if path == "" {
			path = os.Getenv(audit.EnvAuditLog)
		}
		if path == "" {
			path = cfg.Audit.Path
		}
		if err := audit.InitFile(path); err != nil {
			return fmt.Errorf("failed to initialize audit log: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return audit.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&auditLogPath, "audit-log", "",
		"Path to audit log file (or set PKI_AUDIT_LOG env var)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to YAML configuration file (or set SIGCORE_CONFIG env var)")

	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(coseCmd)
	rootCmd.AddCommand(hsmCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(serveCmd)
}
