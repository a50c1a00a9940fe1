// Package config loads the sigcore YAML configuration.
package config

import (
	"crypto/ecdh"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/remiblancher/sigcore/internal/api/server"
	"github.com/remiblancher/sigcore/internal/api/service"
	hsm "github.com/remiblancher/sigcore/internal/crypto"
	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

// EnvConfig names the environment variable holding the config file path.
const EnvConfig = "SIGCORE_CONFIG"

// Config is the top-level configuration file.
type Config struct {
	Server server.Config `yaml:"server"`
	Audit  AuditConfig   `yaml:"audit"`

	// Limits bounds modulus and key sizes accepted by the REST API.
	Limits service.Limits `yaml:"limits"`

	// Defaults maps a key family ("RSA", "EC", ...) to the signature
	// algorithm used when none is given.
	Defaults map[string]string `yaml:"defaults"`

	// HSM is optional; when set the sign command may use a PKCS#11 key.
	HSM *hsm.HSMConfig `yaml:"hsm,omitempty"`

	// DHPOP is the verifier's static key pair for X25519/X448 signatures.
	DHPOP *DHPOPConfig `yaml:"dhpop,omitempty"`
}

// AuditConfig configures the audit log.
type AuditConfig struct {
	// Path of the JSONL audit log; empty disables auditing unless
	// PKI_AUDIT_LOG is set.
	Path string `yaml:"path"`
}

// DHPOPConfig points at the verifier's static private key and certificate.
type DHPOPConfig struct {
	Key         string `yaml:"key"`
	Certificate string `yaml:"certificate"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server:   *server.DefaultConfig(),
		Limits:   service.DefaultLimits(),
		Defaults: map[string]string{},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv loads path, or $SIGCORE_CONFIG when path is empty. With
// neither set it returns Default().
func LoadFromEnv(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must not be negative")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server.tls_cert and server.tls_key must be set together")
	}

	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}

	for familyName, algName := range c.Defaults {
		family, err := pkicrypto.ParseKeyFamily(familyName)
		if err != nil {
			return fmt.Errorf("defaults: %w", err)
		}
		alg, err := pkicrypto.ParseSignAlgo(algName)
		if err != nil {
			return fmt.Errorf("defaults.%s: %w", familyName, err)
		}
		if !supports(alg, family) {
			return fmt.Errorf("defaults.%s: %s cannot be used with %s keys", familyName, alg, family)
		}
	}

	if c.HSM != nil {
		if err := c.HSM.Validate(); err != nil {
			return fmt.Errorf("hsm: %w", err)
		}
	}
	if c.DHPOP != nil && (c.DHPOP.Key == "" || c.DHPOP.Certificate == "") {
		return fmt.Errorf("dhpop.key and dhpop.certificate are both required")
	}
	return nil
}

func supports(alg pkicrypto.SignAlgo, family pkicrypto.KeyFamily) bool {
	for _, f := range alg.Family().KeyFamilies() {
		if f == family {
			return true
		}
	}
	return false
}

// SignAlgo returns the configured default for family, falling back to the
// built-in default.
func (c *Config) SignAlgo(family pkicrypto.KeyFamily) (pkicrypto.SignAlgo, error) {
	for familyName, algName := range c.Defaults {
		if f, err := pkicrypto.ParseKeyFamily(familyName); err == nil && f == family {
			return pkicrypto.ParseSignAlgo(algName)
		}
	}
	return pkicrypto.DefaultSignAlgo(family)
}

// LoadDHPOP loads the configured static key pair, or returns nil when none
// is configured.
func (c *Config) LoadDHPOP() (*pkicrypto.StaticKeyCertPair, error) {
	if c.DHPOP == nil {
		return nil, nil
	}

	keyPEM, err := os.ReadFile(c.DHPOP.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read DHPOP key: %w", err)
	}
	priv, err := pkicrypto.ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DHPOP key: %w", err)
	}
	switch priv.(type) {
	case *ecdh.PrivateKey, *pkicrypto.X448PrivateKey:
	default:
		return nil, fmt.Errorf("DHPOP key must be an X25519 or X448 key, got %T", priv)
	}

	certPEM, err := os.ReadFile(c.DHPOP.Certificate)
	if err != nil {
		return nil, fmt.Errorf("failed to read DHPOP certificate: %w", err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("DHPOP certificate: no CERTIFICATE block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DHPOP certificate: %w", err)
	}

	return &pkicrypto.StaticKeyCertPair{PrivateKey: priv, Certificate: cert}, nil
}
