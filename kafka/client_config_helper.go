package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/kerberos"
	"github.com/twmb/franz-go/pkg/sasl/oauth"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"
	"go.uber.org/zap"

	krbconfig "github.com/jcmturner/gokrb5/v8/config"
)

// NewKgoConfig creates a new Config for the Kafka Client as exposed by the franz-go library.
// If TLS certificates can't be read an error will be returned.
// logger is used for the client logs and to print warnings about TLS.
func NewKgoConfig(cfg Config, logger *zap.Logger, hooks kgo.Hook) ([]kgo.Opt, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequestTimeoutOverhead(cfg.RequestTimeout),
		// Offsets are collected from fresh metadata each cycle, the client must not serve partitions
		// from a metadata snapshot that is older than a second.
		kgo.MetadataMinAge(time.Second),
	}

	// Create Logger
	kgoLogger := KgoZapLogger{
		logger: logger.Sugar(),
	}
	opts = append(opts, kgo.WithLogger(kgoLogger))

	if hooks != nil {
		opts = append(opts, kgo.WithHooks(hooks))
	}

	// Pin protocol versions if configured
	if cfg.ClientAPIVersion != "" {
		versions, err := maxVersionsFor(cfg.ClientAPIVersion)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.MaxVersions(versions))
	}

	// Add Rack Awareness if configured
	if cfg.RackID != "" {
		opts = append(opts, kgo.Rack(cfg.RackID))
	}

	// Configure SASL
	if cfg.SASL.Enabled {
		mechanism, err := newSASLMechanism(cfg.SASL, cfg.RequestTimeout)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.SASL(mechanism))
	}

	// Configure TLS
	if cfg.TLS.Enabled {
		tlsCfg, err := newTLSConfig(cfg.TLS, logger)
		if err != nil {
			return nil, err
		}
		tlsDialer := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: 10 * time.Second},
			Config:    tlsCfg,
		}
		opts = append(opts, kgo.Dialer(tlsDialer.DialContext))
	}

	return opts, nil
}

// newTLSConfig loads the CA and the optional client certificate either from the given file paths or from the
// inlined PEM contents.
func newTLSConfig(cfg TLSConfig, logger *zap.Logger) (*tls.Config, error) {
	var caCertPool *x509.CertPool
	ca, err := readPEM(cfg.CaFilepath, cfg.Ca)
	if err != nil {
		return nil, fmt.Errorf("failed to load ca cert: %w", err)
	}
	if len(ca) > 0 {
		caCertPool = x509.NewCertPool()
		isSuccessful := caCertPool.AppendCertsFromPEM(ca)
		if !isSuccessful {
			logger.Warn("failed to append ca file to cert pool, is this a valid PEM format?")
		}
	}

	// If configured load TLS cert & key - Mutual TLS
	cert, err := readPEM(cfg.CertFilepath, cfg.Cert)
	if err != nil {
		return nil, fmt.Errorf("failed to read TLS certificate: %w", err)
	}
	privateKey, err := readPEM(cfg.KeyFilepath, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read TLS key: %w", err)
	}

	var certificates []tls.Certificate
	if cfg.HasClientCertificate() {
		if cfg.Passphrase != "" {
			privateKey, err = decryptPrivateKey(privateKey, cfg.Passphrase, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt private key: %w", err)
			}
		}

		tlsCert, err := tls.X509KeyPair(cert, privateKey)
		if err != nil {
			return nil, fmt.Errorf("cannot parse pem: %w", err)
		}
		certificates = []tls.Certificate{tlsCert}
	}

	return &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipTLSVerify,
		Certificates:       certificates,
		RootCAs:            caCertPool,
	}, nil
}

// readPEM returns the file contents if a path is given, the inlined contents otherwise.
func readPEM(path string, inlined string) ([]byte, error) {
	if path == "" {
		return []byte(inlined), nil
	}
	return os.ReadFile(path)
}

func newSASLMechanism(cfg SASLConfig, requestTimeout time.Duration) (sasl.Mechanism, error) {
	switch cfg.Mechanism {
	case SASLMechanismPlain:
		return plain.Auth{
			User: cfg.Username,
			Pass: cfg.Password,
		}.AsMechanism(), nil
	case SASLMechanismScramSHA256:
		return scram.Auth{User: cfg.Username, Pass: cfg.Password}.AsSha256Mechanism(), nil
	case SASLMechanismScramSHA512:
		return scram.Auth{User: cfg.Username, Pass: cfg.Password}.AsSha512Mechanism(), nil
	case SASLMechanismGSSAPI:
		krbClient, err := newKerberosClient(cfg.GSSAPI)
		if err != nil {
			return nil, err
		}
		return kerberos.Auth{
			Client:           krbClient,
			Service:          cfg.GSSAPI.ServiceName,
			PersistAfterAuth: true,
		}.AsMechanism(), nil
	case SASLMechanismOAuthBearer:
		tokens := newTokenSource(cfg.OAuthBearer, requestTimeout)
		return oauth.Oauth(func(ctx context.Context) (oauth.Auth, error) {
			token, err := tokens.Token(ctx)
			return oauth.Auth{
				Zid:   cfg.OAuthBearer.ClientID,
				Token: token,
			}, err
		}), nil
	}

	return nil, fmt.Errorf("given sasl mechanism '%v' is invalid", cfg.Mechanism)
}

func newKerberosClient(cfg SASLGSSAPIConfig) (*client.Client, error) {
	kerbCfg, err := krbconfig.Load(cfg.KerberosConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create kerberos config from specified config filepath: %w", err)
	}

	switch cfg.AuthType {
	case GSSAPIAuthTypeUser:
		return client.NewWithPassword(
			cfg.Username,
			cfg.Realm,
			cfg.Password,
			kerbCfg,
			client.DisablePAFXFAST(!cfg.EnableFast)), nil
	case GSSAPIAuthTypeKeytab:
		ktb, err := keytab.Load(cfg.KeyTabPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load keytab: %w", err)
		}
		return client.NewWithKeytab(
			cfg.Username,
			cfg.Realm,
			ktb,
			kerbCfg,
			client.DisablePAFXFAST(!cfg.EnableFast)), nil
	}

	return nil, fmt.Errorf("kafka.sasl.gssapi.authType must be one of %v or %v", GSSAPIAuthTypeUser, GSSAPIAuthTypeKeytab)
}

// decryptPrivateKey attempts to decrypt an encrypted PEM-encoded private key.
// It supports both modern PKCS#8 encrypted keys and legacy PEM encryption (with deprecation warning).
// If the key is not encrypted, it returns the key as-is.
func decryptPrivateKey(keyPEM []byte, passphrase string, logger *zap.Logger) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block containing private key")
	}

	// Check if it's an encrypted PKCS#8 key (modern, secure)
	if block.Type == "ENCRYPTED PRIVATE KEY" {
		decrypted, err := x509.DecryptPEMBlock(block, []byte(passphrase)) //nolint:staticcheck // No stdlib alternative for PKCS#8 password decryption
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt PKCS#8 private key: %w", err)
		}
		// Re-encode as unencrypted PKCS#8
		return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: decrypted}), nil
	}

	// Check if it's a legacy encrypted PEM block (insecure, deprecated)
	if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // Supporting legacy keys for backward compatibility
		logger.Warn("Using legacy PEM encryption for private key. This encryption method is insecure and deprecated. " +
			"Please migrate to PKCS#8 encrypted keys. " +
			"You can convert your key using: openssl pkcs8 -topk8 -v2 aes256 -in old_key.pem -out new_key.pem")

		// Decrypt using legacy method (insecure but needed for backward compatibility)
		decrypted, err := x509.DecryptPEMBlock(block, []byte(passphrase)) //nolint:staticcheck // Supporting legacy keys
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt legacy PEM private key: %w", err)
		}
		// Re-encode as unencrypted PEM
		return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: decrypted}), nil
	}

	// Key is not encrypted, return as-is
	return keyPEM, nil
}
