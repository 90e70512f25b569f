package kafka

import "fmt"

const (
	SASLMechanismPlain       = "PLAIN"
	SASLMechanismScramSHA256 = "SCRAM-SHA-256"
	SASLMechanismScramSHA512 = "SCRAM-SHA-512"
	SASLMechanismGSSAPI      = "GSSAPI"
	SASLMechanismOAuthBearer = "OAUTHBEARER"
)

// SASLConfig for Kafka Client. The same settings are translated into franz-go mechanisms or librdkafka
// properties, depending on the configured backend.
type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
	Mechanism string `koanf:"mechanism"`

	// SASL Mechanisms that require more configuration than username & password
	GSSAPI      SASLGSSAPIConfig  `koanf:"gssapi"`
	OAuthBearer OAuthBearerConfig `koanf:"oauth"`
}

func (c *SASLConfig) SetDefaults() {
	c.Enabled = false
	c.Mechanism = SASLMechanismPlain
	c.GSSAPI.SetDefaults()
}

func (c *SASLConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.Mechanism {
	case SASLMechanismPlain, SASLMechanismScramSHA256, SASLMechanismScramSHA512:
		if c.Username == "" {
			return fmt.Errorf("sasl mechanism '%v' requires a username", c.Mechanism)
		}
	case SASLMechanismGSSAPI:
		return c.GSSAPI.Validate()
	case SASLMechanismOAuthBearer:
		return c.OAuthBearer.Validate()
	default:
		return fmt.Errorf("given sasl mechanism '%v' is invalid", c.Mechanism)
	}

	return nil
}

// validateForBackend rejects mechanism settings the given backend can't authenticate with.
func (c *SASLConfig) validateForBackend(backend string) error {
	if !c.Enabled || backend != BackendLibrdkafka {
		return nil
	}
	if c.Mechanism == SASLMechanismGSSAPI && c.GSSAPI.AuthType != GSSAPIAuthTypeKeytab {
		return fmt.Errorf("the %v backend only supports the %v kerberos auth type", backend, GSSAPIAuthTypeKeytab)
	}

	return nil
}
