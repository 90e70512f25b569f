package kafka

import "fmt"

// TLSConfig to connect to Kafka via TLS. Certificates and keys can either be given as file paths or inlined as
// PEM, both backends accept either form.
type TLSConfig struct {
	Enabled               bool   `koanf:"enabled"`
	CaFilepath            string `koanf:"caFilepath"`
	CertFilepath          string `koanf:"certFilepath"`
	KeyFilepath           string `koanf:"keyFilepath"`
	Ca                    string `koanf:"ca"`
	Cert                  string `koanf:"cert"`
	Key                   string `koanf:"key"`
	Passphrase            string `koanf:"passphrase"`
	InsecureSkipTLSVerify bool   `koanf:"insecureSkipTlsVerify"`
}

func (c *TLSConfig) SetDefaults() {
	c.Enabled = false
}

func (c *TLSConfig) Validate() error {
	for _, pair := range []struct{ pathKey, path, pemKey, pem string }{
		{"caFilepath", c.CaFilepath, "ca", c.Ca},
		{"certFilepath", c.CertFilepath, "cert", c.Cert},
		{"keyFilepath", c.KeyFilepath, "key", c.Key},
	} {
		if pair.path != "" && pair.pem != "" {
			return fmt.Errorf("config keys '%v' and '%v' are both set. only one can be used at the same time",
				pair.pathKey, pair.pemKey)
		}
	}

	hasCert := c.CertFilepath != "" || c.Cert != ""
	hasKey := c.KeyFilepath != "" || c.Key != ""
	if hasCert != hasKey {
		return fmt.Errorf("client certificate and key must be configured together for mutual TLS")
	}
	if c.Passphrase != "" && !hasKey {
		return fmt.Errorf("a key passphrase is set but no key is configured")
	}

	return nil
}

// HasClientCertificate returns true if a client certificate for mutual TLS is configured.
func (c *TLSConfig) HasClientCertificate() bool {
	return c.CertFilepath != "" || c.Cert != ""
}
