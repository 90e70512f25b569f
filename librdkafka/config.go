package librdkafka

import (
	"fmt"
	"strings"

	ckafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/cloudhut/kconsumer/kafka"
)

// defaultGroupID is used for listing sessions that are not scoped to a consumer group. librdkafka consumers always
// need a group id.
const defaultGroupID = "kconsumer"

// cfgToConfigMap translates the shared Kafka config into a librdkafka config map. The group id is only set if
// non empty.
func cfgToConfigMap(cfg kafka.Config, groupID string) (*ckafka.ConfigMap, error) {
	kafkaCfg := &ckafka.ConfigMap{
		"bootstrap.servers": cfg.ConnectionString(),
		"client.id":         cfg.ClientID,
	}

	if groupID != "" {
		kafkaCfg.SetKey("group.id", groupID)
		kafkaCfg.SetKey("enable.auto.commit", false)
	}

	if cfg.RackID != "" {
		kafkaCfg.SetKey("client.rack", cfg.RackID)
	}

	if cfg.ClientAPIVersion != "" {
		// Brokers are asked for their supported versions, the pinned version is used if that request fails
		kafkaCfg.SetKey("api.version.request", true)
		kafkaCfg.SetKey("broker.version.fallback", cfg.ClientAPIVersion)
	}

	kafkaCfg.SetKey("security.protocol", securityProtocol(cfg))

	if cfg.TLS.Enabled {
		setTLSKeys(kafkaCfg, cfg.TLS)
	}

	if cfg.SASL.Enabled {
		if err := setSASLKeys(kafkaCfg, cfg.SASL); err != nil {
			return nil, err
		}
	}

	return kafkaCfg, nil
}

func securityProtocol(cfg kafka.Config) string {
	switch {
	case cfg.TLS.Enabled && cfg.SASL.Enabled:
		return "SASL_SSL"
	case cfg.TLS.Enabled:
		return "SSL"
	case cfg.SASL.Enabled:
		return "SASL_PLAINTEXT"
	}
	return "PLAINTEXT"
}

func setTLSKeys(kafkaCfg *ckafka.ConfigMap, cfg kafka.TLSConfig) {
	setEither(kafkaCfg, "ssl.ca.location", cfg.CaFilepath, "ssl.ca.pem", cfg.Ca)
	setEither(kafkaCfg, "ssl.certificate.location", cfg.CertFilepath, "ssl.certificate.pem", cfg.Cert)
	setEither(kafkaCfg, "ssl.key.location", cfg.KeyFilepath, "ssl.key.pem", cfg.Key)

	if cfg.Passphrase != "" {
		kafkaCfg.SetKey("ssl.key.password", cfg.Passphrase)
	}
	if cfg.InsecureSkipTLSVerify {
		kafkaCfg.SetKey("enable.ssl.certificate.verification", false)
	}
}

// setEither sets the file based key if a path is given and the inlined key otherwise.
func setEither(kafkaCfg *ckafka.ConfigMap, pathKey string, path string, pemKey string, pem string) {
	switch {
	case path != "":
		kafkaCfg.SetKey(pathKey, path)
	case pem != "":
		kafkaCfg.SetKey(pemKey, pem)
	}
}

func setSASLKeys(kafkaCfg *ckafka.ConfigMap, cfg kafka.SASLConfig) error {
	kafkaCfg.SetKey("sasl.mechanism", cfg.Mechanism)

	switch cfg.Mechanism {
	case kafka.SASLMechanismPlain, kafka.SASLMechanismScramSHA256, kafka.SASLMechanismScramSHA512:
		kafkaCfg.SetKey("sasl.username", cfg.Username)
		kafkaCfg.SetKey("sasl.password", cfg.Password)
	case kafka.SASLMechanismGSSAPI:
		if cfg.GSSAPI.AuthType != kafka.GSSAPIAuthTypeKeytab {
			return fmt.Errorf("the librdkafka backend only supports the %v kerberos auth type", kafka.GSSAPIAuthTypeKeytab)
		}
		kafkaCfg.SetKey("sasl.kerberos.service.name", cfg.GSSAPI.ServiceName)
		kafkaCfg.SetKey("sasl.kerberos.keytab", cfg.GSSAPI.KeyTabPath)
		kafkaCfg.SetKey("sasl.kerberos.principal", principal(cfg.GSSAPI))
	case kafka.SASLMechanismOAuthBearer:
		kafkaCfg.SetKey("sasl.oauthbearer.method", "oidc")
		kafkaCfg.SetKey("sasl.oauthbearer.client.id", cfg.OAuthBearer.ClientID)
		kafkaCfg.SetKey("sasl.oauthbearer.client.secret", cfg.OAuthBearer.ClientSecret)
		kafkaCfg.SetKey("sasl.oauthbearer.token.endpoint.url", cfg.OAuthBearer.TokenEndpoint)
		if cfg.OAuthBearer.Scope != "" {
			kafkaCfg.SetKey("sasl.oauthbearer.scope", cfg.OAuthBearer.Scope)
		}
	default:
		return fmt.Errorf("given sasl mechanism '%v' is invalid", cfg.Mechanism)
	}

	return nil
}

func principal(cfg kafka.SASLGSSAPIConfig) string {
	if cfg.Realm == "" || strings.Contains(cfg.Username, "@") {
		return cfg.Username
	}
	return cfg.Username + "@" + cfg.Realm
}
