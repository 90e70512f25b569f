package kafka

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewKgoConfig(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	cfg.Brokers = []string{"localhost:9092"}

	opts, err := NewKgoConfig(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	base := len(opts)

	cfg.ClientAPIVersion = "2.3.0"
	cfg.RackID = "eu-west-1a"
	cfg.SASL.Enabled = true
	cfg.SASL.Mechanism = SASLMechanismScramSHA256
	opts, err = NewKgoConfig(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	assert.Len(t, opts, base+3)

	cfg.ClientAPIVersion = "0.9.0"
	_, err = NewKgoConfig(cfg, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestNewTLSConfig_MissingFile(t *testing.T) {
	_, err := newTLSConfig(TLSConfig{Enabled: true, CaFilepath: filepath.Join(t.TempDir(), "missing.pem")}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewTLSConfig_WithoutCertificates(t *testing.T) {
	tlsCfg, err := newTLSConfig(TLSConfig{Enabled: true, InsecureSkipTLSVerify: true}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, tlsCfg.InsecureSkipVerify)
	assert.Nil(t, tlsCfg.RootCAs)
	assert.Empty(t, tlsCfg.Certificates)
}

func TestReadPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))

	content, err := readPEM(path, "inlined")
	require.NoError(t, err)
	assert.Equal(t, "from-file", string(content))

	content, err = readPEM("", "inlined")
	require.NoError(t, err)
	assert.Equal(t, "inlined", string(content))
}
