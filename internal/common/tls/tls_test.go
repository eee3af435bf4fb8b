// internal/common/tls/tls_test.go
package tls

import (
	"crypto/tls"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledConfigReturnsNil(t *testing.T) {
	srv, err := ServerTLSConfig(Config{})
	require.NoError(t, err)
	assert.Nil(t, srv)

	cli, err := ClientTLSConfig(Config{}, "nats")
	require.NoError(t, err)
	assert.Nil(t, cli)
}

func TestServerAndClientConfigFromSelfSigned(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	require.NoError(t, GenerateSelfSignedCert("alerter", certFile, keyFile, 1))

	srv, err := ServerTLSConfig(Config{
		Enabled:    true,
		CertFile:   certFile,
		KeyFile:    keyFile,
		CAFile:     certFile,
		MinVersion: "1.3",
		ClientAuth: "require_and_verify",
	})
	require.NoError(t, err)
	assert.Len(t, srv.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS13), srv.MinVersion)
	assert.Equal(t, tls.RequireAndVerifyClientCert, srv.ClientAuth)
	assert.NotNil(t, srv.ClientCAs)

	cli, err := ClientTLSConfig(Config{Enabled: true, CAFile: certFile}, "alerter")
	require.NoError(t, err)
	assert.Equal(t, "alerter", cli.ServerName)
	assert.NotNil(t, cli.RootCAs)
	assert.Empty(t, cli.Certificates)
}

func TestServerConfigRequiresKeyPair(t *testing.T) {
	_, err := ServerTLSConfig(Config{Enabled: true})
	assert.Error(t, err)
}

func TestClientConfigRequiresCA(t *testing.T) {
	_, err := ClientTLSConfig(Config{Enabled: true}, "nats")
	assert.Error(t, err)
}
