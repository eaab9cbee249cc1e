package tlsconfig_test

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/nixpig/bgjobs/certs"
	"github.com/nixpig/bgjobs/internal/tlsconfig"
)

func TestSetupTLS(t *testing.T) {
	t.Parallel()

	paths, err := certs.Generate(t.TempDir(), "operator")
	if err != nil {
		t.Fatalf("generate certs: %v", err)
	}

	t.Run("Test server TLS config", func(t *testing.T) {
		t.Parallel()

		tlsConfig, err := tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   paths.ServerCert,
			KeyPath:    paths.ServerKey,
			CACertPath: paths.CACert,
			Server:     true,
		})
		if err != nil {
			t.Fatalf("expected TLS setup not to return error: got '%v'", err)
		}

		if tlsConfig.MinVersion != tls.VersionTLS13 {
			t.Errorf(
				"expected min TLS version: got '%v', want '%v'",
				tlsConfig.MinVersion,
				tls.VersionTLS13,
			)
		}

		if tlsConfig.ClientAuth != tls.RequireAndVerifyClientCert {
			t.Errorf(
				"expected client auth: got '%v', want '%v'",
				tlsConfig.ClientAuth,
				tls.RequireAndVerifyClientCert,
			)
		}

		if tlsConfig.ClientCAs == nil {
			t.Errorf("expected client CAs to be set")
		}

		if tlsConfig.InsecureSkipVerify {
			t.Errorf("expected insecure skip verify to be false")
		}
	})

	scenarios := map[string]struct {
		serverName string
		want       string
	}{
		"Test client TLS config with host":      {"localhost", "localhost"},
		"Test client TLS config with host:port": {"127.0.0.1:8443", "127.0.0.1"},
	}

	for scenario, data := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			tlsConfig, err := tlsconfig.SetupTLS(&tlsconfig.Config{
				CertPath:   paths.ClientCerts["operator"],
				KeyPath:    paths.ClientKeys["operator"],
				CACertPath: paths.CACert,
				ServerName: data.serverName,
			})
			if err != nil {
				t.Fatalf("expected TLS setup not to return error: got '%v'", err)
			}

			if tlsConfig.ServerName != data.want {
				t.Errorf(
					"expected server name: got '%s', want '%s'",
					tlsConfig.ServerName,
					data.want,
				)
			}

			if tlsConfig.RootCAs == nil {
				t.Errorf("expected root CAs to be set")
			}
		})
	}

	t.Run("Test missing key pair", func(t *testing.T) {
		t.Parallel()

		_, err := tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   filepath.Join(t.TempDir(), "missing.crt"),
			KeyPath:    paths.ServerKey,
			CACertPath: paths.CACert,
		})
		if err == nil {
			t.Errorf("expected TLS setup to return error")
		}
	})

	t.Run("Test invalid CA certificate", func(t *testing.T) {
		t.Parallel()

		badCA := filepath.Join(t.TempDir(), "ca.crt")
		if err := os.WriteFile(badCA, []byte("not a certificate"), 0o600); err != nil {
			t.Fatalf("write CA: %v", err)
		}

		_, err := tlsconfig.SetupTLS(&tlsconfig.Config{
			CertPath:   paths.ServerCert,
			KeyPath:    paths.ServerKey,
			CACertPath: badCA,
			Server:     true,
		})
		if err == nil {
			t.Errorf("expected TLS setup to return error")
		}
	})
}
