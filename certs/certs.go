// Package certs generates a throwaway CA, server certificate and role-bearing
// client certificates for tests and local development.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const validity = 24 * time.Hour

// Paths are the files written by Generate.
type Paths struct {
	CACert string

	ServerCert string
	ServerKey  string

	// Client certificates, keyed by role (the certificate's OU).
	ClientCerts map[string]string
	ClientKeys  map[string]string
}

type issuer struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

// Generate writes a CA, a server certificate valid for localhost and
// 127.0.0.1, and one client certificate per role into dir.
func Generate(dir string, roles ...string) (*Paths, error) {
	ca, err := newCA()
	if err != nil {
		return nil, err
	}

	paths := &Paths{
		CACert:      filepath.Join(dir, "ca.crt"),
		ServerCert:  filepath.Join(dir, "server.crt"),
		ServerKey:   filepath.Join(dir, "server.key"),
		ClientCerts: make(map[string]string, len(roles)),
		ClientKeys:  make(map[string]string, len(roles)),
	}

	if err := writePEM(paths.CACert, "CERTIFICATE", ca.cert.Raw); err != nil {
		return nil, err
	}

	server := &x509.Certificate{
		Subject:     pkix.Name{CommonName: "localhost"},
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	if err := ca.issue(server, paths.ServerCert, paths.ServerKey); err != nil {
		return nil, fmt.Errorf("issue server certificate: %w", err)
	}

	for _, role := range roles {
		client := &x509.Certificate{
			Subject: pkix.Name{
				CommonName:         "client-" + role,
				OrganizationalUnit: []string{role},
			},
			ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		}

		certPath := filepath.Join(dir, "client-"+role+".crt")
		keyPath := filepath.Join(dir, "client-"+role+".key")

		if err := ca.issue(client, certPath, keyPath); err != nil {
			return nil, fmt.Errorf("issue %s client certificate: %w", role, err)
		}

		paths.ClientCerts[role] = certPath
		paths.ClientKeys[role] = keyPath
	}

	return paths, nil
}

func newCA() (*issuer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate CA key: %w", err)
	}

	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "bgjobs test CA"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create CA certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse CA certificate: %w", err)
	}

	return &issuer{cert: cert, key: key}, nil
}

func (i *issuer) issue(tmpl *x509.Certificate, certPath, keyPath string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	serial, err := newSerial()
	if err != nil {
		return err
	}

	tmpl.SerialNumber = serial
	tmpl.NotBefore = time.Now().Add(-time.Minute)
	tmpl.NotAfter = time.Now().Add(validity)
	tmpl.KeyUsage = x509.KeyUsageDigitalSignature

	der, err := x509.CreateCertificate(rand.Reader, tmpl, i.cert, &key.PublicKey, i.key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	if err := writePEM(certPath, "CERTIFICATE", der); err != nil {
		return err
	}

	return writePEM(keyPath, "PRIVATE KEY", keyDER)
}

func newSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	return serial, nil
}

func writePEM(path, blockType string, der []byte) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}

	return nil
}
