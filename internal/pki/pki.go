// Package pki generates and persists the self-signed TLS certificate each
// crosskvm daemon presents on its QUIC listener, and computes the SHA-256
// fingerprint used for trust-on-first-use pinning (internal/trust).
//
// Grounded on original_source/crates/cross-control-certgen: a self-signed
// certificate scoped to one hostname plus localhost SANs, fingerprinted as
// "SHA256:aa:bb:..." over the DER-encoded leaf. The prototype generates
// this with rcgen/ring; neither appears anywhere else in the retrieval
// pack, so this is built on crypto/x509 and crypto/ecdsa — the standard
// library's own certificate authority primitives are the natural Go
// counterpart to a purpose-built cert-generation crate, and no pack
// dependency offers a self-signed-cert helper to reach for instead.
package pki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
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

const (
	certFileName = "cert.pem"
	keyFileName  = "key.pem"
	validFor     = 10 * 365 * 24 * time.Hour
)

// Fingerprint formats a SHA-256 digest as "SHA256:aa:bb:cc:...", matching
// the prototype's pinning format (original_source cross-control-certgen).
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	out := make([]byte, 0, len(sum)*3+len("SHA256:"))
	out = append(out, "SHA256:"...)
	for i, b := range sum {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, hexDigit(b>>4), hexDigit(b&0xf))
	}
	return string(out)
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'a' + (n - 10)
}

// LoadOrGenerate loads a persisted certificate/key pair from dir, or
// generates and persists a new self-signed one for hostname if none
// exists. It returns a tls.Certificate ready for use as a QUIC/TLS
// listener credential, and the fingerprint of its leaf certificate.
func LoadOrGenerate(dir, hostname string) (tls.Certificate, string, error) {
	certPath := filepath.Join(dir, certFileName)
	keyPath := filepath.Join(dir, keyFileName)

	if certPEM, err := os.ReadFile(certPath); err == nil {
		keyPEM, err := os.ReadFile(keyPath)
		if err != nil {
			return tls.Certificate{}, "", fmt.Errorf("pki: read %s: %w", keyPath, err)
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return tls.Certificate{}, "", fmt.Errorf("pki: parse persisted keypair: %w", err)
		}
		return cert, Fingerprint(cert.Certificate[0]), nil
	} else if !os.IsNotExist(err) {
		return tls.Certificate{}, "", fmt.Errorf("pki: read %s: %w", certPath, err)
	}

	certPEM, keyPEM, fingerprint, err := generate(hostname)
	if err != nil {
		return tls.Certificate{}, "", err
	}
	if err := persist(dir, certPEM, keyPEM); err != nil {
		return tls.Certificate{}, "", err
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, "", fmt.Errorf("pki: parse freshly generated keypair: %w", err)
	}
	return cert, fingerprint, nil
}

func generate(hostname string) (certPEM, keyPEM []byte, fingerprint string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, "", fmt.Errorf("pki: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, "", fmt.Errorf("pki: generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   hostname,
			Organization: []string{"crosskvm"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{hostname, "localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, "", fmt.Errorf("pki: create certificate: %w", err)
	}

	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, "", fmt.Errorf("pki: marshal key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})
	return certPEM, keyPEM, Fingerprint(der), nil
}

func persist(dir string, certPEM, keyPEM []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("pki: create %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, certFileName), certPEM, 0o644); err != nil {
		return fmt.Errorf("pki: write cert: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, keyFileName), keyPEM, 0o600); err != nil {
		return fmt.Errorf("pki: write key: %w", err)
	}
	return nil
}
