// Package certs keeps a self-signed TLS certificate for the gate API, so
// tablets on the yard network can reach it over HTTPS.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Validity is how long a generated certificate lasts.
const Validity = 365 * 24 * time.Hour

// renewBefore regenerates certificates this close to expiry.
const renewBefore = 7 * 24 * time.Hour

var (
	// ErrCertificateExpired is returned for a certificate past (or near) NotAfter.
	ErrCertificateExpired = errors.New("certificate expired")
	// ErrHostNotCovered is returned when a configured host is missing from the certificate.
	ErrHostNotCovered = errors.New("certificate does not cover host")
)

// DefaultHosts are always included in a generated certificate.
var DefaultHosts = []string{"localhost", "127.0.0.1", "::1"}

// FileManager stores the certificate and key under a directory.
type FileManager struct {
	clock    func() time.Time
	certDir  string
	certFile string
	keyFile  string
	hosts    []string
}

// NewFileManager manages gate.crt and gate.key in certDir. The certificate
// covers DefaultHosts plus hosts, which may be DNS names or IP addresses.
func NewFileManager(certDir string, hosts ...string) *FileManager {
	all := slices.Clone(DefaultHosts)
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h != "" && !slices.Contains(all, h) {
			all = append(all, h)
		}
	}
	return &FileManager{
		clock:    time.Now,
		certDir:  certDir,
		certFile: filepath.Join(certDir, "gate.crt"),
		keyFile:  filepath.Join(certDir, "gate.key"),
		hosts:    all,
	}
}

// Hosts returns the names and addresses the certificate must cover.
func (m *FileManager) Hosts() []string {
	return slices.Clone(m.hosts)
}

// CertFile returns the certificate path, for installing on terminals.
func (m *FileManager) CertFile() string {
	return m.certFile
}

// GetOrCreateCertificate loads the stored certificate, regenerating it when
// it is missing, unreadable, close to expiry or missing a configured host.
func (m *FileManager) GetOrCreateCertificate() (tls.Certificate, error) {
	exists, err := m.CertificateExists()
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to check certificate existence: %w", err)
	}
	if exists {
		cert, loadErr := tls.LoadX509KeyPair(m.certFile, m.keyFile)
		if loadErr == nil {
			verifyErr := m.verifyCertificate(cert)
			if verifyErr == nil {
				return cert, nil
			}
			slog.Info("Regenerating gate certificate", "reason", verifyErr)
		} else {
			slog.Warn("Stored gate certificate is unreadable; regenerating", "error", loadErr)
		}
		if err := m.removeCertificates(); err != nil {
			return tls.Certificate{}, err
		}
	}

	return m.generateCertificate()
}

// CertificateExists checks if both certificate and key files exist.
func (m *FileManager) CertificateExists() (bool, error) {
	for _, path := range []string{m.certFile, m.keyFile} {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, fmt.Errorf("failed to check %s: %w", filepath.Base(path), err)
		}
	}
	return true, nil
}

func (m *FileManager) generateCertificate() (tls.Certificate, error) {
	if err := os.MkdirAll(m.certDir, 0700); err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := m.clock()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Trucks Gate"},
			CommonName:   m.hosts[0],
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(Validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range m.hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to encode private key: %w", err)
	}

	if err := writePEM(m.certFile, "CERTIFICATE", certDER); err != nil {
		return tls.Certificate{}, err
	}
	if err := writePEM(m.keyFile, "EC PRIVATE KEY", keyDER); err != nil {
		return tls.Certificate{}, err
	}

	slog.Info("Generated gate certificate", "path", m.certFile, "hosts", m.hosts, "expires", template.NotAfter)
	return tls.LoadX509KeyPair(m.certFile, m.keyFile)
}

func writePEM(path, blockType string, der []byte) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open %s for writing: %w", filepath.Base(path), err)
	}
	if err := pem.Encode(out, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return out.Close()
}

func (m *FileManager) verifyCertificate(cert tls.Certificate) error {
	if len(cert.Certificate) == 0 {
		return errors.New("no certificates found")
	}

	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	now := m.clock()
	if now.Before(x509Cert.NotBefore) {
		return errors.New("certificate not yet valid")
	}
	if now.Add(renewBefore).After(x509Cert.NotAfter) {
		return fmt.Errorf("%w: not after %s", ErrCertificateExpired, x509Cert.NotAfter.Format(time.RFC3339))
	}

	for _, h := range m.hosts {
		if err := x509Cert.VerifyHostname(h); err != nil {
			return fmt.Errorf("%w: %s", ErrHostNotCovered, h)
		}
	}
	return nil
}

func (m *FileManager) removeCertificates() error {
	for _, path := range []string{m.certFile, m.keyFile} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}
