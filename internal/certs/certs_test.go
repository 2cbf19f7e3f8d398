package certs

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseLeaf(t *testing.T, cert tls.Certificate) *x509.Certificate {
	t.Helper()
	require.Len(t, cert.Certificate, 1, "should have one certificate")
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return leaf
}

func TestFileManager_GetOrCreateCertificate(t *testing.T) {
	tests := []struct {
		setup          func(t *testing.T, certDir string)
		validateResult func(t *testing.T, cert tls.Certificate)
		name           string
		errorContains  string
		wantErr        bool
	}{
		{
			name: "creates new certificate when none exists",
			validateResult: func(t *testing.T, cert tls.Certificate) {
				t.Helper()
				leaf := parseLeaf(t, cert)
				assert.Equal(t, []string{"Trucks Gate"}, leaf.Subject.Organization)
				assert.Contains(t, leaf.DNSNames, "localhost")
				assert.True(t, leaf.NotAfter.After(time.Now().Add(364*24*time.Hour)), "certificate should be valid for about a year")
				assert.NoError(t, leaf.VerifyHostname("localhost"))
			},
		},
		{
			name: "regenerates unreadable certificate",
			setup: func(t *testing.T, certDir string) {
				t.Helper()
				require.NoError(t, os.MkdirAll(certDir, 0700))
				require.NoError(t, os.WriteFile(filepath.Join(certDir, "gate.crt"), []byte("invalid certificate data"), 0600))
				require.NoError(t, os.WriteFile(filepath.Join(certDir, "gate.key"), []byte("invalid key data"), 0600))
			},
			validateResult: func(t *testing.T, cert tls.Certificate) {
				t.Helper()
				leaf := parseLeaf(t, cert)
				assert.True(t, leaf.NotBefore.After(time.Now().Add(-2*time.Hour)))
			},
		},
		{
			name: "handles certificate directory creation failure",
			setup: func(t *testing.T, certDir string) {
				t.Helper()
				require.NoError(t, os.MkdirAll(filepath.Dir(certDir), 0700))
				require.NoError(t, os.WriteFile(certDir, []byte("not a directory"), 0600))
			},
			wantErr:       true,
			errorContains: "failed to check certificate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certDir := filepath.Join(t.TempDir(), "certs")
			if tt.setup != nil {
				tt.setup(t, certDir)
			}

			m := NewFileManager(certDir)
			cert, err := m.GetOrCreateCertificate()

			if tt.wantErr {
				require.Error(t, err)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
				return
			}

			require.NoError(t, err)
			if tt.validateResult != nil {
				tt.validateResult(t, cert)
			}

			certInfo, err := os.Stat(filepath.Join(certDir, "gate.crt"))
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), certInfo.Mode().Perm(), "certificate file should be owner-only")

			keyInfo, err := os.Stat(filepath.Join(certDir, "gate.key"))
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), keyInfo.Mode().Perm(), "key file should be owner-only")
		})
	}
}

func TestFileManager_ReusesValidCertificate(t *testing.T) {
	certDir := t.TempDir()

	first, err := NewFileManager(certDir).GetOrCreateCertificate()
	require.NoError(t, err)
	second, err := NewFileManager(certDir).GetOrCreateCertificate()
	require.NoError(t, err)

	assert.Equal(t, parseLeaf(t, first).SerialNumber, parseLeaf(t, second).SerialNumber)
}

func TestFileManager_RegeneratesForNewHost(t *testing.T) {
	certDir := t.TempDir()

	first, err := NewFileManager(certDir).GetOrCreateCertificate()
	require.NoError(t, err)

	m := NewFileManager(certDir, "192.168.1.20", "gate.yard.lan")
	second, err := m.GetOrCreateCertificate()
	require.NoError(t, err)

	leaf := parseLeaf(t, second)
	assert.NotEqual(t, parseLeaf(t, first).SerialNumber, leaf.SerialNumber)
	assert.NoError(t, leaf.VerifyHostname("192.168.1.20"))
	assert.NoError(t, leaf.VerifyHostname("gate.yard.lan"))
	assert.Contains(t, leaf.DNSNames, "gate.yard.lan")
}

func TestFileManager_RegeneratesNearExpiry(t *testing.T) {
	certDir := t.TempDir()
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	m := NewFileManager(certDir)
	m.clock = func() time.Time { return issued }
	_, err := m.GetOrCreateCertificate()
	require.NoError(t, err)

	later := NewFileManager(certDir)
	later.clock = func() time.Time { return issued.Add(Validity - 24*time.Hour) }
	cert, err := later.GetOrCreateCertificate()
	require.NoError(t, err)

	assert.True(t, parseLeaf(t, cert).NotAfter.After(issued.Add(Validity)))
}

func TestFileManager_verifyCertificate(t *testing.T) {
	m := NewFileManager(t.TempDir())
	cert, err := m.GetOrCreateCertificate()
	require.NoError(t, err)

	t.Run("valid certificate passes verification", func(t *testing.T) {
		assert.NoError(t, m.verifyCertificate(cert))
	})

	t.Run("empty certificate fails", func(t *testing.T) {
		err := m.verifyCertificate(tls.Certificate{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no certificates found")
	})

	t.Run("expired certificate fails", func(t *testing.T) {
		expired := NewFileManager(t.TempDir())
		expired.clock = func() time.Time { return time.Now().Add(2 * Validity) }
		assert.ErrorIs(t, expired.verifyCertificate(cert), ErrCertificateExpired)
	})

	t.Run("uncovered host fails", func(t *testing.T) {
		wider := NewFileManager(t.TempDir(), "10.0.0.9")
		assert.ErrorIs(t, wider.verifyCertificate(cert), ErrHostNotCovered)
	})
}

func TestFileManager_CertificateExists(t *testing.T) {
	tests := []struct {
		name       string
		files      []string
		wantExists bool
	}{
		{name: "returns false when no files exist"},
		{name: "returns true when both files exist", files: []string{"gate.crt", "gate.key"}, wantExists: true},
		{name: "returns false when only certificate exists", files: []string{"gate.crt"}},
		{name: "returns false when only key exists", files: []string{"gate.key"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certDir := t.TempDir()
			for _, f := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(certDir, f), []byte("x"), 0600))
			}

			exists, err := NewFileManager(certDir).CertificateExists()
			require.NoError(t, err)
			assert.Equal(t, tt.wantExists, exists)
		})
	}
}

func TestNewFileManager_Hosts(t *testing.T) {
	m := NewFileManager(t.TempDir(), " gate.lan ", "", "localhost", "gate.lan")
	assert.Equal(t, []string{"localhost", "127.0.0.1", "::1", "gate.lan"}, m.Hosts())
	assert.Equal(t, "gate.crt", filepath.Base(m.CertFile()))
}

func TestCertificateProperties(t *testing.T) {
	cert, err := NewFileManager(t.TempDir(), "192.168.1.20").GetOrCreateCertificate()
	require.NoError(t, err)
	leaf := parseLeaf(t, cert)

	t.Run("key usage", func(t *testing.T) {
		assert.Equal(t, x509.KeyUsageDigitalSignature, leaf.KeyUsage)
		assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, leaf.ExtKeyUsage)
	})

	t.Run("IP addresses", func(t *testing.T) {
		var hasIPv4Loopback, hasIPv6Loopback, hasLAN bool
		for _, ip := range leaf.IPAddresses {
			switch {
			case ip.Equal(net.IPv4(127, 0, 0, 1)):
				hasIPv4Loopback = true
			case ip.Equal(net.IPv6loopback):
				hasIPv6Loopback = true
			case ip.Equal(net.ParseIP("192.168.1.20")):
				hasLAN = true
			}
		}
		assert.True(t, hasIPv4Loopback, "certificate should include IPv4 loopback")
		assert.True(t, hasIPv6Loopback, "certificate should include IPv6 loopback")
		assert.True(t, hasLAN, "certificate should include the configured address")
	})
}
