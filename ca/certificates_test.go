package ca

import (
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRootCA(t *testing.T) {
	rca, err := CreateRootCA("rootCN", 0)
	require.NoError(t, err)
	assert.True(t, rca.CanSign())

	cert, err := ParseCertificate(rca.Cert)
	require.NoError(t, err)
	assert.Equal(t, "rootCN", cert.Subject.CommonName)
	assert.True(t, cert.IsCA)
	// ten years, give or take the backdating
	assert.WithinDuration(t, time.Now().Add(DefaultRootCAExpiration), cert.NotAfter, 24*time.Hour)
}

func TestNewRootCA(t *testing.T) {
	rca1, err := CreateRootCA("one", time.Hour*24)
	require.NoError(t, err)
	rca2, err := CreateRootCA("two", time.Hour*24)
	require.NoError(t, err)

	verifyOnly, err := NewRootCA(rca1.Cert, nil)
	require.NoError(t, err)
	assert.False(t, verifyOnly.CanSign())

	_, err = NewRootCA(rca1.Cert, rca2.Key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")

	_, err = NewRootCA([]byte("garbage"), nil)
	require.Error(t, err)

	csr, _, err := GenerateNewCSR()
	require.NoError(t, err)
	_, err = verifyOnly.ParseValidateAndSignCSR(csr, Subject{Hostname: "host"}, time.Hour)
	assert.Equal(t, ErrNoValidSigner, err)
}

func TestParseValidateAndSignCSR(t *testing.T) {
	rca, err := CreateRootCA("rootCN", 0)
	require.NoError(t, err)

	csr, key, err := GenerateNewCSR()
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	certPEM, err := rca.ParseValidateAndSignCSR(csr, Subject{
		Hostname:  "laptop",
		NetworkID: "net1",
		Groups:    []string{"admins", "laptops"},
		Address:   "10.10.0.2",
	}, 48*time.Hour)
	require.NoError(t, err)

	cert, err := ParseCertificate(certPEM)
	require.NoError(t, err)
	assert.Equal(t, "laptop", cert.Subject.CommonName)
	assert.Equal(t, []string{"net1"}, cert.Subject.Organization)
	assert.Equal(t, []string{"admins", "laptops"}, cert.Subject.OrganizationalUnit)
	assert.Equal(t, []string{"laptop"}, cert.DNSNames)
	require.Len(t, cert.IPAddresses, 1)
	assert.Equal(t, "10.10.0.2", cert.IPAddresses[0].String())
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), cert.NotAfter, time.Hour)
	assert.Len(t, Fingerprint(cert), 64)

	_, err = cert.Verify(x509.VerifyOptions{
		Roots:     rca.Pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	assert.NoError(t, err)

	_, err = rca.ParseValidateAndSignCSR([]byte("not a csr"), Subject{Hostname: "x"}, time.Hour)
	assert.Error(t, err)
}

func TestSigningPolicy(t *testing.T) {
	p := SigningPolicy(0)
	assert.Equal(t, DefaultNodeCertExpiration, p.Default.Expiry)
	p = SigningPolicy(72 * time.Hour)
	assert.Equal(t, 72*time.Hour, p.Default.Expiry)
	assert.True(t, p.Default.CSRWhitelist.PublicKey)
	assert.False(t, p.Default.CSRWhitelist.Subject)
}
