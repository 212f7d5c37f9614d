package keystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	ks, err := Generate()
	require.NoError(t, err)

	payload := []byte("AXIOM Corp reported revenue of 5 billion USD in 2024.")
	sig, err := ks.Sign(payload)
	require.NoError(t, err)

	assert.NoError(t, Verify(ks.Public(), payload, sig))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	ks, err := Generate()
	require.NoError(t, err)

	payload := []byte("original payload")
	sig, err := ks.Sign(payload)
	require.NoError(t, err)

	tampered := append([]byte(nil), payload...)
	tampered[0] ^= 0xFF

	assert.Error(t, Verify(ks.Public(), tampered, sig))
}

func TestPublicPEMRoundTrip(t *testing.T) {
	ks, err := Generate()
	require.NoError(t, err)

	pemBytes, err := ks.PublicPEM()
	require.NoError(t, err)

	parsed, err := PublicKeyFromPEM(pemBytes)
	require.NoError(t, err)
	assert.Equal(t, ks.Public().N, parsed.N)
	assert.Equal(t, ks.Public().E, parsed.E)
}

func TestPrivatePEMRoundTrip(t *testing.T) {
	ks, err := Generate()
	require.NoError(t, err)

	loaded, err := LoadPrivatePEM(ks.PrivatePEM())
	require.NoError(t, err)
	assert.Equal(t, ks.Public().N, loaded.Public().N)
}
