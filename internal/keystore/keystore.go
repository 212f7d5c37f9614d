// Package keystore manages the node's long-lived RSA identity: key
// generation and loading, PEM/DER (de)serialization, PSS-SHA256 signing and
// verification, and TLS certificate loading for the peer transport's
// channel. Peer identity rides on the application-layer signing key, not on
// the TLS certificate, which is used for channel integrity only.
package keystore

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/axiom-network/axiomd/internal/axiomerr"
)

// KeyBits is the RSA modulus size mandated by the wire protocol (spec section 6).
const KeyBits = 2048

// crypto256 identifies the hash algorithm used for both PSS padding and
// digest computation, per spec section 6 (MGF1-SHA-256).
const crypto256 = crypto.SHA256

// KeyStore holds a node's RSA keypair and exposes signing/verification.
type KeyStore struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// Generate creates a fresh 2048-bit RSA keypair.
func Generate() (*KeyStore, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return &KeyStore{private: priv, public: &priv.PublicKey}, nil
}

// LoadPrivatePEM parses a PKCS#1 or PKCS#8 RSA private key from PEM bytes.
func LoadPrivatePEM(data []byte) (*KeyStore, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, axiomerr.ErrKeyNotPEM
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &KeyStore{private: key, public: &key.PublicKey}, nil
	}

	generic, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	rsaKey, ok := generic.(*rsa.PrivateKey)
	if !ok {
		return nil, axiomerr.ErrNotRSAKey
	}
	return &KeyStore{private: rsaKey, public: &rsaKey.PublicKey}, nil
}

// LoadPrivateFile reads and parses a PEM-encoded private key from path.
func LoadPrivateFile(path string) (*KeyStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}
	return LoadPrivatePEM(data)
}

// PublicKeyFromPEM parses a PEM-encoded SubjectPublicKeyInfo block, as
// exchanged during the peer handshake (spec section 4.4/6).
func PublicKeyFromPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, axiomerr.ErrKeyNotPEM
	}
	generic, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaKey, ok := generic.(*rsa.PublicKey)
	if !ok {
		return nil, axiomerr.ErrNotRSAKey
	}
	return rsaKey, nil
}

// PublicPEM returns this keystore's public key as a PEM-encoded
// SubjectPublicKeyInfo block, ready for the handshake's first frame.
func (k *KeyStore) PublicPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(k.public)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// PrivatePEM returns this keystore's private key PKCS#1-encoded PEM, for
// writing out generated keys to the configured key path.
func (k *KeyStore) PrivatePEM() []byte {
	der := x509.MarshalPKCS1PrivateKey(k.private)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
}

// Public returns the keystore's public key.
func (k *KeyStore) Public() *rsa.PublicKey {
	return k.public
}

// Sign produces an RSA-PSS signature over sha256(payload) with maximum
// salt length, per spec section 6.
func (k *KeyStore) Sign(payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto256}
	sig, err := rsa.SignPSS(rand.Reader, k.private, crypto256, digest[:], opts)
	if err != nil {
		return nil, fmt.Errorf("sign payload: %w", err)
	}
	return sig, nil
}

// Verify checks an RSA-PSS signature over sha256(payload) against pub.
func Verify(pub *rsa.PublicKey, payload, signature []byte) error {
	digest := sha256.Sum256(payload)
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto256}
	if err := rsa.VerifyPSS(pub, crypto256, digest[:], signature, opts); err != nil {
		return axiomerr.ErrSignatureVerifyFail
	}
	return nil
}

// LoadTLSCertificate loads a TLS certificate/key pair for the channel-level
// TLS wrapper. This is independent of the application-layer RSA identity
// above: it only protects the wire from passive interception/tampering.
func LoadTLSCertificate(certPath, keyPath string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load tls certificate: %w", err)
	}
	return cert, nil
}
