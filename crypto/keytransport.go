package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// ServerKeyBits is the RSA modulus size for the server's long-lived key.
const ServerKeyBits = 2048

// ErrInvalidKeyMaterial is returned when RSA key transport fails: the
// ciphertext does not decrypt under the server key, or the recovered
// plaintext is not a valid symmetric key.
var ErrInvalidKeyMaterial = errors.New("invalid key material")

// GenerateServerKey generates the server's long-lived RSA keypair. The
// protocol uses a single key per process rather than a full PKI.
func GenerateServerKey() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, ServerKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return key, nil
}

// MarshalPublicKey encodes an RSA public key as a PEM block, the form served
// by GET /public-key.
func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePublicKey decodes a PEM-encoded RSA public key.
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return pub, nil
}

// EncryptSessionKey encrypts a client-generated symmetric key to the
// server's public key. PKCS#1 v1.5 matches the protocol as designed.
func EncryptSessionKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	if !validKeySize(key) {
		return nil, ErrInvalidKeySize
	}
	ct, err := rsa.EncryptPKCS1v15(rand.Reader, pub, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt session key: %w", err)
	}
	return ct, nil
}

// DecryptSessionKey recovers the symmetric key from handshake ciphertext.
// Undecryptable ciphertext or a recovered blob that is not an AES key size
// fails with ErrInvalidKeyMaterial; the caller must not create a session on
// that path.
func DecryptSessionKey(priv *rsa.PrivateKey, ct []byte) ([]byte, error) {
	key, err := rsa.DecryptPKCS1v15(rand.Reader, priv, ct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	if !validKeySize(key) {
		return nil, fmt.Errorf("%w: recovered %d bytes", ErrInvalidKeyMaterial, len(key))
	}
	return key, nil
}
