package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// SessionKeySize is the size in bytes of a freshly generated session key
// (AES-256).
const SessionKeySize = 32

var (
	// ErrInvalidKeySize is returned when a key is not a valid AES key size
	// (16, 24 or 32 bytes).
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrDecryptionFailed is returned when a sealed blob cannot be opened:
	// wrong key, truncated data or corrupted padding. No partial plaintext
	// is ever returned alongside it.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// NewSessionKey generates a fresh random 256-bit session key.
func NewSessionKey() ([]byte, error) {
	key := make([]byte, SessionKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	return key, nil
}

// validKeySize reports whether len(key) is an accepted AES key size.
func validKeySize(key []byte) bool {
	switch len(key) {
	case 16, 24, 32:
		return true
	}
	return false
}

// Seal encrypts plaintext under key using AES-CBC with a fresh random IV.
// The returned blob is iv || ciphertext; the receiver reconstructs the IV
// from the first block, so no separate nonce negotiation is needed.
func Seal(plaintext, key []byte) ([]byte, error) {
	if !validKeySize(key) {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)

	blob := make([]byte, aes.BlockSize+len(padded))
	iv := blob[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(blob[aes.BlockSize:], padded)
	return blob, nil
}

// Open decrypts a blob produced by Seal. Decryption with the wrong key or of
// a truncated/corrupted blob fails with ErrDecryptionFailed.
func Open(blob, key []byte) ([]byte, error) {
	if !validKeySize(key) {
		return nil, ErrInvalidKeySize
	}

	if len(blob) < 2*aes.BlockSize || len(blob)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: blob length %d", ErrDecryptionFailed, len(blob))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	iv, ct := blob[:aes.BlockSize], blob[aes.BlockSize:]
	padded := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ct)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// SealJSON marshals v, seals it under key and returns the base64 form used
// in the {"data": ...} wire envelope.
func SealJSON(v any, key []byte) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	blob, err := Seal(plaintext, key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// OpenJSON reverses SealJSON: decodes base64, opens the blob and unmarshals
// the plaintext into v. A blob that opens to non-JSON garbage (possible with
// a wrong key and luckily valid padding) is reported as ErrDecryptionFailed
// rather than returned.
func OpenJSON(data string, key []byte, v any) error {
	blob, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("%w: invalid base64: %v", ErrDecryptionFailed, err)
	}
	plaintext, err := Open(blob, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", ErrDecryptionFailed, err)
	}
	return nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
