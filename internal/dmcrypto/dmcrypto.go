// Package dmcrypto implements end-to-end style sealing for direct messages.
//
// Each participant holds an X25519 keypair. The private key never leaves its
// holder's key store; only public keys go through the shared directory. A
// conversation key is derived from the ECDH shared secret with HKDF-SHA256,
// bound to the conversation so the same pair of users gets distinct keys per
// conversation. Payloads are sealed with XChaCha20-Poly1305.
package dmcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// DecryptFailedSentinel is shown in place of a payload that cannot be opened,
// e.g. after a key rotation. The ciphertext itself is left untouched.
const DecryptFailedSentinel = "unable to decrypt"

// payloadVersion is the first byte of every sealed payload. Bump it if the
// sealing scheme ever changes so old payloads stay identifiable.
const payloadVersion byte = 0x01

const (
	// KeySize is the byte length of X25519 keys and derived symmetric keys.
	KeySize = 32

	hkdfInfo = "pawhaven/dm/v1/"
)

var (
	// ErrDecrypt reports a payload that could not be authenticated or opened.
	ErrDecrypt = errors.New("dmcrypto: decrypt failed")
	// ErrMalformed reports a payload too short or of an unknown version.
	ErrMalformed = errors.New("dmcrypto: malformed payload")
)

// GenerateKeypair creates a new X25519 keypair.
func GenerateKeypair() (privateKey, publicKey []byte, err error) {
	privateKey = make([]byte, KeySize)
	if _, err := rand.Read(privateKey); err != nil {
		return nil, nil, fmt.Errorf("dmcrypto: generate private key: %w", err)
	}
	publicKey, err = curve25519.X25519(privateKey, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("dmcrypto: derive public key: %w", err)
	}
	return privateKey, publicKey, nil
}

// DeriveConversationKey computes the symmetric key for a conversation from
// one side's private key and the peer's public key. Both sides derive the
// same key. The conversation ID is mixed into the HKDF info string so keys
// are scoped per conversation.
func DeriveConversationKey(privateKey, peerPublicKey []byte, conversationID uint) ([]byte, error) {
	if len(privateKey) != KeySize || len(peerPublicKey) != KeySize {
		return nil, fmt.Errorf("dmcrypto: keys must be %d bytes", KeySize)
	}
	shared, err := curve25519.X25519(privateKey, peerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("dmcrypto: ecdh: %w", err)
	}
	info := fmt.Sprintf("%sconv-%d", hkdfInfo, conversationID)
	reader := hkdf.New(sha256.New, shared, nil, []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("dmcrypto: hkdf: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext under the conversation key. Output layout:
// [1-byte version][24-byte nonce][ciphertext+tag].
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("dmcrypto: new aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("dmcrypto: nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, payloadVersion)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, []byte{payloadVersion})
	return out, nil
}

// Open decrypts a payload produced by Seal.
func Open(key, payload []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("dmcrypto: new aead: %w", err)
	}

	if len(payload) < 1+aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformed
	}
	if payload[0] != payloadVersion {
		return nil, fmt.Errorf("%w: unknown version 0x%02x", ErrMalformed, payload[0])
	}

	nonce := payload[1 : 1+aead.NonceSize()]
	ct := payload[1+aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ct, []byte{payloadVersion})
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// OpenOrSentinel decrypts the payload, returning the sentinel string when it
// cannot be opened. Callers use this on the read path so one unreadable
// message never fails a whole history fetch.
func OpenOrSentinel(key, payload []byte) string {
	plaintext, err := Open(key, payload)
	if err != nil {
		return DecryptFailedSentinel
	}
	return string(plaintext)
}
