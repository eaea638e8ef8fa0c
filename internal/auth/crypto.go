package auth

import (
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// DeriveSharedKey performs X25519 ECDH + HKDF to produce the XChaCha20-Poly1305
// AEAD that seals every frame once the encryption codec is negotiated (spec
// §4.1.4). salt is the random value the server contributes during the
// handshake key exchange, binding the derived key to that one session.
func DeriveSharedKey(privateKey *ecdh.PrivateKey, peerPublicKeyB64 string, salt []byte) (cipher.AEAD, error) {
	peerPubBytes, err := base64.StdEncoding.DecodeString(peerPublicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("decode peer public key: %w", err)
	}
	peerPub, err := ecdh.X25519().NewPublicKey(peerPubBytes)
	if err != nil {
		return nil, fmt.Errorf("parse peer public key: %w", err)
	}

	shared, err := privateKey.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}

	kdf := hkdf.New(sha256.New, shared, salt, []byte("farcall-frame-v1"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}

	return chacha20poly1305.NewX(key)
}

// Encrypt seals plaintext with aead and returns base64(nonce || ciphertext || tag).
func Encrypt(aead cipher.AEAD, plaintext []byte) (string, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ciphertext := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decodes base64 input then opens it with aead (nonce || ciphertext || tag).
func Decrypt(aead cipher.AEAD, encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	nonceSize := aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return aead.Open(nil, nonce, ciphertext, nil)
}
