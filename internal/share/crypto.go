package share

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12 // GCM 标准 nonce 长度
	seedSize  = 32

	hkdfInfo = "mailprov share-link v1"
)

var errInvalidKeySize = errors.New("invalid key size")

// DeriveKey 使用 HKDF-SHA-256 从服务端密钥派生 AES-256 密钥
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("share secret is empty")
	}
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// newToken 生成 64 位十六进制令牌：对 32 字节随机数取 SHA-256
func newToken(random io.Reader) (string, error) {
	seed := make([]byte, seedSize)
	if _, err := io.ReadFull(random, seed); err != nil {
		return "", fmt.Errorf("read token seed: %w", err)
	}
	sum := sha256.Sum256(seed)
	return hex.EncodeToString(sum[:]), nil
}

// seal 使用随机 nonce 加密，返回 nonce 与密文（含认证标签）
func seal(key []byte, random io.Reader, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, nonceSize)
	if _, err := io.ReadFull(random, nonce); err != nil {
		return nil, nil, fmt.Errorf("read nonce: %w", err)
	}
	return nonce, gcm.Seal(nil, nonce, plaintext, aad), nil
}

// open 解密并校验认证标签
func open(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != nonceSize {
		return nil, fmt.Errorf("invalid nonce size: got %d, want %d", len(nonce), nonceSize)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d, want %d", errInvalidKeySize, len(key), keySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
