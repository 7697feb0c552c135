package config

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Errors from the encrypted .env loader.
var (
	ErrMissingEncryptionKey = errors.New("CONFIG_ENCRYPTION_KEY is not set")
	ErrInvalidEncryptionKey = errors.New("encryption key must be 32 base64 characters")
	ErrCiphertextTooShort   = errors.New("ciphertext shorter than AES block size")
)

// LoadEncryptedEnvFile reads an AES-encrypted .env file and exports every
// decrypted variable into the process environment.
//
// The format matches the platform's shared secrets tooling: each non-comment
// line is KEY=VALUE where VALUE is base64(iv || AES-CBC ciphertext) with
// PKCS7 padding. keyBase64 is the base64 encoding of the 24-byte AES key and
// must be exactly 32 characters. A line that fails to decrypt is skipped so
// one stale secret does not block startup.
func LoadEncryptedEnvFile(path, keyBase64 string) error {
	if keyBase64 == "" {
		return ErrMissingEncryptionKey
	}
	if len(keyBase64) != 32 {
		return fmt.Errorf("%w: got %d characters", ErrInvalidEncryptionKey, len(keyBase64))
	}
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return fmt.Errorf("decode encryption key: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open env file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, encrypted, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		value, err := Decrypt(strings.TrimSpace(encrypted), key)
		if err != nil {
			continue
		}
		if err := os.Setenv(name, value); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return scanner.Err()
}

// Decrypt decodes a base64 AES-CBC ciphertext whose first block is the IV
// and strips PKCS7 padding. Invalid padding leaves the plaintext untouched,
// matching the platform's decryption helper.
func Decrypt(encryptedText string, key []byte) (string, error) {
	encryptedText = strings.Trim(encryptedText, `"'`)

	raw, err := base64.StdEncoding.DecodeString(encryptedText)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return "", ErrCiphertextTooShort
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	iv, ciphertext := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return string(stripPKCS7(plaintext)), nil
}

func stripPKCS7(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	padding := int(data[len(data)-1])
	if padding <= 0 || padding > aes.BlockSize || padding > len(data) {
		return data
	}
	for i := 0; i < padding; i++ {
		if data[len(data)-1-i] != byte(padding) {
			return data
		}
	}
	return data[:len(data)-padding]
}
