/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package roster

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// At-rest format: optionally base64-wrapped, OpenSSL enc layout — the
// "Salted__" magic followed by an 8-byte salt, then AES-256-CBC ciphertext.
// Key and IV come from 1000-round PBKDF2-HMAC-SHA256 stretched to 48 bytes.
const (
	saltMagic      = "Salted__"
	saltLen        = 8
	kdfIterations  = 1000
	kdfOutputLen   = 48 // 32-byte key + 16-byte IV
	fallbackSalt   = "12345678"
	aesKeyLen      = 32
)

var (
	errCiphertextLength = errors.New("ciphertext is not a multiple of the AES block size")
	errBadPadding       = errors.New("invalid PKCS7 padding (wrong password?)")
)

// Decrypt recovers roster text from its encrypted at-rest form.
func Decrypt(data []byte, password string) (string, error) {
	// Tolerate a base64 wrapping layer.
	if decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(data))); err == nil {
		data = decoded
	}

	salt := []byte(fallbackSalt)

	if bytes.HasPrefix(data, []byte(saltMagic)) && len(data) >= len(saltMagic)+saltLen {
		salt = data[len(saltMagic) : len(saltMagic)+saltLen]
		data = data[len(saltMagic)+saltLen:]
	}

	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", errCiphertextLength
	}

	key, iv := deriveKeyIV(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}

	plaintext := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, data)

	unpadded, err := pkcs7Unpad(plaintext)
	if err != nil {
		return "", err
	}

	return string(unpadded), nil
}

// Encrypt produces the at-rest form with a random salt. Used by tooling and
// the round-trip tests; the daemon itself only decrypts.
func Encrypt(plaintext, password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, iv := deriveKeyIV(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext))
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, len(saltMagic)+saltLen+len(ciphertext))
	out = append(out, saltMagic...)
	out = append(out, salt...)
	out = append(out, ciphertext...)

	return out, nil
}

func deriveKeyIV(password string, salt []byte) (key, iv []byte) {
	keyIV := pbkdf2.Key([]byte(password), salt, kdfIterations, kdfOutputLen, sha256.New)
	return keyIV[:aesKeyLen], keyIV[aesKeyLen:]
}

func pkcs7Pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errBadPadding
	}

	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, errBadPadding
	}

	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errBadPadding
		}
	}

	return data[:len(data)-n], nil
}
