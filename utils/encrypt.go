package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"EstouBem/config"
)

// 联系人手机号落库前使用 AES-256-GCM 加密，密文格式为 nonce || ciphertext

var errInvalidCipherText = errors.New("invalid ciphertext payload")

func EncryptPhone(plain string) ([]byte, error) {
	return encryptWithKey([]byte(config.Cfg.EncryptionKey), plain)
}

func DecryptPhone(raw []byte) (string, error) {
	return decryptWithKey([]byte(config.Cfg.EncryptionKey), raw)
}

func encryptWithKey(key []byte, plain string) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, []byte(plain), nil), nil
}

func decryptWithKey(key, raw []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", errInvalidCipherText
	}

	plain, err := gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", err
	}

	return string(plain), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
