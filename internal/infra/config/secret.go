package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// SecretPrefix marks a config value sealed with SealSecret.
const SecretPrefix = "enc:"

// PassphraseEnv names the environment variable holding the passphrase that
// unseals secret config values.
const PassphraseEnv = "SWARM_CONFIG_KEY"

const saltLen = 16

// ErrSecretMalformed is returned for sealed values that cannot be decoded.
var ErrSecretMalformed = errors.New("malformed sealed secret")

// SealSecret encrypts plaintext with AES-256-GCM under a key derived from
// passphrase. The result is SecretPrefix followed by base64 of
// salt | nonce | ciphertext, ready to paste into swarm.yaml.
func SealSecret(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", errors.New("empty passphrase")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	out := append(salt, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), nil)
	return SecretPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// OpenSecret reverses SealSecret. Values without SecretPrefix are returned
// as is.
func OpenSecret(value, passphrase string) (string, error) {
	enc, ok := strings.CutPrefix(value, SecretPrefix)
	if !ok {
		return value, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecretMalformed, err)
	}
	if len(raw) < saltLen {
		return "", ErrSecretMalformed
	}
	aead, err := newAEAD(passphrase, raw[:saltLen])
	if err != nil {
		return "", err
	}
	rest := raw[saltLen:]
	if len(rest) < aead.NonceSize() {
		return "", ErrSecretMalformed
	}
	plain, err := aead.Open(nil, rest[:aead.NonceSize()], rest[aead.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("unseal: %w", err)
	}
	return string(plain), nil
}

func newAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// unsealSecrets opens every sealed secret field in place.
func unsealSecrets(cfg *Config, passphrase string) error {
	for name, fp := range map[string]*string{
		"store.redis_url": &cfg.Store.RedisURL,
	} {
		plain, err := OpenSecret(*fp, passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*fp = plain
	}
	return nil
}
