package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// LoadRSAKey reads a PEM-encoded RSA private key (PKCS#8 or PKCS#1).
func LoadRSAKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto/rsa: read %s: %w", path, err)
	}
	return ParseRSAKey(data)
}

// ParseRSAKey decodes a PEM block holding an RSA private key.
func ParseRSAKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("crypto/rsa: no PEM block found")
	}

	if k, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("crypto/rsa: PKCS#8 key is %T, not RSA", k)
		}
		return rsaKey, nil
	}

	k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("crypto/rsa: parse private key: %w", err)
	}
	return k, nil
}

// SignPSS signs SHA-256(message) with RSA-PSS (salt length = hash length)
// and returns the base64 signature Kalshi expects.
func SignPSS(key *rsa.PrivateKey, message string) (string, error) {
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("crypto/rsa: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
