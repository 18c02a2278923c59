package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(blob), testKey)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptKeyRejectsBadInput(t *testing.T) {
	_, err := EncryptKey(testKey, "")
	assert.Error(t, err)
	_, err = EncryptKey("zz", "pw")
	assert.Error(t, err)
	_, err = EncryptKey("abcd", "pw")
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	k, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKey})
	require.NoError(t, err)
	assert.Equal(t, testKey, k)

	blob, err := EncryptKey(testKey, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	k, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testKey, k)

	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
}

func TestSignAuthMessageRecoversAddress(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	require.NoError(t, err)

	sigHex, err := s.SignAuthMessage(1700000000, 0)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sigHex, "0x"))

	sig, err := hex.DecodeString(sigHex[2:])
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	// Signatures are deterministic (RFC 6979).
	again, err := s.SignAuthMessage(1700000000, 0)
	require.NoError(t, err)
	assert.Equal(t, sigHex, again)

	other, err := s.SignAuthMessage(1700000001, 0)
	require.NoError(t, err)
	assert.NotEqual(t, sigHex, other)

	pk, err := ethcrypto.HexToECDSA(testKey)
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.PubkeyToAddress(pk.PublicKey), s.Address())
}

func TestL2HeadersAt(t *testing.T) {
	h := &HMACAuth{
		Key:        "key",
		Secret:     base64.URLEncoding.EncodeToString([]byte("secret")),
		Passphrase: "pass",
	}
	headers := h.L2HeadersAt("0xabc", "POST", "/order", `{"a":1}`, 1700000000)

	assert.Equal(t, "0xabc", headers["POLY_ADDRESS"])
	assert.Equal(t, "key", headers["POLY_API_KEY"])
	assert.Equal(t, "1700000000", headers["POLY_TIMESTAMP"])
	assert.Equal(t, "pass", headers["POLY_PASSPHRASE"])
	assert.NotEmpty(t, headers["POLY_SIGNATURE"])

	same := h.L2HeadersAt("0xabc", "POST", "/order", `{"a":1}`, 1700000000)
	assert.Equal(t, headers["POLY_SIGNATURE"], same["POLY_SIGNATURE"])

	diff := h.L2HeadersAt("0xabc", "DELETE", "/order", `{"a":1}`, 1700000000)
	assert.NotEqual(t, headers["POLY_SIGNATURE"], diff["POLY_SIGNATURE"])

	assert.NotContains(t, h.String(), "secret")
}

func TestRSAKeyParseAndSign(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pem8 := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8})
	pem1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	for _, data := range [][]byte{pem8, pem1} {
		parsed, err := ParseRSAKey(data)
		require.NoError(t, err)
		assert.True(t, key.Equal(parsed))
	}

	path := filepath.Join(t.TempDir(), "kalshi.pem")
	require.NoError(t, os.WriteFile(path, pem8, 0o600))
	loaded, err := LoadRSAKey(path)
	require.NoError(t, err)

	msg := "1700000000000GET/trade-api/v2/portfolio/balance"
	sigB64, err := SignPSS(loaded, msg)
	require.NoError(t, err)

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	require.NoError(t, err)
	digest := sha256.Sum256([]byte(msg))
	assert.NoError(t, rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, digest[:], sig,
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}))

	_, err = ParseRSAKey([]byte("not pem"))
	assert.Error(t, err)
}
