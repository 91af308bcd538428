package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SafeVault/wallet-service/internal/vault/vaulterr"
)

const testRPID = "vault.example.com"

// makeAuthData 构造最小的认证器数据：rpIdHash || flags || signCount
func makeAuthData(rpID string, flags byte) []byte {
	rpIDHash := sha256.Sum256([]byte(rpID))
	data := make([]byte, 0, 37)
	data = append(data, rpIDHash[:]...)
	data = append(data, flags)
	count := make([]byte, 4)
	binary.BigEndian.PutUint32(count, 1)
	return append(data, count...)
}

// signAssertion 按认证器的方式对 authData || sha256(clientData) 签名
func signAssertion(t *testing.T, priv *ecdsa.PrivateKey, authData, clientDataJSON []byte) []byte {
	t.Helper()
	clientDataHash := sha256.Sum256(clientDataJSON)
	signedData := append(append([]byte{}, authData...), clientDataHash[:]...)
	digest := sha256.Sum256(signedData)

	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig
}

func testAssertion(t *testing.T) (point, sig, authData, clientDataJSON []byte) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	point = elliptic.Marshal(elliptic.P256(), priv.PublicKey.X, priv.PublicKey.Y)

	authData = makeAuthData(testRPID, 0x05) // UP | UV
	challenge := base64.RawURLEncoding.EncodeToString(make([]byte, 32))
	clientDataJSON = []byte(fmt.Sprintf(`{"type":"webauthn.get","challenge":"%s","origin":"https://%s"}`, challenge, testRPID))
	sig = signAssertion(t, priv, authData, clientDataJSON)
	return point, sig, authData, clientDataJSON
}

func TestVerifyAssertion(t *testing.T) {
	point, sig, authData, clientDataJSON := testAssertion(t)
	assert.NoError(t, VerifyAssertion(point, sig, authData, clientDataJSON, testRPID))
}

func TestVerifyAssertionBadSignature(t *testing.T) {
	point, sig, authData, clientDataJSON := testAssertion(t)
	sig[10] ^= 0xFF
	err := VerifyAssertion(point, sig, authData, clientDataJSON, testRPID)
	require.Error(t, err)
	assert.True(t, vaulterr.IsKind(err, vaulterr.KindSignatureFormat))
}

func TestVerifyAssertionWrongRPID(t *testing.T) {
	point, sig, authData, clientDataJSON := testAssertion(t)
	err := VerifyAssertion(point, sig, authData, clientDataJSON, "other.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relying party")
}

func TestVerifyAssertionUserNotPresent(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	point := elliptic.Marshal(elliptic.P256(), priv.PublicKey.X, priv.PublicKey.Y)

	authData := makeAuthData(testRPID, 0x00) // UP 未置位
	clientDataJSON := []byte(`{"type":"webauthn.get"}`)
	sig := signAssertion(t, priv, authData, clientDataJSON)

	err = VerifyAssertion(point, sig, authData, clientDataJSON, testRPID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not present")
}

func TestVerifyAssertionUserNotVerified(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	point := elliptic.Marshal(elliptic.P256(), priv.PublicKey.X, priv.PublicKey.Y)

	authData := makeAuthData(testRPID, 0x01) // 只有 UP，UV 未置位
	clientDataJSON := []byte(`{"type":"webauthn.get"}`)
	sig := signAssertion(t, priv, authData, clientDataJSON)

	err = VerifyAssertion(point, sig, authData, clientDataJSON, testRPID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not verified")
}

// 注册仪式的 clientData 不能拿来做断言
func TestVerifyAssertionWrongCeremonyType(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	point := elliptic.Marshal(elliptic.P256(), priv.PublicKey.X, priv.PublicKey.Y)

	authData := makeAuthData(testRPID, 0x05)
	clientDataJSON := []byte(`{"type":"webauthn.create"}`)
	sig := signAssertion(t, priv, authData, clientDataJSON)

	err = VerifyAssertion(point, sig, authData, clientDataJSON, testRPID)
	require.Error(t, err)
	assert.True(t, vaulterr.IsKind(err, vaulterr.KindSignatureFormat))
	assert.Contains(t, err.Error(), "webauthn.create")
}

func TestVerifyAssertionBadKey(t *testing.T) {
	_, sig, authData, clientDataJSON := testAssertion(t)
	err := VerifyAssertion(make([]byte, 65), sig, authData, clientDataJSON, testRPID)
	require.Error(t, err)
	assert.True(t, vaulterr.IsKind(err, vaulterr.KindKeyFormat))
}

func TestVerifyAssertionBadSignatureLength(t *testing.T) {
	point, _, authData, clientDataJSON := testAssertion(t)
	err := VerifyAssertion(point, make([]byte, 70), authData, clientDataJSON, testRPID)
	require.Error(t, err)
	assert.True(t, vaulterr.IsKind(err, vaulterr.KindSignatureFormat))
}
