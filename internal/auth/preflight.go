package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/json"
	"math/big"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/SafeVault/wallet-service/internal/vault/vaulterr"
)

// clientData 预检只关心 type 字段，challenge 绑定由 challenge 包负责
type clientData struct {
	Type string `json:"type"`
}

// VerifyAssertion 本地预检 WebAuthn 断言
// 合约会在链上重做这套验证；预检在提交前拦掉坏签名，省掉白白烧掉的手续费
// publicKey: 65 字节未压缩 P-256 点
// signature: 64 字节规范化 r||s 签名
// 签名数据为 authData || sha256(clientDataJSON)
func VerifyAssertion(publicKey []byte, signature []byte, authData []byte, clientDataJSON []byte, rpID string) error {
	pubKey, err := parsePoint(publicKey)
	if err != nil {
		return err
	}
	if len(signature) != 64 {
		return vaulterr.New(vaulterr.KindSignatureFormat, "preflight expects a 64-byte normalized signature, got %d bytes", len(signature))
	}

	var cd clientData
	if err := json.Unmarshal(clientDataJSON, &cd); err != nil {
		return vaulterr.Wrap(err, vaulterr.KindSignatureFormat, "client data is not valid JSON")
	}
	if cd.Type != string(protocol.AssertCeremony) {
		return vaulterr.New(vaulterr.KindSignatureFormat, "client data type %q is not an assertion", cd.Type)
	}

	var authenticatorData protocol.AuthenticatorData
	if err := authenticatorData.Unmarshal(authData); err != nil {
		return vaulterr.Wrap(err, vaulterr.KindSignatureFormat, "failed to parse authenticator data")
	}
	if !authenticatorData.Flags.UserPresent() {
		return vaulterr.New(vaulterr.KindSignatureFormat, "user not present (UP flag not set)")
	}
	if !authenticatorData.Flags.UserVerified() {
		return vaulterr.New(vaulterr.KindSignatureFormat, "user not verified (UV flag not set)")
	}
	if rpID != "" {
		rpIDHash := sha256.Sum256([]byte(rpID))
		if string(authenticatorData.RPIDHash) != string(rpIDHash[:]) {
			return vaulterr.New(vaulterr.KindSignatureFormat, "authenticator data was produced for a different relying party")
		}
	}

	// 签名数据：authData || sha256(clientDataJSON)
	clientDataHash := sha256.Sum256(clientDataJSON)
	signedData := make([]byte, 0, len(authData)+sha256.Size)
	signedData = append(signedData, authData...)
	signedData = append(signedData, clientDataHash[:]...)
	digest := sha256.Sum256(signedData)

	r := new(big.Int).SetBytes(signature[:32])
	s := new(big.Int).SetBytes(signature[32:])
	if !ecdsa.Verify(pubKey, digest[:], r, s) {
		return vaulterr.New(vaulterr.KindSignatureFormat, "assertion signature does not verify against the registered key")
	}
	return nil
}

func parsePoint(publicKey []byte) (*ecdsa.PublicKey, error) {
	x, y := elliptic.Unmarshal(elliptic.P256(), publicKey)
	if x == nil {
		return nil, vaulterr.New(vaulterr.KindKeyFormat, "public key is not a valid uncompressed P-256 point")
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}
