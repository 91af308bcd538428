package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/big"
)

// 生成 vault 端到端调试用的 Passkey 测试数据：
// keygen 产出一把 P-256 钥匙（SPKI 包装 + 私钥 hex），
// sign 对给定载荷产出完整的断言三元组（authData、clientDataJSON、DER 签名）
func main() {
	action := flag.String("action", "", "Action: 'keygen' or 'sign'")
	privateKeyHex := flag.String("privkey", "", "Private key (hex) for signing")
	payloadHex := flag.String("payload", "", "Signature payload (hex), first 32 bytes bind the challenge")
	rpID := flag.String("rp-id", "vault.example.com", "Relying Party ID")
	origin := flag.String("origin", "https://vault.example.com", "Origin URL")

	flag.Parse()

	switch *action {
	case "keygen":
		generateKey()
	case "sign":
		if *privateKeyHex == "" || *payloadHex == "" {
			log.Fatal("Missing -privkey or -payload for sign action")
		}
		signPayload(*privateKeyHex, *payloadHex, *rpID, *origin)
	default:
		log.Fatal("Invalid action. Use 'keygen' or 'sign'")
	}
}

func generateKey() {
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}

	wrapped, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	if err != nil {
		log.Fatalf("Failed to wrap public key: %v", err)
	}
	point := elliptic.Marshal(elliptic.P256(), privKey.PublicKey.X, privKey.PublicKey.Y)

	output := map[string]string{
		"private_key_hex":     hex.EncodeToString(privKey.D.Bytes()),
		"public_key_spki_b64": base64.StdEncoding.EncodeToString(wrapped),
		"public_key_point":    hex.EncodeToString(point),
	}
	printJSON(output)
}

func signPayload(privateKeyHex, payloadHex, rpID, origin string) {
	d, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		log.Fatalf("Invalid private key hex: %v", err)
	}
	payload, err := hex.DecodeString(payloadHex)
	if err != nil {
		log.Fatalf("Invalid payload hex: %v", err)
	}

	privKey := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: elliptic.P256()},
		D:         new(big.Int).SetBytes(d),
	}
	privKey.PublicKey.X, privKey.PublicKey.Y = elliptic.P256().ScalarBaseMult(d)

	// challenge = base64url(payload 的前 32 字节，不足补零)
	var challengeBytes [32]byte
	copy(challengeBytes[:], payload)
	challenge := base64.RawURLEncoding.EncodeToString(challengeBytes[:])

	clientData := map[string]string{
		"type":      "webauthn.get",
		"challenge": challenge,
		"origin":    origin,
	}
	clientDataJSON, err := json.Marshal(clientData)
	if err != nil {
		log.Fatalf("Failed to marshal client data: %v", err)
	}

	// authData = rpIdHash || flags(UP|UV) || signCount
	rpIDHash := sha256.Sum256([]byte(rpID))
	authData := make([]byte, 0, 37)
	authData = append(authData, rpIDHash[:]...)
	authData = append(authData, 0x05)
	count := make([]byte, 4)
	binary.BigEndian.PutUint32(count, 1)
	authData = append(authData, count...)

	clientDataHash := sha256.Sum256(clientDataJSON)
	signedData := append(append([]byte{}, authData...), clientDataHash[:]...)
	digest := sha256.Sum256(signedData)

	sigDER, err := ecdsa.SignASN1(rand.Reader, privKey, digest[:])
	if err != nil {
		log.Fatalf("Failed to sign: %v", err)
	}

	output := map[string]string{
		"challenge":              challenge,
		"signature_payload_b64":  base64.StdEncoding.EncodeToString(payload),
		"client_data_json_b64":   base64.StdEncoding.EncodeToString(clientDataJSON),
		"authenticator_data_b64": base64.StdEncoding.EncodeToString(authData),
		"signature_der_b64":      base64.StdEncoding.EncodeToString(sigDER),
	}
	printJSON(output)
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal output: %v", err)
	}
	fmt.Println(string(out))
}
