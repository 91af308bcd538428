package codec

import (
	"bytes"
	"crypto/elliptic"
	"encoding/asn1"
	"math/big"

	"github.com/rs/zerolog/log"

	"github.com/SafeVault/wallet-service/internal/vault/vaulterr"
)

// PublicKeyLen 未压缩 P-256 公钥长度（0x04 || X(32) || Y(32)）
const PublicKeyLen = 65

// SignatureLen 规范签名长度（r(32) || s(32)）
const SignatureLen = 64

// uncompressedMarker 未压缩椭圆曲线点的首字节标记
const uncompressedMarker = 0x04

// spkiBitStringPrefix SPKI 结构中公钥 BIT STRING 的定长前缀
// 0x03 = BIT STRING tag, 0x42 = 66 字节（1 字节 unused-bits 填充 + 65 字节公钥点）
var spkiBitStringPrefix = []byte{0x03, 0x42, 0x00, 0x04}

// ExtractPublicKey 从 SPKI 包装的公钥二进制中提取 65 字节未压缩 P-256 公钥点
// 依次尝试三种策略：
//  1. 扫描 BIT STRING 标签（0x03 0x42 0x00 0x04），最直接
//  2. 从尾部反向扫描 0x04 标记，要求其后恰好剩 64 字节
//  3. 取最后 65 字节并修复首字节标记
//
// 只有当所有策略耗尽（即不足 65 字节）时返回 KeyFormatError
func ExtractPublicKey(wrapped []byte) ([]byte, error) {
	if len(wrapped) < PublicKeyLen {
		return nil, vaulterr.New(vaulterr.KindKeyFormat, "wrapped key too short: %d bytes, need at least %d", len(wrapped), PublicKeyLen)
	}

	// 策略 1：定位 SPKI BIT STRING 前缀
	if idx := bytes.Index(wrapped, spkiBitStringPrefix); idx >= 0 {
		start := idx + len(spkiBitStringPrefix) - 1 // 指向 0x04
		if len(wrapped)-start >= PublicKeyLen {
			candidate := wrapped[start : start+PublicKeyLen]
			if isValidPoint(candidate) {
				return clone(candidate), nil
			}
			log.Debug().Int("offset", start).Msg("SPKI bit-string candidate not on curve, falling back")
		}
	}

	// 策略 2：反向扫描 0x04 标记
	for i := len(wrapped) - PublicKeyLen; i >= 0; i-- {
		if wrapped[i] != uncompressedMarker {
			continue
		}
		candidate := wrapped[i : i+PublicKeyLen]
		if isValidPoint(candidate) {
			return clone(candidate), nil
		}
	}

	// 策略 3：末尾 65 字节 + 标记修复
	candidate := clone(wrapped[len(wrapped)-PublicKeyLen:])
	if candidate[0] != uncompressedMarker {
		log.Warn().
			Hex("first_byte", []byte{candidate[0]}).
			Msg("Repairing uncompressed point marker on last-65-bytes candidate")
		candidate[0] = uncompressedMarker
	}
	return candidate, nil
}

// derSignature DER SEQUENCE{INTEGER r, INTEGER s}
type derSignature struct {
	R, S *big.Int
}

// DecodeSignature 将认证器返回的签名解码为 64 字节 (r,s) 原始形式
// 64 字节输入视为已是原始形式；70–72 字节按 DER 解析并去除符号填充零字节
func DecodeSignature(raw []byte) ([]byte, error) {
	switch {
	case len(raw) == SignatureLen:
		return clone(raw), nil
	case len(raw) >= 70 && len(raw) <= 72:
		var sig derSignature
		rest, err := asn1.Unmarshal(raw, &sig)
		if err != nil {
			return nil, vaulterr.Wrap(err, vaulterr.KindSignatureFormat, "malformed DER signature")
		}
		if len(rest) != 0 {
			return nil, vaulterr.New(vaulterr.KindSignatureFormat, "trailing bytes after DER signature: %d", len(rest))
		}
		if sig.R == nil || sig.S == nil || sig.R.Sign() < 0 || sig.S.Sign() < 0 {
			return nil, vaulterr.New(vaulterr.KindSignatureFormat, "DER signature has invalid integer components")
		}
		out := make([]byte, SignatureLen)
		if err := padComponent(out[:32], sig.R); err != nil {
			return nil, err
		}
		if err := padComponent(out[32:], sig.S); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, vaulterr.New(vaulterr.KindSignatureFormat, "unsupported signature length: %d", len(raw))
	}
}

// NormalizeSignature 将签名规范化为 low-S 形式
// 若 s > n/2 则替换为 n - s；对已规范的输入是幂等的
func NormalizeSignature(sig []byte) ([]byte, error) {
	if len(sig) != SignatureLen {
		return nil, vaulterr.New(vaulterr.KindSignatureFormat, "signature must be %d bytes, got %d", SignatureLen, len(sig))
	}

	n := elliptic.P256().Params().N
	halfN := new(big.Int).Rsh(n, 1)

	s := new(big.Int).SetBytes(sig[32:])
	if s.Cmp(halfN) <= 0 {
		return clone(sig), nil
	}

	out := make([]byte, SignatureLen)
	copy(out[:32], sig[:32])
	s.Sub(n, s)
	s.FillBytes(out[32:])

	log.Debug().Msg("Normalized high-S signature to canonical low-S form")
	return out, nil
}

// DecodeAndNormalize 解码并规范化，交易路径的常用组合
func DecodeAndNormalize(raw []byte) ([]byte, error) {
	sig, err := DecodeSignature(raw)
	if err != nil {
		return nil, err
	}
	return NormalizeSignature(sig)
}

// ValidatePublicKey 校验公钥不变量：长度 65 且首字节为 0x04
func ValidatePublicKey(pubkey []byte) error {
	if len(pubkey) != PublicKeyLen {
		return vaulterr.New(vaulterr.KindKeyFormat, "public key must be %d bytes, got %d", PublicKeyLen, len(pubkey))
	}
	if pubkey[0] != uncompressedMarker {
		return vaulterr.New(vaulterr.KindKeyFormat, "public key missing uncompressed point marker 0x04")
	}
	return nil
}

// padComponent 将整数左填充到 32 字节；超长（>32 字节有效位）视为格式错误
func padComponent(dst []byte, v *big.Int) error {
	if v.BitLen() > 256 {
		return vaulterr.New(vaulterr.KindSignatureFormat, "signature component exceeds 32 bytes")
	}
	v.FillBytes(dst)
	return nil
}

// isValidPoint 检查候选字节是否为曲线上的未压缩点
func isValidPoint(candidate []byte) bool {
	if len(candidate) != PublicKeyLen || candidate[0] != uncompressedMarker {
		return false
	}
	x, y := elliptic.Unmarshal(elliptic.P256(), candidate)
	return x != nil && y != nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
