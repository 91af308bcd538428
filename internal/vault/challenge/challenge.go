package challenge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SafeVault/wallet-service/internal/vault/vaulterr"
)

// PayloadChallengeLen 参与 challenge 绑定的载荷前缀长度
const PayloadChallengeLen = 32

// DefaultTTL 一次性 challenge 的默认存活时间
const DefaultTTL = 5 * time.Minute

// clientData 认证器 clientDataJSON 中本模块关心的字段
type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

// Expected 计算载荷对应的期望 challenge
// 取载荷前 32 字节（不足则右侧补零），base64url 无 padding 编码
func Expected(payload []byte) string {
	var prefix [PayloadChallengeLen]byte
	copy(prefix[:], payload)
	return base64.RawURLEncoding.EncodeToString(prefix[:])
}

// BindAndVerify 校验载荷与认证器断言中的 challenge 是否绑定
// 纯同步检查，无副作用；必须在任何注册或网络调用之前执行，
// 注定无法通过验证的断言不值得一次网络往返
func BindAndVerify(payload []byte, clientDataJSON []byte) error {
	expected := Expected(payload)

	var cd clientData
	if err := json.Unmarshal(clientDataJSON, &cd); err != nil {
		return vaulterr.Wrap(err, vaulterr.KindChallengeMismatch, "client data is not valid JSON")
	}

	// 逐字节严格比较：验签合约就是这么比的，带 padding 的 challenge
	// 在这里放过去也只会在链上炸掉
	if cd.Challenge == expected {
		return nil
	}

	log.Warn().
		Str("expected_challenge", expected).
		Str("client_challenge", cd.Challenge).
		Str("origin", cd.Origin).
		Msg("Challenge mismatch between payload and client data")

	return vaulterr.New(vaulterr.KindChallengeMismatch,
		"challenge mismatch: client data has %q, payload binds to %q", cd.Challenge, expected)
}

// Binder 把一次性 challenge 记录到注入的存储，用于消费端防重放
type Binder struct {
	store Store
	ttl   time.Duration
}

// NewBinder 创建 challenge binder
// store 为空时仅执行纯校验，不做一次性记录
func NewBinder(store Store, ttl time.Duration) *Binder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Binder{store: store, ttl: ttl}
}

// Issue 记录一个已签发的 challenge，键为期望的 challenge 字符串本身
func (b *Binder) Issue(ctx context.Context, payload []byte) (string, error) {
	expected := Expected(payload)
	if b.store == nil {
		return expected, nil
	}
	if err := b.store.Put(ctx, storeKey(expected), payload, b.ttl); err != nil {
		return "", vaulterr.Wrap(err, vaulterr.KindNetwork, "failed to record issued challenge")
	}
	return expected, nil
}

// VerifyAndConsume 先做纯绑定校验，然后消费一次性记录（如果启用了存储）
// 同一 challenge 的第二次消费会失败
func (b *Binder) VerifyAndConsume(ctx context.Context, payload []byte, clientDataJSON []byte) error {
	if err := BindAndVerify(payload, clientDataJSON); err != nil {
		return err
	}
	if b.store == nil {
		return nil
	}

	expected := Expected(payload)

	// 优先走原子消费，先读后删在并发下会让同一 challenge 被消费两次
	if consumer, ok := b.store.(Consumer); ok {
		found, err := consumer.Consume(ctx, storeKey(expected))
		if err != nil {
			return vaulterr.Wrap(err, vaulterr.KindNetwork, "failed to consume challenge")
		}
		if !found {
			return vaulterr.New(vaulterr.KindChallengeMismatch, "challenge %q was not issued or already consumed", expected)
		}
		return nil
	}

	_, found, err := b.store.Get(ctx, storeKey(expected))
	if err != nil {
		return vaulterr.Wrap(err, vaulterr.KindNetwork, "failed to look up issued challenge")
	}
	if !found {
		return vaulterr.New(vaulterr.KindChallengeMismatch, "challenge %q was not issued or already consumed", expected)
	}
	if err := b.store.Expire(ctx, storeKey(expected)); err != nil {
		return vaulterr.Wrap(err, vaulterr.KindNetwork, "failed to consume challenge")
	}
	return nil
}

func storeKey(challenge string) string {
	return "challenge:" + challenge
}
