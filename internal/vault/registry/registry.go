package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stellar/go/xdr"

	"github.com/SafeVault/wallet-service/internal/metrics"
	"github.com/SafeVault/wallet-service/internal/types"
	"github.com/SafeVault/wallet-service/internal/vault/challenge"
	"github.com/SafeVault/wallet-service/internal/vault/codec"
	"github.com/SafeVault/wallet-service/internal/vault/txsubmit"
	"github.com/SafeVault/wallet-service/internal/vault/vaulterr"
)

// RegisterAuthEntries register_signer 结构上需要的授权条目数
const RegisterAuthEntries = 1

// DefaultCacheTTL 已确认状态的缓存时长
const DefaultCacheTTL = 10 * time.Minute

// Pipeline 注册客户端依赖的提交管道能力
type Pipeline interface {
	Submit(ctx context.Context, inv txsubmit.Invocation, expectedAuthCount int) (*types.SubmissionOutcome, error)
	SimulateRead(ctx context.Context, inv txsubmit.Invocation) (xdr.ScVal, error)
}

// Client 签名者注册客户端
// 注册是幂等的：同一公钥重复注册直接短路为 confirmed，不重复上链
type Client struct {
	pipeline Pipeline
	builder  *txsubmit.Builder
	cache    challenge.Store
	cacheTTL time.Duration
}

// NewClient 创建注册客户端
// cache 可以为 nil，此时每次查询都打到链上
func NewClient(pipeline Pipeline, builder *txsubmit.Builder, cache challenge.Store) *Client {
	return &Client{
		pipeline: pipeline,
		builder:  builder,
		cache:    cache,
		cacheTTL: DefaultCacheTTL,
	}
}

// Status 查询签名者的注册状态
// 先读 is_signer_registered，读不动时退回 get_passkey_pubkey 的存在性判断
func (c *Client) Status(ctx context.Context, signer string) (types.RegistrationState, error) {
	if state, ok := c.cachedState(ctx, signer); ok {
		return state, nil
	}

	inv, err := c.builder.IsSignerRegistered(signer)
	if err != nil {
		return types.RegistrationStateUnknown, err
	}
	value, err := c.pipeline.SimulateRead(ctx, inv)
	if err != nil {
		log.Warn().Err(err).Str("signer", signer).Msg("is_signer_registered read failed, falling back to stored key lookup")
		_, found, keyErr := c.StoredKey(ctx, signer)
		if keyErr != nil {
			return types.RegistrationStateUnknown, keyErr
		}
		if found {
			return types.RegistrationStateRegistered, nil
		}
		return types.RegistrationStateUnregistered, nil
	}

	if registered, ok := value.GetB(); ok && registered {
		return types.RegistrationStateRegistered, nil
	}
	return types.RegistrationStateUnregistered, nil
}

// StoredKey 读取链上存储的 65 字节公钥
// 合约返回 Option<Bytes>：Void 表示未注册
func (c *Client) StoredKey(ctx context.Context, signer string) ([]byte, bool, error) {
	inv, err := c.builder.GetPasskeyPubkey(signer)
	if err != nil {
		return nil, false, err
	}
	value, err := c.pipeline.SimulateRead(ctx, inv)
	if err != nil {
		return nil, false, err
	}

	switch value.Type {
	case xdr.ScValTypeScvVoid:
		return nil, false, nil
	case xdr.ScValTypeScvBytes:
		if b, ok := value.GetBytes(); ok {
			stored := make([]byte, len(b))
			copy(stored, b)
			return stored, true, nil
		}
	}
	return nil, false, vaulterr.New(vaulterr.KindProtocolParse, "get_passkey_pubkey returned unexpected value type %v", value.Type)
}

// Ensure 幂等注册状态机
// 已注册且公钥一致直接确认；公钥不一致时只有显式允许轮换才覆盖注册；
// 未注册则上链注册并在落账后读回核验
func (c *Client) Ensure(ctx context.Context, req *types.RegisterSignerRequest) (*types.RegistrationResult, error) {
	point, err := codec.ExtractPublicKey(req.WrappedPublicKey)
	if err != nil {
		return nil, err
	}
	rpIDHash, err := resolveRPIDHash(req)
	if err != nil {
		return nil, err
	}

	stored, found, err := c.StoredKey(ctx, req.Signer)
	if err != nil {
		return nil, err
	}

	if found {
		if bytes.Equal(stored, point) {
			// 同一把钥匙重复注册：短路确认，不上链
			c.cacheState(ctx, req.Signer, types.RegistrationStateConfirmed)
			metrics.Registrations.WithLabelValues("already_registered").Inc()
			return &types.RegistrationResult{State: types.RegistrationStateConfirmed}, nil
		}
		if !req.AllowRotation {
			metrics.Registrations.WithLabelValues("rejected_rotation").Inc()
			return nil, vaulterr.New(vaulterr.KindRegistrationUnconfirmed,
				"signer %s is registered with a different passkey; pass allow_rotation to replace it", req.Signer)
		}
		log.Info().Str("signer", req.Signer).Msg("Rotating registered passkey on explicit request")
	}

	result, err := c.register(ctx, req.Signer, point, rpIDHash)
	if err != nil {
		return nil, err
	}
	result.Rotated = found
	if result.Rotated && result.State == types.RegistrationStateConfirmed {
		metrics.Registrations.WithLabelValues("rotated").Inc()
	}
	return result, nil
}

// register 上链注册并读回核验
func (c *Client) register(ctx context.Context, signer string, point []byte, rpIDHash []byte) (*types.RegistrationResult, error) {
	inv, err := c.builder.RegisterSigner(signer, point, rpIDHash)
	if err != nil {
		return nil, err
	}

	outcome, err := c.pipeline.Submit(ctx, inv, RegisterAuthEntries)
	if err != nil {
		metrics.Registrations.WithLabelValues("failed").Inc()
		return nil, err
	}

	switch outcome.Status {
	case types.SubmissionStatusPending:
		// 轮询耗尽：注册可能已经落账，调用方稍后凭哈希核对
		metrics.Registrations.WithLabelValues("pending").Inc()
		return &types.RegistrationResult{State: types.RegistrationStateRegistering, TxHash: outcome.TxHash}, nil
	case types.SubmissionStatusFailed:
		metrics.Registrations.WithLabelValues("failed").Inc()
		return nil, vaulterr.New(vaulterr.KindRegistrationUnconfirmed,
			"register_signer failed on ledger: %s", outcome.Message).WithTxHash(outcome.TxHash)
	}

	// 落账成功不等于注册成功：必须读回核验存储的公钥
	stored, found, err := c.StoredKey(ctx, signer)
	if err != nil {
		return nil, vaulterr.Wrap(err, vaulterr.KindRegistrationUnconfirmed,
			"register_signer applied but read-back verification failed").WithTxHash(outcome.TxHash)
	}
	if !found || !bytes.Equal(stored, point) {
		metrics.Registrations.WithLabelValues("failed").Inc()
		return nil, vaulterr.New(vaulterr.KindRegistrationUnconfirmed,
			"register_signer applied but stored key does not match the presented key").WithTxHash(outcome.TxHash)
	}

	c.cacheState(ctx, signer, types.RegistrationStateConfirmed)
	metrics.Registrations.WithLabelValues("registered").Inc()
	log.Info().Str("signer", signer).Str("tx_hash", outcome.TxHash).Msg("Signer registration confirmed by read-back")
	return &types.RegistrationResult{State: types.RegistrationStateConfirmed, TxHash: outcome.TxHash}, nil
}

// VerifierAddress 读取钱包合约绑定的 WebAuthn 验签合约地址
func (c *Client) VerifierAddress(ctx context.Context) (string, error) {
	value, err := c.pipeline.SimulateRead(ctx, c.builder.GetVerifierAddress())
	if err != nil {
		return "", err
	}
	addr, ok := value.GetAddress()
	if !ok {
		return "", vaulterr.New(vaulterr.KindProtocolParse, "get_verifier_address returned unexpected value type %v", value.Type)
	}
	rendered, err := addr.String()
	if err != nil {
		return "", vaulterr.Wrap(err, vaulterr.KindProtocolParse, "failed to render verifier address")
	}
	return rendered, nil
}

// WalletInfo 读取钱包合约的自述信息
func (c *Client) WalletInfo(ctx context.Context) ([]string, error) {
	value, err := c.pipeline.SimulateRead(ctx, c.builder.GetWalletInfo())
	if err != nil {
		return nil, err
	}
	vec, ok := value.GetVec()
	if !ok || vec == nil {
		return nil, vaulterr.New(vaulterr.KindProtocolParse, "get_wallet_info returned unexpected value type %v", value.Type)
	}
	info := make([]string, 0, len(*vec))
	for _, item := range *vec {
		if s, ok := item.GetStr(); ok {
			info = append(info, string(s))
		}
	}
	return info, nil
}

func (c *Client) cachedState(ctx context.Context, signer string) (types.RegistrationState, bool) {
	if c.cache == nil {
		return "", false
	}
	raw, found, err := c.cache.Get(ctx, cacheKey(signer))
	if err != nil || !found {
		return "", false
	}
	state := types.RegistrationState(raw)
	// 只有已确认状态值得缓存，其余状态都要重新看链
	if state == types.RegistrationStateConfirmed {
		return types.RegistrationStateRegistered, true
	}
	return "", false
}

func (c *Client) cacheState(ctx context.Context, signer string, state types.RegistrationState) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Put(ctx, cacheKey(signer), []byte(state), c.cacheTTL); err != nil {
		log.Warn().Err(err).Str("signer", signer).Msg("Failed to cache registration state")
	}
}

func cacheKey(signer string) string {
	return "registration:" + signer
}

// resolveRPIDHash 求 RP ID 哈希：显式 32 字节优先，否则对 RP ID 求 SHA-256
func resolveRPIDHash(req *types.RegisterSignerRequest) ([]byte, error) {
	if len(req.RelyingPartyIDHash) > 0 {
		if len(req.RelyingPartyIDHash) != sha256.Size {
			return nil, vaulterr.New(vaulterr.KindKeyFormat,
				"relying party ID hash must be %d bytes, got %d", sha256.Size, len(req.RelyingPartyIDHash))
		}
		return req.RelyingPartyIDHash, nil
	}
	if req.RelyingPartyID == "" {
		return nil, vaulterr.New(vaulterr.KindKeyFormat, "either relying_party_id or relying_party_id_hash is required")
	}
	hash := sha256.Sum256([]byte(req.RelyingPartyID))
	return hash[:], nil
}
