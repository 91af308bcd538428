package vault

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/stellar/go/xdr"

	"github.com/SafeVault/wallet-service/internal/auth"
	"github.com/SafeVault/wallet-service/internal/metrics"
	"github.com/SafeVault/wallet-service/internal/types"
	"github.com/SafeVault/wallet-service/internal/vault/challenge"
	"github.com/SafeVault/wallet-service/internal/vault/codec"
	"github.com/SafeVault/wallet-service/internal/vault/registry"
	"github.com/SafeVault/wallet-service/internal/vault/txsubmit"
	"github.com/SafeVault/wallet-service/internal/vault/vaulterr"
)

// PaymentAuthEntries 转账与入金调用结构上需要的授权条目数
// 合约内部会再调用资产合约，模拟必须返回两层授权
const PaymentAuthEntries = 2

// Service 钱包门面
// 把编解码、challenge 绑定、注册核验、提交管道串成完整的调用链
type Service struct {
	registry *registry.Client
	pipeline registry.Pipeline
	builder  *txsubmit.Builder
	rpID     string
	// binder 非 nil 时 challenge 走一次性消费，同一 challenge 不能用两次
	binder *challenge.Binder
	// preflight 提交前本地预检断言签名，拦掉必然失败的提交
	preflight bool
}

// NewService 创建钱包门面
func NewService(reg *registry.Client, pipeline registry.Pipeline, builder *txsubmit.Builder, rpID string) *Service {
	return &Service{
		registry:  reg,
		pipeline:  pipeline,
		builder:   builder,
		rpID:      rpID,
		preflight: true,
	}
}

// WithPreflight 开关本地断言预检
func (s *Service) WithPreflight(enabled bool) *Service {
	s.preflight = enabled
	return s
}

// WithBinder 启用一次性 challenge 消费
func (s *Service) WithBinder(b *challenge.Binder) *Service {
	s.binder = b
	return s
}

// CheckRegistration 查询签名者注册状态
func (s *Service) CheckRegistration(ctx context.Context, signer string) (types.RegistrationState, error) {
	return s.registry.Status(ctx, signer)
}

// RegisterSigner 幂等注册签名者
func (s *Service) RegisterSigner(ctx context.Context, req *types.RegisterSignerRequest) (*types.RegistrationResult, error) {
	return s.registry.Ensure(ctx, req)
}

// ExecutePayment 执行一笔 WebAuthn 授权的转账
// 顺序固定：challenge 绑定最先（最便宜的检查），然后签名编解码、
// 注册核验、本地预检，最后才上链
func (s *Service) ExecutePayment(ctx context.Context, intent *types.TransactionIntent) (*types.SubmissionOutcome, error) {
	sig, amount, err := s.validateIntent(ctx, intent)
	if err != nil {
		return nil, err
	}
	if intent.Destination == "" {
		return nil, vaulterr.New(vaulterr.KindKeyFormat, "destination is required for a payment")
	}

	inv, err := s.builder.ExecutePayment(
		intent.Signer, intent.Destination, amount, intent.Asset,
		intent.SignaturePayload, sig, intent.AuthenticatorData, intent.ClientDataJSON)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("signer", intent.Signer).
		Str("destination", intent.Destination).
		Str("amount", intent.Amount).
		Msg("Submitting payment")
	return s.pipeline.Submit(ctx, inv, PaymentAuthEntries)
}

// DepositFunds 执行一笔 WebAuthn 授权的入金
func (s *Service) DepositFunds(ctx context.Context, intent *types.TransactionIntent) (*types.SubmissionOutcome, error) {
	sig, amount, err := s.validateIntent(ctx, intent)
	if err != nil {
		return nil, err
	}

	inv, err := s.builder.Deposit(
		intent.Signer, intent.Asset, amount,
		intent.SignaturePayload, sig, intent.AuthenticatorData, intent.ClientDataJSON)
	if err != nil {
		return nil, err
	}
	log.Info().Str("signer", intent.Signer).Str("amount", intent.Amount).Msg("Submitting deposit")
	return s.pipeline.Submit(ctx, inv, PaymentAuthEntries)
}

// GetBalance 读取链上余额（stroops）
func (s *Service) GetBalance(ctx context.Context, user string, asset string) (int64, error) {
	inv, err := s.builder.GetBalance(user, asset)
	if err != nil {
		return 0, err
	}
	value, err := s.pipeline.SimulateRead(ctx, inv)
	if err != nil {
		return 0, err
	}
	parts, ok := value.GetI128()
	if !ok {
		return 0, vaulterr.New(vaulterr.KindProtocolParse, "get_balance returned unexpected value type %v", value.Type)
	}
	return i128ToInt64(parts)
}

// validateIntent 转账与入金共用的前置校验链
func (s *Service) validateIntent(ctx context.Context, intent *types.TransactionIntent) (sig []byte, amount int64, err error) {
	// challenge 绑定最先做：纯内存比较，失败时一个 RPC 都不用发
	// 配置了 binder 时同时消费一次性记录，防止断言重放
	if s.binder != nil {
		err = s.binder.VerifyAndConsume(ctx, intent.SignaturePayload, intent.ClientDataJSON)
	} else {
		err = challenge.BindAndVerify(intent.SignaturePayload, intent.ClientDataJSON)
	}
	if err != nil {
		if vaulterr.IsKind(err, vaulterr.KindChallengeMismatch) {
			metrics.ChallengeMismatches.Inc()
		}
		return nil, 0, err
	}

	sig, err = codec.DecodeAndNormalize(intent.WebAuthnSignature)
	if err != nil {
		return nil, 0, err
	}

	amount, err = txsubmit.ParseAmount(intent.Amount)
	if err != nil {
		return nil, 0, vaulterr.Wrap(err, vaulterr.KindKeyFormat, "invalid amount")
	}
	if amount <= 0 {
		return nil, 0, vaulterr.New(vaulterr.KindKeyFormat, "amount must be positive, got %s", intent.Amount)
	}

	// 签名者必须已注册，否则合约必然返回 false，白白烧手续费
	storedKey, found, err := s.registry.StoredKey(ctx, intent.Signer)
	if err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, 0, vaulterr.New(vaulterr.KindRegistrationUnconfirmed,
			"signer %s is not registered; call register first", intent.Signer)
	}

	if s.preflight {
		if err := auth.VerifyAssertion(storedKey, sig, intent.AuthenticatorData, intent.ClientDataJSON, s.rpID); err != nil {
			return nil, 0, err
		}
	}
	return sig, amount, nil
}

// i128ToInt64 把 i128 余额压回 int64，超界时报协议错误
func i128ToInt64(parts xdr.Int128Parts) (int64, error) {
	switch parts.Hi {
	case 0:
		if uint64(parts.Lo) > uint64(1)<<63-1 {
			return 0, vaulterr.New(vaulterr.KindProtocolParse, "balance overflows int64")
		}
		return int64(parts.Lo), nil
	case -1:
		v := int64(parts.Lo)
		if v >= 0 {
			return 0, vaulterr.New(vaulterr.KindProtocolParse, "balance underflows int64")
		}
		return v, nil
	}
	return 0, vaulterr.New(vaulterr.KindProtocolParse, "balance does not fit in 64 bits")
}
