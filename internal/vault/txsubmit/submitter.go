package txsubmit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	"github.com/SafeVault/wallet-service/internal/metrics"
	"github.com/SafeVault/wallet-service/internal/soroban"
	"github.com/SafeVault/wallet-service/internal/types"
	"github.com/SafeVault/wallet-service/internal/vault/vaulterr"
)

// 轮询边界：固定间隔、有限次数，绝不无界等待
const (
	DefaultPollAttempts = 15
	DefaultPollInterval = 2 * time.Second
)

// RPC 提交管道依赖的 RPC 能力
type RPC interface {
	GetAccount(ctx context.Context, accountID string) (*soroban.Account, error)
	SimulateTransaction(ctx context.Context, txBase64 string) (*soroban.SimulateResponse, error)
	SendTransaction(ctx context.Context, txBase64 string) (*soroban.SendResponse, error)
	GetTransaction(ctx context.Context, hash string) (*soroban.GetTransactionResponse, error)
	RawCall(ctx context.Context, method string, params interface{}) (json.RawMessage, error)
}

// Submitter 合约调用提交管道
// 每一步都是前一步失败形态的回退：simulate → prepare → 手工拼接授权 → 裸协议
type Submitter struct {
	rpc          RPC
	builder      *Builder
	sessionKey   *keypair.Full
	pollAttempts int
	pollInterval time.Duration
}

// NewSubmitter 创建提交管道
// sessionKey 是对信封做经典签名的会话密钥，WebAuthn 断言在合约内部验证
func NewSubmitter(rpc RPC, builder *Builder, sessionKey *keypair.Full) *Submitter {
	return &Submitter{
		rpc:          rpc,
		builder:      builder,
		sessionKey:   sessionKey,
		pollAttempts: DefaultPollAttempts,
		pollInterval: DefaultPollInterval,
	}
}

// WithPolling 覆盖轮询参数（测试用）
func (s *Submitter) WithPolling(attempts int, interval time.Duration) *Submitter {
	if attempts > 0 {
		s.pollAttempts = attempts
	}
	if interval > 0 {
		s.pollInterval = interval
	}
	return s
}

// SessionAddress 会话密钥对应的账户地址
func (s *Submitter) SessionAddress() string {
	return s.sessionKey.Address()
}

// Submit 执行完整提交管道并轮询终态
// expectedAuthCount 是该调用结构上需要的最少授权条目数；
// 模拟返回的条目不足时按 AuthorizationMissing 失败，绝不盲目提交
func (s *Submitter) Submit(ctx context.Context, inv Invocation, expectedAuthCount int) (*types.SubmissionOutcome, error) {
	source, err := s.sourceAccount(ctx)
	if err != nil {
		return nil, err
	}

	// 未准备交易：无授权、无资源数据、基础费用
	// 只用于模拟，序列号在一次性副本上递增，source 保持账本值，
	// 否则最终提交的交易会带上递增两次的序列号被链上拒绝
	op, err := s.builder.Operation(inv, nil)
	if err != nil {
		return nil, err
	}
	simSource := &txnbuild.SimpleAccount{AccountID: source.AccountID, Sequence: source.Sequence}
	unpreparedTx, err := s.builder.BuildTransaction(simSource, op, nil, 0)
	if err != nil {
		return nil, err
	}
	unpreparedB64, err := unpreparedTx.Base64()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode unprepared transaction")
	}

	// 第 1 层：模拟，获得资源占用与授权条目
	sim, err := s.rpc.SimulateTransaction(ctx, unpreparedB64)
	if err != nil {
		if vaulterr.IsKind(err, vaulterr.KindProtocolParse) {
			// 结构化客户端解不开模拟响应：版本不兼容，进入裸协议路径
			log.Warn().Err(err).Str("function", inv.Function).Msg("Structured simulation parse failed, falling back to raw protocol path")
			metrics.FallbackDepth.WithLabelValues("raw").Inc()
			return s.rawSubmit(ctx, inv, source, unpreparedB64, expectedAuthCount)
		}
		return nil, err
	}
	if sim.Error != "" {
		return nil, vaulterr.New(vaulterr.KindSimulationFailed, "simulation failed for %s: %s", inv.Function, sim.Error)
	}

	authEntries, authB64, err := decodeAuthEntries(sim)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("function", inv.Function).
		Int("auth_entries", len(authEntries)).
		Int("expected_auth_entries", expectedAuthCount).
		Msg("Simulation returned authorization entries")

	if len(authEntries) < expectedAuthCount {
		// 已知失败形态：嵌套子调用的授权被模拟静默吞掉
		return nil, vaulterr.New(vaulterr.KindAuthorizationMissing,
			"simulation returned %d authorization entries, call structurally requires %d", len(authEntries), expectedAuthCount)
	}

	sorobanData, resourceFee, err := decodeTransactionData(sim)
	if err != nil {
		return nil, err
	}
	totalFee := int64(DefaultBaseFee) + resourceFee

	// 第 2 层：prepare（模拟 + 自动附加），然后解码核验授权条目真的在信封里
	preparedTx, prepareErr := s.prepare(source, inv, authEntries, sorobanData, totalFee, expectedAuthCount)
	if prepareErr != nil {
		// 第 3 层：手工拼接授权
		log.Warn().Err(prepareErr).Str("function", inv.Function).Msg("Prepared transaction failed verification, splicing authorization manually")
		metrics.FallbackDepth.WithLabelValues("spliced").Inc()
		preparedTx, err = s.spliceAuth(source, inv, op, unpreparedB64, authB64, sorobanData, totalFee)
		if err != nil {
			return nil, err
		}
	} else {
		metrics.FallbackDepth.WithLabelValues("prepared").Inc()
	}

	outcome, err := s.signSendAndPoll(ctx, preparedTx)
	if err != nil {
		return nil, err
	}
	metrics.Submissions.WithLabelValues(inv.Function, string(outcome.Status)).Inc()
	return outcome, nil
}

// SimulateRead 只读调用：模拟执行并返回合约返回值，不落账
func (s *Submitter) SimulateRead(ctx context.Context, inv Invocation) (xdr.ScVal, error) {
	source, err := s.sourceAccount(ctx)
	if err != nil {
		return xdr.ScVal{}, err
	}
	op, err := s.builder.Operation(inv, nil)
	if err != nil {
		return xdr.ScVal{}, err
	}
	tx, err := s.builder.BuildTransaction(source, op, nil, 0)
	if err != nil {
		return xdr.ScVal{}, err
	}
	txB64, err := tx.Base64()
	if err != nil {
		return xdr.ScVal{}, errors.Wrap(err, "failed to encode read transaction")
	}

	sim, err := s.rpc.SimulateTransaction(ctx, txB64)
	if err != nil {
		return xdr.ScVal{}, err
	}
	if sim.Error != "" {
		return xdr.ScVal{}, vaulterr.New(vaulterr.KindSimulationFailed, "read simulation failed for %s: %s", inv.Function, sim.Error)
	}
	if len(sim.Results) == 0 || sim.Results[0].XDR == "" {
		return xdr.ScVal{}, vaulterr.New(vaulterr.KindSimulationFailed, "read simulation for %s returned no result", inv.Function)
	}

	var value xdr.ScVal
	if err := xdr.SafeUnmarshalBase64(sim.Results[0].XDR, &value); err != nil {
		return xdr.ScVal{}, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "failed to decode read result for %s", inv.Function)
	}
	return value, nil
}

// prepare 组装带资源数据与授权的交易，并解码信封自检
// SDK 的已知不一致：自动附加有时会静默丢掉嵌套授权，必须数一遍
func (s *Submitter) prepare(source *txnbuild.SimpleAccount, inv Invocation, auth []xdr.SorobanAuthorizationEntry, sorobanData *xdr.SorobanTransactionData, fee int64, expectedAuthCount int) (*txnbuild.Transaction, error) {
	// 重新取一份 source，避免两次 build 重复递增序列号
	prepSource := &txnbuild.SimpleAccount{AccountID: source.AccountID, Sequence: source.Sequence}

	op, err := s.builder.Operation(inv, auth)
	if err != nil {
		return nil, err
	}
	tx, err := s.builder.BuildTransaction(prepSource, op, sorobanData, fee)
	if err != nil {
		return nil, err
	}

	// 信封回读核验
	txB64, err := tx.Base64()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode prepared transaction")
	}
	var envelope xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(txB64, &envelope); err != nil {
		return nil, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "prepared transaction envelope does not decode")
	}
	ops := envelope.Operations()
	if len(ops) != 1 {
		return nil, vaulterr.New(vaulterr.KindAuthorizationMissing, "prepared envelope has %d operations, want 1", len(ops))
	}
	invokeOp, ok := ops[0].Body.GetInvokeHostFunctionOp()
	if !ok {
		return nil, vaulterr.New(vaulterr.KindAuthorizationMissing, "prepared envelope operation is not invoke-host-function")
	}
	if len(invokeOp.Auth) < expectedAuthCount {
		return nil, vaulterr.New(vaulterr.KindAuthorizationMissing,
			"prepared envelope carries %d authorization entries, want %d", len(invokeOp.Auth), expectedAuthCount)
	}
	return tx, nil
}

// spliceAuth 手工重建操作并拼接授权条目
// 函数描述符按三种策略重新提取（从最直接到最不直接），授权条目从模拟
// 返回的规范线格式逐条解码后原样重挂，费用显式设为 基础费 + 资源费
func (s *Submitter) spliceAuth(source *txnbuild.SimpleAccount, inv Invocation, originalOp *txnbuild.InvokeHostFunction, unpreparedB64 string, authB64 []string, sorobanData *xdr.SorobanTransactionData, fee int64) (*txnbuild.Transaction, error) {
	descriptor, strategy := s.extractDescriptor(inv, originalOp, unpreparedB64)
	log.Info().Str("function", descriptor.Function).Str("extraction_strategy", strategy).Msg("Re-extracted function descriptor for manual auth splice")

	auth := make([]xdr.SorobanAuthorizationEntry, 0, len(authB64))
	for i, entryB64 := range authB64 {
		var entry xdr.SorobanAuthorizationEntry
		if err := xdr.SafeUnmarshalBase64(entryB64, &entry); err != nil {
			return nil, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "authorization entry %d does not decode", i)
		}
		auth = append(auth, entry)
	}

	spliceSource := &txnbuild.SimpleAccount{AccountID: source.AccountID, Sequence: source.Sequence}
	op, err := s.builder.Operation(descriptor, auth)
	if err != nil {
		return nil, err
	}
	return s.builder.BuildTransaction(spliceSource, op, sorobanData, fee)
}

// extractDescriptor 从未准备操作中重取函数描述符
// 策略 1：内存中的操作对象；策略 2：解码未准备信封；策略 3：管道自己持有的描述符
func (s *Submitter) extractDescriptor(inv Invocation, originalOp *txnbuild.InvokeHostFunction, unpreparedB64 string) (Invocation, string) {
	if originalOp != nil && originalOp.HostFunction.InvokeContract != nil {
		args := originalOp.HostFunction.InvokeContract
		return Invocation{Function: string(args.FunctionName), Args: args.Args}, "operation"
	}

	var envelope xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(unpreparedB64, &envelope); err == nil {
		if ops := envelope.Operations(); len(ops) == 1 {
			if invokeOp, ok := ops[0].Body.GetInvokeHostFunctionOp(); ok && invokeOp.HostFunction.InvokeContract != nil {
				args := invokeOp.HostFunction.InvokeContract
				return Invocation{Function: string(args.FunctionName), Args: args.Args}, "envelope"
			}
		}
	}

	return inv, "pipeline"
}

// signSendAndPoll 签名、提交、有界轮询终态
func (s *Submitter) signSendAndPoll(ctx context.Context, tx *txnbuild.Transaction) (*types.SubmissionOutcome, error) {
	signedTx, err := tx.Sign(s.builder.NetworkPassphrase(), s.sessionKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction with session key")
	}
	signedB64, err := signedTx.Base64()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode signed transaction")
	}
	txHash, err := signedTx.HashHex(s.builder.NetworkPassphrase())
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash signed transaction")
	}

	send, err := s.rpc.SendTransaction(ctx, signedB64)
	if err != nil {
		if e, ok := vaulterr.AsError(err); ok {
			e.WithTxHash(txHash)
		}
		return nil, err
	}
	if send.Status == soroban.StatusError {
		// ERROR 是终态，立即失败
		return nil, vaulterr.New(vaulterr.KindNetwork, "transaction rejected on submit: %s", send.ErrorResultXDR).WithTxHash(txHash)
	}

	log.Info().Str("tx_hash", txHash).Str("send_status", send.Status).Msg("Transaction submitted, polling for terminal status")
	return s.pollTerminal(ctx, txHash)
}

// pollTerminal 固定间隔有界轮询
// 超出边界返回 pending 由调用方链上核对，绝不阻塞等待
func (s *Submitter) pollTerminal(ctx context.Context, txHash string) (*types.SubmissionOutcome, error) {
	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, vaulterr.Wrap(ctx.Err(), vaulterr.KindPollTimeout, "context cancelled while polling").WithTxHash(txHash)
		case <-time.After(s.pollInterval):
		}

		resp, err := s.rpc.GetTransaction(ctx, txHash)
		if err != nil {
			log.Warn().Err(err).Str("tx_hash", txHash).Int("attempt", attempt+1).Msg("Failed to poll transaction status")
			continue
		}

		switch resp.Status {
		case soroban.StatusSuccess, soroban.StatusFailed:
			return Classify(txHash, resp), nil
		case soroban.StatusError:
			return nil, vaulterr.New(vaulterr.KindNetwork, "transaction reached ERROR status").WithTxHash(txHash)
		default:
			// NOT_FOUND / PENDING：继续轮询
		}
	}

	metrics.PollTimeouts.Inc()
	log.Warn().Str("tx_hash", txHash).Int("attempts", s.pollAttempts).Msg("Transaction still pending after bounded poll, verify out of band")
	return &types.SubmissionOutcome{
		Status:    types.SubmissionStatusPending,
		TxHash:    txHash,
		ErrorKind: string(vaulterr.KindPollTimeout),
		Message:   "transaction not terminal after bounded polling, verify out of band",
	}, nil
}

func (s *Submitter) sourceAccount(ctx context.Context) (*txnbuild.SimpleAccount, error) {
	account, err := s.rpc.GetAccount(ctx, s.sessionKey.Address())
	if err != nil {
		return nil, err
	}
	return &txnbuild.SimpleAccount{AccountID: account.AccountID, Sequence: account.Sequence}, nil
}

// decodeAuthEntries 解码模拟返回的授权条目，同时保留原始 base64 线格式
func decodeAuthEntries(sim *soroban.SimulateResponse) ([]xdr.SorobanAuthorizationEntry, []string, error) {
	if len(sim.Results) == 0 {
		return nil, nil, nil
	}
	authB64 := sim.Results[0].Auth
	entries := make([]xdr.SorobanAuthorizationEntry, 0, len(authB64))
	for i, entryB64 := range authB64 {
		var entry xdr.SorobanAuthorizationEntry
		if err := xdr.SafeUnmarshalBase64(entryB64, &entry); err != nil {
			return nil, nil, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "authorization entry %d from simulation does not decode", i)
		}
		entries = append(entries, entry)
	}
	return entries, authB64, nil
}

// decodeTransactionData 解码资源数据并解析最小资源费
func decodeTransactionData(sim *soroban.SimulateResponse) (*xdr.SorobanTransactionData, int64, error) {
	if sim.TransactionData == "" {
		return nil, 0, vaulterr.New(vaulterr.KindSimulationFailed, "simulation returned no transaction data")
	}
	var data xdr.SorobanTransactionData
	if err := xdr.SafeUnmarshalBase64(sim.TransactionData, &data); err != nil {
		return nil, 0, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "soroban transaction data does not decode")
	}
	resourceFee, err := strconv.ParseInt(sim.MinResourceFee, 10, 64)
	if err != nil {
		return nil, 0, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "min resource fee %q does not parse", sim.MinResourceFee)
	}
	return &data, resourceFee, nil
}
