package txsubmit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	"github.com/SafeVault/wallet-service/internal/metrics"
	"github.com/SafeVault/wallet-service/internal/soroban"
	"github.com/SafeVault/wallet-service/internal/types"
	"github.com/SafeVault/wallet-service/internal/vault/vaulterr"
)

// rawSimulation 裸协议路径手工解析的模拟响应
// 字段全部宽松可选，不同 RPC 版本的响应形状差异在这里被吸收
type rawSimulation struct {
	Error           string
	TransactionData string
	MinResourceFee  string
	Auth            []string
}

// rawSubmit 裸协议回退路径
// 结构化客户端解不开模拟响应时，手工构造 JSON-RPC 的
// simulateTransaction / sendTransaction 调用并按哈希轮询 getTransaction
func (s *Submitter) rawSubmit(ctx context.Context, inv Invocation, source *txnbuild.SimpleAccount, unpreparedB64 string, expectedAuthCount int) (*types.SubmissionOutcome, error) {
	sim, err := s.rawSimulate(ctx, unpreparedB64)
	if err != nil {
		return nil, err
	}
	if sim.Error != "" {
		return nil, vaulterr.New(vaulterr.KindSimulationFailed, "raw simulation failed for %s: %s", inv.Function, sim.Error)
	}

	// 资源数据这一步没有再退一层的余地：解不开就只能浮出 ProtocolParse
	var sorobanData xdr.SorobanTransactionData
	if err := xdr.SafeUnmarshalBase64(sim.TransactionData, &sorobanData); err != nil {
		return nil, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "raw path: soroban transaction data does not decode, all strategies exhausted")
	}
	resourceFee, err := strconv.ParseInt(sim.MinResourceFee, 10, 64)
	if err != nil {
		resourceFee = 0
		log.Warn().Str("min_resource_fee", sim.MinResourceFee).Msg("Raw path: min resource fee does not parse, falling back to base fee only")
	}

	auth := make([]xdr.SorobanAuthorizationEntry, 0, len(sim.Auth))
	for i, entryB64 := range sim.Auth {
		var entry xdr.SorobanAuthorizationEntry
		if err := xdr.SafeUnmarshalBase64(entryB64, &entry); err != nil {
			return nil, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "raw path: authorization entry %d does not decode", i)
		}
		auth = append(auth, entry)
	}
	log.Info().Str("function", inv.Function).Int("auth_entries", len(auth)).Msg("Raw path: simulation parsed by hand")

	// 裸协议路径同样不盲目提交：授权条目不足在签名前就失败
	if len(auth) < expectedAuthCount {
		return nil, vaulterr.New(vaulterr.KindAuthorizationMissing,
			"raw simulation returned %d authorization entries, call structurally requires %d", len(auth), expectedAuthCount)
	}

	rawSource := &txnbuild.SimpleAccount{AccountID: source.AccountID, Sequence: source.Sequence}
	op, err := s.builder.Operation(inv, auth)
	if err != nil {
		return nil, err
	}
	tx, err := s.builder.BuildTransaction(rawSource, op, &sorobanData, int64(DefaultBaseFee)+resourceFee)
	if err != nil {
		return nil, err
	}

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

	if err := s.rawSend(ctx, signedB64, txHash); err != nil {
		return nil, err
	}

	outcome, err := s.rawPoll(ctx, txHash)
	if err != nil {
		return nil, err
	}
	metrics.Submissions.WithLabelValues(inv.Function, string(outcome.Status)).Inc()
	return outcome, nil
}

// rawSimulate 手工构造 simulateTransaction 并宽松解析
func (s *Submitter) rawSimulate(ctx context.Context, txB64 string) (*rawSimulation, error) {
	result, err := s.rpc.RawCall(ctx, "simulateTransaction", map[string]interface{}{
		"transaction": txB64,
	})
	if err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "raw simulation response is not a JSON object")
	}

	sim := &rawSimulation{
		Error:           stringField(payload, "error"),
		TransactionData: stringField(payload, "transactionData"),
		MinResourceFee:  stringField(payload, "minResourceFee"),
	}

	if results, ok := payload["results"].([]interface{}); ok && len(results) > 0 {
		if first, ok := results[0].(map[string]interface{}); ok {
			if authList, ok := first["auth"].([]interface{}); ok {
				for _, item := range authList {
					if entry, ok := item.(string); ok {
						sim.Auth = append(sim.Auth, entry)
					}
				}
			}
		}
	}
	return sim, nil
}

// rawSend 手工构造 sendTransaction
func (s *Submitter) rawSend(ctx context.Context, signedB64, txHash string) error {
	result, err := s.rpc.RawCall(ctx, "sendTransaction", map[string]interface{}{
		"transaction": signedB64,
	})
	if err != nil {
		if e, ok := vaulterr.AsError(err); ok {
			e.WithTxHash(txHash)
		}
		return err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(result, &payload); err != nil {
		return vaulterr.Wrap(err, vaulterr.KindProtocolParse, "raw send response is not a JSON object").WithTxHash(txHash)
	}
	if status := stringField(payload, "status"); status == soroban.StatusError {
		return vaulterr.New(vaulterr.KindNetwork, "raw path: transaction rejected on submit: %s", stringField(payload, "errorResultXdr")).WithTxHash(txHash)
	}

	log.Info().Str("tx_hash", txHash).Msg("Raw path: transaction submitted, polling by hash")
	return nil
}

// rawPoll 手工轮询 getTransaction，终态交给统一分类器
func (s *Submitter) rawPoll(ctx context.Context, txHash string) (*types.SubmissionOutcome, error) {
	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, vaulterr.Wrap(ctx.Err(), vaulterr.KindPollTimeout, "context cancelled while polling").WithTxHash(txHash)
		case <-time.After(s.pollInterval):
		}

		result, err := s.rpc.RawCall(ctx, "getTransaction", map[string]interface{}{
			"hash": txHash,
		})
		if err != nil {
			log.Warn().Err(err).Str("tx_hash", txHash).Int("attempt", attempt+1).Msg("Raw path: failed to poll transaction status")
			continue
		}

		var payload map[string]interface{}
		if err := json.Unmarshal(result, &payload); err != nil {
			log.Warn().Err(err).Str("tx_hash", txHash).Msg("Raw path: poll response is not a JSON object")
			continue
		}

		status := stringField(payload, "status")
		switch status {
		case soroban.StatusSuccess, soroban.StatusFailed:
			resp := &soroban.GetTransactionResponse{
				Status:        status,
				ResultXDR:     stringField(payload, "resultXdr"),
				ResultMetaXDR: stringField(payload, "resultMetaXdr"),
			}
			if ledger, ok := payload["ledger"].(float64); ok {
				resp.Ledger = uint32(ledger)
			}
			return Classify(txHash, resp), nil
		case soroban.StatusError:
			return nil, vaulterr.New(vaulterr.KindNetwork, "raw path: transaction reached ERROR status").WithTxHash(txHash)
		}
	}

	metrics.PollTimeouts.Inc()
	return &types.SubmissionOutcome{
		Status:    types.SubmissionStatusPending,
		TxHash:    txHash,
		ErrorKind: string(vaulterr.KindPollTimeout),
		Message:   "transaction not terminal after bounded polling, verify out of band",
	}, nil
}

func stringField(payload map[string]interface{}, key string) string {
	if value, ok := payload[key].(string); ok {
		return value
	}
	return ""
}
