package txsubmit

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/stellar/go/xdr"

	"github.com/SafeVault/wallet-service/internal/soroban"
	"github.com/SafeVault/wallet-service/internal/types"
	"github.com/SafeVault/wallet-service/internal/vault/vaulterr"
)

// Classify 把账本终态映射为结构化结果
// 分类只依赖结构化的 status/kind 字段，诊断事件文本仅作佐证附加
func Classify(txHash string, resp *soroban.GetTransactionResponse) *types.SubmissionOutcome {
	outcome := &types.SubmissionOutcome{
		TxHash: txHash,
		Ledger: resp.Ledger,
	}

	switch resp.Status {
	case soroban.StatusSuccess:
		classifySuccess(resp, outcome)
	case soroban.StatusFailed:
		classifyFailed(resp, outcome)
	case soroban.StatusNotFound, soroban.StatusPending:
		outcome.Status = types.SubmissionStatusPending
		outcome.Message = "transaction not yet in a terminal state, verify out of band"
	default:
		outcome.Status = types.SubmissionStatusFailed
		outcome.ErrorKind = string(vaulterr.KindNetwork)
		outcome.Message = fmt.Sprintf("unexpected transaction status %q", resp.Status)
	}

	outcome.Diagnostics = append(outcome.Diagnostics, decodeDiagnostics(resp)...)
	return outcome
}

// classifySuccess 交易落账成功；合约自身的布尔返回值决定业务结果
func classifySuccess(resp *soroban.GetTransactionResponse, outcome *types.SubmissionOutcome) {
	returnValue, ok := contractReturnValue(resp.ResultMetaXDR)
	if !ok {
		// 落账成功但返回值不可解码，按成功处理并记录
		log.Warn().Str("tx_hash", outcome.TxHash).Msg("Transaction succeeded but return value could not be decoded")
		outcome.Status = types.SubmissionStatusSuccess
		outcome.Message = "transaction applied; contract return value not decodable"
		return
	}

	boolValue, isBool := returnValue.GetB()
	if isBool && !boolValue {
		// 最常见的失败形态：交易落账，但合约自己的前置检查拒绝了调用
		// 典型原因是签名者未注册或 challenge 不匹配
		falseValue := false
		outcome.Status = types.SubmissionStatusFailed
		outcome.ContractReturnValue = &falseValue
		outcome.ErrorKind = string(vaulterr.KindContractReturnedFalse)
		outcome.Message = "contract rejected the call (returned false); check signer registration and challenge binding"
		return
	}

	outcome.Status = types.SubmissionStatusSuccess
	if isBool {
		trueValue := true
		outcome.ContractReturnValue = &trueValue
	}
	outcome.Message = "transaction applied"
}

// classifyFailed 宿主层失败；尽力从嵌套 union 提取错误细类
func classifyFailed(resp *soroban.GetTransactionResponse, outcome *types.SubmissionOutcome) {
	outcome.Status = types.SubmissionStatusFailed
	outcome.ErrorKind = string(vaulterr.KindHostError)
	outcome.HostErrorKind = string(vaulterr.HostKindUnknown)
	outcome.Message = "transaction failed in the host"

	if resp.ResultXDR != "" {
		var result xdr.TransactionResult
		if err := xdr.SafeUnmarshalBase64(resp.ResultXDR, &result); err != nil {
			log.Warn().Err(err).Msg("Failed to decode transaction result XDR")
		} else {
			outcome.Message = fmt.Sprintf("transaction failed: %s", result.Result.Code.String())
		}
	}

	if kind, found := hostErrorKindFromDiagnostics(resp); found {
		outcome.HostErrorKind = string(kind)
	}
}

// contractReturnValue 从交易元数据中取出合约返回值
func contractReturnValue(metaB64 string) (xdr.ScVal, bool) {
	if metaB64 == "" {
		return xdr.ScVal{}, false
	}
	var meta xdr.TransactionMeta
	if err := xdr.SafeUnmarshalBase64(metaB64, &meta); err != nil {
		return xdr.ScVal{}, false
	}
	if meta.V != 3 || meta.V3 == nil || meta.V3.SorobanMeta == nil {
		return xdr.ScVal{}, false
	}
	return meta.V3.SorobanMeta.ReturnValue, true
}

// hostErrorKindFromDiagnostics 在诊断事件中查找 ScError 并映射细类
func hostErrorKindFromDiagnostics(resp *soroban.GetTransactionResponse) (vaulterr.HostKind, bool) {
	for _, event := range diagnosticEvents(resp) {
		if kind, found := hostKindFromEvent(event); found {
			return kind, true
		}
	}
	return vaulterr.HostKindUnknown, false
}

func hostKindFromEvent(event xdr.DiagnosticEvent) (vaulterr.HostKind, bool) {
	body, ok := event.Event.Body.GetV0()
	if !ok {
		return "", false
	}
	for _, topic := range body.Topics {
		if scErr, isErr := topic.GetError(); isErr {
			return mapScErrorType(scErr.Type), true
		}
	}
	if scErr, isErr := body.Data.GetError(); isErr {
		return mapScErrorType(scErr.Type), true
	}
	return "", false
}

func mapScErrorType(t xdr.ScErrorType) vaulterr.HostKind {
	switch t {
	case xdr.ScErrorTypeSceContract:
		return vaulterr.HostKindContract
	case xdr.ScErrorTypeSceWasmVm:
		return vaulterr.HostKindWasmVM
	case xdr.ScErrorTypeSceContext:
		return vaulterr.HostKindContext
	case xdr.ScErrorTypeSceStorage:
		return vaulterr.HostKindStorage
	case xdr.ScErrorTypeSceObject:
		return vaulterr.HostKindObject
	case xdr.ScErrorTypeSceCrypto:
		return vaulterr.HostKindCrypto
	case xdr.ScErrorTypeSceEvents:
		return vaulterr.HostKindEvents
	case xdr.ScErrorTypeSceBudget:
		return vaulterr.HostKindBudget
	case xdr.ScErrorTypeSceValue:
		return vaulterr.HostKindValue
	case xdr.ScErrorTypeSceAuth:
		return vaulterr.HostKindAuth
	default:
		return vaulterr.HostKindUnknown
	}
}

// diagnosticEvents 收集所有可解码的诊断事件
// 优先取 getTransaction 的 diagnosticEventsXdr，退回交易元数据中的事件
func diagnosticEvents(resp *soroban.GetTransactionResponse) []xdr.DiagnosticEvent {
	var events []xdr.DiagnosticEvent
	for _, eventB64 := range resp.DiagnosticEventsXDR {
		var event xdr.DiagnosticEvent
		if err := xdr.SafeUnmarshalBase64(eventB64, &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	if len(events) > 0 || resp.ResultMetaXDR == "" {
		return events
	}

	var meta xdr.TransactionMeta
	if err := xdr.SafeUnmarshalBase64(resp.ResultMetaXDR, &meta); err != nil {
		return events
	}
	if meta.V == 3 && meta.V3 != nil && meta.V3.SorobanMeta != nil {
		events = append(events, meta.V3.SorobanMeta.DiagnosticEvents...)
	}
	return events
}

// decodeDiagnostics 尽力把诊断事件渲染成自由文本证据
func decodeDiagnostics(resp *soroban.GetTransactionResponse) []string {
	var texts []string
	for _, event := range diagnosticEvents(resp) {
		if text := renderDiagnosticEvent(event); text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}

func renderDiagnosticEvent(event xdr.DiagnosticEvent) string {
	body, ok := event.Event.Body.GetV0()
	if !ok {
		return ""
	}
	var parts []string
	for _, topic := range body.Topics {
		if s := renderScVal(topic); s != "" {
			parts = append(parts, s)
		}
	}
	if s := renderScVal(body.Data); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// renderScVal 渲染常见的诊断值类型；其余类型返回空串
func renderScVal(v xdr.ScVal) string {
	switch v.Type {
	case xdr.ScValTypeScvString:
		if s, ok := v.GetStr(); ok {
			return string(s)
		}
	case xdr.ScValTypeScvSymbol:
		if s, ok := v.GetSym(); ok {
			return string(s)
		}
	case xdr.ScValTypeScvBytes:
		if b, ok := v.GetBytes(); ok {
			if isPrintable(b) {
				return string(b)
			}
			return hex.EncodeToString(b)
		}
	case xdr.ScValTypeScvError:
		if e, ok := v.GetError(); ok {
			return fmt.Sprintf("error(%s)", e.Type.String())
		}
	case xdr.ScValTypeScvVec:
		if vec, ok := v.GetVec(); ok && vec != nil {
			var parts []string
			for _, item := range *vec {
				if s := renderScVal(item); s != "" {
					parts = append(parts, s)
				}
			}
			return strings.Join(parts, " ")
		}
	}
	return ""
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return len(b) > 0
}
