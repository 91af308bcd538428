package txsubmit

import (
	"testing"

	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SafeVault/wallet-service/internal/soroban"
	"github.com/SafeVault/wallet-service/internal/types"
	"github.com/SafeVault/wallet-service/internal/vault/vaulterr"
)

// metaWithReturn 构造带合约返回值的 V3 交易元数据
func metaWithReturn(t *testing.T, returnValue xdr.ScVal) string {
	t.Helper()
	meta := xdr.TransactionMeta{
		V: 3,
		V3: &xdr.TransactionMetaV3{
			SorobanMeta: &xdr.SorobanTransactionMeta{
				ReturnValue: returnValue,
			},
		},
	}
	b64, err := xdr.MarshalBase64(meta)
	require.NoError(t, err)
	return b64
}

func boolVal(v bool) xdr.ScVal {
	return xdr.ScVal{Type: xdr.ScValTypeScvBool, B: &v}
}

// scErrorEvent 构造一条携带 ScError 的诊断事件
func scErrorEvent(t *testing.T, errType xdr.ScErrorType) string {
	t.Helper()
	code := xdr.ScErrorCodeScecMissingValue
	errVal := xdr.ScVal{
		Type:  xdr.ScValTypeScvError,
		Error: &xdr.ScError{Type: errType, Code: &code},
	}
	msg := xdr.ScString("escalating error to VM trap")
	event := xdr.DiagnosticEvent{
		InSuccessfulContractCall: false,
		Event: xdr.ContractEvent{
			Type: xdr.ContractEventTypeDiagnostic,
			Body: xdr.ContractEventBody{
				V: 0,
				V0: &xdr.ContractEventV0{
					Topics: []xdr.ScVal{errVal},
					Data:   xdr.ScVal{Type: xdr.ScValTypeScvString, Str: &msg},
				},
			},
		},
	}
	b64, err := xdr.MarshalBase64(event)
	require.NoError(t, err)
	return b64
}

func TestClassifySuccessTrue(t *testing.T) {
	resp := &soroban.GetTransactionResponse{
		Status:        soroban.StatusSuccess,
		Ledger:        12345,
		ResultMetaXDR: metaWithReturn(t, boolVal(true)),
	}
	outcome := Classify("abc123", resp)

	assert.Equal(t, types.SubmissionStatusSuccess, outcome.Status)
	assert.Equal(t, "abc123", outcome.TxHash)
	assert.Equal(t, uint32(12345), outcome.Ledger)
	require.NotNil(t, outcome.ContractReturnValue)
	assert.True(t, *outcome.ContractReturnValue)
	assert.Empty(t, outcome.ErrorKind)
}

// 交易落账成功但合约自己返回 false：业务上是失败，不是宿主错误
func TestClassifySuccessContractReturnedFalse(t *testing.T) {
	resp := &soroban.GetTransactionResponse{
		Status:        soroban.StatusSuccess,
		ResultMetaXDR: metaWithReturn(t, boolVal(false)),
	}
	outcome := Classify("abc123", resp)

	assert.Equal(t, types.SubmissionStatusFailed, outcome.Status)
	require.NotNil(t, outcome.ContractReturnValue)
	assert.False(t, *outcome.ContractReturnValue)
	assert.Equal(t, string(vaulterr.KindContractReturnedFalse), outcome.ErrorKind)
	assert.Contains(t, outcome.Message, "signer registration")
}

// 元数据解不开时落账成功仍按成功处理
func TestClassifySuccessUndecodableMeta(t *testing.T) {
	resp := &soroban.GetTransactionResponse{
		Status:        soroban.StatusSuccess,
		ResultMetaXDR: "not-base64-xdr",
	}
	outcome := Classify("abc123", resp)
	assert.Equal(t, types.SubmissionStatusSuccess, outcome.Status)
	assert.Nil(t, outcome.ContractReturnValue)
}

// 宿主层失败且诊断事件携带 Storage 类 ScError
func TestClassifyFailedStorageError(t *testing.T) {
	resp := &soroban.GetTransactionResponse{
		Status:              soroban.StatusFailed,
		DiagnosticEventsXDR: []string{scErrorEvent(t, xdr.ScErrorTypeSceStorage)},
	}
	outcome := Classify("abc123", resp)

	assert.Equal(t, types.SubmissionStatusFailed, outcome.Status)
	assert.Equal(t, string(vaulterr.KindHostError), outcome.ErrorKind)
	assert.Equal(t, string(vaulterr.HostKindStorage), outcome.HostErrorKind)
	// 诊断文本仅作佐证附加
	assert.NotEmpty(t, outcome.Diagnostics)
}

func TestClassifyFailedErrorKinds(t *testing.T) {
	cases := []struct {
		errType xdr.ScErrorType
		want    vaulterr.HostKind
	}{
		{xdr.ScErrorTypeSceCrypto, vaulterr.HostKindCrypto},
		{xdr.ScErrorTypeSceBudget, vaulterr.HostKindBudget},
		{xdr.ScErrorTypeSceAuth, vaulterr.HostKindAuth},
		{xdr.ScErrorTypeSceWasmVm, vaulterr.HostKindWasmVM},
	}
	for _, tc := range cases {
		resp := &soroban.GetTransactionResponse{
			Status:              soroban.StatusFailed,
			DiagnosticEventsXDR: []string{scErrorEvent(t, tc.errType)},
		}
		outcome := Classify("abc123", resp)
		assert.Equal(t, string(tc.want), outcome.HostErrorKind, "error type %v", tc.errType)
	}
}

// 没有任何可解码诊断时退回 UNKNOWN 细类
func TestClassifyFailedNoDiagnostics(t *testing.T) {
	resp := &soroban.GetTransactionResponse{Status: soroban.StatusFailed}
	outcome := Classify("abc123", resp)

	assert.Equal(t, types.SubmissionStatusFailed, outcome.Status)
	assert.Equal(t, string(vaulterr.KindHostError), outcome.ErrorKind)
	assert.Equal(t, string(vaulterr.HostKindUnknown), outcome.HostErrorKind)
}

func TestClassifyNotTerminal(t *testing.T) {
	for _, status := range []string{soroban.StatusNotFound, soroban.StatusPending} {
		outcome := Classify("abc123", &soroban.GetTransactionResponse{Status: status})
		assert.Equal(t, types.SubmissionStatusPending, outcome.Status, "status %s", status)
	}
}

func TestDiagnosticsRendering(t *testing.T) {
	sym := xdr.ScSymbol("fn_call")
	msg := xdr.ScString("contract not initialized")
	event := xdr.DiagnosticEvent{
		Event: xdr.ContractEvent{
			Type: xdr.ContractEventTypeDiagnostic,
			Body: xdr.ContractEventBody{
				V: 0,
				V0: &xdr.ContractEventV0{
					Topics: []xdr.ScVal{{Type: xdr.ScValTypeScvSymbol, Sym: &sym}},
					Data:   xdr.ScVal{Type: xdr.ScValTypeScvString, Str: &msg},
				},
			},
		},
	}
	b64, err := xdr.MarshalBase64(event)
	require.NoError(t, err)

	resp := &soroban.GetTransactionResponse{
		Status:              soroban.StatusFailed,
		DiagnosticEventsXDR: []string{b64},
	}
	outcome := Classify("abc123", resp)
	require.Len(t, outcome.Diagnostics, 1)
	assert.Contains(t, outcome.Diagnostics[0], "fn_call")
	assert.Contains(t, outcome.Diagnostics[0], "contract not initialized")
}
