package vaulterr

import (
	"fmt"
)

// Kind 错误分类标签（机器可读）
// 每个外部边界错误都必须携带一个 Kind，HTTP 层据此映射状态码
type Kind string

const (
	KindKeyFormat               Kind = "KEY_FORMAT"
	KindSignatureFormat         Kind = "SIGNATURE_FORMAT"
	KindChallengeMismatch       Kind = "CHALLENGE_MISMATCH"
	KindRegistrationUnconfirmed Kind = "REGISTRATION_UNCONFIRMED"
	KindAuthorizationMissing    Kind = "AUTHORIZATION_MISSING"
	KindSimulationFailed        Kind = "SIMULATION_FAILED"
	KindProtocolParse           Kind = "PROTOCOL_PARSE"
	KindContractReturnedFalse   Kind = "CONTRACT_RETURNED_FALSE"
	KindHostError               Kind = "HOST_ERROR"
	KindNetwork                 Kind = "NETWORK"
	KindPollTimeout             Kind = "POLL_TIMEOUT"
)

// HostKind 宿主错误细类（从嵌套的 ScError union 尽力提取）
type HostKind string

const (
	HostKindContract HostKind = "CONTRACT"
	HostKindWasmVM   HostKind = "WASM_VM"
	HostKindContext  HostKind = "CONTEXT"
	HostKindStorage  HostKind = "STORAGE"
	HostKindObject   HostKind = "OBJECT"
	HostKindCrypto   HostKind = "CRYPTO"
	HostKindEvents   HostKind = "EVENTS"
	HostKindBudget   HostKind = "BUDGET"
	HostKindValue    HostKind = "VALUE"
	HostKindAuth     HostKind = "AUTH"
	HostKindUnknown  HostKind = "UNKNOWN"
)

// Error 管道错误
// Message 面向人类，Kind 面向机器，TxHash（如果有）用于链上独立核对
type Error struct {
	Kind        Kind
	HostKind    HostKind
	Message     string
	TxHash      string
	Diagnostics []string
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is 支持 errors.Is 按 Kind 匹配哨兵值
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.HostKind == "" || t.HostKind == e.HostKind
}

// New 创建指定分类的错误
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误并附加分类
func Wrap(err error, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: err}
}

// NewHost 创建宿主错误（HostError(kind)）
func NewHost(hostKind HostKind, format string, args ...interface{}) *Error {
	return &Error{Kind: KindHostError, HostKind: hostKind, Message: fmt.Sprintf(format, args...)}
}

// WithTxHash 附加账本交易哈希
func (e *Error) WithTxHash(hash string) *Error {
	e.TxHash = hash
	return e
}

// WithDiagnostics 附加诊断事件文本（仅作佐证，不参与分类）
func (e *Error) WithDiagnostics(diags []string) *Error {
	e.Diagnostics = diags
	return e
}

// KindOf 提取错误分类；非管道错误归为 NETWORK
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindNetwork
}

// IsKind 判断错误是否属于指定分类
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

// AsError 沿错误链查找 *Error
func AsError(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
