package httperrors

import (
	"fmt"
	"net/http"

	"github.com/SafeVault/wallet-service/internal/vault/vaulterr"
)

// TypeGeneric 未细分的公开错误类型
const TypeGeneric = "generic"

// HTTPError 对外错误载荷
type HTTPError struct {
	Code  int    `json:"status"`
	Type  string `json:"type"`
	Title string `json:"title"`
	// ErrorKind 机器可读的管道错误分类
	ErrorKind string `json:"error_kind,omitempty"`
	// HostErrorKind 宿主错误细类
	HostErrorKind string `json:"host_error_kind,omitempty"`
	// TxHash 已上链交易的哈希，调用方凭它独立核对
	TxHash string `json:"tx_hash,omitempty"`
	// Diagnostics 诊断事件文本，仅作佐证
	Diagnostics []string `json:"diagnostics,omitempty"`
	// Internal 不对外序列化的内部原因
	Internal error `json:"-"`
}

func (e *HTTPError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("HTTPError %d (%s): %s: %v", e.Code, e.Type, e.Title, e.Internal)
	}
	return fmt.Sprintf("HTTPError %d (%s): %s", e.Code, e.Type, e.Title)
}

// NewHTTPError 创建公开错误
func NewHTTPError(code int, errorType string, title string) *HTTPError {
	return &HTTPError{Code: code, Type: errorType, Title: title}
}

// FromError 把管道错误映射为 HTTP 错误
// 状态码只看 Kind，不解析错误文本
func FromError(err error) *HTTPError {
	e, ok := vaulterr.AsError(err)
	if !ok {
		return &HTTPError{
			Code:     http.StatusInternalServerError,
			Type:     TypeGeneric,
			Title:    "Internal server error",
			Internal: err,
		}
	}

	httpErr := &HTTPError{
		Code:          statusForKind(e.Kind),
		Type:          TypeGeneric,
		Title:         e.Message,
		ErrorKind:     string(e.Kind),
		HostErrorKind: string(e.HostKind),
		TxHash:        e.TxHash,
		Diagnostics:   e.Diagnostics,
		Internal:      err,
	}
	return httpErr
}

func statusForKind(kind vaulterr.Kind) int {
	switch kind {
	case vaulterr.KindKeyFormat, vaulterr.KindSignatureFormat, vaulterr.KindChallengeMismatch:
		return http.StatusBadRequest
	case vaulterr.KindRegistrationUnconfirmed:
		return http.StatusConflict
	case vaulterr.KindAuthorizationMissing, vaulterr.KindSimulationFailed:
		return http.StatusUnprocessableEntity
	case vaulterr.KindContractReturnedFalse:
		return http.StatusUnprocessableEntity
	case vaulterr.KindPollTimeout:
		return http.StatusAccepted
	case vaulterr.KindNetwork, vaulterr.KindProtocolParse, vaulterr.KindHostError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
