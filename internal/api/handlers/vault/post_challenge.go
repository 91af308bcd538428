package vault

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/SafeVault/wallet-service/internal/api"
	"github.com/SafeVault/wallet-service/internal/api/httperrors"
)

// PostChallengeRoute 注册 challenge 签发路由
func PostChallengeRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/vault/challenges", postChallengeHandler(s))
}

// ChallengeRequest challenge 签发请求
type ChallengeRequest struct {
	// SignaturePayload 待签名载荷，前 32 字节决定 challenge
	SignaturePayload []byte `json:"signature_payload"`
}

// ChallengeResponse challenge 签发响应
type ChallengeResponse struct {
	// Challenge 客户端要交给认证器的 base64url 字符串
	Challenge string `json:"challenge"`
}

// postChallengeHandler 为一个载荷签发一次性 challenge
// 客户端拿它发起 WebAuthn 断言，消费后即失效
func postChallengeHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req ChallengeRequest
		if err := c.Bind(&req); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeGeneric, "invalid request body")
		}
		if len(req.SignaturePayload) == 0 {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeGeneric, "signature_payload is required")
		}

		ch, err := s.Binder.Issue(c.Request().Context(), req.SignaturePayload)
		if err != nil {
			return httperrors.FromError(err)
		}
		return c.JSON(http.StatusOK, &ChallengeResponse{Challenge: ch})
	}
}
