package vault

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/SafeVault/wallet-service/internal/api"
	"github.com/SafeVault/wallet-service/internal/api/httperrors"
	"github.com/SafeVault/wallet-service/internal/types"
)

// PostExecutePaymentRoute 注册转账路由
func PostExecutePaymentRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/vault/payments", postExecutePaymentHandler(s))
}

// postExecutePaymentHandler 执行一笔 WebAuthn 授权的转账
func postExecutePaymentHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		var intent types.TransactionIntent
		if err := c.Bind(&intent); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeGeneric, "invalid request body")
		}
		if intent.Signer == "" || intent.Asset == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeGeneric, "signer and asset are required")
		}

		outcome, err := s.Vault.ExecutePayment(c.Request().Context(), &intent)
		if err != nil {
			return httperrors.FromError(err)
		}
		return c.JSON(statusForOutcome(outcome), outcome)
	}
}

// statusForOutcome 终态到状态码：落账成功 200、轮询耗尽 202、链上拒绝 422
func statusForOutcome(outcome *types.SubmissionOutcome) int {
	switch outcome.Status {
	case types.SubmissionStatusSuccess:
		return http.StatusOK
	case types.SubmissionStatusPending:
		return http.StatusAccepted
	default:
		return http.StatusUnprocessableEntity
	}
}
