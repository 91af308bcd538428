package vault

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/SafeVault/wallet-service/internal/api"
	"github.com/SafeVault/wallet-service/internal/api/httperrors"
	"github.com/SafeVault/wallet-service/internal/types"
)

// PostDepositRoute 注册入金路由
func PostDepositRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/vault/deposits", postDepositHandler(s))
}

// postDepositHandler 执行一笔 WebAuthn 授权的入金
func postDepositHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		var intent types.TransactionIntent
		if err := c.Bind(&intent); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeGeneric, "invalid request body")
		}
		if intent.Signer == "" || intent.Asset == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeGeneric, "signer and asset are required")
		}

		outcome, err := s.Vault.DepositFunds(c.Request().Context(), &intent)
		if err != nil {
			return httperrors.FromError(err)
		}
		return c.JSON(statusForOutcome(outcome), outcome)
	}
}
