package vault

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/SafeVault/wallet-service/internal/api"
	"github.com/SafeVault/wallet-service/internal/api/httperrors"
	"github.com/SafeVault/wallet-service/internal/types"
)

// PostRegisterSignerRoute 注册签名者注册路由
func PostRegisterSignerRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/vault/signers", postRegisterSignerHandler(s))
}

// postRegisterSignerHandler 幂等注册签名者的 Passkey 公钥
func postRegisterSignerHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req types.RegisterSignerRequest
		if err := c.Bind(&req); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeGeneric, "invalid request body")
		}
		if req.Signer == "" || len(req.WrappedPublicKey) == 0 {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeGeneric, "signer and wrapped_public_key are required")
		}
		if req.RelyingPartyID == "" && len(req.RelyingPartyIDHash) == 0 {
			req.RelyingPartyID = s.Config.Contract.RelyingPartyID
		}

		result, err := s.Vault.RegisterSigner(c.Request().Context(), &req)
		if err != nil {
			return httperrors.FromError(err)
		}

		status := http.StatusOK
		if result.State == types.RegistrationStateRegistering {
			status = http.StatusAccepted
		}
		return c.JSON(status, result)
	}
}
